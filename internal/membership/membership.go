// Package membership implements the three membership RPCs described in
// §4.5: join (with retry), validate-join, and leave.
package membership

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ployz-io/zen/internal/cluster"
	"github.com/ployz-io/zen/internal/transport"
)

const (
	ActionJoin         = "membership.join"
	ActionValidateJoin = "membership.validate_join"
	ActionLeave        = "membership.leave"
)

// Config tunes join retry behavior (§6).
type Config struct {
	JoinTimeout       time.Duration // default 20×ping_timeout
	JoinRetryAttempts int           // default 3
	JoinRetryDelay    time.Duration // default 100ms
}

func (c Config) withDefaults() Config {
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = 60 * time.Second
	}
	if c.JoinRetryAttempts <= 0 {
		c.JoinRetryAttempts = 3
	}
	if c.JoinRetryDelay <= 0 {
		c.JoinRetryDelay = 100 * time.Millisecond
	}
	return c
}

// Client is the candidate/outgoing side of membership: sending join and
// leave requests to a believed master.
type Client struct {
	transport transport.Transport
	cfg       Config
	log       *slog.Logger
	onRetry   func(attempt int)
}

func NewClient(t transport.Transport, cfg Config, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{transport: t, cfg: cfg.withDefaults(), log: log.With("component", "membership.client")}
}

// OnRetry installs a callback fired once per retried join attempt, after
// a not_master_for_join reply and before the retry delay. Intended for
// metrics; nil (the default) disables it.
func (c *Client) OnRetry(fn func(attempt int)) { c.onRetry = fn }

// Join sends a blocking join request to masterAddr, making up to
// JoinRetryAttempts attempts with JoinRetryDelay spacing when the target
// replies ErrNotMasterForJoin. All other errors are terminal for this call
// (§4.5, P6: at most JoinRetryAttempts RPCs are issued).
func (c *Client) Join(ctx context.Context, masterAddr string, self cluster.Node) error {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.JoinRetryAttempts; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.JoinTimeout)
		_, err := c.transport.Send(reqCtx, masterAddr, ActionJoin, cluster.JoinRequest{Node: self}, c.cfg.JoinTimeout)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		if !errors.Is(err, cluster.ErrNotMasterForJoin) {
			return err
		}
		c.log.Debug("join target no longer master, retrying", "attempt", attempt, "addr", masterAddr)

		if attempt < c.cfg.JoinRetryAttempts {
			if c.onRetry != nil {
				c.onRetry(attempt)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.cfg.JoinRetryDelay):
			}
		}
	}
	return lastErr
}

// Leave sends a best-effort leave notice; failures are returned for
// logging by the caller but must never block shutdown (§4.5, §5).
func (c *Client) Leave(ctx context.Context, masterAddr string, self cluster.Node) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.JoinTimeout)
	defer cancel()
	_, err := c.transport.Send(reqCtx, masterAddr, ActionLeave, cluster.LeaveRequest{Node: self}, c.cfg.JoinTimeout)
	return err
}

// ValidateJoin performs the master-side validation round-trip against a
// joining candidate before accepting it (§4.5).
func (c *Client) ValidateJoin(ctx context.Context, candidateAddr string, clusterName string) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.JoinTimeout)
	defer cancel()
	_, err := c.transport.Send(reqCtx, candidateAddr, ActionValidateJoin, validateJoinRequest{ClusterName: clusterName}, c.cfg.JoinTimeout)
	return err
}

type validateJoinRequest struct {
	ClusterName string `json:"cluster_name"`
}
