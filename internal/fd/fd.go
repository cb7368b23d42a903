// Package fd implements the two periodic liveness probers described in
// §4.4: MasterFaultDetection (a follower watching its believed master) and
// NodesFaultDetection (a master watching its followers), plus the
// pings-from-another-master cross-check that feeds split-brain resolution.
package fd

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ployz-io/zen/internal/cluster"
	"github.com/ployz-io/zen/internal/transport"
)

func encodeReply(v any) ([]byte, error) {
	return json.Marshal(v)
}

// ActionPing is the liveness-probe action both detectors use.
const ActionPing = "fd.ping"

// PingRequest carries the pinger's own node id and, when the pinger
// believes itself master, lets the recipient detect a conflicting master
// (§4.4 "pings-from-another-master").
type PingRequest struct {
	FromID       string `json:"from_id"`
	FromIsMaster bool   `json:"from_is_master"`
	// FromVersion is the pinger's current cluster-state version, set only
	// when FromIsMaster. The receiver uses it to resolve a conflicting
	// master without needing a full published state round trip (§4.4,
	// §4.8 split-brain resolution, scenario S4).
	FromVersion uint64 `json:"from_version,omitempty"`
}

// PingReply signals whether the recipient still recognizes the pinger as
// part of its cluster; FollowerOf is empty when the recipient believes no
// master.
type PingReply struct {
	FollowerOf string `json:"follower_of"`
}

// Config tunes both detectors (§6 defaults chosen to match typical
// Zen-style liveness windows; the spec leaves the exact numbers to the
// implementer beyond retry_count and interval existing).
type Config struct {
	Interval   time.Duration // default 1s
	RetryCount int           // default 3
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.RetryCount <= 0 {
		c.RetryCount = 3
	}
	return c
}

// MasterFaultDetection pings a single believed master on an interval and
// fires onFailure after RetryCount consecutive failures or an explicit
// "you are not in my cluster" reply.
type MasterFaultDetection struct {
	transport transport.Transport
	cfg       Config
	log       *slog.Logger
	selfID    string

	mu        sync.Mutex
	cancel    context.CancelFunc
	masterID  string
	masterAddr string
}

// OnMasterFailure is invoked with the master's id and a human-readable
// reason when the master is judged dead.
type OnMasterFailure func(masterID, reason string)

func NewMasterFD(t transport.Transport, selfID string, cfg Config, log *slog.Logger) *MasterFaultDetection {
	if log == nil {
		log = slog.Default()
	}
	return &MasterFaultDetection{transport: t, cfg: cfg.withDefaults(), log: log.With("component", "master_fd"), selfID: selfID}
}

// Restart stops any previous probe and begins pinging masterID at
// masterAddr (§4.4 "MasterFD must be explicitly restarted against the new
// target").
func (m *MasterFaultDetection) Restart(ctx context.Context, masterID, masterAddr string, onFailure OnMasterFailure) {
	m.Stop()

	probeCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.masterID = masterID
	m.masterAddr = masterAddr
	m.mu.Unlock()

	go m.run(probeCtx, masterID, masterAddr, onFailure)
}

// Stop halts the current probe, if any.
func (m *MasterFaultDetection) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (m *MasterFaultDetection) run(ctx context.Context, masterID, masterAddr string, onFailure OnMasterFailure) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	consecutiveFailures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		reqCtx, cancel := context.WithTimeout(ctx, m.cfg.Interval)
		raw, err := m.transport.Send(reqCtx, masterAddr, ActionPing, PingRequest{FromID: m.selfID}, m.cfg.Interval)
		cancel()

		if err == nil {
			var reply PingReply
			if derr := transport.DecodeInto(raw, &reply); derr == nil && reply.FollowerOf != "" && reply.FollowerOf != masterID {
				m.log.Warn("master reports we are not in its cluster", "master", masterID)
				onFailure(masterID, "not in master's cluster")
				return
			}
			consecutiveFailures = 0
			continue
		}

		consecutiveFailures++
		m.log.Debug("master ping failed", "master", masterID, "failures", consecutiveFailures, "err", err)
		if consecutiveFailures >= m.cfg.RetryCount {
			onFailure(masterID, "exceeded retry count")
			return
		}
	}
}

// NodesFaultDetection pings every follower on an interval and fires
// onFailure for any that stops responding.
type NodesFaultDetection struct {
	transport   transport.Transport
	cfg         Config
	log         *slog.Logger
	selfID      string
	selfVersion func() uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	probes map[string]context.CancelFunc
}

type OnNodeFailure func(nodeID, reason string)

// NewNodesFD builds a master-side prober. selfVersion reports this node's
// current cluster-state version, embedded in every ping so a conflicting
// master's receiver can resolve split-brain without a full state exchange.
func NewNodesFD(t transport.Transport, selfID string, selfVersion func() uint64, cfg Config, log *slog.Logger) *NodesFaultDetection {
	if log == nil {
		log = slog.Default()
	}
	return &NodesFaultDetection{
		transport:   t,
		cfg:         cfg.withDefaults(),
		log:         log.With("component", "nodes_fd"),
		selfID:      selfID,
		selfVersion: selfVersion,
		probes:      make(map[string]context.CancelFunc),
	}
}

// Reseed replaces the set of watched followers with nodes, starting
// probes for new ones and stopping probes for ones no longer present
// (§4.4: "NodesFD must be re-seeded with the new node set after every
// accepted state update on the master").
func (n *NodesFaultDetection) Reseed(ctx context.Context, nodes []cluster.Node, onFailure OnNodeFailure) {
	n.mu.Lock()
	defer n.mu.Unlock()

	keep := make(map[string]bool, len(nodes))
	for _, node := range nodes {
		keep[node.ID] = true
		if node.ID == n.selfID {
			continue
		}
		if _, watching := n.probes[node.ID]; watching {
			continue
		}
		probeCtx, cancel := context.WithCancel(ctx)
		n.probes[node.ID] = cancel
		go n.run(probeCtx, node, onFailure)
	}

	for id, cancel := range n.probes {
		if !keep[id] {
			cancel()
			delete(n.probes, id)
		}
	}
}

// StopAll halts every follower probe (called when the local node stops
// being master).
func (n *NodesFaultDetection) StopAll() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, cancel := range n.probes {
		cancel()
		delete(n.probes, id)
	}
}

func (n *NodesFaultDetection) run(ctx context.Context, node cluster.Node, onFailure OnNodeFailure) {
	ticker := time.NewTicker(n.cfg.Interval)
	defer ticker.Stop()

	consecutiveFailures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		reqCtx, cancel := context.WithTimeout(ctx, n.cfg.Interval)
		req := PingRequest{FromID: n.selfID, FromIsMaster: true, FromVersion: n.selfVersion()}
		_, err := n.transport.Send(reqCtx, node.Address, ActionPing, req, n.cfg.Interval)
		cancel()

		if err == nil {
			consecutiveFailures = 0
			continue
		}
		if errors.Is(err, cluster.ErrActionNotFound) {
			continue // peer hasn't registered the handler yet; not a liveness failure
		}

		consecutiveFailures++
		n.log.Debug("node ping failed", "node", node.ID, "failures", consecutiveFailures, "err", err)
		if consecutiveFailures >= n.cfg.RetryCount {
			onFailure(node.ID, "exceeded retry count")
			return
		}
	}
}
