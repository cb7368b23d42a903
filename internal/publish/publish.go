// Package publish implements the master-side broadcast of a new cluster
// state to every follower in that state's node set, tracking acks via an
// AckListener and stopping retries per-node on first delivery (§4.6).
package publish

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

// ActionPublish is the wire action carrying a serialized cluster state.
const ActionPublish = "cluster_state.publish"

// wireState is the over-the-wire shape of cluster.State; Metadata is
// carried through as a generic JSON object that this core never examines
// (§3).
type wireState struct {
	Version     uint64            `json:"version"`
	ClusterName string            `json:"cluster_name"`
	Nodes       wireNodeSet       `json:"nodes"`
	Blocks      []string          `json:"blocks"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
}

type wireNodeSet struct {
	Nodes    []cluster.Node `json:"nodes"`
	MasterID string         `json:"master_id"`
	LocalID  string         `json:"local_id"`
}

func toWire(s cluster.State) wireState {
	ns := s.Nodes
	return wireState{
		Version:     s.Version,
		ClusterName: s.ClusterName,
		Nodes:       wireNodeSet{Nodes: ns.Nodes(), MasterID: ns.MasterID(), LocalID: ns.LocalID()},
		Blocks:      s.Blocks.IDs(),
		Metadata:    s.Metadata,
	}
}

func fromWire(w wireState, localID string) cluster.State {
	nodeSet := cluster.NewNodeSet(localID)
	for _, n := range w.Nodes.Nodes {
		nodeSet = nodeSet.WithNode(n)
	}
	if w.Nodes.MasterID != "" {
		nodeSet = nodeSet.WithMaster(w.Nodes.MasterID)
	}

	blocks := cluster.NoBlocks
	for _, id := range w.Blocks {
		blocks = blocks.With(id)
	}

	return cluster.State{
		Version:     w.Version,
		ClusterName: w.ClusterName,
		Nodes:       nodeSet,
		Blocks:      blocks,
		Metadata:    w.Metadata,
	}
}

// AckListener receives per-node delivery outcomes for one publish round.
type AckListener interface {
	OnAck(nodeID string)
	OnAckFailure(nodeID string, err error)
	OnTimeout()
}

// Config tunes the per-node publish timeout.
type Config struct {
	Timeout time.Duration // default 30s
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// Publisher broadcasts cluster states from the master.
type Publisher struct {
	transport transport.Transport
	cfg       Config
	log       *slog.Logger
}

func New(t transport.Transport, cfg Config, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{transport: t, cfg: cfg.withDefaults(), log: log.With("component", "publish")}
}

// Publish sends state to every node in state.Nodes except the local node,
// invoking listener callbacks as each delivery completes. It returns once
// every follower has acked, failed, or timed out; it never retries beyond
// one attempt per follower (§4.6: "stops retrying per-node on first
// delivery").
func (p *Publisher) Publish(ctx context.Context, state cluster.State, listener AckListener) {
	wire := toWire(state)
	localID := state.Nodes.LocalID()

	var wg sync.WaitGroup
	for _, n := range state.Nodes.Nodes() {
		if n.ID == localID {
			continue
		}
		n := n
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.sendOne(ctx, n, wire, listener)
		}()
	}
	wg.Wait()
}

func (p *Publisher) sendOne(ctx context.Context, n cluster.Node, wire wireState, listener AckListener) {
	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	_, err := p.transport.Send(reqCtx, n.Address, ActionPublish, wire, p.cfg.Timeout)
	if err == nil {
		listener.OnAck(n.ID)
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		listener.OnTimeout()
		return
	}
	p.log.Warn("publish to follower failed", "node", n.ID, "err", err)
	listener.OnAckFailure(n.ID, err)
}

// Receiver is the follower-side handler: it decodes an incoming published
// state and forwards it to OnPublished for enqueueing as a pending state
// (§4.8 "receiving a published state").
type Receiver struct {
	localID     string
	onPublished func(state cluster.State, ack func(error))
}

func NewReceiver(localID string, onPublished func(state cluster.State, ack func(error))) *Receiver {
	return &Receiver{localID: localID, onPublished: onPublished}
}

func (r *Receiver) RegisterHandler(t transport.Transport) {
	t.RegisterHandler(ActionPublish, r.handle)
}

func (r *Receiver) handle(ctx context.Context, fromAddr string, payload []byte) ([]byte, error) {
	var w wireState
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, err
	}
	state := fromWire(w, r.localID)

	result := make(chan error, 1)
	r.onPublished(state, func(err error) { result <- err })

	select {
	case err := <-result:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
