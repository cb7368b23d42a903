// Package ping implements unicast peer discovery: given a seed host list
// plus dynamic providers, produce a bounded set of PingResponse records
// within a timeout, using up to three timed waves to catch late joiners
// (§4.2).
package ping

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/semaphore"

	"github.com/ployz-io/zen/internal/cluster"
	"github.com/ployz-io/zen/internal/transport"
)

// HostProvider returns a dynamically-discovered set of host addresses,
// evaluated fresh on every wave (§4.2 "dynamic hosts from registered
// providers").
type HostProvider func() []string

// ContextProvider is the narrow read-only view PingService needs of the
// surrounding discovery state, breaking the cyclic dependency otherwise
// implied by "the pinger needs to know the current view" (§9).
type ContextProvider interface {
	Self() cluster.Node
	MasterEligibleNodes() []cluster.Node
	Master() (cluster.Node, bool)
	ClusterName() string
	HasJoinedOnce() bool
}

// Config holds the static tuning parameters (§6).
type Config struct {
	Seeds              []string
	Providers          []HostProvider
	ConcurrentConnects int // default 10
}

// Service implements unicast ping rounds over a Transport.
type Service struct {
	transport transport.Transport
	ctxView   ContextProvider
	cfg       Config
	log       *slog.Logger

	temporal *temporalResponses
}

// New builds a Service. RegisterHandlers must also be called (once, at
// startup) so this node can answer pings from peers.
func New(t transport.Transport, ctxView ContextProvider, cfg Config, log *slog.Logger) *Service {
	if cfg.ConcurrentConnects <= 0 {
		cfg.ConcurrentConnects = 10
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		transport: t,
		ctxView:   ctxView,
		cfg:       cfg,
		log:       log.With("component", "ping"),
		temporal:  newTemporalResponses(),
	}
}

// target is one unicast destination for a wave. Unresolved targets (a seed
// host, or a provider-supplied address we haven't heard from yet) carry a
// synthetic node stamped with UnicastSeedPrefix, minted only for logging
// and never persisted into cluster state (§4.2) — the real node id, once
// known, always comes from the peer's own reply.
type target struct {
	addr     string
	node     *cluster.Node
	resolved bool
}

func syntheticTarget(addr string) target {
	return target{addr: addr, node: &cluster.Node{ID: cluster.UnicastSeedPrefix + addr, Address: addr}}
}

// PingAndWait fires up to three waves within timeout (at 0, timeout/2,
// timeout) and waits a further timeout/2 before returning every response
// collected across all waves, deduplicated by responder id. Individual
// send failures are aggregated into the returned error but never prevent
// the round from returning whatever did arrive (§4.2, P7).
func (s *Service) PingAndWait(ctx context.Context, timeout time.Duration) ([]cluster.PingResponse, error) {
	half := timeout / 2

	results := make(map[string]cluster.PingResponse) // by responder id
	var resultsMu sync.Mutex
	var errs error
	var errsMu sync.Mutex

	var synthetic []string // addresses minted as synthetic this round
	var syntheticMu sync.Mutex

	wave := func(waveCtx context.Context) {
		targets := s.collectTargets()
		sem := semaphore.NewWeighted(int64(s.cfg.ConcurrentConnects))
		var wg sync.WaitGroup

		for _, tg := range targets {
			tg := tg
			if err := sem.Acquire(waveCtx, 1); err != nil {
				continue // round deadline hit; drop remaining targets silently
			}
			if !tg.resolved {
				s.log.Debug("pinging unresolved target", "synthetic_id", tg.node.ID, "addr", tg.addr)
				syntheticMu.Lock()
				synthetic = append(synthetic, tg.addr)
				syntheticMu.Unlock()
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer sem.Release(1)
				resps, err := s.pingOne(waveCtx, tg, timeout)
				if err != nil {
					errsMu.Lock()
					errs = multierror.Append(errs, err)
					errsMu.Unlock()
					return
				}
				resultsMu.Lock()
				for _, r := range resps {
					results[r.Responder.ID] = r
				}
				resultsMu.Unlock()
				for _, r := range resps {
					s.temporal.Add(r, 2*timeout)
				}
			}()
		}
		wg.Wait()
	}

	roundCtx, cancel := context.WithTimeout(ctx, timeout+half)
	defer cancel()

	wave(roundCtx)

	select {
	case <-time.After(half):
	case <-roundCtx.Done():
	}
	wave(roundCtx)

	select {
	case <-time.After(half):
	case <-roundCtx.Done():
	}
	wave(roundCtx)

	select {
	case <-time.After(half):
	case <-roundCtx.Done():
	}

	syntheticMu.Lock()
	for _, addr := range synthetic {
		_ = s.transport.Disconnect(addr)
	}
	syntheticMu.Unlock()

	out := make([]cluster.PingResponse, 0, len(results))
	for _, r := range results {
		out = append(out, r)
	}
	return out, errs
}

func (s *Service) collectTargets() []target {
	byAddr := make(map[string]target)

	for _, addr := range s.cfg.Seeds {
		byAddr[addr] = syntheticTarget(addr)
	}
	for _, p := range s.cfg.Providers {
		for _, addr := range p() {
			if _, exists := byAddr[addr]; !exists {
				byAddr[addr] = syntheticTarget(addr)
			}
		}
	}
	for _, r := range s.temporal.Snapshot() {
		n := r.Responder
		byAddr[n.Address] = target{addr: n.Address, node: &n, resolved: true}
	}
	for _, n := range s.ctxView.MasterEligibleNodes() {
		n := n
		byAddr[n.Address] = target{addr: n.Address, node: &n, resolved: true}
	}

	out := make([]target, 0, len(byAddr))
	for _, t := range byAddr {
		out = append(out, t)
	}
	return out
}

func (s *Service) pingOne(ctx context.Context, tg target, timeout time.Duration) ([]cluster.PingResponse, error) {
	self := s.selfResponse()

	if !tg.resolved {
		return s.sendLegacy(ctx, tg.addr, self, timeout)
	}

	resps, err := s.sendV2(ctx, tg.addr, self, timeout)
	if err == nil {
		return resps, nil
	}
	if !isActionNotFound(err) {
		return nil, err
	}
	s.log.Debug("peer lacks v2 ping action, falling back", "addr", tg.addr)
	return s.sendLegacy(ctx, tg.addr, self, timeout)
}

func (s *Service) selfResponse() cluster.PingResponse {
	var masterPtr *cluster.Node
	if master, ok := s.ctxView.Master(); ok {
		masterPtr = &master
	}
	return cluster.PingResponse{
		Responder:     s.ctxView.Self(),
		Master:        masterPtr,
		ClusterName:   s.ctxView.ClusterName(),
		HasJoinedOnce: s.ctxView.HasJoinedOnce(),
		RequestID:     cluster.NewRequestID(),
	}
}

func (s *Service) sendV2(ctx context.Context, addr string, self cluster.PingResponse, timeout time.Duration) ([]cluster.PingResponse, error) {
	req := v2Request{RequestID: self.RequestID, Timeout: timeout, Sender: self}
	raw, err := s.transport.Send(ctx, addr, ActionUnicastV2, req, timeout)
	if err != nil {
		return nil, err
	}
	var reply v2Reply
	if err := transport.DecodeInto(raw, &reply); err != nil {
		return nil, err
	}
	return reply.Responses, nil
}

func (s *Service) sendLegacy(ctx context.Context, addr string, self cluster.PingResponse, timeout time.Duration) ([]cluster.PingResponse, error) {
	req := legacyRequest{RequestID: self.RequestID, Timeout: timeout, Sender: legacyFrom(self)}
	raw, err := s.transport.Send(ctx, addr, ActionUnicast, req, timeout)
	if err != nil {
		return nil, err
	}
	var reply legacyReply
	if err := transport.DecodeInto(raw, &reply); err != nil {
		return nil, err
	}
	out := make([]cluster.PingResponse, 0, len(reply.Responses))
	for _, r := range reply.Responses {
		out = append(out, r.toPingResponse())
	}
	return out, nil
}

func isActionNotFound(err error) bool {
	return errors.Is(err, cluster.ErrActionNotFound)
}
