package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ployz-io/zen/internal/cluster"
)

// Fake is an in-process Transport backed by a shared registry of Fake
// instances keyed by address, used to unit-test ping, membership, and
// publish logic without real sockets.
type Fake struct {
	addr     string
	registry *fakeRegistry

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	mu         sync.Mutex
	unreachable map[string]bool
}

type fakeRegistry struct {
	mu    sync.Mutex
	nodes map[string]*Fake
}

// NewFakeNetwork creates a shared registry; each call to NewFake against it
// can reach every other Fake registered on the same network.
func NewFakeNetwork() *fakeRegistry {
	return &fakeRegistry{nodes: make(map[string]*Fake)}
}

// NewFake registers a new Fake transport at addr on network.
func NewFake(network *fakeRegistry, addr string) *Fake {
	f := &Fake{
		addr:        addr,
		registry:    network,
		handlers:    make(map[string]Handler),
		unreachable: make(map[string]bool),
	}
	network.mu.Lock()
	network.nodes[addr] = f
	network.mu.Unlock()
	return f
}

// SetUnreachable toggles simulated connect failures to addr, for testing
// retry and fault-detection paths.
func (f *Fake) SetUnreachable(addr string, v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unreachable[addr] = v
}

func (f *Fake) RegisterHandler(action string, h Handler) {
	f.handlersMu.Lock()
	defer f.handlersMu.Unlock()
	f.handlers[action] = h
}

func (f *Fake) Connect(ctx context.Context, addr string) error {
	if f.isUnreachable(addr) {
		return &ConnectError{Addr: addr, Cause: context.DeadlineExceeded}
	}
	f.registry.mu.Lock()
	_, ok := f.registry.nodes[addr]
	f.registry.mu.Unlock()
	if !ok {
		return &ConnectError{Addr: addr, Cause: context.DeadlineExceeded}
	}
	return nil
}

func (f *Fake) Disconnect(addr string) error { return nil }

func (f *Fake) isUnreachable(addr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unreachable[addr]
}

func (f *Fake) Send(ctx context.Context, addr, action string, req any, timeout time.Duration) ([]byte, error) {
	if f.isUnreachable(addr) {
		return nil, &ConnectError{Addr: addr, Cause: context.DeadlineExceeded}
	}

	f.registry.mu.Lock()
	peer, ok := f.registry.nodes[addr]
	f.registry.mu.Unlock()
	if !ok {
		return nil, &ConnectError{Addr: addr, Cause: context.DeadlineExceeded}
	}

	peer.handlersMu.RLock()
	handler, ok := peer.handlers[action]
	peer.handlersMu.RUnlock()
	if !ok {
		return nil, cluster.ErrActionNotFound
	}

	payload, err := encodePayload(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultCh := make(chan struct {
		resp []byte
		err  error
	}, 1)
	go func() {
		resp, err := handler(ctx, f.addr, payload)
		resultCh <- struct {
			resp []byte
			err  error
		}{resp, err}
	}()

	select {
	case <-ctx.Done():
		return nil, &ConnectError{Addr: addr, Cause: ctx.Err()}
	case r := <-resultCh:
		return r.resp, r.err
	}
}

func (f *Fake) Close() error {
	f.registry.mu.Lock()
	delete(f.registry.nodes, f.addr)
	f.registry.mu.Unlock()
	return nil
}

// DecodeInto is a convenience for handlers unmarshalling a request payload.
func DecodeInto(payload []byte, v any) error {
	if len(payload) == 0 {
		return nil
	}
	return json.Unmarshal(payload, v)
}
