// Package transport implements the connection-oriented request/response RPC
// described in spec §4.1: connect/disconnect per node, send-with-timeout,
// and handler registration by action name.
//
// The wire framing (length-prefixed JSON over TCP) is grounded on the
// gossip package's encoding/json-over-socket pattern, adapted from
// fire-and-forget UDP to a blocking request/response model: each call to
// Send dials (or reuses) a persistent connection to the target and holds
// it for the full round trip, so concurrent sends to the *same* node are
// serialized but sends to different nodes proceed independently.
package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/ployz-io/zen/internal/cluster"
)

// Handler processes one inbound request for a registered action and
// returns the response payload (or an error, translated to an error
// envelope on the wire).
type Handler func(ctx context.Context, fromAddr string, payload []byte) ([]byte, error)

// Transport is the external contract every discovery component depends on.
// It never appears concretely in component signatures — only through this
// interface — so PingService, Membership, and PublishClusterState can be
// tested against an in-memory fake.
type Transport interface {
	Connect(ctx context.Context, addr string) error
	Disconnect(addr string) error
	Send(ctx context.Context, addr, action string, req any, timeout time.Duration) ([]byte, error)
	RegisterHandler(action string, h Handler)
	Close() error
}

// TCP is the production Transport: a TCP listener for inbound requests plus
// a pool of outbound connections, one per peer address, reused across
// calls until Disconnect or Close.
type TCP struct {
	selfAddr  string
	boundAddr string

	mu    sync.Mutex
	conns map[string]*outboundConn

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	ln net.Listener

	closeOnce sync.Once
	closed    chan struct{}
}

type outboundConn struct {
	mu   sync.Mutex // serializes the full send/receive round trip
	conn net.Conn
}

// New creates a TCP transport bound to selfAddr. Callers must call Listen
// to accept inbound connections before any peer can reach registered
// handlers.
func New(selfAddr string) *TCP {
	return &TCP{
		selfAddr: selfAddr,
		conns:    make(map[string]*outboundConn),
		handlers: make(map[string]Handler),
		closed:   make(chan struct{}),
	}
}

// RegisterHandler installs h for action, replacing any previous handler.
func (t *TCP) RegisterHandler(action string, h Handler) {
	t.handlersMu.Lock()
	defer t.handlersMu.Unlock()
	t.handlers[action] = h
}

func (t *TCP) handlerFor(action string) (Handler, bool) {
	t.handlersMu.RLock()
	defer t.handlersMu.RUnlock()
	h, ok := t.handlers[action]
	return h, ok
}

// Listen starts accepting inbound connections on bindAddr. It blocks until
// ctx is cancelled or the listener fails; callers run it in a goroutine.
func (t *TCP) Listen(ctx context.Context, bindAddr string) error {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return err
	}
	t.ln = ln
	t.boundAddr = ln.Addr().String()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go t.serveConn(conn)
	}
}

func (t *TCP) serveConn(conn net.Conn) {
	defer conn.Close()
	for {
		req, err := readFrame(conn)
		if err != nil {
			return
		}

		handler, ok := t.handlerFor(req.Action)
		if !ok {
			_ = writeFrame(conn, frame{ID: req.ID, Error: cluster.ErrActionNotFound.Error()})
			continue
		}

		resp, err := handler(context.Background(), conn.RemoteAddr().String(), req.Payload)
		out := frame{ID: req.ID, Payload: resp}
		if err != nil {
			out.Error = err.Error()
		}
		if err := writeFrame(conn, out); err != nil {
			return
		}
	}
}

// Connect eagerly dials addr and keeps the connection for reuse. Send will
// lazily dial if Connect wasn't called first.
func (t *TCP) Connect(ctx context.Context, addr string) error {
	_, err := t.connFor(ctx, addr)
	return err
}

// Disconnect closes and forgets the connection to addr, if any.
func (t *TCP) Disconnect(addr string) error {
	t.mu.Lock()
	oc, ok := t.conns[addr]
	delete(t.conns, addr)
	t.mu.Unlock()
	if !ok {
		return nil
	}
	return oc.conn.Close()
}

func (t *TCP) connFor(ctx context.Context, addr string) (*outboundConn, error) {
	t.mu.Lock()
	if oc, ok := t.conns[addr]; ok {
		t.mu.Unlock()
		return oc, nil
	}
	t.mu.Unlock()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectError{Addr: addr, Cause: err}
	}
	oc := &outboundConn{conn: conn}

	t.mu.Lock()
	if existing, ok := t.conns[addr]; ok {
		t.mu.Unlock()
		_ = conn.Close()
		return existing, nil
	}
	t.conns[addr] = oc
	t.mu.Unlock()
	return oc, nil
}

// Send performs one request/response round trip with the given action,
// returning the raw response payload. A failure to connect is wrapped in
// ConnectError; a peer with no handler for action returns
// cluster.ErrActionNotFound.
func (t *TCP) Send(ctx context.Context, addr, action string, req any, timeout time.Duration) ([]byte, error) {
	oc, err := t.connFor(ctx, addr)
	if err != nil {
		return nil, err
	}

	payload, err := encodePayload(req)
	if err != nil {
		return nil, err
	}

	id := cluster.NewRequestID()

	oc.mu.Lock()
	defer oc.mu.Unlock()

	_ = oc.conn.SetDeadline(time.Now().Add(timeout))
	if err := writeFrame(oc.conn, frame{ID: id, Action: action, Payload: payload}); err != nil {
		t.forget(addr, oc)
		return nil, &ConnectError{Addr: addr, Cause: err}
	}

	resp, err := readFrame(oc.conn)
	if err != nil {
		t.forget(addr, oc)
		return nil, &ConnectError{Addr: addr, Cause: err}
	}
	_ = oc.conn.SetDeadline(time.Time{})

	if resp.Error != "" {
		return nil, errorFromWire(resp.Error)
	}
	return resp.Payload, nil
}

func (t *TCP) forget(addr string, oc *outboundConn) {
	t.mu.Lock()
	if cur, ok := t.conns[addr]; ok && cur == oc {
		delete(t.conns, addr)
	}
	t.mu.Unlock()
	_ = oc.conn.Close()
}

// Close shuts down the listener and all outbound connections.
func (t *TCP) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	if t.ln != nil {
		_ = t.ln.Close()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for addr, oc := range t.conns {
		_ = oc.conn.Close()
		delete(t.conns, addr)
	}
	return nil
}
