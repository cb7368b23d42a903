package ping

import (
	"sync"
	"time"

	"github.com/ployz-io/zen/internal/cluster"
)

// temporalResponses is the short-lived buffer of recently-heard
// PingResponses gossiped back to pingers to accelerate convergence when the
// seed list is incomplete (§4.2). Entries are purged lazily — on every Add
// or Snapshot — rather than by a dedicated timer goroutine, which keeps the
// type trivially safe to embed without a Close method.
type temporalResponses struct {
	mu      sync.Mutex
	entries map[string]temporalEntry // keyed by responder node id
}

type temporalEntry struct {
	resp      cluster.PingResponse
	expiresAt time.Time
}

func newTemporalResponses() *temporalResponses {
	return &temporalResponses{entries: make(map[string]temporalEntry)}
}

// Add records resp, to expire after ttl (2×ping timeout per §4.2).
func (t *temporalResponses) Add(resp cluster.PingResponse, ttl time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.purgeLocked()
	t.entries[resp.Responder.ID] = temporalEntry{resp: resp, expiresAt: time.Now().Add(ttl)}
}

// Snapshot returns all unexpired responses.
func (t *temporalResponses) Snapshot() []cluster.PingResponse {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.purgeLocked()
	out := make([]cluster.PingResponse, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.resp)
	}
	return out
}

func (t *temporalResponses) purgeLocked() {
	now := time.Now()
	for id, e := range t.entries {
		if now.After(e.expiresAt) {
			delete(t.entries, id)
		}
	}
}
