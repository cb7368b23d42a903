package fd

import (
	"context"
	"sync"

	"github.com/ployz-io/zen/internal/transport"
)

// LocalView is the narrow read-only state the receiver-side handler needs:
// whether this node currently believes itself master, and who it currently
// follows (for the FollowerOf reply that lets a prober detect "you are not
// in my cluster").
type LocalView interface {
	IsLocalMaster() bool
	FollowerOf() string // "" if no master believed
}

// OnAnotherMaster fires for a peer each time that peer's FromIsMaster pings
// reach the configured threshold while this node also believes itself
// master; the peer's count then starts again from zero (§4.4, §4.8
// split-brain resolution). peerAddr is the dialable
// address the conflicting master pinged from, so the caller can send it a
// rejoin request without already having it in its own node set.
type OnAnotherMaster func(peerID, peerAddr string, peerVersion uint64)

// Receiver answers fd.ping requests and runs the pings-from-another-master
// cross-check.
type Receiver struct {
	view      LocalView
	threshold int
	onConflict OnAnotherMaster

	mu       sync.Mutex
	counters map[string]int
}

// NewReceiver builds a Receiver. threshold is max_pings_from_another_master
// (§6, default 3).
func NewReceiver(view LocalView, threshold int, onConflict OnAnotherMaster) *Receiver {
	if threshold <= 0 {
		threshold = 3
	}
	return &Receiver{view: view, threshold: threshold, onConflict: onConflict, counters: make(map[string]int)}
}

// RegisterHandler installs the fd.ping handler on t.
func (r *Receiver) RegisterHandler(t transport.Transport) {
	t.RegisterHandler(ActionPing, r.handle)
}

func (r *Receiver) handle(ctx context.Context, fromAddr string, payload []byte) ([]byte, error) {
	var req PingRequest
	if err := transport.DecodeInto(payload, &req); err != nil {
		return nil, err
	}

	if req.FromIsMaster && r.view.IsLocalMaster() {
		r.mu.Lock()
		r.counters[req.FromID]++
		count := r.counters[req.FromID]
		r.mu.Unlock()

		if count >= r.threshold {
			r.mu.Lock()
			r.counters[req.FromID] = 0
			r.mu.Unlock()
			if r.onConflict != nil {
				r.onConflict(req.FromID, fromAddr, req.FromVersion)
			}
		}
	} else if req.FromIsMaster {
		r.mu.Lock()
		delete(r.counters, req.FromID)
		r.mu.Unlock()
	}

	reply := PingReply{FollowerOf: r.view.FollowerOf()}
	data, err := encodeReply(reply)
	if err != nil {
		return nil, err
	}
	return data, nil
}
