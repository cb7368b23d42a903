package cluster

import "time"

// PingResponse is the payload carried by both ping.unicast and
// ping.unicast.v2 replies (§3, §6). HasJoinedOnce is only meaningful on
// ping.unicast.v2 — legacy-action responses leave it false.
type PingResponse struct {
	Responder     Node
	Master        *Node // nil if the responder believes no master
	ClusterName   string
	HasJoinedOnce bool
	RequestID     string
}

// JoinRequest carries the requesting node's descriptor (§3, §6).
type JoinRequest struct {
	Node Node
}

// LeaveRequest carries the leaving node's descriptor (§3, §6).
type LeaveRequest struct {
	Node Node
}

// RejoinRequest carries the id of the node asking the recipient to
// surrender mastership (§4.8 split-brain resolution, §6 discovery.rejoin).
type RejoinRequest struct {
	RequesterID string
}

// PendingState is one entry in a follower's drain queue of states received
// from the master before they've been processed (§3, §4.8 S5).
type PendingState struct {
	State       State
	AckCallback func(error)
	ReceivedAt  time.Time

	processed bool
}

// MarkProcessed invokes AckCallback(nil) exactly once and records that
// this entry has been handled, whether or not it became the current state.
func (p *PendingState) MarkProcessed() {
	if p.processed {
		return
	}
	p.processed = true
	if p.AckCallback != nil {
		p.AckCallback(nil)
	}
}

// MarkRejected invokes AckCallback(err) exactly once.
func (p *PendingState) MarkRejected(err error) {
	if p.processed {
		return
	}
	p.processed = true
	if p.AckCallback != nil {
		p.AckCallback(err)
	}
}

// Processed reports whether this entry has already been acked.
func (p *PendingState) Processed() bool { return p.processed }
