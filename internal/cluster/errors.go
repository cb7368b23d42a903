package cluster

import "errors"

// Error taxonomy (§7). These are sentinel kinds, not concrete wire types —
// callers wrap them with fmt.Errorf("...: %w", ErrX) and unwrap with
// errors.Is/errors.As. Kinds that need a payload (e.g. the rejected node)
// get a small struct implementing error and wrapping one of these via
// Unwrap, so errors.Is still matches.
var (
	// ErrTransientConnect signals a connect-level failure that the outer
	// loop (ping round, join retry) should simply retry.
	ErrTransientConnect = errors.New("transient connect failure")

	// ErrNotMasterForJoin is returned by a join target that no longer
	// believes itself master; retriable at the join-request level.
	ErrNotMasterForJoin = errors.New("not master for join request")

	// ErrRemoteRejected is a non-retriable rejection from the remote peer.
	ErrRemoteRejected = errors.New("remote rejected request")

	// ErrWrongClusterName means a join or published state named a
	// different cluster than the local node's.
	ErrWrongClusterName = errors.New("wrong cluster name")

	// ErrStaleState means an incoming published state is not newer than
	// what's already current; it is ignored, not treated as failure.
	ErrStaleState = errors.New("stale cluster state")

	// ErrQuorumLost means master_eligible(nodes) dropped below
	// minimum_master_nodes; the local node must rejoin.
	ErrQuorumLost = errors.New("quorum lost")

	// ErrActionNotFound is returned by Transport.Send when the peer has no
	// handler registered for the requested action (used for the ping
	// version-negotiation capability probe, §4.2/§9).
	ErrActionNotFound = errors.New("action not found")

	// ErrNoLongerMaster is surfaced to a master-required task that ran
	// after the local node stopped being master.
	ErrNoLongerMaster = errors.New("local node is no longer master")
)
