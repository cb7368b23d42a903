package cluster

import "testing"

func TestFreshStateHasNoMasterBlock(t *testing.T) {
	local := Node{ID: "a", MasterEligible: true}
	s := Fresh("prod", local)

	if !s.HasNoMasterBlock() {
		t.Fatalf("expected fresh state to carry NO_MASTER_BLOCK")
	}
	if s.Nodes.HasMaster() {
		t.Fatalf("expected fresh state to have no master")
	}
	if s.Version != 0 {
		t.Fatalf("expected version 0, got %d", s.Version)
	}
}

func TestSameMasterNewerThan(t *testing.T) {
	base := Fresh("prod", Node{ID: "a"}).WithNodes(
		NewNodeSet("a").WithNode(Node{ID: "a"}).WithMaster("a"),
	)

	older := base.WithVersion(5)
	newer := base.WithVersion(7)

	if !newer.SameMasterNewerThan(older) {
		t.Fatalf("expected newer to be newer than older")
	}
	if older.SameMasterNewerThan(newer) {
		t.Fatalf("expected older not to be newer than newer")
	}

	otherMaster := base.WithNodes(
		NewNodeSet("a").WithNode(Node{ID: "b"}).WithMaster("b"),
	).WithVersion(100)
	if otherMaster.SameMasterNewerThan(older) {
		t.Fatalf("version comparison across different masters must be invalid")
	}
}

func TestPendingStateMarkProcessedOnce(t *testing.T) {
	calls := 0
	var lastErr error
	p := &PendingState{AckCallback: func(err error) {
		calls++
		lastErr = err
	}}

	p.MarkProcessed()
	p.MarkRejected(ErrStaleState) // no-op, already processed

	if calls != 1 {
		t.Fatalf("expected exactly 1 callback invocation, got %d", calls)
	}
	if lastErr != nil {
		t.Fatalf("expected nil error from MarkProcessed, got %v", lastErr)
	}
	if !p.Processed() {
		t.Fatalf("expected Processed() true")
	}
}
