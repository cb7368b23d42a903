package cluster

import "testing"

func TestNodeSetWithNodeIsImmutable(t *testing.T) {
	base := NewNodeSet("a")
	a := Node{ID: "a", MasterEligible: true}
	withA := base.WithNode(a)

	if base.Len() != 0 {
		t.Fatalf("base mutated: len=%d", base.Len())
	}
	if withA.Len() != 1 {
		t.Fatalf("expected 1 node, got %d", withA.Len())
	}
	got, ok := withA.Get("a")
	if !ok || got.ID != "a" {
		t.Fatalf("expected node a, got %+v ok=%v", got, ok)
	}
}

func TestNodeSetWithoutNodeClearsMaster(t *testing.T) {
	s := NewNodeSet("a").
		WithNode(Node{ID: "a", MasterEligible: true}).
		WithNode(Node{ID: "b", MasterEligible: true}).
		WithMaster("b")

	s2 := s.WithoutNode("b")
	if s2.HasMaster() {
		t.Fatalf("expected master cleared after removing master node")
	}
	if s2.Len() != 1 {
		t.Fatalf("expected 1 node remaining, got %d", s2.Len())
	}
}

func TestNodeSetMasterEligibleFiltersRoles(t *testing.T) {
	s := NewNodeSet("a").
		WithNode(Node{ID: "a", MasterEligible: true}).
		WithNode(Node{ID: "c", Client: true})

	eligible := s.MasterEligible()
	if len(eligible) != 1 || eligible[0].ID != "a" {
		t.Fatalf("expected only node a, got %+v", eligible)
	}
}

func TestNodeSetIsLocalMaster(t *testing.T) {
	s := NewNodeSet("a").WithNode(Node{ID: "a"}).WithMaster("a")
	if !s.IsLocalMaster() {
		t.Fatalf("expected local node to be master")
	}
	if s.WithMaster("b").IsLocalMaster() {
		t.Fatalf("expected local node not to be master once master changes")
	}
}
