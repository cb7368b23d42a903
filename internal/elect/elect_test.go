package elect

import (
	"testing"

	"github.com/ployz-io/zen/internal/cluster"
)

func TestElectSmallestIDWinsOnVersionTie(t *testing.T) {
	nodes := []cluster.Node{
		{ID: "b", Version: 1, MasterEligible: true},
		{ID: "a", Version: 1, MasterEligible: true},
	}
	id, ok := Elect(nodes, Filters{FilterClient: true})
	if !ok || id != "a" {
		t.Fatalf("expected a, got %q ok=%v", id, ok)
	}
}

func TestElectOlderVersionPreferred(t *testing.T) {
	nodes := []cluster.Node{
		{ID: "a", Version: 2, MasterEligible: true},
		{ID: "b", Version: 1, MasterEligible: true},
	}
	id, ok := Elect(nodes, Filters{})
	if !ok || id != "b" {
		t.Fatalf("expected b (lower version wins), got %q ok=%v", id, ok)
	}
}

func TestElectDropsClientsAlways(t *testing.T) {
	nodes := []cluster.Node{
		{ID: "a", Version: 1, Client: true, MasterEligible: true},
		{ID: "b", Version: 1, MasterEligible: true},
	}
	id, ok := Elect(nodes, Filters{FilterClient: true})
	if !ok || id != "b" {
		t.Fatalf("expected b, client node a must never be elected, got %q ok=%v", id, ok)
	}
}

func TestElectDropsDataRoleWhenFiltered(t *testing.T) {
	nodes := []cluster.Node{
		{ID: "a", Version: 1, Data: true, MasterEligible: true},
		{ID: "b", Version: 1, MasterEligible: true},
	}
	id, ok := Elect(nodes, Filters{FilterData: true})
	if !ok || id != "b" {
		t.Fatalf("expected b with filter_data dropping combined data+master node a, got %q ok=%v", id, ok)
	}

	id, ok = Elect(nodes, Filters{FilterData: false})
	if !ok || id != "a" {
		t.Fatalf("expected a (lower id) when filter_data is off, got %q ok=%v", id, ok)
	}
}

func TestElectNoCandidatesReturnsFalse(t *testing.T) {
	_, ok := Elect(nil, Filters{})
	if ok {
		t.Fatalf("expected ok=false with no candidates")
	}
}

func TestHasEnoughMasterNodesQuorum(t *testing.T) {
	nodes := []cluster.Node{
		{ID: "a", MasterEligible: true},
	}
	if HasEnoughMasterNodes(nodes, Filters{}, 2) {
		t.Fatalf("expected quorum not met with 1 eligible node and M=2")
	}
	if !HasEnoughMasterNodes(nodes, Filters{}, 1) {
		t.Fatalf("expected quorum met with 1 eligible node and M=1")
	}
}

func TestSortByMasterLikelihoodMatchesElectOrder(t *testing.T) {
	nodes := []cluster.Node{
		{ID: "c", Version: 2, MasterEligible: true},
		{ID: "a", Version: 1, MasterEligible: true},
		{ID: "b", Version: 1, MasterEligible: true},
	}
	sorted := SortByMasterLikelihood(nodes, Filters{})
	want := []string{"a", "b", "c"}
	for i, n := range sorted {
		if n.ID != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], n.ID)
		}
	}
}
