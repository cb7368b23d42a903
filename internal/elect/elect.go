// Package elect implements ElectMaster as a pure, deterministic function
// from a candidate node set to an elected master id (§4.3). It has no
// dependency on transport, timers, or any other component — callers feed it
// a snapshot and read back a decision.
package elect

import (
	"sort"

	"github.com/ployz-io/zen/internal/cluster"
)

// Filters controls which role-flagged nodes are dropped before election
// (§6 master_election.filter_client / filter_data).
type Filters struct {
	// FilterClient, when true, drops client-only nodes. Clients are never
	// eligible regardless of this flag; it exists for symmetry with
	// FilterData and for logging which filters were active.
	FilterClient bool
	// FilterData, when true, drops every node with the Data role from the
	// candidate set, including nodes that are also master-eligible.
	FilterData bool
}

// candidates applies Filters to nodes, returning only master-eligible
// survivors. Clients are always dropped; nodes with the Data role are
// dropped when FilterData is set.
func candidates(nodes []cluster.Node, f Filters) []cluster.Node {
	out := make([]cluster.Node, 0, len(nodes))
	for _, n := range nodes {
		if n.Client {
			continue
		}
		if !n.MasterEligible {
			continue
		}
		if f.FilterData && n.Data {
			continue
		}
		out = append(out, n)
	}
	return out
}

// HasEnoughMasterNodes reports whether the count of master-eligible nodes
// in the set meets the configured quorum M.
func HasEnoughMasterNodes(nodes []cluster.Node, f Filters, minimumMasterNodes int) bool {
	return len(candidates(nodes, f)) >= minimumMasterNodes
}

// Elect returns the elected master's id among nodes, or ("", false) if no
// candidate survives filtering (the caller should treat this as "no master
// possible", independent of the quorum check). Elect does not itself check
// quorum — callers combine Elect with HasEnoughMasterNodes per §4.3's
// "selection happens among filtered candidates; quorum gates whether the
// result is usable" split.
func Elect(nodes []cluster.Node, f Filters) (string, bool) {
	c := candidates(nodes, f)
	if len(c) == 0 {
		return "", false
	}
	sortByLikelihood(c)
	return c[0].ID, true
}

// SortByMasterLikelihood orders nodes by the same (version ascending, id
// ascending) comparator Elect uses, for use as a ping-target priority
// (§4.3). It filters first, exactly like Elect, so client and (if
// FilterData) data-only nodes are absent from the result.
func SortByMasterLikelihood(nodes []cluster.Node, f Filters) []cluster.Node {
	c := candidates(nodes, f)
	sortByLikelihood(c)
	return c
}

// sortByLikelihood sorts in place by (Version ascending, ID ascending) —
// the sole tie-break rule, reproduced bit-exactly per §4.3.
func sortByLikelihood(nodes []cluster.Node) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Version != nodes[j].Version {
			return nodes[i].Version < nodes[j].Version
		}
		return nodes[i].ID < nodes[j].ID
	})
}
