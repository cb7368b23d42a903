package cluster

import "sort"

// NodeSet is an immutable, ordered mapping from node id to node descriptor,
// plus a distinguished master id (empty string = no master) and the id of
// the local node holding this view (§3).
//
// All mutating-looking methods return a new NodeSet; the receiver is never
// modified. This lets ClusterStateService treat a NodeSet reachable from a
// ClusterState as frozen while a task runs (§4.7).
type NodeSet struct {
	nodes    map[string]Node
	order    []string // insertion order, for deterministic iteration
	masterID string
	localID  string
}

// NewNodeSet builds an empty NodeSet for the given local node id.
func NewNodeSet(localID string) NodeSet {
	return NodeSet{nodes: map[string]Node{}, localID: localID}
}

// MasterID returns the believed master's id, or "" if none.
func (s NodeSet) MasterID() string { return s.masterID }

// LocalID returns the id of the node that holds this view.
func (s NodeSet) LocalID() string { return s.localID }

// HasMaster reports whether a master is currently believed.
func (s NodeSet) HasMaster() bool { return s.masterID != "" }

// IsLocalMaster reports whether the local node believes itself master.
func (s NodeSet) IsLocalMaster() bool { return s.masterID != "" && s.masterID == s.localID }

// Get returns the node for id, if present.
func (s NodeSet) Get(id string) (Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// Local returns the local node's descriptor, if present in the set.
func (s NodeSet) Local() (Node, bool) { return s.Get(s.localID) }

// Master returns the believed master's descriptor, if known and present.
func (s NodeSet) Master() (Node, bool) {
	if s.masterID == "" {
		return Node{}, false
	}
	return s.Get(s.masterID)
}

// Len returns the number of nodes in the set.
func (s NodeSet) Len() int { return len(s.nodes) }

// Nodes returns all nodes in insertion order.
func (s NodeSet) Nodes() []Node {
	out := make([]Node, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.nodes[id])
	}
	return out
}

// MasterEligible returns all master-eligible nodes in insertion order.
func (s NodeSet) MasterEligible() []Node {
	var out []Node
	for _, id := range s.order {
		if n := s.nodes[id]; n.MasterEligible {
			out = append(out, n)
		}
	}
	return out
}

// WithNode returns a copy of s with node added or replaced.
func (s NodeSet) WithNode(n Node) NodeSet {
	cp := s.clone()
	if _, exists := cp.nodes[n.ID]; !exists {
		cp.order = append(cp.order, n.ID)
	}
	cp.nodes[n.ID] = n
	return cp
}

// WithoutNode returns a copy of s with id removed. If id was the master,
// the master id is cleared too (callers that need "demote, don't remove"
// semantics should call WithMaster separately).
func (s NodeSet) WithoutNode(id string) NodeSet {
	cp := s.clone()
	delete(cp.nodes, id)
	for i, existing := range cp.order {
		if existing == id {
			cp.order = append(cp.order[:i], cp.order[i+1:]...)
			break
		}
	}
	if cp.masterID == id {
		cp.masterID = ""
	}
	return cp
}

// WithMaster returns a copy of s with the master id set. Passing "" clears
// it (the §3 invariant: a follower's state either has master_id == nil or
// a non-null master it believes in).
func (s NodeSet) WithMaster(id string) NodeSet {
	cp := s.clone()
	cp.masterID = id
	return cp
}

// WithLocalID returns a copy of s with the local id set. Used only when
// bootstrapping a fresh NodeSet for a node that doesn't exist yet.
func (s NodeSet) WithLocalID(id string) NodeSet {
	cp := s.clone()
	cp.localID = id
	return cp
}

func (s NodeSet) clone() NodeSet {
	cp := NodeSet{
		nodes:    make(map[string]Node, len(s.nodes)),
		order:    append([]string(nil), s.order...),
		masterID: s.masterID,
		localID:  s.localID,
	}
	for k, v := range s.nodes {
		cp.nodes[k] = v
	}
	return cp
}

// SortedIDs returns node ids in ascending lexical order — used by callers
// (tests, logging) that want deterministic output independent of insertion
// order. ElectMaster does its own sort and does not use this.
func (s NodeSet) SortedIDs() []string {
	ids := make([]string, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
