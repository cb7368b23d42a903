package cluster

// State is an immutable snapshot of cluster membership and (opaque)
// application metadata (§3). States are never mutated; every accepted
// update produces a new State.
//
// Invariants kept by the code that builds and publishes states (not by the
// type itself, since a zero State is a legitimate "never joined" value):
//   - any state with Nodes.MasterID() != "" has Nodes.MasterID() ==
//     the publisher's id when it was published (the discovery controller
//     only publishes states in which the local node is master; publish.go
//     does not check this);
//   - Version is strictly increasing while Nodes.MasterID() is unchanged;
//     on master change it restarts at an arbitrary value. Comparison
//     across different masters is invalid — callers must check MasterID
//     before comparing Version (see SameMasterNewerThan).
type State struct {
	Version     uint64
	ClusterName string
	Nodes       NodeSet
	Blocks      Blocks
	Metadata    map[string]any // opaque, carried through unchanged
}

// Fresh returns the bootstrap state for a node that has never joined a
// cluster: no master, NO_MASTER_BLOCK set, version 0.
func Fresh(clusterName string, local Node) State {
	return State{
		Version:     0,
		ClusterName: clusterName,
		Nodes:       NewNodeSet(local.ID).WithNode(local),
		Blocks:      NoBlocks.With(NoMasterBlockID),
	}
}

// WithNodes returns a copy of s with a different NodeSet.
func (s State) WithNodes(nodes NodeSet) State {
	cp := s
	cp.Nodes = nodes
	return cp
}

// WithVersion returns a copy of s with a different version.
func (s State) WithVersion(v uint64) State {
	cp := s
	cp.Version = v
	return cp
}

// WithBlocks returns a copy of s with a different block set.
func (s State) WithBlocks(b Blocks) State {
	cp := s
	cp.Blocks = b
	return cp
}

// NextVersion returns s.Version + 1, the version a new publish from the
// same master should carry.
func (s State) NextVersion() uint64 { return s.Version + 1 }

// SameMasterNewerThan reports whether s and other share a master and s is
// strictly newer. Comparing versions across different masters is invalid
// per §3 and always reports false here.
func (s State) SameMasterNewerThan(other State) bool {
	if s.Nodes.MasterID() == "" || s.Nodes.MasterID() != other.Nodes.MasterID() {
		return false
	}
	return s.Version > other.Version
}

// HasNoMasterBlock reports whether the state forbids reads/writes.
func (s State) HasNoMasterBlock() bool { return s.Blocks.HasNoMasterBlock() }
