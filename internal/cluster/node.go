// Package cluster holds the immutable data model shared by every other
// discovery component: node descriptors, node sets, cluster-state
// snapshots, and the small set of sentinel errors used to classify
// failures per the error taxonomy.
package cluster

import "github.com/google/uuid"

// Node is an immutable descriptor of a peer in the cluster. Node values
// are never mutated after construction — any change produces a new Node.
type Node struct {
	ID      string
	Name    string
	Address string // host:port, dialable by Transport
	Attrs   map[string]string

	// Version is the node's protocol/software version ordinal. ElectMaster
	// uses it as the secondary tie-break key (§4.3): lower wins, preferring
	// the most conservative build as master.
	Version uint64

	MasterEligible bool
	Data           bool
	Client         bool
}

// UnicastSeedPrefix marks a synthetic node id minted for a ping target that
// hasn't been resolved to a real node yet (§4.2).
const UnicastSeedPrefix = "#zen_unicast_"

// NewRequestID returns a fresh, globally-unique request id for correlating
// a PingResponse / join / leave round-trip.
func NewRequestID() string {
	return uuid.NewString()
}

// IsMasterEligible reports whether n may be elected master, independent of
// the election filters applied by ElectMaster.
func (n Node) IsMasterEligible() bool { return n.MasterEligible }

// WithAttr returns a copy of n with the given attribute set.
func (n Node) WithAttr(key, value string) Node {
	cp := n
	cp.Attrs = make(map[string]string, len(n.Attrs)+1)
	for k, v := range n.Attrs {
		cp.Attrs[k] = v
	}
	cp.Attrs[key] = value
	return cp
}
