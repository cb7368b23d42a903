package ping

import (
	"context"
	"testing"
	"time"

	"github.com/ployz-io/zen/internal/cluster"
	"github.com/ployz-io/zen/internal/transport"
)

type fakeContext struct {
	self        cluster.Node
	eligible    []cluster.Node
	master      *cluster.Node
	clusterName string
	hasJoined   bool
}

func (f *fakeContext) Self() cluster.Node                  { return f.self }
func (f *fakeContext) MasterEligibleNodes() []cluster.Node { return f.eligible }
func (f *fakeContext) ClusterName() string                 { return f.clusterName }
func (f *fakeContext) HasJoinedOnce() bool                  { return f.hasJoined }
func (f *fakeContext) Master() (cluster.Node, bool) {
	if f.master == nil {
		return cluster.Node{}, false
	}
	return *f.master, true
}

func TestPingAndWaitCollectsPeerResponse(t *testing.T) {
	net := transport.NewFakeNetwork()

	nodeB := cluster.Node{ID: "b", Address: "addr-b", MasterEligible: true}
	trB := transport.NewFake(net, "addr-b")
	ctxB := &fakeContext{self: nodeB, clusterName: "prod"}
	svcB := New(trB, ctxB, Config{ConcurrentConnects: 4}, nil)
	svcB.RegisterHandlers(trB)

	nodeA := cluster.Node{ID: "a", Address: "addr-a", MasterEligible: true}
	trA := transport.NewFake(net, "addr-a")
	ctxA := &fakeContext{self: nodeA, clusterName: "prod"}
	svcA := New(trA, ctxA, Config{ConcurrentConnects: 4, Seeds: []string{"addr-b"}}, nil)
	svcA.RegisterHandlers(trA)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resps, _ := svcA.PingAndWait(ctx, 60*time.Millisecond)

	found := false
	for _, r := range resps {
		if r.Responder.ID == "b" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected response from node b, got %+v", resps)
	}
}

func TestPingAndWaitIgnoresUnreachableTargets(t *testing.T) {
	net := transport.NewFakeNetwork()
	nodeA := cluster.Node{ID: "a", Address: "addr-a", MasterEligible: true}
	trA := transport.NewFake(net, "addr-a")
	ctxA := &fakeContext{self: nodeA, clusterName: "prod"}
	svcA := New(trA, ctxA, Config{ConcurrentConnects: 4, Seeds: []string{"addr-ghost"}}, nil)
	svcA.RegisterHandlers(trA)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resps, err := svcA.PingAndWait(ctx, 40*time.Millisecond)
	if len(resps) != 0 {
		t.Fatalf("expected no responses from a ghost seed, got %+v", resps)
	}
	if err == nil {
		t.Fatalf("expected aggregated error reporting the unreachable seed")
	}
}
