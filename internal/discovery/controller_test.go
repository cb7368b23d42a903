package discovery

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ployz-io/zen/internal/cluster"
	"github.com/ployz-io/zen/internal/settings"
	"github.com/ployz-io/zen/internal/transport"
)

func testSettings(seeds ...string) settings.Settings {
	s := settings.Default()
	s.PingTimeout = 30 * time.Millisecond
	s.JoinTimeout = 200 * time.Millisecond
	s.JoinRetryDelay = 10 * time.Millisecond
	s.Unicast.Hosts = seeds
	return s
}

func testNode(id string) cluster.Node {
	return cluster.Node{ID: id, Name: id, Address: id, MasterEligible: true, Version: 1}
}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within %s", timeout)
	}
}

// TestSoleNodeElectsSelfWhenQuorumIsOne covers S1/S2: a single node with
// minimum_master_nodes=1 and no reachable peers must elect itself.
func TestSoleNodeElectsSelfWhenQuorumIsOne(t *testing.T) {
	net := transport.NewFakeNetwork()
	tr := transport.NewFake(net, "a")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testSettings()
	cfg.MinimumMasterNodes = 1
	c := New(ctx, tr, testNode("a"), "test-cluster", cfg, WithLogger(silentLogger()))
	c.Start()

	waitFor(t, time.Second, func() bool { return c.Current().Nodes.IsLocalMaster() })
}

// TestSoleNodeStaysUnformedBelowQuorum covers S2: with quorum 2 and no
// peers, the node must never elect itself.
func TestSoleNodeStaysUnformedBelowQuorum(t *testing.T) {
	net := transport.NewFakeNetwork()
	tr := transport.NewFake(net, "a")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testSettings()
	cfg.MinimumMasterNodes = 2
	c := New(ctx, tr, testNode("a"), "test-cluster", cfg, WithLogger(silentLogger()))
	c.Start()

	time.Sleep(150 * time.Millisecond)
	if c.Current().Nodes.IsLocalMaster() {
		t.Fatal("node elected itself master below quorum")
	}
	if !c.Current().HasNoMasterBlock() {
		t.Fatal("expected NO_MASTER_BLOCK while no master is usable")
	}
}

// TestTwoNodesFormClusterAroundOneMaster covers S1: two freshly-started
// nodes seeded at each other converge on exactly one master.
func TestTwoNodesFormClusterAroundOneMaster(t *testing.T) {
	net := transport.NewFakeNetwork()
	trA := transport.NewFake(net, "a")
	trB := transport.NewFake(net, "b")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfgA := testSettings("b")
	cfgA.MinimumMasterNodes = 1
	cfgB := testSettings("a")
	cfgB.MinimumMasterNodes = 1

	a := New(ctx, trA, testNode("a"), "test-cluster", cfgA, WithLogger(silentLogger()))
	b := New(ctx, trB, testNode("b"), "test-cluster", cfgB, WithLogger(silentLogger()))
	a.Start()
	b.Start()

	waitFor(t, 2*time.Second, func() bool {
		return a.Current().Nodes.HasMaster() && b.Current().Nodes.HasMaster()
	})

	masterA := a.Current().Nodes.MasterID()
	masterB := b.Current().Nodes.MasterID()
	if masterA != masterB {
		t.Fatalf("nodes disagree on master: a=%s b=%s", masterA, masterB)
	}
	if masterA != "a" {
		t.Fatalf("expected lower id a to win election tie, got %s", masterA)
	}
}

// TestJoinerReceivesPublishedState covers the join path end to end: a
// second node joins an already-elected master and ends up in its node set
// via a published state.
func TestJoinerReceivesPublishedState(t *testing.T) {
	net := transport.NewFakeNetwork()
	trA := transport.NewFake(net, "a")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfgA := testSettings()
	cfgA.MinimumMasterNodes = 1
	a := New(ctx, trA, testNode("a"), "test-cluster", cfgA, WithLogger(silentLogger()))
	a.Start()
	waitFor(t, time.Second, func() bool { return a.Current().Nodes.IsLocalMaster() })

	trB := transport.NewFake(net, "b")
	cfgB := testSettings("a")
	b := New(ctx, trB, testNode("b"), "test-cluster", cfgB, WithLogger(silentLogger()))
	b.Start()

	waitFor(t, 2*time.Second, func() bool {
		return b.Current().Nodes.MasterID() == "a"
	})
	waitFor(t, time.Second, func() bool {
		_, ok := a.Current().Nodes.Get("b")
		return ok
	})
}
