package publish

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ployz-io/zen/internal/cluster"
	"github.com/ployz-io/zen/internal/transport"
)

type collectingListener struct {
	mu      sync.Mutex
	acked   []string
	failed  []string
	timeout bool
}

func (c *collectingListener) OnAck(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acked = append(c.acked, id)
}

func (c *collectingListener) OnAckFailure(id string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed = append(c.failed, id)
}

func (c *collectingListener) OnTimeout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = true
}

func TestPublishDeliversToEveryFollower(t *testing.T) {
	net := transport.NewFakeNetwork()

	var receivedVersion uint64
	var mu sync.Mutex
	followerTr := transport.NewFake(net, "follower-addr")
	NewReceiver("b", func(state cluster.State, ack func(error)) {
		mu.Lock()
		receivedVersion = state.Version
		mu.Unlock()
		ack(nil)
	}).RegisterHandler(followerTr)

	masterTr := transport.NewFake(net, "master-addr")
	pub := New(masterTr, Config{Timeout: time.Second}, nil)

	nodes := cluster.NewNodeSet("a").
		WithNode(cluster.Node{ID: "a", Address: "master-addr"}).
		WithNode(cluster.Node{ID: "b", Address: "follower-addr"}).
		WithMaster("a")
	state := cluster.State{Version: 7, ClusterName: "prod", Nodes: nodes, Blocks: cluster.NoBlocks}

	listener := &collectingListener{}
	pub.Publish(context.Background(), state, listener)

	if len(listener.acked) != 1 || listener.acked[0] != "b" {
		t.Fatalf("expected ack from b, got %+v", listener.acked)
	}
	mu.Lock()
	defer mu.Unlock()
	if receivedVersion != 7 {
		t.Fatalf("expected follower to receive version 7, got %d", receivedVersion)
	}
}

func TestPublishReportsFollowerRejection(t *testing.T) {
	net := transport.NewFakeNetwork()

	followerTr := transport.NewFake(net, "follower-addr")
	NewReceiver("b", func(state cluster.State, ack func(error)) {
		ack(cluster.ErrWrongClusterName)
	}).RegisterHandler(followerTr)

	masterTr := transport.NewFake(net, "master-addr")
	pub := New(masterTr, Config{Timeout: time.Second}, nil)

	nodes := cluster.NewNodeSet("a").
		WithNode(cluster.Node{ID: "a", Address: "master-addr"}).
		WithNode(cluster.Node{ID: "b", Address: "follower-addr"}).
		WithMaster("a")
	state := cluster.State{Version: 1, ClusterName: "staging", Nodes: nodes, Blocks: cluster.NoBlocks}

	listener := &collectingListener{}
	pub.Publish(context.Background(), state, listener)

	if len(listener.failed) != 1 || listener.failed[0] != "b" {
		t.Fatalf("expected failure recorded for b, got %+v", listener.failed)
	}
}
