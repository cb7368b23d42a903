package membership

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ployz-io/zen/internal/cluster"
	"github.com/ployz-io/zen/internal/transport"
)

type recordingCallbacks struct {
	notMasterUntilAttempt int
	attempt                int
	joined                 []cluster.Node
	left                   []cluster.Node
}

func (r *recordingCallbacks) HandleJoin(ctx context.Context, n cluster.Node) error {
	r.attempt++
	if r.attempt < r.notMasterUntilAttempt {
		return cluster.ErrNotMasterForJoin
	}
	r.joined = append(r.joined, n)
	return nil
}

func (r *recordingCallbacks) HandleValidateJoin(ctx context.Context, clusterName string) error {
	if clusterName != "prod" {
		return cluster.ErrWrongClusterName
	}
	return nil
}

func (r *recordingCallbacks) HandleLeave(ctx context.Context, n cluster.Node) {
	r.left = append(r.left, n)
}

func TestJoinRetriesOnNotMasterForJoin(t *testing.T) {
	net := transport.NewFakeNetwork()
	master := transport.NewFake(net, "master-addr")
	cb := &recordingCallbacks{notMasterUntilAttempt: 3}
	NewServer(cb).RegisterHandlers(master)

	client := NewClient(transport.NewFake(net, "candidate-addr"), Config{JoinRetryAttempts: 3, JoinRetryDelay: time.Millisecond}, nil)

	err := client.Join(context.Background(), "master-addr", cluster.Node{ID: "c"})
	if err != nil {
		t.Fatalf("expected join to eventually succeed, got %v", err)
	}
	if len(cb.joined) != 1 || cb.joined[0].ID != "c" {
		t.Fatalf("expected node c to be recorded as joined, got %+v", cb.joined)
	}
}

func TestJoinGivesUpAfterRetryAttempts(t *testing.T) {
	net := transport.NewFakeNetwork()
	master := transport.NewFake(net, "master-addr")
	cb := &recordingCallbacks{notMasterUntilAttempt: 100}
	NewServer(cb).RegisterHandlers(master)

	client := NewClient(transport.NewFake(net, "candidate-addr"), Config{JoinRetryAttempts: 2, JoinRetryDelay: time.Millisecond}, nil)

	err := client.Join(context.Background(), "master-addr", cluster.Node{ID: "c"})
	if !errors.Is(err, cluster.ErrNotMasterForJoin) {
		t.Fatalf("expected final error to be ErrNotMasterForJoin, got %v", err)
	}
	if cb.attempt != 2 {
		t.Fatalf("expected exactly 2 RPCs (join_retry_attempts), got %d", cb.attempt)
	}
}

func TestLeaveIsBestEffort(t *testing.T) {
	net := transport.NewFakeNetwork()
	master := transport.NewFake(net, "master-addr")
	cb := &recordingCallbacks{}
	NewServer(cb).RegisterHandlers(master)

	client := NewClient(transport.NewFake(net, "candidate-addr"), Config{}, nil)
	if err := client.Leave(context.Background(), "master-addr", cluster.Node{ID: "c"}); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if len(cb.left) != 1 {
		t.Fatalf("expected leave recorded, got %+v", cb.left)
	}
}

func TestValidateJoinRejectsWrongClusterName(t *testing.T) {
	net := transport.NewFakeNetwork()
	candidate := transport.NewFake(net, "candidate-addr")
	cb := &recordingCallbacks{}
	NewServer(cb).RegisterHandlers(candidate)

	client := NewClient(transport.NewFake(net, "master-addr"), Config{}, nil)
	err := client.ValidateJoin(context.Background(), "candidate-addr", "staging")
	if !errors.Is(err, cluster.ErrWrongClusterName) {
		t.Fatalf("expected ErrWrongClusterName, got %v", err)
	}
}
