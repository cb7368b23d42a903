package fd

import (
	"context"
	"testing"
	"time"

	"github.com/ployz-io/zen/internal/transport"
)

type staticView struct {
	isMaster   bool
	followerOf string
}

func (v staticView) IsLocalMaster() bool { return v.isMaster }
func (v staticView) FollowerOf() string  { return v.followerOf }

func TestMasterFDFiresAfterRetryCount(t *testing.T) {
	net := transport.NewFakeNetwork()
	client := transport.NewFake(net, "client")
	// no server registered at "ghost-master": every send fails.

	mfd := NewMasterFD(client, "client-id", Config{Interval: 10 * time.Millisecond, RetryCount: 2}, nil)

	failed := make(chan string, 1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	mfd.Restart(ctx, "ghost", "ghost-master", func(masterID, reason string) {
		select {
		case failed <- masterID:
		default:
		}
	})

	select {
	case id := <-failed:
		if id != "ghost" {
			t.Fatalf("expected failure for ghost, got %s", id)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected onFailure to fire")
	}
}

func TestReceiverDetectsAnotherMaster(t *testing.T) {
	view := staticView{isMaster: true, followerOf: ""}
	conflicts := make(chan string, 1)
	r := NewReceiver(view, 2, func(peerID, peerAddr string, peerVersion uint64) {
		conflicts <- peerID
	})

	req := PingRequest{FromID: "peer-b", FromIsMaster: true}
	payload, _ := encodeReply(req)

	if _, err := r.handle(context.Background(), "addr", payload); err != nil {
		t.Fatalf("handle: %v", err)
	}
	select {
	case <-conflicts:
		t.Fatal("should not conflict before threshold reached")
	default:
	}

	if _, err := r.handle(context.Background(), "addr", payload); err != nil {
		t.Fatalf("handle: %v", err)
	}
	select {
	case peer := <-conflicts:
		if peer != "peer-b" {
			t.Fatalf("expected peer-b, got %s", peer)
		}
	default:
		t.Fatal("expected conflict after threshold reached")
	}
}

func TestReceiverRepliesFollowerOf(t *testing.T) {
	view := staticView{isMaster: false, followerOf: "master-x"}
	r := NewReceiver(view, 3, nil)

	req := PingRequest{FromID: "peer-a"}
	payload, _ := encodeReply(req)

	raw, err := r.handle(context.Background(), "addr", payload)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	var reply PingReply
	if err := transport.DecodeInto(raw, &reply); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if reply.FollowerOf != "master-x" {
		t.Fatalf("expected follower_of master-x, got %q", reply.FollowerOf)
	}
}
