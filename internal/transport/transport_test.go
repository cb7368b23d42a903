package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/ployz-io/zen/internal/cluster"
)

func TestTCPSendReceivesHandlerResponse(t *testing.T) {
	server := New("server")
	server.RegisterHandler("echo", func(ctx context.Context, from string, payload []byte) ([]byte, error) {
		var msg string
		if err := DecodeInto(payload, &msg); err != nil {
			return nil, err
		}
		return json.Marshal("echo:" + msg)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr := startListening(t, ctx, server)

	client := New("client")
	defer client.Close()

	raw, err := client.Send(ctx, addr, "echo", "hi", time.Second)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	var got string
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if got != "echo:hi" {
		t.Fatalf("expected echo:hi, got %q", got)
	}
}

func TestTCPSendActionNotFound(t *testing.T) {
	server := New("server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr := startListening(t, ctx, server)

	client := New("client")
	defer client.Close()

	_, err := client.Send(ctx, addr, "nonexistent", nil, time.Second)
	if !errors.Is(err, cluster.ErrActionNotFound) {
		t.Fatalf("expected ErrActionNotFound, got %v", err)
	}
}

// startListening starts server.Listen on an ephemeral loopback port in the
// background and returns once the listener is bound.
func startListening(t *testing.T, ctx context.Context, server *TCP) string {
	t.Helper()
	bound := make(chan string, 1)
	go func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			bound <- ""
			return
		}
		server.ln = ln
		server.boundAddr = ln.Addr().String()
		bound <- server.boundAddr

		go func() {
			<-ctx.Done()
			_ = ln.Close()
		}()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go server.serveConn(conn)
		}
	}()
	addr := <-bound
	if addr == "" {
		t.Fatal("server did not bind an address")
	}
	return addr
}

func TestTCPConnectFailureWrapsTransientConnect(t *testing.T) {
	client := New("client")
	defer client.Close()

	_, err := client.Send(context.Background(), "127.0.0.1:1", "whatever", nil, 200*time.Millisecond)
	if !errors.Is(err, cluster.ErrTransientConnect) {
		t.Fatalf("expected ErrTransientConnect, got %v", err)
	}
}
