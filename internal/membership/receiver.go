package membership

import (
	"context"

	"github.com/ployz-io/zen/internal/cluster"
	"github.com/ployz-io/zen/internal/transport"
)

// MasterCallbacks is implemented by the discovery controller to receive
// membership RPCs addressed to this node acting as master (or as a
// candidate answering validate_join).
type MasterCallbacks interface {
	// HandleJoin is called when another node asks to join. It returns
	// cluster.ErrNotMasterForJoin if this node is not currently master.
	HandleJoin(ctx context.Context, n cluster.Node) error
	// HandleValidateJoin rejects incompatible joiners, e.g. wrong cluster
	// name, before the master accepts them.
	HandleValidateJoin(ctx context.Context, clusterName string) error
	// HandleLeave removes a departing node from the cluster state.
	HandleLeave(ctx context.Context, n cluster.Node)
}

// Server registers the membership handlers on a Transport, dispatching to
// MasterCallbacks.
type Server struct {
	callbacks MasterCallbacks
}

func NewServer(callbacks MasterCallbacks) *Server {
	return &Server{callbacks: callbacks}
}

func (s *Server) RegisterHandlers(t transport.Transport) {
	t.RegisterHandler(ActionJoin, s.handleJoin)
	t.RegisterHandler(ActionValidateJoin, s.handleValidateJoin)
	t.RegisterHandler(ActionLeave, s.handleLeave)
}

func (s *Server) handleJoin(ctx context.Context, fromAddr string, payload []byte) ([]byte, error) {
	var req cluster.JoinRequest
	if err := transport.DecodeInto(payload, &req); err != nil {
		return nil, err
	}
	if err := s.callbacks.HandleJoin(ctx, req.Node); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Server) handleValidateJoin(ctx context.Context, fromAddr string, payload []byte) ([]byte, error) {
	var req validateJoinRequest
	if err := transport.DecodeInto(payload, &req); err != nil {
		return nil, err
	}
	if err := s.callbacks.HandleValidateJoin(ctx, req.ClusterName); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Server) handleLeave(ctx context.Context, fromAddr string, payload []byte) ([]byte, error) {
	var req cluster.LeaveRequest
	if err := transport.DecodeInto(payload, &req); err != nil {
		return nil, err
	}
	s.callbacks.HandleLeave(ctx, req.Node)
	return nil, nil
}
