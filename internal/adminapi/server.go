// Package adminapi exposes a node's cluster view over a unix-socket HTTP
// API, for zenctl and other local tooling. It is read-only: every mutation
// of cluster state happens through the discovery wire protocol, never
// through this surface.
package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ployz-io/zen/internal/cluster"
)

// StatusView is the narrow read-only slice of discovery.Controller this
// package needs; defined here (not imported) so discovery never has to
// import adminapi.
type StatusView interface {
	Current() cluster.State
}

// Server hosts the admin HTTP API over a unix socket.
type Server struct {
	view StatusView
	log  *slog.Logger
	mux  *mux.Router

	httpSrv *http.Server
}

// New builds a Server reading cluster state from view.
func New(view StatusView, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{view: view, log: log.With("component", "adminapi"), mux: mux.NewRouter()}
	s.mux.HandleFunc("/v1/status", s.handleStatus).Methods(http.MethodGet)
	s.mux.HandleFunc("/v1/members", s.handleMembers).Methods(http.MethodGet)
	s.mux.HandleFunc("/v1/members/{id}", s.handleMember).Methods(http.MethodGet)
	return s
}

// ListenAndServe binds socketPath and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, socketPath string) error {
	ln, err := listenUnix(socketPath)
	if err != nil {
		return err
	}

	s.httpSrv = &http.Server{Handler: s.mux}

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpSrv.Serve(ln) }()

	select {
	case <-ctx.Done():
		_ = s.httpSrv.Close()
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, net.ErrClosed) || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type statusResponse struct {
	ClusterName   string `json:"cluster_name"`
	Version       uint64 `json:"version"`
	MasterID      string `json:"master_id"`
	LocalID       string `json:"local_id"`
	IsMaster      bool   `json:"is_master"`
	NoMasterBlock bool   `json:"no_master_block"`
	NodeCount     int    `json:"node_count"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	current := s.view.Current()
	respondJSON(w, http.StatusOK, statusResponse{
		ClusterName:   current.ClusterName,
		Version:       current.Version,
		MasterID:      current.Nodes.MasterID(),
		LocalID:       current.Nodes.LocalID(),
		IsMaster:      current.Nodes.IsLocalMaster(),
		NoMasterBlock: current.HasNoMasterBlock(),
		NodeCount:     current.Nodes.Len(),
	})
}

func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	current := s.view.Current()
	respondJSON(w, http.StatusOK, map[string]any{
		"nodes": current.Nodes.Nodes(),
	})
}

func (s *Server) handleMember(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	current := s.view.Current()
	node, ok := current.Nodes.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "node not found", nil)
		return
	}
	respondJSON(w, http.StatusOK, node)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]any{"error": message, "status": status}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}
