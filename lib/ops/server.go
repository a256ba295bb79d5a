// Package ops exposes a read-only HTTP status API over the controller's
// current topology snapshot, for operators to curl during debugging. It
// never issues routing commands; see SPEC_FULL.md §4.0c.
package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/maksimkurb/gwsupervisor/lib/log"
)

// InterfaceStatus is the JSON shape of one monitored interface in a
// status response.
type InterfaceStatus struct {
	Name        string `json:"name"`
	Weight      int    `json:"weight"`
	Connected   bool   `json:"connected"`
	LocalIP     string `json:"local_ip,omitempty"`
	CIDR        string `json:"cidr,omitempty"`
	GatewaySpec string `json:"gateway_spec,omitempty"`
}

// Snapshot is the JSON shape of a GET /status response.
type Snapshot struct {
	Interfaces       []InterfaceStatus `json:"interfaces"`
	LastTopologyHash string            `json:"last_topology_hash"`
	IsRerouting      bool              `json:"is_rerouting"`
	ReroutePending   bool              `json:"reroute_pending"`
}

// Server is the read-only status HTTP API.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	snapshot   func() Snapshot
	log        *log.Logger
}

// NewServer creates a Server bound to addr, serving GET /healthz and
// GET /status. snapshot is called on every /status request to build a
// fresh view of the controller's topology.
func NewServer(addr string, snapshot func() Snapshot) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		snapshot: snapshot,
		log:      log.Component("ops"),
	}

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/status", s.handleStatus)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	return s
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.snapshot()); err != nil {
		s.log.Errorf("failed to encode status response: %v", err)
	}
}

// Start begins serving. It blocks until the server stops, returning nil
// on a clean Stop-triggered shutdown.
func (s *Server) Start() error {
	s.log.Infof("status API listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down, allowing in-flight requests up
// to 5s to complete.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
