// Package api serves recorded sweeps over HTTP and streams live sweep
// progress to SSE and websocket clients.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/hochfrequenz/knightshock/internal/domain"
	"github.com/hochfrequenz/knightshock/internal/observer"
	"github.com/hochfrequenz/knightshock/internal/resultstore"
	"github.com/hochfrequenz/knightshock/internal/sweep"
)

// Store is the read side of the result database
type Store interface {
	ListSweeps(limit int) ([]*resultstore.SweepRecord, error)
	GetSweep(id string) (*resultstore.SweepRecord, error)
	ListResults(sweepID string, opts resultstore.ListOptions) ([]domain.SweepResult, error)
}

// Server is the HTTP API server. It is also a sweep.Sink: a sweep that
// writes to it is broadcast live to connected clients.
type Server struct {
	store    Store // nil serves live progress only
	addr     string
	mux      *http.ServeMux
	hub      *Hub
	upgrader websocket.Upgrader
	log      logrus.FieldLogger

	mu       sync.RWMutex
	observer *observer.Observer
	current  *sweep.Info
	last     *sweep.Summary
}

// NewServer creates a new API server
func NewServer(store Store, addr string) *Server {
	s := &Server{
		store:    store,
		addr:     addr,
		mux:      http.NewServeMux(),
		hub:      NewHub(64),
		log:      logrus.StandardLogger(),
		observer: observer.New(2 * time.Minute),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /api/status", s.statusHandler())
	s.mux.HandleFunc("GET /api/sweeps", s.listSweepsHandler())
	s.mux.HandleFunc("GET /api/sweeps/{id}", s.getSweepHandler())
	s.mux.HandleFunc("GET /api/sweeps/{id}/results", s.listResultsHandler())
	s.mux.HandleFunc("GET /api/events", s.sseHandler())
	s.mux.HandleFunc("GET /api/ws", s.wsHandler())
}

// SetLogger replaces the server logger
func (s *Server) SetLogger(log logrus.FieldLogger) {
	s.log = log
}

// Handler returns the route multiplexer
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.log.WithField("addr", s.addr).Info("results API listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Begin starts tracking a live sweep
func (s *Server) Begin(info sweep.Info) error {
	s.mu.Lock()
	s.current = &info
	s.last = nil
	s.mu.Unlock()

	s.observer.Begin(info)
	s.hub.Broadcast(Event{Type: EventSweepStarted, Data: infoToResponse(info)})
	return nil
}

// Append records and broadcasts one finished case
func (s *Server) Append(r domain.SweepResult) error {
	s.observer.Append(r)
	s.hub.Broadcast(Event{Type: EventCaseFinished, Data: resultToResponse(r)})
	return nil
}

// Finish closes the live sweep
func (s *Server) Finish(sum sweep.Summary) error {
	s.mu.Lock()
	s.current = nil
	s.last = &sum
	s.mu.Unlock()

	s.hub.Broadcast(Event{Type: EventSweepFinished, Data: summaryToResponse(sum)})
	return nil
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
