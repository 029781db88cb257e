// Package api serves the read-only worker status endpoints.
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/AaronLay10/orle/internal/events"
	"github.com/AaronLay10/orle/internal/process"
	"github.com/AaronLay10/orle/internal/storage/postgres"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StatsSource reports process counters. *process.Process satisfies it.
type StatsSource interface {
	Stats() process.Stats
}

// EventStore serves persisted events, newest first. *postgres.Client satisfies it.
type EventStore interface {
	Query(ctx context.Context, limit int, job string) ([]postgres.EventRow, error)
}

// Server exposes one worker's events and stats over HTTP.
type Server struct {
	em      *events.Emitter
	proc    StatsSource
	worldID int
	opts    Options
	start   time.Time

	mu    sync.RWMutex
	sinks map[string]func() bool
	store EventStore
}

func NewServer(em *events.Emitter, proc StatsSource, worldID int, opts Options) *Server {
	return &Server{
		em:      em,
		proc:    proc,
		worldID: worldID,
		opts:    opts,
		start:   time.Now(),
		sinks:   make(map[string]func() bool),
	}
}

// SetSink registers a connectivity probe reported by /health and /metrics.
func (s *Server) SetSink(name string, connected func() bool) {
	s.mu.Lock()
	s.sinks[name] = connected
	s.mu.Unlock()
}

// SetStore enables /events?source=db.
func (s *Server) SetStore(store EventStore) {
	s.mu.Lock()
	s.store = store
	s.mu.Unlock()
}

func (s *Server) sinkStates() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(s.sinks))
	for name, fn := range s.sinks {
		out[name] = fn()
	}
	return out
}

type HealthResponse struct {
	Status    string          `json:"status"`
	Service   string          `json:"service"`
	Hostname  string          `json:"hostname"`
	WorldID   int             `json:"world_id"`
	State     string          `json:"state"`
	Sinks     map[string]bool `json:"sinks,omitempty"`
	Timestamp string          `json:"ts"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	resp := HealthResponse{
		Status:    "ok",
		Service:   "orle",
		Hostname:  host,
		WorldID:   s.worldID,
		State:     string(s.proc.Stats().State),
		Sinks:     s.sinkStates(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// eventsHandler returns buffered events, oldest first. ?limit=n keeps the last n.
// ?source=db reads persisted events instead, newest first, optionally filtered by
// ?job=<document name>.
func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	switch q.Get("source") {
	case "", "buffer":
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.em.RecentEvents(limit))
	case "db":
		s.storedEvents(w, r, limit, q.Get("job"))
	default:
		http.Error(w, "invalid source", http.StatusBadRequest)
	}
}

func (s *Server) storedEvents(w http.ResponseWriter, r *http.Request, limit int, job string) {
	s.mu.RLock()
	store := s.store
	s.mu.RUnlock()
	if store == nil {
		http.Error(w, "event store not configured", http.StatusNotFound)
		return
	}

	rows, err := store.Query(r.Context(), limit, job)
	if err != nil {
		log.Printf("api: event query failed: %v", err)
		http.Error(w, "event query failed", http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []postgres.EventRow{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rows)
}

type StatsResponse struct {
	State      string  `json:"state"`
	Processed  int64   `json:"jobs_processed"`
	Failed     int64   `json:"jobs_failed"`
	CurrentJob string  `json:"current_job,omitempty"`
	UptimeSec  float64 `json:"uptime_sec"`
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	st := s.proc.Stats()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(StatsResponse{
		State:      string(st.State),
		Processed:  st.Processed,
		Failed:     st.Failed,
		CurrentJob: st.CurrentJob,
		UptimeSec:  time.Since(s.start).Seconds(),
	})
}

// Handler returns the route table. Everything except /health requires credentials
// when they are configured.
func (s *Server) Handler() http.Handler {
	auth := s.opts.requireAuth
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/events", auth(s.eventsHandler))
	mux.HandleFunc("/stats", auth(s.statsHandler))
	mux.HandleFunc("/metrics", auth(s.metricsHandler))
	mux.HandleFunc("/ws/events", auth(s.wsEventsHandler))
	return mux
}

// ListenAndServe serves on port until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	tlsCfg, err := s.opts.loadTLSConfig()
	if err != nil {
		return err
	}
	srv.TLSConfig = tlsCfg

	errCh := make(chan error, 1)
	go func() {
		log.Printf("API listening on %s (tls=%v)", srv.Addr, tlsCfg != nil)
		if tlsCfg != nil {
			errCh <- srv.ListenAndServeTLS("", "")
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.em.CloseAllSubscribers()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Start serves in a goroutine. Errors are logged but do not stop the caller.
func (s *Server) Start(ctx context.Context, port int) {
	go func() {
		if err := s.ListenAndServe(ctx, port); err != nil {
			log.Printf("api server error: %v", err)
		}
	}()
}
