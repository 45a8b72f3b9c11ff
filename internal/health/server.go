package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kebairia/backupd/internal/logger"
	"github.com/kebairia/backupd/internal/retention"
)

// serviceName is the fixed "service" field of the health payload.
const serviceName = "db-backup"

// slotStatus describes one retention slot in the health payload.
type slotStatus struct {
	Exists    bool  `json:"exists"`
	SizeBytes int64 `json:"size_bytes"`
}

// response is the /health body. The field set and nesting are a contract
// with existing consumers; do not reshape.
type response struct {
	Status     string                `json:"status"`
	Service    string                `json:"service"`
	Timestamp  string                `json:"timestamp"`
	LastBackup string                `json:"last_backup"`
	Backups    map[string]slotStatus `json:"backups"`
}

// Server answers /health from the shared state and the retention store.
// It is pure read-side: it never blocks on a running backup and never
// initiates one.
type Server struct {
	State     *State
	Store     *retention.Store
	Staleness time.Duration
	Logger    logger.Logger
	// Now is the clock, overridable in tests.
	Now func() time.Time

	http *http.Server
}

// NewServer wires a Server for the given listen address.
func NewServer(listen string, state *State, store *retention.Store, staleness time.Duration) *Server {
	s := &Server{
		State:     state,
		Store:     store,
		Staleness: staleness,
		Logger:    logger.Component("health"),
		Now:       time.Now,
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(handleNotFound)

	s.http = &http.Server{
		Addr:         listen,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving requests until Shutdown or a listener error.
func (s *Server) ListenAndServe() error {
	s.Logger.Info("health server listening", "addr", s.http.Addr)
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Healthy reports the overall classification: the record must say healthy
// and must have been updated within the staleness threshold. A backup that
// succeeded long ago is operationally unhealthy even though it succeeded.
func (s *Server) Healthy() bool {
	record := s.State.Get()
	if record.Status != StatusHealthy {
		return false
	}
	return s.Now().UTC().Sub(record.LastUpdated) <= s.Staleness
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	healthy := s.Healthy()

	status := "unhealthy"
	code := http.StatusServiceUnavailable
	if healthy {
		status = "healthy"
		code = http.StatusOK
	}

	lastBackup := "never"
	if t := s.State.LastSuccess(); !t.IsZero() {
		lastBackup = t.UTC().Format(time.RFC3339)
	}

	backups := make(map[string]slotStatus, len(retention.Kinds))
	for _, kind := range retention.Kinds {
		info, err := s.Store.Stat(kind)
		if err != nil {
			s.Logger.Warn("slot stat failed", "kind", string(kind), "error", err.Error())
		}
		backups[string(kind)] = slotStatus{Exists: info.Exists, SizeBytes: info.SizeBytes}
	}

	writeJSON(w, code, response{
		Status:     status,
		Service:    serviceName,
		Timestamp:  s.Now().UTC().Format(time.RFC3339),
		LastBackup: lastBackup,
		Backups:    backups,
	})
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not Found"})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
