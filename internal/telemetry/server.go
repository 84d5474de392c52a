// Package telemetry implements the C7 read-only REST snapshot and
// WebSocket live feed.
package telemetry

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/aryan877/sre-sentinel/internal/domain"
	"github.com/aryan877/sre-sentinel/internal/eventbus"
	"github.com/rs/zerolog"
)

const sendBound = 10 * time.Second

// ContainerSnapshotter and IncidentSnapshotter decouple the server from
// the observer/pipeline's concrete types (§6 "REST surface").
type ContainerSnapshotter interface {
	Snapshot() []domain.ContainerSample
}

type IncidentSnapshotter interface {
	Snapshot() []domain.Incident
}

// Server serves the REST snapshot endpoints and the /ws live feed.
type Server struct {
	containers ContainerSnapshotter
	incidents  IncidentSnapshotter
	bus        *eventbus.Bus
	log        zerolog.Logger
}

// New constructs a Server.
func New(containers ContainerSnapshotter, incidents IncidentSnapshotter, bus *eventbus.Bus, log zerolog.Logger) *Server {
	return &Server{containers: containers, incidents: incidents, bus: bus, log: log}
}

// Handler returns the mux wired with CORS-allow-all and every endpoint
// from §6 ("REST surface", "WebSocket surface").
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/containers", s.handleContainers)
	mux.HandleFunc("/incidents", s.handleIncidents)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return withCORS(mux)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleContainers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.containers.Snapshot())
}

func (s *Server) handleIncidents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.incidents.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
