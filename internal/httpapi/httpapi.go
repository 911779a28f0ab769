// Package httpapi serves the operational HTTP surface: /health, /metrics,
// /metrics/prom, and the /ws subscriber upgrade endpoint. /health aggregates
// every configured dependency check into one JSON payload.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/weatheralertd/weatheralertd/internal/broadcast"
	"github.com/weatheralertd/weatheralertd/internal/logging"
	"github.com/weatheralertd/weatheralertd/internal/metrics"
)

// ServiceStatus is one dependency's reported health.
type ServiceStatus struct {
	Status  string   `json:"status"`
	Message string   `json:"message,omitempty"`
	Latency *float64 `json:"latency,omitempty"`
}

// Checker reports the current ServiceStatus of one external dependency.
type Checker func(ctx context.Context) ServiceStatus

// Server wires the chi router for weatheralertd's HTTP surface.
type Server struct {
	router   *chi.Mux
	hub      *broadcast.Hub
	metrics  *metrics.Service
	checkers map[string]Checker
	fatal    map[string]bool
	log      *logging.Logger
	upgrader websocket.Upgrader
}

// New constructs a Server. checkers maps the /health payload's service
// keys ("postgres", "mongodb", "openmeteo", "twilio") to a probe. fatalKeys
// names the subset of those keys whose "error" status makes the overall
// /health status "unhealthy"; an "error" from any other key only ever
// degrades the overall status, never fails it.
func New(hub *broadcast.Hub, metricsSvc *metrics.Service, checkers map[string]Checker, fatalKeys []string) *Server {
	fatal := make(map[string]bool, len(fatalKeys))
	for _, k := range fatalKeys {
		fatal[k] = true
	}
	s := &Server{
		hub:      hub,
		metrics:  metricsSvc,
		checkers: checkers,
		fatal:    fatal,
		log:      logging.New("httpapi"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.AllowAll().Handler)

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
	r.Handle("/metrics/prom", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	r.Get("/ws", s.handleWS)
	return r
}

// Handler returns the http.Handler to mount.
func (s *Server) Handler() http.Handler {
	return s.router
}

type healthResponse struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Services  map[string]ServiceStatus `json:"services"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	services := make(map[string]ServiceStatus, len(s.checkers))
	hasFatalError, hasDegraded := false, false
	for name, check := range s.checkers {
		st := check(ctx)
		services[name] = st
		switch st.Status {
		case "error":
			if s.fatal[name] {
				hasFatalError = true
			} else {
				hasDegraded = true
			}
		case "degraded":
			hasDegraded = true
		}
	}

	overall := "healthy"
	code := http.StatusOK
	if hasFatalError {
		overall = "unhealthy"
		code = http.StatusServiceUnavailable
	} else if hasDegraded {
		overall = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(healthResponse{
		Status:    overall,
		Timestamp: time.Now().UTC(),
		Services:  services,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.metrics.Snapshot())
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Printf("ws upgrade failed: %v", err)
		return
	}
	id := s.hub.Register(conn)
	s.log.Printf("subscriber %s connected", id)

	go func() {
		defer s.hub.Unregister(id)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			// inbound messages are ignored; the read loop only exists
			// to detect disconnects.
		}
	}()
}
