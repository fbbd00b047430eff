// Package metrics exposes Prometheus metrics and a health endpoint for
// the streaming gateway.
package metrics

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	SessionsActive prometheus.Gauge
	SessionsTotal  prometheus.Counter

	// Per-event emit counters (init, quote, candle, server-error, keep-alive)
	EventsTotal *prometheus.CounterVec

	// Periodic task failures, labelled by task (quote, candle)
	TaskErrors *prometheus.CounterVec

	UpstreamRequests *prometheus.CounterVec // labels: endpoint, outcome
	UpstreamDuration prometheus.Histogram

	TokenRefreshes prometheus.Counter

	// 0=closed, 1=open (KRX session)
	MarketState prometheus.Gauge
}

// New registers and returns all gateway metrics.
func New() *Metrics {
	m := &Metrics{
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_sessions_active",
			Help: "Currently open push-sessions",
		}),
		SessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_sessions_total",
			Help: "Total push-sessions opened",
		}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_events_emitted_total",
			Help: "Events emitted to clients, by event name",
		}, []string{"event"}),
		TaskErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_task_errors_total",
			Help: "Periodic refresh task failures, by task",
		}, []string{"task"}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_upstream_requests_total",
			Help: "Upstream data calls, by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		UpstreamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gateway_upstream_request_duration_seconds",
			Help:    "Upstream data call latency",
			Buckets: prometheus.DefBuckets,
		}),
		TokenRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_token_refreshes_total",
			Help: "Upstream auth token refreshes",
		}),
		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_market_state",
			Help: "KRX session state (0=closed, 1=open)",
		}),
	}

	prometheus.MustRegister(
		m.SessionsActive,
		m.SessionsTotal,
		m.EventsTotal,
		m.TaskErrors,
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.TokenRefreshes,
		m.MarketState,
	)

	return m
}

// HealthStatus represents the gateway's health.
type HealthStatus struct {
	mu sync.RWMutex

	mockMode       bool
	marketOpen     bool
	activeSessions int
	startedAt      time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(mockMode bool) *HealthStatus {
	return &HealthStatus{
		mockMode:  mockMode,
		startedAt: time.Now(),
	}
}

func (h *HealthStatus) SetMarketOpen(v bool) {
	h.mu.Lock()
	h.marketOpen = v
	h.mu.Unlock()
}

func (h *HealthStatus) AddSessions(delta int) {
	h.mu.Lock()
	h.activeSessions += delta
	h.mu.Unlock()
}

// ServeHTTP writes the current health status as JSON.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	payload := struct {
		Status         string    `json:"status"`
		MockMode       bool      `json:"mock_mode"`
		MarketOpen     bool      `json:"market_open"`
		ActiveSessions int       `json:"active_sessions"`
		StartedAt      time.Time `json:"started_at"`
	}{
		Status:         "ok",
		MockMode:       h.mockMode,
		MarketOpen:     h.marketOpen,
		ActiveSessions: h.activeSessions,
		StartedAt:      h.startedAt,
	}
	h.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop shuts the server down.
func (s *Server) Stop() {
	_ = s.srv.Close()
}
