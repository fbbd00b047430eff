package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"kiwoom-gateway/internal/metrics"
	"kiwoom-gateway/internal/model"
)

// defaultSymbol is the instrument served when the query omits one.
const defaultSymbol = "005930"

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// Server exposes the one-shot lookups and the push-session endpoints.
type Server struct {
	fetcher Fetcher
	metrics *metrics.Metrics
	health  *metrics.HealthStatus
	logger  *slog.Logger
}

// NewServer creates the gateway HTTP surface. Metrics and health may be
// nil.
func NewServer(fetcher Fetcher, m *metrics.Metrics, health *metrics.HealthStatus, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		fetcher: fetcher,
		metrics: m,
		health:  health,
		logger:  logger.With(slog.String("component", "gateway")),
	}
}

// Routes registers all gateway routes on a new mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/historical", s.handleHistorical)
	mux.HandleFunc("/quote", s.handleQuote)
	mux.HandleFunc("/stream", s.handleStream)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// symbolParam extracts the instrument code: trimmed, upper-cased,
// defaulted when absent.
func symbolParam(r *http.Request) string {
	symbol := strings.TrimSpace(r.URL.Query().Get("symbol"))
	if symbol == "" {
		return defaultSymbol
	}
	return strings.ToUpper(symbol)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func (s *Server) handleHistorical(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	symbol := symbolParam(r)
	tf := model.ParseTimeframe(strings.TrimSpace(r.URL.Query().Get("timeframe")))

	candles, err := s.fetcher.FetchHistorical(r.Context(), symbol, tf)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"symbol":    symbol,
			"timeframe": tf,
			"error":     err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":    symbol,
		"timeframe": tf,
		"candles":   candles,
	})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	symbol := symbolParam(r)

	quote, err := s.fetcher.FetchQuote(r.Context(), symbol)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"symbol": symbol,
			"error":  err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"symbol": symbol,
		"quote":  quote,
	})
}

// handleStream serves one push-session over SSE, bound to the request's
// lifetime: client disconnect cancels the context and closes the
// session.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "Method Not Allowed"})
		return
	}

	symbol := symbolParam(r)
	tf := model.ParseTimeframe(strings.TrimSpace(r.URL.Query().Get("timeframe")))

	sink, ok := newSSESink(w)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "streaming unsupported"})
		return
	}

	s.runSession(r.Context(), symbol, tf, sink)
}

// handleWS serves the same push-session over a WebSocket. The read loop
// exists only to detect the peer going away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "Method Not Allowed"})
		return
	}

	symbol := symbolParam(r)
	tf := model.ParseTimeframe(strings.TrimSpace(r.URL.Query().Get("timeframe")))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", slog.String("err", err.Error()))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	s.runSession(ctx, symbol, tf, newWSSink(conn))
}

func (s *Server) runSession(ctx context.Context, symbol string, tf model.Timeframe, sink EventSink) {
	if s.health != nil {
		s.health.AddSessions(1)
		defer s.health.AddSessions(-1)
	}

	session := NewSession(SessionConfig{Symbol: symbol, Timeframe: tf}, s.fetcher, sink, s.metrics, s.logger)
	session.Run(ctx)
}
