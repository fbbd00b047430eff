// Package gateway manages push-sessions: one long-lived event stream
// per client connection, fed by an initial snapshot and three
// independent periodic refresh tasks.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"kiwoom-gateway/internal/metrics"
	"kiwoom-gateway/internal/model"
)

// Fetcher is the upstream market-data contract shared by one-shot
// lookups and streaming sessions, so normalization and degradation
// policy are defined once.
type Fetcher interface {
	FetchHistorical(ctx context.Context, symbol string, tf model.Timeframe) ([]model.Candle, error)
	FetchQuote(ctx context.Context, symbol string) (model.Quote, error)
}

// EventSink is one client-facing push transport. Implementations must
// tolerate Send and KeepAlive from a single goroutine at a time; the
// session serializes emissions.
type EventSink interface {
	Send(event string, payload any) error
	KeepAlive() error
}

const (
	defaultQuoteInterval     = 15 * time.Second
	defaultCandleInterval    = 60 * time.Second
	defaultKeepAliveInterval = 25 * time.Second
)

// SessionConfig describes one push-session. Zero intervals take the
// production defaults; tests compress them.
type SessionConfig struct {
	Symbol    string
	Timeframe model.Timeframe

	QuoteInterval     time.Duration
	CandleInterval    time.Duration
	KeepAliveInterval time.Duration
}

// Session is the per-connection push-session state machine. Sessions
// are never shared across connections: identical (symbol, timeframe)
// pairs still get independent sessions.
type Session struct {
	id      string
	cfg     SessionConfig
	fetcher Fetcher
	sink    EventSink
	metrics *metrics.Metrics
	logger  *slog.Logger

	// emitMu serializes all transport writes and guards closed, so no
	// emission can happen after cleanup.
	emitMu sync.Mutex
	closed bool

	closeOnce sync.Once
	done      chan struct{}
}

// NewSession creates a session for one connection. Metrics may be nil.
func NewSession(cfg SessionConfig, fetcher Fetcher, sink EventSink, m *metrics.Metrics, logger *slog.Logger) *Session {
	if cfg.QuoteInterval <= 0 {
		cfg.QuoteInterval = defaultQuoteInterval
	}
	if cfg.CandleInterval <= 0 {
		cfg.CandleInterval = defaultCandleInterval
	}
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = defaultKeepAliveInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	id := ulid.Make().String()
	return &Session{
		id:      id,
		cfg:     cfg,
		fetcher: fetcher,
		sink:    sink,
		metrics: m,
		logger: logger.With(
			slog.String("component", "session"),
			slog.String("session_id", id),
			slog.String("symbol", cfg.Symbol),
			slog.String("timeframe", string(cfg.Timeframe)),
		),
		done: make(chan struct{}),
	}
}

// ID returns the session's connection identity.
func (s *Session) ID() string { return s.id }

// Run emits the snapshot, schedules the periodic tasks and blocks until
// the context is cancelled or the transport dies. Cleanup is idempotent.
func (s *Session) Run(ctx context.Context) {
	s.logger.Info("stream opened")
	if s.metrics != nil {
		s.metrics.SessionsTotal.Inc()
		s.metrics.SessionsActive.Inc()
	}

	s.snapshot(ctx)

	var wg sync.WaitGroup
	wg.Add(3)
	go s.loop(ctx, &wg, s.cfg.QuoteInterval, func() {
		s.runTask(ctx, "quote", s.refreshQuote)
	})
	go s.loop(ctx, &wg, s.cfg.CandleInterval, func() {
		s.runTask(ctx, "candle", s.refreshCandle)
	})
	go s.loop(ctx, &wg, s.cfg.KeepAliveInterval, s.keepAlive)

	select {
	case <-ctx.Done():
	case <-s.done:
	}
	s.Close()
	wg.Wait()
}

// Close cancels the periodic tasks and seals the transport against
// further emissions. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.emitMu.Lock()
		s.closed = true
		s.emitMu.Unlock()
		close(s.done)
		if s.metrics != nil {
			s.metrics.SessionsActive.Dec()
		}
		s.logger.Info("stream closed")
	})
}

// loop drives one periodic task until the session ends.
func (s *Session) loop(ctx context.Context, wg *sync.WaitGroup, interval time.Duration, tick func()) {
	defer wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			tick()
		}
	}
}

// runTask executes one tick of a refresh task as an isolated failure
// domain: an error or panic becomes a server-error event and the task
// keeps its schedule.
func (s *Session) runTask(ctx context.Context, task string, fn func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			s.taskError(task, fmt.Errorf("panic: %v", r))
		}
	}()
	if err := fn(ctx); err != nil {
		s.taskError(task, err)
	}
}

func (s *Session) taskError(task string, err error) {
	if s.metrics != nil {
		s.metrics.TaskErrors.WithLabelValues(task).Inc()
	}
	s.logger.Warn("task failed", slog.String("task", task), slog.String("err", err.Error()))
	s.emit(EventServerError, ErrorPayload{Message: err.Error()})
}

// snapshot fetches the historical series and quote concurrently. A
// quote failure is tolerated; a historical failure becomes a
// server-error event, but the session still proceeds to its tasks.
func (s *Session) snapshot(ctx context.Context) {
	var (
		series   []model.Candle
		quote    model.Quote
		histErr  error
		quoteErr error
		wg       sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		series, histErr = s.fetcher.FetchHistorical(ctx, s.cfg.Symbol, s.cfg.Timeframe)
	}()
	go func() {
		defer wg.Done()
		quote, quoteErr = s.fetcher.FetchQuote(ctx, s.cfg.Symbol)
	}()
	wg.Wait()

	if histErr != nil {
		s.taskError("init", histErr)
		return
	}

	payload := InitPayload{
		Symbol:    s.cfg.Symbol,
		Timeframe: s.cfg.Timeframe,
		Candles:   series,
	}
	if quoteErr == nil {
		payload.Quote = &quote
	}
	s.emit(EventInit, payload)
}

func (s *Session) refreshQuote(ctx context.Context) error {
	quote, err := s.fetcher.FetchQuote(ctx, s.cfg.Symbol)
	if err != nil {
		return err
	}
	s.emit(EventQuote, QuotePayload{
		Symbol:    s.cfg.Symbol,
		Timeframe: s.cfg.Timeframe,
		Quote:     quote,
	})
	return nil
}

// refreshCandle re-fetches the full series but pushes only the newest
// bar; consumers upsert by time label.
func (s *Session) refreshCandle(ctx context.Context) error {
	series, err := s.fetcher.FetchHistorical(ctx, s.cfg.Symbol, s.cfg.Timeframe)
	if err != nil {
		return err
	}
	if len(series) == 0 {
		return nil
	}
	s.emit(EventCandle, CandlePayload{
		Symbol:    s.cfg.Symbol,
		Timeframe: s.cfg.Timeframe,
		Candle:    series[len(series)-1],
	})
	return nil
}

// emit writes one event, holding the emit lock so nothing is written
// after close. A transport write failure ends the session.
func (s *Session) emit(event string, payload any) {
	s.emitMu.Lock()
	if s.closed {
		s.emitMu.Unlock()
		return
	}
	err := s.sink.Send(event, payload)
	s.emitMu.Unlock()

	if err != nil {
		s.logger.Warn("transport write failed", slog.String("err", err.Error()))
		s.Close()
		return
	}
	if s.metrics != nil {
		s.metrics.EventsTotal.WithLabelValues(event).Inc()
	}
}

func (s *Session) keepAlive() {
	s.emitMu.Lock()
	if s.closed {
		s.emitMu.Unlock()
		return
	}
	err := s.sink.KeepAlive()
	s.emitMu.Unlock()

	if err != nil {
		s.logger.Warn("keep-alive write failed", slog.String("err", err.Error()))
		s.Close()
		return
	}
	if s.metrics != nil {
		s.metrics.EventsTotal.WithLabelValues("keep-alive").Inc()
	}
}
