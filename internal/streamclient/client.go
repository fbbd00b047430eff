// Package streamclient consumes a gateway push-session resiliently:
// it reconciles event payloads into local state and reconnects with a
// fixed backoff when the transport fails.
package streamclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"kiwoom-gateway/internal/model"
)

// State is the consumer connection state.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateReconnectPending
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnectPending:
		return "reconnect-pending"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

const defaultReconnectDelay = 3 * time.Second

// ParseError marks a malformed push-event payload. It is advisory:
// the stream keeps running.
type ParseError struct {
	Event string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s event: %v", e.Event, e.Err)
}

// Config describes one subscription.
type Config struct {
	BaseURL   string // gateway address, e.g. "http://localhost:8080"
	Symbol    string
	Timeframe model.Timeframe

	// ReconnectDelay is the fixed backoff after a transport failure.
	// Zero takes the 3s default.
	ReconnectDelay time.Duration

	HTTPClient *http.Client

	// Optional notification hooks, called outside the client lock.
	OnQuote    func(model.Quote)
	OnCandle   func(model.Candle)
	OnAdvisory func(string)
}

// Snapshot is a copy of the consumer's local state.
type Snapshot struct {
	State     State
	Connected bool
	LastError string
	Candles   []model.Candle
	Quote     *model.Quote
}

// Client owns the local candle series and quote for one (symbol,
// timeframe) subscription and keeps them fresh across reconnects.
type Client struct {
	cfg    Config
	logger *slog.Logger

	mu             sync.Mutex
	state          State
	connected      bool
	lastErr        string
	candles        []model.Candle
	quote          *model.Quote
	reconnectTimer *time.Timer

	retryCh  chan struct{}
	closedCh chan struct{}
	body     io.Closer // current transport, closed on teardown
}

// New creates a stream client. Run starts consuming.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg: cfg,
		logger: logger.With(
			slog.String("component", "streamclient"),
			slog.String("symbol", cfg.Symbol),
			slog.String("timeframe", string(cfg.Timeframe)),
		),
		state:    StateConnecting,
		retryCh:  make(chan struct{}, 1),
		closedCh: make(chan struct{}),
	}
}

// Run opens the push-session and consumes it until ctx is cancelled or
// Close is called, reconnecting after transport failures.
func (c *Client) Run(ctx context.Context) error {
	defer c.Close()
	for {
		c.mu.Lock()
		if c.state == StateClosed {
			c.mu.Unlock()
			return nil
		}
		c.state = StateConnecting
		c.mu.Unlock()

		err := c.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.mu.Lock()
		if c.state == StateClosed {
			c.mu.Unlock()
			return nil
		}
		c.mu.Unlock()

		c.transportError(err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closedCh:
			return nil
		case <-c.retryCh:
		}
	}
}

// Close tears the client down from any state: it closes the active
// transport, cancels a pending reconnect timer and marks the connection
// unhealthy. Idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	c.connected = false
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	body := c.body
	c.body = nil
	close(c.closedCh)
	c.mu.Unlock()

	if body != nil {
		body.Close()
	}
}

// Snapshot returns a copy of the local state.
func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		State:     c.state,
		Connected: c.connected,
		LastError: c.lastErr,
		Candles:   make([]model.Candle, len(c.candles)),
	}
	copy(snap.Candles, c.candles)
	if c.quote != nil {
		q := *c.quote
		snap.Quote = &q
	}
	return snap
}

// consume opens one transport and dispatches its events until it dies.
func (c *Client) consume(ctx context.Context) error {
	u := fmt.Sprintf("%s/stream?symbol=%s&timeframe=%s",
		c.cfg.BaseURL, url.QueryEscape(c.cfg.Symbol), url.QueryEscape(string(c.cfg.Timeframe)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("stream returned status %d", resp.StatusCode)
	}

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		resp.Body.Close()
		return nil
	}
	c.body = resp.Body
	c.state = StateOpen
	c.connected = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.mu.Unlock()

	err = c.readEvents(resp.Body)
	resp.Body.Close()
	return err
}

// transportError marks the connection unhealthy and schedules exactly
// one reconnect attempt: a second failure while a timer is pending must
// not schedule another.
func (c *Client) transportError(err error) {
	msg := "stream disconnected"
	if err != nil {
		msg = fmt.Sprintf("stream disconnected: %v", err)
	}

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.connected = false
	c.lastErr = msg
	scheduled := false
	if c.reconnectTimer == nil {
		c.state = StateReconnectPending
		c.reconnectTimer = time.AfterFunc(c.cfg.ReconnectDelay, c.retry)
		scheduled = true
	}
	c.mu.Unlock()

	c.advise(msg)
	if scheduled {
		c.logger.Warn("transport failed, reconnect scheduled", slog.String("err", msg))
	}
}

// retry fires when the backoff elapses: the failed transport is
// discarded, error state cleared, and the run loop opens a new session.
func (c *Client) retry() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.reconnectTimer = nil
	c.lastErr = ""
	c.mu.Unlock()

	select {
	case c.retryCh <- struct{}{}:
	default:
	}
}

func (c *Client) advise(msg string) {
	if c.cfg.OnAdvisory != nil {
		c.cfg.OnAdvisory(msg)
	}
}

// handleEvent reconciles one push event into local state.
func (c *Client) handleEvent(event string, data []byte) {
	switch event {
	case "init":
		var payload struct {
			Candles []model.Candle `json:"candles"`
			Quote   *model.Quote   `json:"quote"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			c.parseFailure("init", err)
			return
		}
		c.mu.Lock()
		c.candles = payload.Candles
		if payload.Quote != nil {
			c.quote = payload.Quote
		}
		c.lastErr = ""
		c.connected = true
		c.mu.Unlock()

	case "quote":
		var payload struct {
			Quote *model.Quote `json:"quote"`
		}
		if err := json.Unmarshal(data, &payload); err != nil || payload.Quote == nil {
			c.parseFailure("quote", err)
			return
		}
		c.mu.Lock()
		c.quote = payload.Quote
		c.connected = true
		c.mu.Unlock()
		if c.cfg.OnQuote != nil {
			c.cfg.OnQuote(*payload.Quote)
		}

	case "candle":
		var payload struct {
			Candle *model.Candle `json:"candle"`
		}
		if err := json.Unmarshal(data, &payload); err != nil || payload.Candle == nil {
			c.parseFailure("candle", err)
			return
		}
		c.mu.Lock()
		c.candles = model.UpsertCandle(c.candles, *payload.Candle)
		c.connected = true
		c.mu.Unlock()
		if c.cfg.OnCandle != nil {
			c.cfg.OnCandle(*payload.Candle)
		}

	case "server-error":
		var payload struct {
			Message string `json:"message"`
		}
		msg := "stream reported an error"
		if err := json.Unmarshal(data, &payload); err == nil && payload.Message != "" {
			msg = payload.Message
		}
		// Advisory only: connection health is unaffected.
		c.mu.Lock()
		c.lastErr = msg
		c.mu.Unlock()
		c.advise(msg)
	}
}

func (c *Client) parseFailure(event string, err error) {
	if err == nil {
		err = fmt.Errorf("missing payload")
	}
	perr := &ParseError{Event: event, Err: err}
	c.mu.Lock()
	c.lastErr = perr.Error()
	c.mu.Unlock()
	c.advise(perr.Error())
}
