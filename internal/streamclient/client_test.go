package streamclient

import (
	"errors"
	"testing"
	"time"

	"kiwoom-gateway/internal/model"
)

func TestTransportErrorSchedulesSingleReconnect(t *testing.T) {
	c := New(Config{BaseURL: "http://localhost:0", ReconnectDelay: time.Hour}, nil)

	c.transportError(errors.New("connection refused"))

	c.mu.Lock()
	firstTimer := c.reconnectTimer
	state := c.state
	c.mu.Unlock()

	if state != StateReconnectPending {
		t.Fatalf("state = %v, want reconnect-pending", state)
	}
	if firstTimer == nil {
		t.Fatal("no reconnect timer scheduled")
	}

	// A second failure while the timer is pending must not re-schedule.
	c.transportError(errors.New("connection refused again"))

	c.mu.Lock()
	secondTimer := c.reconnectTimer
	c.mu.Unlock()

	if secondTimer != firstTimer {
		t.Error("second transport error replaced the pending reconnect timer")
	}
}

func TestTransportErrorSetsAdvisoryState(t *testing.T) {
	var advisories []string
	c := New(Config{
		BaseURL:        "http://localhost:0",
		ReconnectDelay: time.Hour,
		OnAdvisory:     func(msg string) { advisories = append(advisories, msg) },
	}, nil)

	c.transportError(errors.New("boom"))

	snap := c.Snapshot()
	if snap.Connected {
		t.Error("connected = true after transport error")
	}
	if snap.LastError == "" {
		t.Error("last error not recorded")
	}
	if len(advisories) != 1 {
		t.Errorf("advisories = %d, want 1", len(advisories))
	}
}

func TestRetryClearsErrorAndSignalsRunLoop(t *testing.T) {
	c := New(Config{BaseURL: "http://localhost:0", ReconnectDelay: time.Hour}, nil)
	c.transportError(errors.New("boom"))

	c.retry()

	snap := c.Snapshot()
	if snap.LastError != "" {
		t.Errorf("last error = %q, want cleared", snap.LastError)
	}
	select {
	case <-c.retryCh:
	default:
		t.Error("retry did not signal the run loop")
	}
}

func TestHandleEventInitReplacesState(t *testing.T) {
	c := New(Config{BaseURL: "http://localhost:0"}, nil)
	c.mu.Lock()
	c.candles = []model.Candle{{Time: model.NewTimeLabel("2020-01-01"), Close: 1}}
	c.lastErr = "stale"
	c.mu.Unlock()

	c.handleEvent("init", []byte(`{
		"symbol":"005930","timeframe":"D",
		"candles":[
			{"time":"2025-02-06","open":74150,"high":75200,"low":73900,"close":74800,"volume":1375400},
			{"time":"2025-02-07","open":74800,"high":75800,"low":74500,"close":75600,"volume":1587600}
		],
		"quote":{"symbol":"005930","price":75600,"change":980,"changePercent":1.32}
	}`))

	snap := c.Snapshot()
	if len(snap.Candles) != 2 {
		t.Fatalf("candles = %d, want 2 (full replace)", len(snap.Candles))
	}
	if snap.Candles[0].Time.Value != "2025-02-06" {
		t.Errorf("first candle = %q", snap.Candles[0].Time.Value)
	}
	if snap.Quote == nil || snap.Quote.Price != 75600 {
		t.Errorf("quote = %+v", snap.Quote)
	}
	if snap.LastError != "" {
		t.Errorf("last error = %q, want cleared by init", snap.LastError)
	}
	if !snap.Connected {
		t.Error("connected = false after init")
	}
}

func TestHandleEventCandleUpsertsByLabel(t *testing.T) {
	var delivered []model.Candle
	c := New(Config{
		BaseURL:  "http://localhost:0",
		OnCandle: func(cd model.Candle) { delivered = append(delivered, cd) },
	}, nil)
	c.mu.Lock()
	c.candles = []model.Candle{
		{Time: model.NewTimeLabel("2025-02-06"), Close: 74800},
		{Time: model.NewTimeLabel("2025-02-07"), Close: 75600},
	}
	c.mu.Unlock()

	// Same label: replace in place.
	c.handleEvent("candle", []byte(`{"candle":{"time":"2025-02-07","close":75900}}`))
	snap := c.Snapshot()
	if len(snap.Candles) != 2 {
		t.Fatalf("candles = %d, want 2 after replace", len(snap.Candles))
	}
	if snap.Candles[1].Close != 75900 {
		t.Errorf("replaced close = %v, want 75900", snap.Candles[1].Close)
	}

	// New label: append keeping order.
	c.handleEvent("candle", []byte(`{"candle":{"time":"2025-02-10","close":76100}}`))
	snap = c.Snapshot()
	if len(snap.Candles) != 3 {
		t.Fatalf("candles = %d, want 3 after new label", len(snap.Candles))
	}
	if snap.Candles[2].Time.Value != "2025-02-10" {
		t.Errorf("last candle = %q, want 2025-02-10", snap.Candles[2].Time.Value)
	}

	if len(delivered) != 2 {
		t.Errorf("OnCandle calls = %d, want 2", len(delivered))
	}
}

func TestHandleEventQuote(t *testing.T) {
	var got *model.Quote
	c := New(Config{
		BaseURL: "http://localhost:0",
		OnQuote: func(q model.Quote) { got = &q },
	}, nil)

	c.handleEvent("quote", []byte(`{"quote":{"symbol":"005930","price":75700}}`))

	if got == nil || got.Price != 75700 {
		t.Fatalf("OnQuote = %+v, want price 75700", got)
	}
	snap := c.Snapshot()
	if snap.Quote == nil || snap.Quote.Price != 75700 {
		t.Errorf("snapshot quote = %+v", snap.Quote)
	}
}

func TestHandleEventServerErrorIsAdvisory(t *testing.T) {
	var advisories []string
	c := New(Config{
		BaseURL:    "http://localhost:0",
		OnAdvisory: func(msg string) { advisories = append(advisories, msg) },
	}, nil)
	c.mu.Lock()
	c.connected = true
	c.candles = []model.Candle{{Time: model.NewTimeLabel("2025-02-07"), Close: 75600}}
	c.mu.Unlock()

	c.handleEvent("server-error", []byte(`{"message":"chart endpoint down"}`))

	snap := c.Snapshot()
	if !snap.Connected {
		t.Error("server-error changed connection health")
	}
	if len(snap.Candles) != 1 {
		t.Error("server-error changed local data")
	}
	if snap.LastError != "chart endpoint down" {
		t.Errorf("last error = %q", snap.LastError)
	}
	if len(advisories) != 1 || advisories[0] != "chart endpoint down" {
		t.Errorf("advisories = %v", advisories)
	}
}

func TestHandleEventMalformedPayloadIsAdvisory(t *testing.T) {
	var advisories []string
	c := New(Config{
		BaseURL:    "http://localhost:0",
		OnAdvisory: func(msg string) { advisories = append(advisories, msg) },
	}, nil)

	c.handleEvent("candle", []byte(`{not json`))

	snap := c.Snapshot()
	if snap.LastError == "" {
		t.Error("parse failure not recorded")
	}
	if len(advisories) != 1 {
		t.Errorf("advisories = %d, want 1", len(advisories))
	}
}

func TestCloseIsIdempotentAndStopsTimer(t *testing.T) {
	c := New(Config{BaseURL: "http://localhost:0", ReconnectDelay: time.Hour}, nil)
	c.transportError(errors.New("boom"))

	c.Close()
	c.Close() // must not panic

	snap := c.Snapshot()
	if snap.State != StateClosed {
		t.Errorf("state = %v, want closed", snap.State)
	}
	c.mu.Lock()
	timer := c.reconnectTimer
	c.mu.Unlock()
	if timer != nil {
		t.Error("reconnect timer survived close")
	}
}
