package streamclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"kiwoom-gateway/internal/model"
)

func TestReadEventsParsesFrames(t *testing.T) {
	var quotes int32
	c := New(Config{
		BaseURL: "http://localhost:0",
		OnQuote: func(model.Quote) { atomic.AddInt32(&quotes, 1) },
	}, nil)

	stream := "event: init\n" +
		"data: {\"candles\":[{\"time\":\"2025-02-07\",\"close\":75600}]}\n" +
		"\n" +
		": heartbeat\n" +
		"\n" +
		"event: quote\n" +
		"data: {\"quote\":{\"symbol\":\"005930\",\"price\":75700}}\n" +
		"\n"

	err := c.readEvents(strings.NewReader(stream))
	if err != io.EOF {
		t.Fatalf("readEvents = %v, want io.EOF", err)
	}

	snap := c.Snapshot()
	if len(snap.Candles) != 1 {
		t.Errorf("candles = %d, want 1", len(snap.Candles))
	}
	if snap.Quote == nil || snap.Quote.Price != 75700 {
		t.Errorf("quote = %+v", snap.Quote)
	}
	if n := atomic.LoadInt32(&quotes); n != 1 {
		t.Errorf("OnQuote calls = %d, want 1", n)
	}
}

func TestRunConsumesLiveStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stream" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("symbol"); got != "005930" {
			t.Errorf("symbol = %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		io.WriteString(w, "event: init\ndata: {\"candles\":[{\"time\":\"2025-02-07\",\"close\":75600}],\"quote\":{\"symbol\":\"005930\",\"price\":75600}}\n\n")
		flusher.Flush()
		io.WriteString(w, "event: candle\ndata: {\"candle\":{\"time\":\"2025-02-10\",\"close\":76100}}\n\n")
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	gotCandle := make(chan model.Candle, 1)
	c := New(Config{
		BaseURL:   srv.URL,
		Symbol:    "005930",
		Timeframe: model.TimeframeDay,
		OnCandle:  func(cd model.Candle) { gotCandle <- cd },
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case cd := <-gotCandle:
		if cd.Time.Value != "2025-02-10" {
			t.Errorf("candle = %q", cd.Time.Value)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no candle event received")
	}

	snap := c.Snapshot()
	if snap.State != StateOpen {
		t.Errorf("state = %v, want open", snap.State)
	}
	if len(snap.Candles) != 2 {
		t.Errorf("candles = %d, want 2 (init + upsert)", len(snap.Candles))
	}

	cancel()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunReconnectsAfterStreamEnds(t *testing.T) {
	var conns int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&conns, 1)
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		io.WriteString(w, "event: init\ndata: {\"candles\":[]}\n\n")
		flusher.Flush()
		if n == 1 {
			return // first transport dies right after init
		}
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := New(Config{
		BaseURL:        srv.URL,
		Symbol:         "005930",
		Timeframe:      model.TimeframeDay,
		ReconnectDelay: 10 * time.Millisecond,
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&conns) < 2 {
		select {
		case <-deadline:
			t.Fatal("client did not reconnect")
		case <-time.After(5 * time.Millisecond):
		}
	}

	c.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}
