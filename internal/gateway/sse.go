package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// sseSink frames session events as a text event stream: a named
// "event:" line plus a JSON "data:" line, flushed per frame so
// intermediaries forward them immediately.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSESink commits the event-stream headers on w. Returns false if
// the ResponseWriter cannot flush (no streaming possible).
func newSSESink(w http.ResponseWriter) (*sseSink, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	return &sseSink{w: w, flusher: flusher}, true
}

func (s *sseSink) Send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// KeepAlive writes an unnamed comment frame to defeat idle-connection
// timeouts in proxies.
func (s *sseSink) KeepAlive() error {
	if _, err := io.WriteString(s.w, ": heartbeat\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
