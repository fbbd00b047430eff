package streamclient

import (
	"bufio"
	"io"
	"strings"
)

// readEvents parses text event-stream frames from r and dispatches
// each complete frame. Comment lines (the gateway's keep-alive) are
// skipped. Returns when the stream ends, with the underlying error.
func (c *Client) readEvents(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		event string
		data  strings.Builder
	)
	flush := func() {
		if event != "" && data.Len() > 0 {
			c.handleEvent(event, []byte(data.String()))
		}
		event = ""
		data.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, ":"):
			// keep-alive comment
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}
