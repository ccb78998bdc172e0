package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// Encoder writes events as "data: <json>\n\n" records, flushing after each
// one when the writer supports it.
type Encoder struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	done    bool
}

// NewEncoder creates an Encoder over w.
func NewEncoder(w io.Writer) *Encoder {
	f, _ := w.(http.Flusher)
	return &Encoder{w: w, flusher: f}
}

// SetHeaders prepares an HTTP response for event streaming.
func SetHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// Send writes one event.
func (e *Encoder) Send(ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	return e.write(b)
}

// Done writes the done marker. Further sends fail.
func (e *Encoder) Done() error {
	if err := e.write([]byte(DoneMarker)); err != nil {
		return err
	}
	e.mu.Lock()
	e.done = true
	e.mu.Unlock()
	return nil
}

func (e *Encoder) write(payload []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.done {
		return fmt.Errorf("stream already finished")
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}
