package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"

	apperrors "quantb/internal/errors"
)

// ErrUnterminated is returned when the transport ends before the done
// marker.
var ErrUnterminated = errors.New("stream ended without done marker")

const maxRecord = 4 << 20

// Decoder reads events written by an Encoder.
type Decoder struct {
	sc *bufio.Scanner
}

// NewDecoder creates a Decoder over r.
func NewDecoder(r io.Reader) *Decoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxRecord)
	return &Decoder{sc: sc}
}

// Next returns the next event. It returns io.EOF after the done marker and
// ErrUnterminated when the input ends first. Blank lines, comments and
// non-data fields are skipped.
func (d *Decoder) Next() (Event, error) {
	for d.sc.Scan() {
		line := bytes.TrimRight(d.sc.Bytes(), "\r")
		if len(line) == 0 || line[0] == ':' {
			continue
		}
		payload, ok := bytes.CutPrefix(line, []byte("data:"))
		if !ok {
			continue
		}
		payload = bytes.TrimSpace(payload)
		if string(payload) == DoneMarker {
			return Event{}, io.EOF
		}

		var ev Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			return Event{}, apperrors.NewParseError("stream", string(payload), err)
		}
		return ev, nil
	}
	if err := d.sc.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, ErrUnterminated
}
