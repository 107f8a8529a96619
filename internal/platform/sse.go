// File: internal/platform/sse.go
package platform

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// sseEvent is one parsed server-sent event frame.
type sseEvent struct {
	name string
	data []byte
}

// sseReader incrementally parses a text/event-stream body. It understands
// the subset of the SSE framing the platform emits: "event:" and "data:"
// fields, comment lines, and blank-line dispatch. Multi-line data fields
// are joined with newlines per the SSE specification.
type sseReader struct {
	scanner *bufio.Scanner
}

// maxSSELineBytes bounds a single stream line. Terminal result payloads
// carry full finding sets, so this is generous.
const maxSSELineBytes = 4 << 20

func newSSEReader(r io.Reader) *sseReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxSSELineBytes)
	return &sseReader{scanner: scanner}
}

// next returns the next complete event frame. It returns io.EOF when the
// stream ends cleanly; a frame in progress at EOF is discarded, matching
// browser EventSource behavior.
func (r *sseReader) next() (*sseEvent, error) {
	var (
		name    string
		data    [][]byte
		started bool
	)

	for r.scanner.Scan() {
		line := r.scanner.Text()

		if line == "" {
			if !started {
				continue // Leading blank lines between frames.
			}
			return &sseEvent{
				name: name,
				data: bytes.Join(data, []byte("\n")),
			}, nil
		}

		if strings.HasPrefix(line, ":") {
			continue // Comment / keep-alive line.
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			name = value
			started = true
		case "data":
			data = append(data, []byte(value))
			started = true
		default:
			// Unknown fields (id, retry, ...) are ignored.
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}
