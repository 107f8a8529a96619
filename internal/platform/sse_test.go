// File: internal/platform/sse_test.go
package platform

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEReaderParsesFrames(t *testing.T) {
	body := strings.Join([]string{
		"event: agent_start",
		"data: {\"stage\":\"ingest\"}",
		"",
		": heartbeat",
		"",
		"event: complete",
		"data: {\"status\":",
		"data: \"completed\"}",
		"",
	}, "\n")

	r := newSSEReader(strings.NewReader(body))

	ev, err := r.next()
	require.NoError(t, err)
	assert.Equal(t, "agent_start", ev.name)
	assert.Equal(t, `{"stage":"ingest"}`, string(ev.data))

	// Multi-line data joins with newlines; comments never dispatch.
	ev, err = r.next()
	require.NoError(t, err)
	assert.Equal(t, "complete", ev.name)
	assert.Equal(t, "{\"status\":\n\"completed\"}", string(ev.data))

	_, err = r.next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSSEReaderDiscardsPartialFrameAtEOF(t *testing.T) {
	r := newSSEReader(strings.NewReader("event: agent_start\ndata: {}"))

	_, err := r.next()
	assert.ErrorIs(t, err, io.EOF, "an unterminated frame is dropped")
}

func TestSSEReaderIgnoresUnknownFields(t *testing.T) {
	body := "id: 7\nretry: 100\nevent: error\ndata: {\"message\":\"boom\"}\n\n"
	r := newSSEReader(strings.NewReader(body))

	ev, err := r.next()
	require.NoError(t, err)
	assert.Equal(t, "error", ev.name)
	assert.Equal(t, `{"message":"boom"}`, string(ev.data))
}

func TestSSEReaderValueWithoutSpace(t *testing.T) {
	r := newSSEReader(strings.NewReader("event:starting\ndata:{}\n\n"))

	ev, err := r.next()
	require.NoError(t, err)
	assert.Equal(t, "starting", ev.name)
	assert.Equal(t, "{}", string(ev.data))
}

func TestSSEReaderEmptyStream(t *testing.T) {
	r := newSSEReader(strings.NewReader(""))
	_, err := r.next()
	assert.ErrorIs(t, err, io.EOF)
}
