// File: internal/services/ai/canned_transport_test.go
package ai

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanmb/go-converse/internal/services/stream"
)

type noopLogger struct{}

func (noopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (noopLogger) Error(msg string, keysAndValues ...interface{}) {}
func (noopLogger) Debug(msg string, keysAndValues ...interface{}) {}
func (noopLogger) Warn(msg string, keysAndValues ...interface{})  {}

func newTestCannedTransport(t *testing.T, delay time.Duration) *CannedTransport {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ChunkDelay = delay
	transport, err := NewCannedTransport(cfg, noopLogger{})
	require.NoError(t, err)
	return transport
}

func collectEvents(t *testing.T, h stream.Handle) []stream.Event {
	t.Helper()
	var events []stream.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-h.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("transport did not finish in time")
		}
	}
}

func TestCannedTransportShortPrompt(t *testing.T) {
	transport := newTestCannedTransport(t, 0)

	h, err := transport.OpenStream(context.Background(), "hi")
	require.NoError(t, err)
	events := collectEvents(t, h)

	require.Len(t, events, 3)
	assert.Equal(t, stream.EventOpened, events[0].Kind)
	assert.Equal(t, stream.EventFragment, events[1].Kind)
	assert.Equal(t, ShortPromptReply, events[1].Text)
	assert.Equal(t, stream.EventEnd, events[2].Kind)
}

func TestCannedTransportStreamsChunkedReply(t *testing.T) {
	transport := newTestCannedTransport(t, 0)

	h, err := transport.OpenStream(context.Background(), "tell me something interesting")
	require.NoError(t, err)
	events := collectEvents(t, h)

	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, stream.EventOpened, events[0].Kind)
	assert.Equal(t, stream.EventEnd, events[len(events)-1].Kind)

	chunkWords := DefaultConfig().ChunkWords
	totalWords := 0
	for _, ev := range events[1 : len(events)-1] {
		require.Equal(t, stream.EventFragment, ev.Kind)
		words := strings.Fields(ev.Text)
		assert.NotEmpty(t, words)
		assert.LessOrEqual(t, len(words), chunkWords)
		totalWords += len(words)
	}
	// 100 sentences of several words each.
	assert.Greater(t, totalWords, cannedSentenceCount)
}

func TestCannedTransportStopsOnClose(t *testing.T) {
	transport := newTestCannedTransport(t, 50*time.Millisecond)

	h, err := transport.OpenStream(context.Background(), "tell me something interesting")
	require.NoError(t, err)

	// Read the opening handshake and the first chunk, then hang up.
	readOne := func() stream.Event {
		select {
		case ev := <-h.Events():
			return ev
		case <-time.After(2 * time.Second):
			t.Fatal("no event")
			return stream.Event{}
		}
	}
	assert.Equal(t, stream.EventOpened, readOne().Kind)
	assert.Equal(t, stream.EventFragment, readOne().Kind)
	require.NoError(t, h.Close())

	// The pump notices the closed handle and ends without a terminal event.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-h.Events():
			if !ok {
				return
			}
			assert.NotEqual(t, stream.EventEnd, ev.Kind)
		case <-deadline:
			t.Fatal("pump kept running after close")
		}
	}
}

func TestCannedTransportContextCancellation(t *testing.T) {
	transport := newTestCannedTransport(t, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	h, err := transport.OpenStream(ctx, "tell me something interesting")
	require.NoError(t, err)

	// Let the first chunk through, then cancel the context mid-pause.
	<-h.Events() // opened
	<-h.Events() // first fragment
	cancel()

	events := collectEvents(t, h)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, stream.EventError, last.Kind)
	assert.ErrorIs(t, last.Err, context.Canceled)
}
