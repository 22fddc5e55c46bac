// File: internal/services/chat_service_test.go
package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evanmb/go-converse/internal/services/conversation"
	"github.com/evanmb/go-converse/internal/services/stream"
)

// scriptHandle is a transport handle the test feeds events into.
type scriptHandle struct {
	events chan stream.Event
	closed chan struct{}
	once   sync.Once
}

func newScriptHandle() *scriptHandle {
	return &scriptHandle{
		events: make(chan stream.Event, 16),
		closed: make(chan struct{}),
	}
}

func (h *scriptHandle) Events() <-chan stream.Event { return h.events }

func (h *scriptHandle) Close() error {
	h.once.Do(func() { close(h.closed) })
	return nil
}

// scriptTransport hands out pre-built handles, one per OpenStream call.
type scriptTransport struct {
	mu      sync.Mutex
	handles []*scriptHandle
	dialErr error
}

func (t *scriptTransport) OpenStream(ctx context.Context, prompt string) (stream.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dialErr != nil {
		return nil, t.dialErr
	}
	if len(t.handles) == 0 {
		return nil, errors.New("no scripted handle available")
	}
	h := t.handles[0]
	t.handles = t.handles[1:]
	return h, nil
}

type fixture struct {
	service   *ChatService
	store     *conversation.Store
	transport *scriptTransport
}

func newFixture(t *testing.T, handles ...*scriptHandle) *fixture {
	t.Helper()
	transport := &scriptTransport{handles: handles}
	store := conversation.NewStore(&NoOpLogger{})
	service, err := NewChatService(store, transport, &NoOpLogger{})
	require.NoError(t, err)
	return &fixture{service: service, store: store, transport: transport}
}

// doneObserver signals through a channel when the stream terminates.
type doneObserver struct {
	fragmentC chan string
	doneC     chan stream.State
}

func newDoneObserver() *doneObserver {
	return &doneObserver{
		fragmentC: make(chan string, 16),
		doneC:     make(chan stream.State, 1),
	}
}

func (o *doneObserver) observer() StreamObserver {
	return StreamObserver{
		OnFragment: func(text string) { o.fragmentC <- text },
		OnDone:     func(terminal stream.State) { o.doneC <- terminal },
	}
}

func (o *doneObserver) waitDone(t *testing.T) stream.State {
	t.Helper()
	select {
	case state := <-o.doneC:
		return state
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not terminate")
		return ""
	}
}

func (o *doneObserver) waitFragment(t *testing.T) string {
	t.Helper()
	select {
	case text := <-o.fragmentC:
		return text
	case <-time.After(2 * time.Second):
		t.Fatal("no fragment arrived")
		return ""
	}
}

func TestSendMessageAssemblesReply(t *testing.T) {
	handle := newScriptHandle()
	handle.events <- stream.Event{Kind: stream.EventOpened}
	handle.events <- stream.Event{Kind: stream.EventFragment, Text: "Hi"}
	handle.events <- stream.Event{Kind: stream.EventFragment, Text: "there"}
	handle.events <- stream.Event{Kind: stream.EventEnd}
	close(handle.events)

	f := newFixture(t, handle)
	obs := newDoneObserver()

	require.NoError(t, f.service.SendMessage(context.Background(), "Hello", obs.observer()))
	assert.Equal(t, stream.StateCompleted, obs.waitDone(t))

	snap := f.service.Snapshot()
	assert.False(t, snap.Streaming)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "Hello", snap.Messages[0].Text)
	assert.False(t, snap.Messages[0].IsFromAssistant)
	assert.Equal(t, "Hi there", snap.Messages[1].Text)
	assert.True(t, snap.Messages[1].IsFromAssistant)

	require.Len(t, snap.Conversations, 1)
	assert.Equal(t, "Hello", snap.Conversations[0].Title)
	assert.Equal(t, "Hi there", snap.Conversations[0].LastMessagePreview)
}

func TestSendMessageDerivesTruncatedTitle(t *testing.T) {
	handle := newScriptHandle()
	handle.events <- stream.Event{Kind: stream.EventOpened}
	handle.events <- stream.Event{Kind: stream.EventEnd}
	close(handle.events)

	f := newFixture(t, handle)
	obs := newDoneObserver()

	prompt := strings.Repeat("q", 40)
	require.NoError(t, f.service.SendMessage(context.Background(), prompt, obs.observer()))
	obs.waitDone(t)

	snap := f.service.Snapshot()
	assert.Equal(t, strings.Repeat("q", 30)+"...", snap.Conversations[0].Title)
}

func TestCompletedStreamWithNoContentGetsFallback(t *testing.T) {
	handle := newScriptHandle()
	handle.events <- stream.Event{Kind: stream.EventOpened}
	handle.events <- stream.Event{Kind: stream.EventEnd}
	close(handle.events)

	f := newFixture(t, handle)
	obs := newDoneObserver()

	require.NoError(t, f.service.SendMessage(context.Background(), "Hello", obs.observer()))
	assert.Equal(t, stream.StateCompleted, obs.waitDone(t))

	snap := f.service.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, FallbackCompleted, snap.Messages[1].Text)
}

func TestFailedStreamWithNoContentGetsFallback(t *testing.T) {
	handle := newScriptHandle()
	handle.events <- stream.Event{Kind: stream.EventOpened}
	handle.events <- stream.Event{Kind: stream.EventError, Err: errors.New("boom")}
	close(handle.events)

	f := newFixture(t, handle)
	obs := newDoneObserver()

	require.NoError(t, f.service.SendMessage(context.Background(), "Hello", obs.observer()))
	assert.Equal(t, stream.StateFailed, obs.waitDone(t))

	snap := f.service.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, FallbackFailed, snap.Messages[1].Text)
}

func TestFailedStreamPreservesPartialReply(t *testing.T) {
	handle := newScriptHandle()
	handle.events <- stream.Event{Kind: stream.EventOpened}
	handle.events <- stream.Event{Kind: stream.EventFragment, Text: "Hi"}
	handle.events <- stream.Event{Kind: stream.EventError, Err: errors.New("connection reset")}
	close(handle.events)

	f := newFixture(t, handle)
	obs := newDoneObserver()

	require.NoError(t, f.service.SendMessage(context.Background(), "Hello", obs.observer()))
	assert.Equal(t, stream.StateFailed, obs.waitDone(t))

	snap := f.service.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "Hi", snap.Messages[1].Text)
}

func TestDialFailureIsAbsorbedIntoMessageLog(t *testing.T) {
	f := newFixture(t)
	f.transport.dialErr = errors.New("dial refused")
	obs := newDoneObserver()

	err := f.service.SendMessage(context.Background(), "Hello", obs.observer())
	require.Error(t, err)
	assert.Equal(t, stream.StateFailed, obs.waitDone(t))

	snap := f.service.Snapshot()
	assert.False(t, snap.Streaming)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, FallbackFailed, snap.Messages[1].Text)
}

func TestEmptyPromptRejectedWithoutSideEffects(t *testing.T) {
	f := newFixture(t)

	err := f.service.SendMessage(context.Background(), "   ", StreamObserver{})
	require.Error(t, err)
	assert.True(t, conversation.IsValidation(err))

	snap := f.service.Snapshot()
	assert.Empty(t, snap.Messages)
	assert.False(t, snap.Streaming)
}

func TestSecondSendWhileStreamingRejected(t *testing.T) {
	handle := newScriptHandle()
	f := newFixture(t, handle)
	obs := newDoneObserver()

	require.NoError(t, f.service.SendMessage(context.Background(), "Hello", obs.observer()))
	handle.events <- stream.Event{Kind: stream.EventOpened}
	handle.events <- stream.Event{Kind: stream.EventFragment, Text: "Hi"}
	obs.waitFragment(t)
	assert.True(t, f.service.Streaming())

	err := f.service.SendMessage(context.Background(), "again", StreamObserver{})
	require.Error(t, err)
	assert.True(t, stream.IsAlreadyActive(err))

	handle.events <- stream.Event{Kind: stream.EventEnd}
	close(handle.events)
	assert.Equal(t, stream.StateCompleted, obs.waitDone(t))

	// The rejected send left no trace.
	snap := f.service.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "Hello", snap.Messages[0].Text)
}

func TestPendingSessionHoldsStreamSlot(t *testing.T) {
	f := newFixture(t)

	// A session the controller has created but not yet opened.
	pending := stream.NewSession(f.transport, stream.Callbacks{}, &NoOpLogger{})
	f.service.mu.Lock()
	f.service.active = pending
	f.service.mu.Unlock()

	err := f.service.SendMessage(context.Background(), "Hello", StreamObserver{})
	require.Error(t, err)
	assert.True(t, stream.IsAlreadyActive(err))

	// The rejected send appended nothing.
	snap := f.service.Snapshot()
	assert.Empty(t, snap.Messages)
}

func TestSwitchBeforeStreamOpensAbortsSession(t *testing.T) {
	handle := newScriptHandle()
	handle.events <- stream.Event{Kind: stream.EventOpened}
	handle.events <- stream.Event{Kind: stream.EventFragment, Text: "fresh"}
	handle.events <- stream.Event{Kind: stream.EventEnd}
	close(handle.events)

	f := newFixture(t, handle)
	first := f.store.ActiveID()
	second := f.service.NewChat()

	// Stage a send on the second conversation up to the point where the
	// session is assigned but the transport has not been dialed yet.
	obs := newDoneObserver()
	require.NoError(t, f.store.AppendUserMessage(second.ID, "Hello"))
	placeholder, err := f.store.AppendPlaceholder(second.ID)
	require.NoError(t, err)
	session := stream.NewSession(f.transport, f.service.sessionCallbacks(placeholder, obs.observer()), &NoOpLogger{})
	f.service.mu.Lock()
	f.service.active = session
	f.service.mu.Unlock()

	// Switching away in that window must cancel the unopened session.
	require.NoError(t, f.service.SwitchTo(first))
	assert.Equal(t, stream.StateCancelled, obs.waitDone(t))

	// The pending Open is rejected and never dials the transport.
	err = session.Open(context.Background(), "Hello", second.ID)
	require.Error(t, err)
	assert.False(t, f.service.Streaming())

	messages, err := f.service.Messages(second.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, FallbackFailed, messages[1].Text)

	// The slot is free again and the scripted stream, untouched by the
	// aborted session, serves the next send on the first conversation.
	obs2 := newDoneObserver()
	require.NoError(t, f.service.SendMessage(context.Background(), "Next", obs2.observer()))
	assert.Equal(t, stream.StateCompleted, obs2.waitDone(t))

	messages, err = f.service.Messages(first)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "fresh", messages[1].Text)

	// The abandoned conversation kept only its finalized fallback.
	messages, err = f.service.Messages(second.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, FallbackFailed, messages[1].Text)
}

func TestNewChatCancelsStreamAndPreservesPartial(t *testing.T) {
	handle := newScriptHandle()
	f := newFixture(t, handle)
	obs := newDoneObserver()

	require.NoError(t, f.service.SendMessage(context.Background(), "Hello", obs.observer()))
	first := f.store.ActiveID()

	handle.events <- stream.Event{Kind: stream.EventOpened}
	handle.events <- stream.Event{Kind: stream.EventFragment, Text: "Hi"}
	obs.waitFragment(t)

	conv := f.service.NewChat()
	assert.Equal(t, stream.StateCancelled, obs.waitDone(t))
	assert.False(t, f.service.Streaming())
	assert.Equal(t, conv.ID, f.store.ActiveID())

	// The old conversation keeps the partial reply, finalized.
	messages, err := f.service.Messages(first)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "Hi", messages[1].Text)

	// Late fragments from the dead stream apply nowhere.
	handle.events <- stream.Event{Kind: stream.EventFragment, Text: "there"}
	close(handle.events)

	messages, err = f.service.Messages(first)
	require.NoError(t, err)
	assert.Equal(t, "Hi", messages[1].Text)
	fresh, err := f.service.Messages(conv.ID)
	require.NoError(t, err)
	assert.Empty(t, fresh)
}

func TestSwitchCancelsStreamBoundToPreviousConversation(t *testing.T) {
	handle := newScriptHandle()
	f := newFixture(t, handle)
	first := f.store.ActiveID()
	second := f.service.NewChat()

	obs := newDoneObserver()
	require.NoError(t, f.service.SendMessage(context.Background(), "Hello", obs.observer()))
	handle.events <- stream.Event{Kind: stream.EventOpened}
	handle.events <- stream.Event{Kind: stream.EventFragment, Text: "Hi"}
	obs.waitFragment(t)

	require.NoError(t, f.service.SwitchTo(first))
	assert.Equal(t, stream.StateCancelled, obs.waitDone(t))
	assert.False(t, f.service.Streaming())

	// The reply stays with the conversation it was bound to.
	messages, err := f.service.Messages(second.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "Hi", messages[1].Text)

	active, err := f.service.Messages(first)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestSwitchToActiveConversationKeepsStream(t *testing.T) {
	handle := newScriptHandle()
	f := newFixture(t, handle)
	obs := newDoneObserver()

	require.NoError(t, f.service.SendMessage(context.Background(), "Hello", obs.observer()))
	handle.events <- stream.Event{Kind: stream.EventOpened}
	handle.events <- stream.Event{Kind: stream.EventFragment, Text: "Hi"}
	obs.waitFragment(t)

	require.NoError(t, f.service.SwitchTo(f.store.ActiveID()))
	assert.True(t, f.service.Streaming())

	handle.events <- stream.Event{Kind: stream.EventEnd}
	close(handle.events)
	assert.Equal(t, stream.StateCompleted, obs.waitDone(t))
}

func TestSwitchToUnknownConversation(t *testing.T) {
	f := newFixture(t)
	err := f.service.SwitchTo("no-such-id")
	require.Error(t, err)
	assert.True(t, conversation.IsNotFound(err))
}

func TestDeleteStreamingConversationCancelsFirst(t *testing.T) {
	handle := newScriptHandle()
	f := newFixture(t, handle)
	first := f.store.ActiveID()
	second := f.service.NewChat()

	obs := newDoneObserver()
	require.NoError(t, f.service.SendMessage(context.Background(), "Hello", obs.observer()))
	handle.events <- stream.Event{Kind: stream.EventOpened}
	handle.events <- stream.Event{Kind: stream.EventFragment, Text: "Hi"}
	obs.waitFragment(t)

	f.service.DeleteChat(second.ID)
	assert.Equal(t, stream.StateCancelled, obs.waitDone(t))
	assert.False(t, f.service.Streaming())

	assert.False(t, f.store.Exists(second.ID))
	assert.Equal(t, first, f.store.ActiveID())

	// The successor starts with a cleared log.
	messages, err := f.service.Messages(first)
	require.NoError(t, err)
	assert.Empty(t, messages)

	close(handle.events)
}

func TestDeleteOtherConversationKeepsStreamRunning(t *testing.T) {
	handle := newScriptHandle()
	f := newFixture(t, handle)
	first := f.store.ActiveID()
	f.service.NewChat()

	obs := newDoneObserver()
	require.NoError(t, f.service.SendMessage(context.Background(), "Hello", obs.observer()))
	handle.events <- stream.Event{Kind: stream.EventOpened}
	handle.events <- stream.Event{Kind: stream.EventFragment, Text: "Hi"}
	obs.waitFragment(t)

	f.service.DeleteChat(first)
	assert.True(t, f.service.Streaming())
	assert.False(t, f.store.Exists(first))

	handle.events <- stream.Event{Kind: stream.EventEnd}
	close(handle.events)
	assert.Equal(t, stream.StateCompleted, obs.waitDone(t))
}

func TestDeleteLastConversationIsRefused(t *testing.T) {
	handle := newScriptHandle()
	f := newFixture(t, handle)
	id := f.store.ActiveID()

	obs := newDoneObserver()
	require.NoError(t, f.service.SendMessage(context.Background(), "Hello", obs.observer()))
	handle.events <- stream.Event{Kind: stream.EventOpened}
	handle.events <- stream.Event{Kind: stream.EventFragment, Text: "Hi"}
	obs.waitFragment(t)

	f.service.DeleteChat(id)
	assert.True(t, f.store.Exists(id))
	assert.Equal(t, 1, f.store.Count())
	assert.True(t, f.service.Streaming())

	handle.events <- stream.Event{Kind: stream.EventEnd}
	close(handle.events)
	obs.waitDone(t)
}

func TestCancelActive(t *testing.T) {
	handle := newScriptHandle()
	f := newFixture(t, handle)
	obs := newDoneObserver()

	require.NoError(t, f.service.SendMessage(context.Background(), "Hello", obs.observer()))
	handle.events <- stream.Event{Kind: stream.EventOpened}
	handle.events <- stream.Event{Kind: stream.EventFragment, Text: "Hi"}
	obs.waitFragment(t)

	f.service.CancelActive()
	assert.Equal(t, stream.StateCancelled, obs.waitDone(t))
	assert.False(t, f.service.Streaming())

	snap := f.service.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "Hi", snap.Messages[1].Text)

	close(handle.events)
}

func TestCancelledStreamWithNoContentGetsFallback(t *testing.T) {
	handle := newScriptHandle()
	f := newFixture(t, handle)
	obs := newDoneObserver()

	require.NoError(t, f.service.SendMessage(context.Background(), "Hello", obs.observer()))

	f.service.CancelActive()
	assert.Equal(t, stream.StateCancelled, obs.waitDone(t))

	snap := f.service.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, FallbackFailed, snap.Messages[1].Text)

	close(handle.events)
}

func TestSendAfterCompletionReusesStreamSlot(t *testing.T) {
	first := newScriptHandle()
	first.events <- stream.Event{Kind: stream.EventOpened}
	first.events <- stream.Event{Kind: stream.EventFragment, Text: "one"}
	first.events <- stream.Event{Kind: stream.EventEnd}
	close(first.events)

	second := newScriptHandle()
	second.events <- stream.Event{Kind: stream.EventOpened}
	second.events <- stream.Event{Kind: stream.EventFragment, Text: "two"}
	second.events <- stream.Event{Kind: stream.EventEnd}
	close(second.events)

	f := newFixture(t, first, second)

	obs1 := newDoneObserver()
	require.NoError(t, f.service.SendMessage(context.Background(), "first prompt", obs1.observer()))
	obs1.waitDone(t)

	obs2 := newDoneObserver()
	require.NoError(t, f.service.SendMessage(context.Background(), "second prompt", obs2.observer()))
	obs2.waitDone(t)

	snap := f.service.Snapshot()
	require.Len(t, snap.Messages, 4)
	assert.Equal(t, "one", snap.Messages[1].Text)
	assert.Equal(t, "two", snap.Messages[3].Text)
	assert.Equal(t, "first prompt", snap.Conversations[0].Title)
}
