// File: internal/services/ai/canned_transport.go
package ai

import (
	"context"
	"math/rand"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/evanmb/go-converse/internal/services/stream"
)

// ShortPromptReply is sent when the prompt is too short to answer.
const ShortPromptReply = "Could you provide more details?"

// minPromptRunes is the threshold below which the canned transport asks for
// more details instead of generating a reply.
const minPromptRunes = 5

// cannedSentenceCount is how many sentences make up a generated reply.
const cannedSentenceCount = 100

var cannedSentences = []string{
	"That's an interesting point. Can you tell me more?",
	"I understand what you're saying. Here's what I think...",
	"Based on what you've shared, I'd suggest considering these ideas...",
	"Let me analyze this further... The key aspects to consider are...",
	"That's a great question! From my perspective...",
	"I've processed your request and here's what I found...",
	"Thanks for sharing that. My thoughts on this topic are...",
	"I've considered multiple angles on this issue, and here's my analysis...",
	"Your question touches on several important concepts. Let me break it down...",
	"I find this topic fascinating. Here's what I know about it...",
}

// CannedTransport streams randomly assembled canned replies. It stands in
// for a real model during development and tests, pacing fragments to mimic
// a live stream.
type CannedTransport struct {
	config *Config
	logger Logger
}

func NewCannedTransport(config *Config, logger Logger) (*CannedTransport, error) {
	if err := config.Validate(); err != nil {
		return nil, NewConfigError(err.Error())
	}
	return &CannedTransport{config: config, logger: logger}, nil
}

func (t *CannedTransport) OpenStream(ctx context.Context, prompt string) (stream.Handle, error) {
	h := newEventHandle(nil)
	go t.pump(ctx, prompt, h)
	return h, nil
}

func (t *CannedTransport) pump(ctx context.Context, prompt string, h *eventHandle) {
	defer h.finish()

	if !h.emit(stream.Event{Kind: stream.EventOpened}) {
		return
	}

	if utf8.RuneCountInString(strings.TrimSpace(prompt)) < minPromptRunes {
		if h.emit(stream.Event{Kind: stream.EventFragment, Text: ShortPromptReply}) {
			h.emit(stream.Event{Kind: stream.EventEnd})
		}
		return
	}

	words := t.generate()
	for i := 0; i < len(words); i += t.config.ChunkWords {
		end := i + t.config.ChunkWords
		if end > len(words) {
			end = len(words)
		}
		chunk := strings.Join(words[i:end], " ")
		if !h.emit(stream.Event{Kind: stream.EventFragment, Text: chunk}) {
			return
		}
		if !t.pause(ctx, h) {
			return
		}
	}
	h.emit(stream.Event{Kind: stream.EventEnd})
}

// generate assembles a large reply from random canned sentences and splits
// it into words for chunking.
func (t *CannedTransport) generate() []string {
	var b strings.Builder
	for i := 0; i < cannedSentenceCount; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(cannedSentences[rand.Intn(len(cannedSentences))])
	}
	return strings.Fields(b.String())
}

// pause waits out the configured inter-chunk delay. Returns false when the
// stream was closed or the context cancelled while waiting.
func (t *CannedTransport) pause(ctx context.Context, h *eventHandle) bool {
	if t.config.ChunkDelay <= 0 {
		return true
	}
	timer := time.NewTimer(t.config.ChunkDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		h.emit(stream.Event{Kind: stream.EventError, Err: ctx.Err()})
		return false
	case <-h.closed:
		return false
	}
}
