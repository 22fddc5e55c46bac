// File: internal/services/ai/openai_transport.go
package ai

import (
	"context"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/evanmb/go-converse/internal/services/stream"
)

// OpenAITransport streams assistant replies from an OpenAI-compatible chat
// completion endpoint.
type OpenAITransport struct {
	config *Config
	client *openai.Client
	logger Logger
}

func NewOpenAITransport(config *Config, logger Logger) (*OpenAITransport, error) {
	if config.APIKey == "" {
		return nil, NewConfigError("API key is required for the OpenAI transport")
	}
	if err := config.Validate(); err != nil {
		return nil, NewConfigError(err.Error())
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAITransport{
		config: config,
		client: openai.NewClientWithConfig(clientConfig),
		logger: logger,
	}, nil
}

func (t *OpenAITransport) OpenStream(ctx context.Context, prompt string) (stream.Handle, error) {
	completion, err := t.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model: t.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: t.config.Temperature,
		TopP:        t.config.TopP,
	})
	if err != nil {
		return nil, NewProviderError("open_stream", "failed to open completion stream", err)
	}

	h := newEventHandle(func() { _ = completion.Close() })
	go t.pump(completion, h)
	return h, nil
}

// pump converts completion deltas into transport events. Deltas are
// coalesced into whitespace-delimited words so the session's space-joined
// accumulation reproduces readable text.
func (t *OpenAITransport) pump(completion *openai.ChatCompletionStream, h *eventHandle) {
	defer h.finish()

	if !h.emit(stream.Event{Kind: stream.EventOpened}) {
		return
	}

	var buf wordBuffer
	for {
		response, err := completion.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if rest := buf.flush(); rest != "" {
					if !h.emit(stream.Event{Kind: stream.EventFragment, Text: rest}) {
						return
					}
				}
				h.emit(stream.Event{Kind: stream.EventEnd})
				return
			}
			h.emit(stream.Event{
				Kind: stream.EventError,
				Err:  NewStreamingError("recv", "completion stream receive failed", err),
			})
			return
		}

		if len(response.Choices) == 0 {
			continue
		}
		if chunk := buf.add(response.Choices[0].Delta.Content); chunk != "" {
			if !h.emit(stream.Event{Kind: stream.EventFragment, Text: chunk}) {
				return
			}
		}
	}
}
