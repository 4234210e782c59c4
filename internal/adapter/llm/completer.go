package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/xiaot623/gogo/chatrelay/internal/domain"
)

// Completer turns a conversation context into a stream of reply fragments.
type Completer struct {
	client LLMClient
	model  string
	logger *slog.Logger
}

// NewCompleter creates a Completer that asks client for model completions.
func NewCompleter(client LLMClient, model string, logger *slog.Logger) *Completer {
	return &Completer{
		client: client,
		model:  model,
		logger: logger,
	}
}

// Complete streams the reply to turns through onFragment, in emission order.
// Fragments may be empty strings. Provider-side failures come back as
// *domain.ProviderError; an error returned by onFragment comes back unchanged.
func (c *Completer) Complete(ctx context.Context, turns []domain.HistoryEntry, onFragment func(fragment string) error) error {
	if len(turns) == 0 {
		return &domain.ProviderError{Err: errors.New("completion context is empty")}
	}

	req := &ChatCompletionRequest{
		Model:    c.model,
		Messages: make([]ChatMessage, 0, len(turns)),
	}
	for _, turn := range turns {
		req.Messages = append(req.Messages, ChatMessage{Role: string(turn.Role), Content: turn.Content})
	}

	var handlerErr error
	fragments := 0
	startTime := time.Now()

	usage, err := c.client.CreateChatCompletionStream(ctx, req, func(chunk *StreamChunk) error {
		for _, choice := range chunk.Choices {
			if choice.Index != 0 || choice.Delta == nil {
				continue
			}
			fragments++
			if err := onFragment(choice.Delta.Content); err != nil {
				handlerErr = err
				return err
			}
		}
		return nil
	})
	if handlerErr != nil {
		return handlerErr
	}
	if err != nil {
		return &domain.ProviderError{Err: err}
	}

	attrs := []any{"model", c.model, "fragments", fragments, "latency_ms", time.Since(startTime).Milliseconds()}
	if usage != nil {
		attrs = append(attrs, "prompt_tokens", usage.PromptTokens, "completion_tokens", usage.CompletionTokens)
	}
	c.logger.DebugContext(ctx, "completion finished", attrs...)
	return nil
}
