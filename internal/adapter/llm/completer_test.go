package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/chatrelay/internal/config"
	"github.com/xiaot623/gogo/chatrelay/internal/domain"
	"github.com/xiaot623/gogo/chatrelay/internal/logging"
)

// scriptedClient replays fixed chunks and then returns err.
type scriptedClient struct {
	chunks []*StreamChunk
	err    error
	got    *ChatCompletionRequest
}

func (s *scriptedClient) CreateChatCompletionStream(ctx context.Context, req *ChatCompletionRequest, callback StreamCallback) (*Usage, error) {
	s.got = req
	for _, chunk := range s.chunks {
		if err := callback(chunk); err != nil {
			return nil, err
		}
	}
	return &Usage{TotalTokens: 1}, s.err
}

func deltaChunk(index int, content string) *StreamChunk {
	return &StreamChunk{Choices: []Choice{{Index: index, Delta: &ChatMessage{Role: "assistant", Content: content}}}}
}

func TestCompleterRelaysFragmentsInOrder(t *testing.T) {
	client := &scriptedClient{chunks: []*StreamChunk{
		deltaChunk(0, "I'm"),
		{Choices: nil},
		deltaChunk(0, ""),
		deltaChunk(1, "ignored alternative"),
		deltaChunk(0, " good"),
	}}
	completer := NewCompleter(client, "mixtral-8x7b-32768", logging.Discard())

	var got []string
	err := completer.Complete(context.Background(), []domain.HistoryEntry{{Role: domain.RoleUser, Content: "how are you"}}, func(fragment string) error {
		got = append(got, fragment)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"I'm", "", " good"}, got)

	require.NotNil(t, client.got)
	assert.Equal(t, "mixtral-8x7b-32768", client.got.Model)
	assert.Equal(t, []ChatMessage{{Role: "user", Content: "how are you"}}, client.got.Messages)
}

func TestCompleterWrapsProviderFailure(t *testing.T) {
	boom := errors.New("connection reset by peer")
	client := &scriptedClient{chunks: []*StreamChunk{deltaChunk(0, "Hel")}, err: boom}
	completer := NewCompleter(client, "m", logging.Discard())

	var got []string
	err := completer.Complete(context.Background(), []domain.HistoryEntry{{Role: domain.RoleUser, Content: "hi"}}, func(fragment string) error {
		got = append(got, fragment)
		return nil
	})
	require.Error(t, err)
	assert.True(t, domain.IsProviderError(err))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"Hel"}, got)
}

func TestCompleterReturnsHandlerErrorUnwrapped(t *testing.T) {
	sendFailed := errors.New("write: broken pipe")
	client := &scriptedClient{chunks: []*StreamChunk{deltaChunk(0, "a"), deltaChunk(0, "b")}}
	completer := NewCompleter(client, "m", logging.Discard())

	err := completer.Complete(context.Background(), []domain.HistoryEntry{{Role: domain.RoleUser, Content: "hi"}}, func(string) error {
		return sendFailed
	})
	assert.Same(t, sendFailed, err)
	assert.False(t, domain.IsProviderError(err))
}

func TestCompleterRejectsEmptyContext(t *testing.T) {
	completer := NewCompleter(&scriptedClient{}, "m", logging.Discard())

	err := completer.Complete(context.Background(), nil, func(string) error { return nil })
	assert.True(t, domain.IsProviderError(err))
}

func TestMockClientStreamsEcho(t *testing.T) {
	completer := NewCompleter(NewMockClient(), "mock", logging.Discard())

	var b strings.Builder
	fragments := 0
	err := completer.Complete(context.Background(), []domain.HistoryEntry{{Role: domain.RoleUser, Content: "héllo wörld"}}, func(fragment string) error {
		fragments++
		b.WriteString(fragment)
		return nil
	})
	require.NoError(t, err)
	assert.Greater(t, fragments, 1)
	assert.Equal(t, `[MOCK] Received your message: "héllo wörld". This is a mock response.`, b.String())
}

func TestMockClientFragmentsAreRuneAligned(t *testing.T) {
	long := strings.Repeat("ü", 150)
	req := &ChatCompletionRequest{Model: "mock", Messages: []ChatMessage{{Role: "user", Content: long}}}

	var chunks []*StreamChunk
	usage, err := NewMockClient().CreateChatCompletionStream(context.Background(), req, func(chunk *StreamChunk) error {
		chunks = append(chunks, chunk)
		return nil
	})
	require.NoError(t, err)
	assert.Nil(t, usage)
	require.NotEmpty(t, chunks)

	var b strings.Builder
	for i, chunk := range chunks {
		content := chunk.Choices[0].Delta.Content
		assert.True(t, utf8.ValidString(content), "fragment %d is not valid UTF-8", i)
		assert.LessOrEqual(t, utf8.RuneCountInString(content), 10)
		if i == len(chunks)-1 {
			assert.Equal(t, "stop", chunk.Choices[0].FinishReason)
		} else {
			assert.Empty(t, chunk.Choices[0].FinishReason)
		}
		b.WriteString(content)
	}
	assert.Equal(t, fmt.Sprintf("[MOCK] Received your message: %q. This is a mock response.", strings.Repeat("ü", 100)+"..."), b.String())
}

func TestMockClientHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMockClient().CreateChatCompletionStream(ctx, &ChatCompletionRequest{}, func(*StreamChunk) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewLLMClientSelectsByMode(t *testing.T) {
	cfg := config.Load()

	cfg.Mode = "mock"
	_, isMock := NewLLMClient(cfg, logging.Discard()).(*MockClient)
	assert.True(t, isMock)

	cfg.Mode = ""
	_, isReal := NewLLMClient(cfg, logging.Discard()).(*Client)
	assert.True(t, isReal)
}
