package llm

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

const (
	mockFragmentRunes = 10
	mockEchoRunes     = 100
)

// MockClient streams a canned echo of the latest user turn. It needs no
// network and reports no token usage.
type MockClient struct{}

// NewMockClient returns a MockClient.
func NewMockClient() *MockClient {
	return &MockClient{}
}

var _ LLMClient = (*MockClient)(nil)

// CreateChatCompletionStream emits the echo reply in fragments of at most
// mockFragmentRunes runes, the last one carrying finish reason "stop".
func (m *MockClient) CreateChatCompletionStream(ctx context.Context, req *ChatCompletionRequest, callback StreamCallback) (*Usage, error) {
	reply := []rune(mockReply(req.Messages))
	id := "mock-" + strconv.FormatInt(time.Now().UnixNano(), 36)

	for start := 0; start < len(reply); start += mockFragmentRunes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := min(start+mockFragmentRunes, len(reply))
		choice := Choice{Delta: &ChatMessage{Role: "assistant", Content: string(reply[start:end])}}
		if end == len(reply) {
			choice.FinishReason = "stop"
		}
		chunk := &StreamChunk{ID: id, Object: "chat.completion.chunk", Model: req.Model, Choices: []Choice{choice}}
		if err := callback(chunk); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func mockReply(messages []ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != "user" || messages[i].Content == "" {
			continue
		}
		echo := []rune(messages[i].Content)
		quoted := string(echo)
		if len(echo) > mockEchoRunes {
			quoted = string(echo[:mockEchoRunes]) + "..."
		}
		return fmt.Sprintf("[MOCK] Received your message: %q. This is a mock response.", quoted)
	}
	return "[MOCK] This is a mock response from the LLM client."
}
