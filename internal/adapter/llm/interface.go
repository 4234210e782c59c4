// Package llm provides the completion provider adapter: an OpenAI-compatible
// streaming client, a mock client and the Completer the relay consumes.
package llm

import "context"

// LLMClient defines the streaming chat completion operation.
type LLMClient interface {
	// CreateChatCompletionStream sends a streaming chat completion request.
	// The callback is called for each chunk received, in order. An error
	// returned by the callback aborts the stream and is returned unchanged.
	CreateChatCompletionStream(ctx context.Context, req *ChatCompletionRequest, callback StreamCallback) (*Usage, error)
}

// StreamCallback is called for each chunk in a streaming response.
type StreamCallback func(chunk *StreamChunk) error

// Ensure Client implements LLMClient interface.
var _ LLMClient = (*Client)(nil)
