package interfaces

import (
	"context"
)

// LLMMode represents the operational mode of the LLM service
type LLMMode string

const (
	// LLMModeCloud indicates the service uses cloud-based LLM APIs
	LLMModeCloud LLMMode = "cloud"

	// LLMModeMock indicates a deterministic in-process implementation (tests)
	LLMModeMock LLMMode = "mock"
)

// Message represents a single message in a chat conversation
type Message struct {
	// Role identifies the message sender: "user", "assistant", or "system"
	Role string

	// Content contains the text content of the message
	Content string
}

// Completion is a finished chat generation. Truncated is set when the
// provider stopped on its output-token limit rather than a natural stop;
// the reflection evaluator treats truncation as a revise-worthy defect.
type Completion struct {
	Text      string
	Truncated bool
}

// LLMService defines the interface for language model operations including
// embeddings generation and chat completions. Implementations use cloud
// APIs (Anthropic, Gemini); tests substitute deterministic fakes.
type LLMService interface {
	// Embed generates a fixed-length embedding vector for the given text.
	// Implementations that cannot embed (chat-only providers) return an
	// error; callers route embedding work through an embed-capable service.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Chat generates a completion response based on the conversation history.
	// The messages slice should contain the full conversation context including
	// system prompts, user messages, and previous assistant responses.
	Chat(ctx context.Context, messages []Message) (*Completion, error)

	// ChatStream generates a completion, invoking onDelta with each text
	// fragment in order as it arrives. The accumulated completion is
	// returned once the stream ends. A non-nil error from onDelta aborts
	// the stream.
	ChatStream(ctx context.Context, messages []Message, onDelta func(string) error) (*Completion, error)

	// HealthCheck verifies the LLM service is operational and can handle
	// requests with a lightweight connectivity probe.
	HealthCheck(ctx context.Context) error

	// GetMode returns the current operational mode of the LLM service.
	GetMode() LLMMode

	// Close releases resources and performs cleanup operations.
	Close() error
}
