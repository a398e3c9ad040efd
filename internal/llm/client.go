package llm

import (
	"context"
	"fmt"
)

// Client defines the interface for LLM providers
type Client interface {
	Chat(ctx context.Context, request *ChatRequest) (*ChatResponse, error)
}

// StreamingClient defines optional streaming support for LLM providers.
type StreamingClient interface {
	ChatStream(ctx context.Context, request *ChatRequest, onEvent func(StreamEvent) error) (*ChatResponse, error)
}

// ChatRequest represents a chat completion request
type ChatRequest struct {
	Model        string
	Messages     []Message
	SystemPrompt string
	Params       Params
}

// Message represents a chat message
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// Params carries optional generation parameters. Nil pointers and zero
// values mean "use the provider default" and are omitted from vendor
// requests.
type Params struct {
	Temperature      *float64
	TopP             *float64
	TopK             *int
	MaxTokens        int
	PresencePenalty  *float64
	FrequencyPenalty *float64
	Seed             *int
	Stop             []string
	ResponseFormat   string // "text" or "json_object"
	ReasoningEffort  string // "low", "medium", "high" (reasoning models only)
	WebSearch        bool   // Gemini grounding via Google Search
}

// ChatResponse represents a chat completion response
type ChatResponse struct {
	Content    string
	Usage      TokenUsage
	StopReason string
}

// StreamEventType is the type of a streaming event.
type StreamEventType string

const (
	StreamEventContentDelta StreamEventType = "content_delta"
	StreamEventUsage        StreamEventType = "usage"
)

// StreamEvent is emitted during a streaming LLM response.
type StreamEvent struct {
	Type StreamEventType

	ContentDelta string
	Usage        TokenUsage
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// MissingKeyError indicates the API key for a provider is absent. Keys
// that are empty or still carry a placeholder value count as absent.
type MissingKeyError struct {
	Provider string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("%s API key not set", e.Provider)
}

// NormalizeRole maps arbitrary role strings onto the three roles the
// vendor APIs understand. Anything unrecognised becomes a user turn.
func NormalizeRole(role string) string {
	switch role {
	case "user", "assistant", "system":
		return role
	default:
		return "user"
	}
}
