// Package chat normalizes the vendor adapters into the uniform
// reply/stream contract: one Reply shape for single-shot generation and
// one StreamChunk shape for token streams, with missing-key and vendor
// failures mapped onto dedicated fields instead of transport errors.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/JawandS/omni-chat/internal/llm"
	"github.com/JawandS/omni-chat/internal/llm/anthropic"
	"github.com/JawandS/omni-chat/internal/llm/gemini"
	"github.com/JawandS/omni-chat/internal/llm/ollama"
	"github.com/JawandS/omni-chat/internal/llm/openai"
	"github.com/JawandS/omni-chat/internal/llm/retry"
	"github.com/JawandS/omni-chat/internal/logging"
	"github.com/JawandS/omni-chat/internal/settings"
)

// TitleMaxRunes caps generated chat titles
const TitleMaxRunes = 48

// Reply is the uniform outcome of a single-shot generation
type Reply struct {
	Content       string `json:"reply,omitempty"`
	Warning       string `json:"warning,omitempty"`
	Err           string `json:"error,omitempty"`
	MissingKeyFor string `json:"missing_key_for,omitempty"`
}

// StreamChunk is one unit of a streamed generation. A stream is zero
// or more token chunks followed by either normal completion or exactly
// one chunk with Err set.
type StreamChunk struct {
	Token         string `json:"token,omitempty"`
	Warning       string `json:"warning,omitempty"`
	Err           string `json:"error,omitempty"`
	MissingKeyFor string `json:"missing_key_for,omitempty"`
}

var providerDisplayNames = map[string]string{
	"openai":    "OpenAI",
	"gemini":    "Gemini",
	"anthropic": "Anthropic",
	"ollama":    "Ollama",
}

// DisplayName returns the user-facing provider name
func DisplayName(provider string) string {
	if name, ok := providerDisplayNames[strings.ToLower(provider)]; ok {
		return name
	}
	return provider
}

// Service resolves providers and runs generations
type Service struct {
	settings  *settings.Manager
	ollamaURL string
}

// NewService creates a chat service. ollamaURL may be empty to use the
// default local address.
func NewService(sm *settings.Manager, ollamaURL string) *Service {
	return &Service{settings: sm, ollamaURL: ollamaURL}
}

// clientFor resolves the adapter for a provider id. Key resolution
// happens here so a key saved through the settings API is picked up on
// the next request.
func (s *Service) clientFor(provider string) (llm.Client, error) {
	switch strings.ToLower(provider) {
	case "openai":
		return retry.New(openai.NewClient(s.settings.APIKey("openai"), "")), nil
	case "gemini":
		return retry.New(gemini.NewClient(s.settings.APIKey("gemini"), "")), nil
	case "anthropic":
		return retry.New(anthropic.NewClient(s.settings.APIKey("anthropic"), "")), nil
	case "ollama":
		return retry.New(ollama.NewClient(s.ollamaURL)), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}

func buildRequest(model, message string, history []llm.Message, params llm.Params) *llm.ChatRequest {
	messages := make([]llm.Message, 0, len(history)+1)
	for _, msg := range history {
		messages = append(messages, llm.Message{
			Role:    llm.NormalizeRole(msg.Role),
			Content: msg.Content,
		})
	}
	messages = append(messages, llm.Message{Role: "user", Content: message})

	return &llm.ChatRequest{
		Model:    model,
		Messages: messages,
		Params:   params,
	}
}

// paramWarning flags parameters that the chosen provider silently
// ignores.
func paramWarning(provider string, params llm.Params) string {
	if params.WebSearch && strings.ToLower(provider) != "gemini" {
		return fmt.Sprintf("web search is not supported by %s and was ignored", DisplayName(provider))
	}
	return ""
}

func (s *Service) failure(provider string, err error) Reply {
	var missingKey *llm.MissingKeyError
	if errors.As(err, &missingKey) {
		return Reply{
			Err:           missingKey.Error(),
			MissingKeyFor: strings.ToLower(provider),
		}
	}
	return Reply{Err: err.Error()}
}

// GenerateReply runs a single-shot generation
func (s *Service) GenerateReply(ctx context.Context, provider, model, message string, history []llm.Message, params llm.Params) Reply {
	if strings.TrimSpace(provider) == "" || strings.TrimSpace(model) == "" {
		return Reply{Err: "provider and model are required"}
	}
	if strings.TrimSpace(message) == "" {
		return Reply{Err: "message is required"}
	}

	client, err := s.clientFor(provider)
	if err != nil {
		return Reply{Err: err.Error()}
	}

	request := buildRequest(model, message, history, params)
	logging.LogRequestWithContent(provider, model, len(request.Messages), message)

	response, err := client.Chat(ctx, request)
	if err != nil {
		return s.failure(provider, err)
	}
	if strings.TrimSpace(response.Content) == "" {
		return Reply{Err: fmt.Sprintf("%s returned no content", DisplayName(provider))}
	}

	return Reply{
		Content: response.Content,
		Warning: paramWarning(provider, params),
	}
}

// GenerateReplyStream runs a streamed generation, delivering chunks
// through onChunk. The accumulated content is returned so callers can
// persist whatever reached the client, including partial output from a
// stream that died mid-way.
func (s *Service) GenerateReplyStream(ctx context.Context, provider, model, message string, history []llm.Message, params llm.Params, onChunk func(StreamChunk) error) string {
	emitError := func(r Reply) {
		onChunk(StreamChunk{Err: r.Err, MissingKeyFor: r.MissingKeyFor})
	}

	if strings.TrimSpace(provider) == "" || strings.TrimSpace(model) == "" {
		emitError(Reply{Err: "provider and model are required"})
		return ""
	}
	if strings.TrimSpace(message) == "" {
		emitError(Reply{Err: "message is required"})
		return ""
	}

	client, err := s.clientFor(provider)
	if err != nil {
		emitError(Reply{Err: err.Error()})
		return ""
	}

	streamer, ok := client.(llm.StreamingClient)
	if !ok {
		// No streaming support: surface the full reply as one chunk.
		reply := s.GenerateReply(ctx, provider, model, message, history, params)
		if reply.Err != "" {
			emitError(reply)
			return ""
		}
		onChunk(StreamChunk{Token: reply.Content, Warning: reply.Warning})
		return reply.Content
	}

	request := buildRequest(model, message, history, params)
	logging.LogRequestWithContent(provider, model, len(request.Messages), message)

	var content strings.Builder
	warning := paramWarning(provider, params)

	_, err = streamer.ChatStream(ctx, request, func(event llm.StreamEvent) error {
		if event.Type != llm.StreamEventContentDelta || event.ContentDelta == "" {
			return nil
		}
		chunk := StreamChunk{Token: event.ContentDelta}
		if content.Len() == 0 {
			chunk.Warning = warning
		}
		content.WriteString(event.ContentDelta)
		return onChunk(chunk)
	})
	if err != nil {
		emitError(s.failure(provider, err))
		return content.String()
	}
	if content.Len() == 0 {
		emitError(Reply{Err: fmt.Sprintf("%s returned no content", DisplayName(provider))})
		return ""
	}
	return content.String()
}

// GenerateTitle derives a chat title from its first message, truncated
// at TitleMaxRunes with an ellipsis.
func GenerateTitle(message string) string {
	title := strings.TrimSpace(message)
	title = strings.ReplaceAll(title, "\n", " ")
	if title == "" {
		return "New Chat"
	}
	if utf8.RuneCountInString(title) <= TitleMaxRunes {
		return title
	}
	runes := []rune(title)
	return strings.TrimSpace(string(runes[:TitleMaxRunes])) + "…"
}
