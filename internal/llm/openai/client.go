// Package openai provides an LLM client for the OpenAI API
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JawandS/omni-chat/internal/llm"
	"github.com/JawandS/omni-chat/internal/logging"
)

const (
	defaultBaseURL         = "https://api.openai.com/v1"
	defaultReasoningEffort = "low"
)

// Client implements the LLM client for OpenAI. Reasoning models (the
// o3 family) are routed through the Responses API, everything else
// through Chat Completions.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new OpenAI client
func NewClient(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}
}

// IsReasoningModel reports whether a model name belongs to the o3
// family, which only accepts the Responses API.
func IsReasoningModel(model string) bool {
	return strings.HasPrefix(strings.ToLower(model), "o3")
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model            string          `json:"model"`
	Messages         []chatMessage   `json:"messages"`
	Temperature      *float64        `json:"temperature,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	MaxTokens        int             `json:"max_tokens,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	Seed             *int            `json:"seed,omitempty"`
	Stop             []string        `json:"stop,omitempty"`
	ResponseFormat   *responseFormat `json:"response_format,omitempty"`
	Stream           bool            `json:"stream,omitempty"`
	StreamOptions    *streamOptions  `json:"stream_options,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type chatStreamResponse struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// responsesRequest is the Responses API request used for o3 models.
type responsesRequest struct {
	Model     string          `json:"model"`
	Input     []chatMessage   `json:"input"`
	Reasoning reasoningConfig `json:"reasoning"`
}

type reasoningConfig struct {
	Effort string `json:"effort"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (c *Client) buildMessages(request *llm.ChatRequest) []chatMessage {
	var messages []chatMessage
	if request.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: request.SystemPrompt})
	}
	for _, msg := range request.Messages {
		messages = append(messages, chatMessage{
			Role:    llm.NormalizeRole(msg.Role),
			Content: msg.Content,
		})
	}
	return messages
}

func (c *Client) buildChatRequest(request *llm.ChatRequest) chatRequest {
	reqBody := chatRequest{
		Model:            request.Model,
		Messages:         c.buildMessages(request),
		Temperature:      request.Params.Temperature,
		TopP:             request.Params.TopP,
		MaxTokens:        request.Params.MaxTokens,
		PresencePenalty:  request.Params.PresencePenalty,
		FrequencyPenalty: request.Params.FrequencyPenalty,
		Seed:             request.Params.Seed,
		Stop:             request.Params.Stop,
	}
	if request.Params.ResponseFormat != "" {
		reqBody.ResponseFormat = &responseFormat{Type: request.Params.ResponseFormat}
	}
	return reqBody
}

// Chat sends a chat request to OpenAI
func (c *Client) Chat(ctx context.Context, request *llm.ChatRequest) (*llm.ChatResponse, error) {
	if c.apiKey == "" {
		return nil, &llm.MissingKeyError{Provider: "OpenAI"}
	}

	if IsReasoningModel(request.Model) {
		return c.chatResponses(ctx, request)
	}

	body, err := c.post(ctx, "/chat/completions", c.buildChatRequest(request))
	if err != nil {
		return nil, err
	}

	var openaiResp chatResponse
	if err := json.Unmarshal(body, &openaiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(openaiResp.Choices) == 0 {
		return nil, fmt.Errorf("OpenAI returned no content")
	}

	choice := openaiResp.Choices[0]
	response := &llm.ChatResponse{
		Content:    choice.Message.Content,
		StopReason: choice.FinishReason,
		Usage: llm.TokenUsage{
			InputTokens:  openaiResp.Usage.PromptTokens,
			OutputTokens: openaiResp.Usage.CompletionTokens,
		},
	}

	logging.LogResponseWithContent(response.Usage.InputTokens, response.Usage.OutputTokens, response.Content)
	return response, nil
}

// chatResponses handles o3 models via the Responses API. The effort
// defaults to low when the request does not specify one.
func (c *Client) chatResponses(ctx context.Context, request *llm.ChatRequest) (*llm.ChatResponse, error) {
	effort := request.Params.ReasoningEffort
	if effort == "" {
		effort = defaultReasoningEffort
	}

	reqBody := responsesRequest{
		Model:     request.Model,
		Input:     c.buildMessages(request),
		Reasoning: reasoningConfig{Effort: effort},
	}

	body, err := c.post(ctx, "/responses", reqBody)
	if err != nil {
		return nil, err
	}

	var resp responsesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	var sb strings.Builder
	for _, item := range resp.Output {
		if item.Type != "message" {
			continue
		}
		for _, content := range item.Content {
			if content.Type == "output_text" {
				sb.WriteString(content.Text)
			}
		}
	}

	if sb.Len() == 0 {
		return nil, fmt.Errorf("OpenAI returned no content")
	}

	response := &llm.ChatResponse{
		Content: sb.String(),
		Usage: llm.TokenUsage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}

	logging.LogResponseWithContent(response.Usage.InputTokens, response.Usage.OutputTokens, response.Content)
	return response, nil
}

// ChatStream sends a streaming chat request to OpenAI. Reasoning models
// do not stream; their full reply is emitted as a single content delta.
func (c *Client) ChatStream(ctx context.Context, request *llm.ChatRequest, onEvent func(llm.StreamEvent) error) (*llm.ChatResponse, error) {
	if c.apiKey == "" {
		return nil, &llm.MissingKeyError{Provider: "OpenAI"}
	}

	if IsReasoningModel(request.Model) {
		response, err := c.chatResponses(ctx, request)
		if err != nil {
			return nil, err
		}
		if onEvent != nil {
			if err := onEvent(llm.StreamEvent{
				Type:         llm.StreamEventContentDelta,
				ContentDelta: response.Content,
			}); err != nil {
				return nil, err
			}
		}
		return response, nil
	}

	reqBody := c.buildChatRequest(request)
	reqBody.Stream = true
	reqBody.StreamOptions = &streamOptions{IncludeUsage: true}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("OpenAI error (%d): %s", resp.StatusCode, string(body))
		logging.LogResponse(0, 0, err)
		return nil, err
	}

	result := &llm.ChatResponse{}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		if payload == "[DONE]" {
			break
		}

		var chunk chatStreamResponse
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return nil, fmt.Errorf("failed to parse stream chunk: %w", err)
		}

		if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
			result.Usage = llm.TokenUsage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
			}
			if onEvent != nil {
				if err := onEvent(llm.StreamEvent{Type: llm.StreamEventUsage, Usage: result.Usage}); err != nil {
					return nil, err
				}
			}
		}

		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				result.Content += choice.Delta.Content
				if onEvent != nil {
					if err := onEvent(llm.StreamEvent{
						Type:         llm.StreamEventContentDelta,
						ContentDelta: choice.Delta.Content,
					}); err != nil {
						return nil, err
					}
				}
			}
			if choice.FinishReason != "" {
				result.StopReason = choice.FinishReason
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("stream read error: %w", err)
	}

	logging.LogResponseWithContent(result.Usage.InputTokens, result.Usage.OutputTokens, result.Content)
	return result, nil
}

func (c *Client) post(ctx context.Context, path string, reqBody interface{}) ([]byte, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	logging.Debug("OpenAI request: %s %s", path, string(jsonBody))

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("OpenAI error (%d): %s", resp.StatusCode, string(body))
		logging.LogResponse(0, 0, err)
		return nil, err
	}

	return body, nil
}

var _ llm.Client = (*Client)(nil)
var _ llm.StreamingClient = (*Client)(nil)
