// Package anthropic provides an LLM client for the Anthropic Messages API
package anthropic

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
	defaultBaseURL   = "https://api.anthropic.com"
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 1024
)

// Client implements the LLM client for Anthropic
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new Anthropic client
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

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
	TopK        *int               `json:"top_k,omitempty"`
	Stop        []string           `json:"stop_sequences,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Message struct {
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	} `json:"message"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// buildRequest maps the uniform request onto the Messages API. System
// turns are carried in the top-level system field, never in messages.
func (c *Client) buildRequest(request *llm.ChatRequest) anthropicRequest {
	reqBody := anthropicRequest{
		Model:       request.Model,
		System:      request.SystemPrompt,
		MaxTokens:   defaultMaxTokens,
		Temperature: request.Params.Temperature,
		TopP:        request.Params.TopP,
		TopK:        request.Params.TopK,
		Stop:        request.Params.Stop,
	}
	if request.Params.MaxTokens > 0 {
		reqBody.MaxTokens = request.Params.MaxTokens
	}

	var systemParts []string
	if request.SystemPrompt != "" {
		systemParts = append(systemParts, request.SystemPrompt)
	}
	for _, msg := range request.Messages {
		role := llm.NormalizeRole(msg.Role)
		if role == "system" {
			systemParts = append(systemParts, msg.Content)
			continue
		}
		reqBody.Messages = append(reqBody.Messages, anthropicMessage{
			Role:    role,
			Content: msg.Content,
		})
	}
	reqBody.System = strings.Join(systemParts, "\n\n")

	return reqBody
}

// Chat sends a chat request to Anthropic
func (c *Client) Chat(ctx context.Context, request *llm.ChatRequest) (*llm.ChatResponse, error) {
	if c.apiKey == "" {
		return nil, &llm.MissingKeyError{Provider: "Anthropic"}
	}

	jsonBody, err := json.Marshal(c.buildRequest(request))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	logging.Debug("Anthropic request: model=%s body=%s", request.Model, string(jsonBody))

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/messages", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

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
		err := fmt.Errorf("Anthropic error (%d): %s", resp.StatusCode, string(body))
		logging.LogResponse(0, 0, err)
		return nil, err
	}

	var anthropicResp anthropicResponse
	if err := json.Unmarshal(body, &anthropicResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	var sb strings.Builder
	for _, block := range anthropicResp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return nil, fmt.Errorf("Anthropic returned no content")
	}

	response := &llm.ChatResponse{
		Content:    sb.String(),
		StopReason: anthropicResp.StopReason,
		Usage: llm.TokenUsage{
			InputTokens:  anthropicResp.Usage.InputTokens,
			OutputTokens: anthropicResp.Usage.OutputTokens,
		},
	}

	logging.LogResponseWithContent(response.Usage.InputTokens, response.Usage.OutputTokens, response.Content)
	return response, nil
}

// ChatStream sends a streaming chat request to Anthropic
func (c *Client) ChatStream(ctx context.Context, request *llm.ChatRequest, onEvent func(llm.StreamEvent) error) (*llm.ChatResponse, error) {
	if c.apiKey == "" {
		return nil, &llm.MissingKeyError{Provider: "Anthropic"}
	}

	reqBody := c.buildRequest(request)
	reqBody.Stream = true

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/messages", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("Anthropic error (%d): %s", resp.StatusCode, string(body))
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

		var event anthropicStreamEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return nil, fmt.Errorf("failed to parse stream event: %w", err)
		}

		switch event.Type {
		case "message_start":
			result.Usage.InputTokens = event.Message.Usage.InputTokens
		case "content_block_delta":
			if event.Delta.Text != "" {
				result.Content += event.Delta.Text
				if onEvent != nil {
					if err := onEvent(llm.StreamEvent{
						Type:         llm.StreamEventContentDelta,
						ContentDelta: event.Delta.Text,
					}); err != nil {
						return nil, err
					}
				}
			}
		case "message_delta":
			if event.Delta.StopReason != "" {
				result.StopReason = event.Delta.StopReason
			}
			if event.Usage.OutputTokens > 0 {
				result.Usage.OutputTokens = event.Usage.OutputTokens
				if onEvent != nil {
					if err := onEvent(llm.StreamEvent{Type: llm.StreamEventUsage, Usage: result.Usage}); err != nil {
						return nil, err
					}
				}
			}
		case "message_stop":
			// terminal event, nothing to merge
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("stream read error: %w", err)
	}

	logging.LogResponseWithContent(result.Usage.InputTokens, result.Usage.OutputTokens, result.Content)
	return result, nil
}

var _ llm.Client = (*Client)(nil)
var _ llm.StreamingClient = (*Client)(nil)
