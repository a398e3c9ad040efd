// Package ollama provides an LLM client for a local Ollama server.
// Ollama needs no API key; model discovery goes through /api/tags.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/JawandS/omni-chat/internal/llm"
	"github.com/JawandS/omni-chat/internal/logging"
)

const defaultBaseURL = "http://localhost:11434"

// Client implements the LLM client for Ollama
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new Ollama client
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels fetches the names of locally installed models. An error
// means the Ollama server is not reachable.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Ollama error (%d): %s", resp.StatusCode, string(body))
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to parse tags response: %w", err)
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func (c *Client) buildRequest(request *llm.ChatRequest, stream bool) ollamaRequest {
	var messages []ollamaMessage
	if request.SystemPrompt != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: request.SystemPrompt})
	}
	for _, msg := range request.Messages {
		messages = append(messages, ollamaMessage{
			Role:    llm.NormalizeRole(msg.Role),
			Content: msg.Content,
		})
	}

	reqBody := ollamaRequest{
		Model:    request.Model,
		Messages: messages,
		Stream:   stream,
	}

	p := request.Params
	if p.Temperature != nil || p.TopP != nil || p.TopK != nil || p.MaxTokens > 0 || len(p.Stop) > 0 {
		reqBody.Options = &ollamaOptions{
			Temperature: p.Temperature,
			TopP:        p.TopP,
			TopK:        p.TopK,
			NumPredict:  p.MaxTokens,
			Stop:        p.Stop,
		}
	}
	return reqBody
}

// Chat sends a chat request to Ollama
func (c *Client) Chat(ctx context.Context, request *llm.ChatRequest) (*llm.ChatResponse, error) {
	jsonBody, err := json.Marshal(c.buildRequest(request, false))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	logging.Debug("Ollama request: %s", string(jsonBody))

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/chat", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

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
		err := fmt.Errorf("Ollama error (%d): %s", resp.StatusCode, string(body))
		logging.LogResponse(0, 0, err)
		return nil, err
	}

	var ollamaResp ollamaResponse
	if err := json.Unmarshal(body, &ollamaResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if ollamaResp.Message.Content == "" {
		return nil, fmt.Errorf("Ollama returned no content")
	}

	response := &llm.ChatResponse{
		Content:    ollamaResp.Message.Content,
		StopReason: ollamaResp.DoneReason,
		Usage: llm.TokenUsage{
			InputTokens:  ollamaResp.PromptEvalCount,
			OutputTokens: ollamaResp.EvalCount,
		},
	}

	logging.LogResponseWithContent(response.Usage.InputTokens, response.Usage.OutputTokens, response.Content)
	return response, nil
}

// ChatStream sends a streaming chat request to Ollama. The stream is
// newline-delimited JSON, one object per chunk, terminated by done=true.
func (c *Client) ChatStream(ctx context.Context, request *llm.ChatRequest, onEvent func(llm.StreamEvent) error) (*llm.ChatResponse, error) {
	jsonBody, err := json.Marshal(c.buildRequest(request, true))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/chat", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("Ollama error (%d): %s", resp.StatusCode, string(body))
		logging.LogResponse(0, 0, err)
		return nil, err
	}

	result := &llm.ChatResponse{}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk ollamaResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return nil, fmt.Errorf("failed to parse stream chunk: %w", err)
		}

		if chunk.Message.Content != "" {
			result.Content += chunk.Message.Content
			if onEvent != nil {
				if err := onEvent(llm.StreamEvent{
					Type:         llm.StreamEventContentDelta,
					ContentDelta: chunk.Message.Content,
				}); err != nil {
					return nil, err
				}
			}
		}

		if chunk.Done {
			result.StopReason = chunk.DoneReason
			result.Usage = llm.TokenUsage{
				InputTokens:  chunk.PromptEvalCount,
				OutputTokens: chunk.EvalCount,
			}
			if onEvent != nil && (result.Usage.InputTokens > 0 || result.Usage.OutputTokens > 0) {
				if err := onEvent(llm.StreamEvent{Type: llm.StreamEventUsage, Usage: result.Usage}); err != nil {
					return nil, err
				}
			}
			break
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
