// Package gemini provides an LLM client for the Google Generative
// Language API (native v1beta surface, key passed as a query parameter).
package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JawandS/omni-chat/internal/llm"
	"github.com/JawandS/omni-chat/internal/logging"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Client implements the LLM client for Google Gemini
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new Gemini client
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

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	TopK            *int     `json:"topK,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type geminiTool struct {
	GoogleSearch struct{} `json:"google_search"`
}

type geminiRequest struct {
	Contents         []geminiContent   `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
	Tools            []geminiTool      `json:"tools,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// buildContents maps the uniform history onto Gemini's contents array.
// The native API has no system role in contents, so system turns fold
// in as user turns, and assistant maps to "model".
func buildContents(request *llm.ChatRequest) []geminiContent {
	var contents []geminiContent
	if request.SystemPrompt != "" {
		contents = append(contents, geminiContent{
			Role:  "user",
			Parts: []geminiPart{{Text: request.SystemPrompt}},
		})
	}
	for _, msg := range request.Messages {
		role := "user"
		if llm.NormalizeRole(msg.Role) == "assistant" {
			role = "model"
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: msg.Content}},
		})
	}
	return contents
}

func buildRequest(request *llm.ChatRequest) geminiRequest {
	reqBody := geminiRequest{Contents: buildContents(request)}

	p := request.Params
	if p.Temperature != nil || p.TopP != nil || p.TopK != nil || p.MaxTokens > 0 {
		reqBody.GenerationConfig = &generationConfig{
			Temperature:     p.Temperature,
			TopP:            p.TopP,
			TopK:            p.TopK,
			MaxOutputTokens: p.MaxTokens,
		}
	}
	if p.WebSearch {
		reqBody.Tools = []geminiTool{{}}
	}
	return reqBody
}

func (c *Client) endpoint(model, method string, stream bool) string {
	u := fmt.Sprintf("%s/models/%s:%s", c.baseURL, url.PathEscape(model), method)
	q := url.Values{"key": {c.apiKey}}
	if stream {
		q.Set("alt", "sse")
	}
	return u + "?" + q.Encode()
}

// Chat sends a chat request to Gemini
func (c *Client) Chat(ctx context.Context, request *llm.ChatRequest) (*llm.ChatResponse, error) {
	if c.apiKey == "" {
		return nil, &llm.MissingKeyError{Provider: "Gemini"}
	}

	jsonBody, err := json.Marshal(buildRequest(request))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	logging.Debug("Gemini request: model=%s body=%s", request.Model, string(jsonBody))

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.endpoint(request.Model, "generateContent", false), bytes.NewReader(jsonBody))
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
		err := fmt.Errorf("Gemini error (%d): %s", resp.StatusCode, string(body))
		logging.LogResponse(0, 0, err)
		return nil, err
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(geminiResp.Candidates) == 0 {
		return nil, fmt.Errorf("Gemini returned no content")
	}

	candidate := geminiResp.Candidates[0]
	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		sb.WriteString(part.Text)
	}
	if sb.Len() == 0 {
		return nil, fmt.Errorf("Gemini returned no content")
	}

	response := &llm.ChatResponse{
		Content:    sb.String(),
		StopReason: candidate.FinishReason,
		Usage: llm.TokenUsage{
			InputTokens:  geminiResp.UsageMetadata.PromptTokenCount,
			OutputTokens: geminiResp.UsageMetadata.CandidatesTokenCount,
		},
	}

	logging.LogResponseWithContent(response.Usage.InputTokens, response.Usage.OutputTokens, response.Content)
	return response, nil
}

// ChatStream sends a streaming chat request to Gemini via
// streamGenerateContent with SSE framing.
func (c *Client) ChatStream(ctx context.Context, request *llm.ChatRequest, onEvent func(llm.StreamEvent) error) (*llm.ChatResponse, error) {
	if c.apiKey == "" {
		return nil, &llm.MissingKeyError{Provider: "Gemini"}
	}

	jsonBody, err := json.Marshal(buildRequest(request))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.endpoint(request.Model, "streamGenerateContent", true), bytes.NewReader(jsonBody))
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
		err := fmt.Errorf("Gemini error (%d): %s", resp.StatusCode, string(body))
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

		var chunk geminiResponse
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return nil, fmt.Errorf("failed to parse stream chunk: %w", err)
		}

		if chunk.UsageMetadata.PromptTokenCount > 0 || chunk.UsageMetadata.CandidatesTokenCount > 0 {
			result.Usage = llm.TokenUsage{
				InputTokens:  chunk.UsageMetadata.PromptTokenCount,
				OutputTokens: chunk.UsageMetadata.CandidatesTokenCount,
			}
		}

		for _, candidate := range chunk.Candidates {
			for _, part := range candidate.Content.Parts {
				if part.Text == "" {
					continue
				}
				result.Content += part.Text
				if onEvent != nil {
					if err := onEvent(llm.StreamEvent{
						Type:         llm.StreamEventContentDelta,
						ContentDelta: part.Text,
					}); err != nil {
						return nil, err
					}
				}
			}
			if candidate.FinishReason != "" {
				result.StopReason = candidate.FinishReason
			}
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
