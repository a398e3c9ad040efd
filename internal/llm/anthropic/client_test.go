package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/JawandS/omni-chat/internal/llm"
)

func TestChatMissingKey(t *testing.T) {
	client := NewClient("", "")
	_, err := client.Chat(context.Background(), &llm.ChatRequest{Model: "claude-sonnet-4-20250514"})
	var missing *llm.MissingKeyError
	if !errors.As(err, &missing) || missing.Provider != "Anthropic" {
		t.Fatalf("expected MissingKeyError for Anthropic, got %v", err)
	}
}

func TestBuildRequestSystemHandling(t *testing.T) {
	client := NewClient("a-key", "")
	req := client.buildRequest(&llm.ChatRequest{
		Model:        "claude-sonnet-4-20250514",
		SystemPrompt: "Be brief",
		Messages: []llm.Message{
			{Role: "system", Content: "Also be kind"},
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
		},
	})

	// System turns never appear in the messages array
	if len(req.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(req.Messages))
	}
	if req.System != "Be brief\n\nAlso be kind" {
		t.Fatalf("unexpected system field: %q", req.System)
	}
	if req.MaxTokens != defaultMaxTokens {
		t.Fatalf("expected default max_tokens %d, got %d", defaultMaxTokens, req.MaxTokens)
	}

	req = client.buildRequest(&llm.ChatRequest{
		Model:    "claude-sonnet-4-20250514",
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
		Params:   llm.Params{MaxTokens: 4096},
	})
	if req.MaxTokens != 4096 {
		t.Fatalf("expected max_tokens override, got %d", req.MaxTokens)
	}
}

func TestChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "a-key" {
			t.Fatalf("unexpected api key header: %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != "2023-06-01" {
			t.Fatalf("unexpected version header: %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		var req map[string]interface{}
		json.Unmarshal(body, &req)
		if req["max_tokens"].(float64) != 1024 {
			t.Fatalf("max_tokens must always be sent, got %v", req["max_tokens"])
		}
		w.Write([]byte(`{
			"content":[{"type":"text","text":"Hello from Claude"}],
			"stop_reason":"end_turn",
			"usage":{"input_tokens":10,"output_tokens":5}
		}`))
	}))
	defer server.Close()

	client := NewClient("a-key", server.URL)
	resp, err := client.Chat(context.Background(), &llm.ChatRequest{
		Model:    "claude-sonnet-4-20250514",
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if resp.Content != "Hello from Claude" || resp.StopReason != "end_turn" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Usage.InputTokens != 10 || resp.Usage.OutputTokens != 5 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
}

func TestChatEmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[],"stop_reason":"end_turn"}`))
	}))
	defer server.Close()

	client := NewClient("a-key", server.URL)
	_, err := client.Chat(context.Background(), &llm.ChatRequest{
		Model:    "claude-sonnet-4-20250514",
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil || !strings.Contains(err.Error(), "no content") {
		t.Fatalf("expected no-content error, got %v", err)
	}
}

func TestChatStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "event: message_start\n")
		io.WriteString(w, "data: {\"type\":\"message_start\",\"message\":{\"usage\":{\"input_tokens\":9}}}\n\n")
		io.WriteString(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"Hel\"}}\n\n")
		io.WriteString(w, "data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"lo\"}}\n\n")
		io.WriteString(w, "data: {\"type\":\"message_delta\",\"delta\":{\"stop_reason\":\"end_turn\"},\"usage\":{\"output_tokens\":2}}\n\n")
		io.WriteString(w, "data: {\"type\":\"message_stop\"}\n\n")
	}))
	defer server.Close()

	client := NewClient("a-key", server.URL)

	var deltas []string
	var usageEvents int
	resp, err := client.ChatStream(context.Background(), &llm.ChatRequest{
		Model:    "claude-sonnet-4-20250514",
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	}, func(event llm.StreamEvent) error {
		switch event.Type {
		case llm.StreamEventContentDelta:
			deltas = append(deltas, event.ContentDelta)
		case llm.StreamEventUsage:
			usageEvents++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	if resp.Content != "Hello" || resp.StopReason != "end_turn" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(deltas) != 2 {
		t.Fatalf("expected 2 deltas, got %v", deltas)
	}
	if usageEvents != 1 || resp.Usage.InputTokens != 9 || resp.Usage.OutputTokens != 2 {
		t.Fatalf("unexpected usage: %d events, %+v", usageEvents, resp.Usage)
	}
}

func TestChatAPIErrorIncludesStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"type":"overloaded_error"}}`))
	}))
	defer server.Close()

	client := NewClient("a-key", server.URL)
	_, err := client.Chat(context.Background(), &llm.ChatRequest{
		Model:    "claude-sonnet-4-20250514",
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil || !strings.Contains(err.Error(), "(503)") {
		t.Fatalf("expected status code in error, got %v", err)
	}
}
