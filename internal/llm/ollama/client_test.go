package ollama

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/JawandS/omni-chat/internal/llm"
)

func TestListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"models":[{"name":"llama3:8b"},{"name":"mistral:latest"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	models, err := client.ListModels(context.Background())
	if err != nil {
		t.Fatalf("list models failed: %v", err)
	}
	if len(models) != 2 || models[0] != "llama3:8b" || models[1] != "mistral:latest" {
		t.Fatalf("unexpected models: %v", models)
	}
}

func TestListModelsUnreachable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1")
	if _, err := client.ListModels(context.Background()); err == nil {
		t.Fatal("expected error for unreachable server")
	}
}

func TestChat(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &captured)
		w.Write([]byte(`{"message":{"content":"local reply"},"done":true,"done_reason":"stop","prompt_eval_count":6,"eval_count":3}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	temp := 0.2
	resp, err := client.Chat(context.Background(), &llm.ChatRequest{
		Model:        "llama3",
		SystemPrompt: "Be brief",
		Messages:     []llm.Message{{Role: "user", Content: "hi"}},
		Params:       llm.Params{Temperature: &temp, MaxTokens: 64},
	})
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if resp.Content != "local reply" || resp.StopReason != "stop" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Usage.InputTokens != 6 || resp.Usage.OutputTokens != 3 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}

	if captured["stream"] != false {
		t.Fatalf("expected stream:false, got %v", captured["stream"])
	}
	messages := captured["messages"].([]interface{})
	first := messages[0].(map[string]interface{})
	if first["role"] != "system" {
		t.Fatalf("expected system message first, got %v", first)
	}
	options := captured["options"].(map[string]interface{})
	if options["temperature"].(float64) != 0.2 || options["num_predict"].(float64) != 64 {
		t.Fatalf("options not forwarded: %v", options)
	}
}

func TestChatEmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"content":""},"done":true}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.Chat(context.Background(), &llm.ChatRequest{
		Model:    "llama3",
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil || !strings.Contains(err.Error(), "no content") {
		t.Fatalf("expected no-content error, got %v", err)
	}
}

func TestChatStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		io.WriteString(w, `{"message":{"content":"Hel"},"done":false}`+"\n")
		io.WriteString(w, `{"message":{"content":"lo"},"done":false}`+"\n")
		io.WriteString(w, `{"message":{"content":""},"done":true,"done_reason":"stop","prompt_eval_count":4,"eval_count":2}`+"\n")
	}))
	defer server.Close()

	client := NewClient(server.URL)

	var deltas []string
	var usageEvents int
	resp, err := client.ChatStream(context.Background(), &llm.ChatRequest{
		Model:    "llama3",
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
	if resp.Content != "Hello" || resp.StopReason != "stop" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(deltas) != 2 {
		t.Fatalf("expected 2 deltas, got %v", deltas)
	}
	if usageEvents != 1 || resp.Usage.InputTokens != 4 || resp.Usage.OutputTokens != 2 {
		t.Fatalf("unexpected usage: %d events, %+v", usageEvents, resp.Usage)
	}
}

func TestChatServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.Chat(context.Background(), &llm.ChatRequest{
		Model:    "nope",
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil || !strings.Contains(err.Error(), "(404)") {
		t.Fatalf("expected status code in error, got %v", err)
	}
}
