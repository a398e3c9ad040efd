package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/JawandS/omni-chat/internal/llm"
	"github.com/JawandS/omni-chat/internal/settings"
)

func newTestService(t *testing.T, ollamaURL string) *Service {
	t.Helper()
	// Keep ambient keys out of the key-resolution path
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	return NewService(settings.NewManager(t.TempDir()), ollamaURL)
}

func TestGenerateTitle(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "New Chat"},
		{"Hello world", "Hello world"},
		{"line one\nline two", "line one line two"},
		{strings.Repeat("a", 48), strings.Repeat("a", 48)},
		{strings.Repeat("a", 60), strings.Repeat("a", 48) + "…"},
	}
	for _, tc := range cases {
		if got := GenerateTitle(tc.in); got != tc.want {
			t.Fatalf("GenerateTitle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestGenerateReplyValidation(t *testing.T) {
	svc := newTestService(t, "")

	reply := svc.GenerateReply(context.Background(), "", "gpt-4o", "hi", nil, llm.Params{})
	if reply.Err != "provider and model are required" {
		t.Fatalf("expected provider validation error, got %q", reply.Err)
	}

	reply = svc.GenerateReply(context.Background(), "openai", "gpt-4o", "   ", nil, llm.Params{})
	if reply.Err != "message is required" {
		t.Fatalf("expected message validation error, got %q", reply.Err)
	}

	reply = svc.GenerateReply(context.Background(), "grok", "grok-1", "hi", nil, llm.Params{})
	if !strings.Contains(reply.Err, "unknown provider") {
		t.Fatalf("expected unknown provider error, got %q", reply.Err)
	}
}

func TestGenerateReplyMissingKey(t *testing.T) {
	svc := newTestService(t, "")

	reply := svc.GenerateReply(context.Background(), "openai", "gpt-4o", "hi", nil, llm.Params{})
	if reply.MissingKeyFor != "openai" {
		t.Fatalf("expected missing_key_for=openai, got %q", reply.MissingKeyFor)
	}
	if reply.Err != "OpenAI API key not set" {
		t.Fatalf("unexpected error: %q", reply.Err)
	}
	if reply.Content != "" {
		t.Fatalf("expected empty content, got %q", reply.Content)
	}
}

func TestGenerateReplyStreamMissingKeyEmitsOneErrorChunk(t *testing.T) {
	svc := newTestService(t, "")

	var chunks []StreamChunk
	content := svc.GenerateReplyStream(context.Background(), "gemini", "gemini-2.0-flash", "hi", nil, llm.Params{}, func(chunk StreamChunk) error {
		chunks = append(chunks, chunk)
		return nil
	})

	if content != "" {
		t.Fatalf("expected no content, got %q", content)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected exactly one chunk, got %d", len(chunks))
	}
	if chunks[0].MissingKeyFor != "gemini" || chunks[0].Err == "" {
		t.Fatalf("expected missing-key error chunk, got %+v", chunks[0])
	}
}

func TestGenerateReplyThroughOllama(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":{"content":"echo reply"},"done":true,"done_reason":"stop","prompt_eval_count":3,"eval_count":2}`))
	}))
	defer server.Close()

	svc := newTestService(t, server.URL)

	reply := svc.GenerateReply(context.Background(), "ollama", "llama3", "hi", nil, llm.Params{})
	if reply.Err != "" {
		t.Fatalf("unexpected error: %q", reply.Err)
	}
	if reply.Content != "echo reply" {
		t.Fatalf("unexpected content: %q", reply.Content)
	}
}

func TestGenerateReplyStreamThroughOllama(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Write([]byte(`{"message":{"content":"Hel"},"done":false}` + "\n"))
		w.Write([]byte(`{"message":{"content":"lo"},"done":false}` + "\n"))
		w.Write([]byte(`{"message":{"content":""},"done":true,"done_reason":"stop","prompt_eval_count":3,"eval_count":2}` + "\n"))
	}))
	defer server.Close()

	svc := newTestService(t, server.URL)

	var tokens []string
	var errChunks int
	content := svc.GenerateReplyStream(context.Background(), "ollama", "llama3", "hi", nil, llm.Params{}, func(chunk StreamChunk) error {
		if chunk.Err != "" {
			errChunks++
		}
		if chunk.Token != "" {
			tokens = append(tokens, chunk.Token)
		}
		return nil
	})

	if errChunks != 0 {
		t.Fatalf("expected no error chunks, got %d", errChunks)
	}
	if content != "Hello" {
		t.Fatalf("expected accumulated content Hello, got %q", content)
	}
	if len(tokens) != 2 || tokens[0] != "Hel" || tokens[1] != "lo" {
		t.Fatalf("unexpected tokens: %v", tokens)
	}
}

func TestGenerateReplyStreamEmptyIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Write([]byte(`{"message":{"content":""},"done":true,"done_reason":"stop"}` + "\n"))
	}))
	defer server.Close()

	svc := newTestService(t, server.URL)

	var chunks []StreamChunk
	content := svc.GenerateReplyStream(context.Background(), "ollama", "llama3", "hi", nil, llm.Params{}, func(chunk StreamChunk) error {
		chunks = append(chunks, chunk)
		return nil
	})

	if content != "" {
		t.Fatalf("expected no content, got %q", content)
	}
	if len(chunks) != 1 || !strings.Contains(chunks[0].Err, "returned no content") {
		t.Fatalf("expected single no-content error chunk, got %+v", chunks)
	}
}

func TestWebSearchWarningOnUnsupportedProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":{"content":"ok"},"done":true}`))
	}))
	defer server.Close()

	svc := newTestService(t, server.URL)

	reply := svc.GenerateReply(context.Background(), "ollama", "llama3", "hi", nil, llm.Params{WebSearch: true})
	if reply.Err != "" {
		t.Fatalf("unexpected error: %q", reply.Err)
	}
	if !strings.Contains(reply.Warning, "web search") {
		t.Fatalf("expected web search warning, got %q", reply.Warning)
	}
}
