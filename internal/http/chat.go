package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JawandS/omni-chat/internal/chat"
	"github.com/JawandS/omni-chat/internal/llm"
	"github.com/JawandS/omni-chat/internal/logging"
	"github.com/JawandS/omni-chat/internal/storage"
)

// ChatRequest is the payload of /api/chat and /api/chat/stream
type ChatRequest struct {
	Message   string                 `json:"message"`
	Provider  string                 `json:"provider"`
	Model     string                 `json:"model"`
	ChatID    string                 `json:"chat_id,omitempty"`
	ProjectID string                 `json:"project_id,omitempty"`
	Params    map[string]interface{} `json:"params,omitempty"`
}

// ChatResponseBody is the /api/chat response. Generation failures keep
// a 200 status; the failure rides in the error fields.
type ChatResponseBody struct {
	Reply         string `json:"reply,omitempty"`
	ChatID        string `json:"chat_id"`
	Title         string `json:"title"`
	Warning       string `json:"warning,omitempty"`
	Error         string `json:"error,omitempty"`
	MissingKeyFor string `json:"missing_key_for,omitempty"`
}

// StreamEvent is one SSE data payload on /api/chat/stream
type StreamEvent struct {
	Token         string `json:"token,omitempty"`
	Warning       string `json:"warning,omitempty"`
	Error         string `json:"error,omitempty"`
	MissingKeyFor string `json:"missing_key_for,omitempty"`
	Done          bool   `json:"done,omitempty"`
	ChatID        string `json:"chat_id,omitempty"`
	Title         string `json:"title,omitempty"`
}

// parseParams maps the loosely-typed params object from the client
// onto the typed generation parameters.
func parseParams(raw map[string]interface{}) llm.Params {
	var p llm.Params

	getFloat := func(key string) *float64 {
		if v, ok := raw[key]; ok {
			if f, ok := v.(float64); ok {
				return &f
			}
		}
		return nil
	}
	getInt := func(key string) *int {
		if v, ok := raw[key]; ok {
			if f, ok := v.(float64); ok {
				n := int(f)
				return &n
			}
		}
		return nil
	}
	getString := func(key string) string {
		if v, ok := raw[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}

	p.Temperature = getFloat("temperature")
	p.TopP = getFloat("top_p")
	p.TopK = getInt("top_k")
	if n := getInt("max_tokens"); n != nil {
		p.MaxTokens = *n
	} else if n := getInt("max_output_tokens"); n != nil {
		p.MaxTokens = *n
	}
	p.PresencePenalty = getFloat("presence_penalty")
	p.FrequencyPenalty = getFloat("frequency_penalty")
	p.Seed = getInt("seed")
	p.ResponseFormat = getString("response_format")
	p.ReasoningEffort = getString("reasoning_effort")

	if v, ok := raw["web_search"]; ok {
		if b, ok := v.(bool); ok {
			p.WebSearch = b
		}
	}

	// Stop sequences arrive as an array or a comma-separated string
	switch v := raw["stop"].(type) {
	case string:
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				p.Stop = append(p.Stop, s)
			}
		}
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				p.Stop = append(p.Stop, s)
			}
		}
	}

	return p
}

// resolveChat finds or creates the chat for a generation request and
// returns it alongside the prior history.
func (s *Server) resolveChat(req *ChatRequest) (*storage.Chat, []llm.Message, error) {
	now := time.Now().UTC()

	if req.ChatID != "" {
		c, err := s.store.GetChat(req.ChatID)
		if err != nil {
			return nil, nil, err
		}
		// Track the most recent provider/model used in this chat
		c.Provider = req.Provider
		c.Model = req.Model
		c.UpdatedAt = now
		if err := s.store.SaveChat(c); err != nil {
			return nil, nil, err
		}

		stored, err := s.store.ListMessages(c.ID)
		if err != nil {
			return nil, nil, err
		}
		history := make([]llm.Message, 0, len(stored))
		for _, msg := range stored {
			history = append(history, llm.Message{Role: msg.Role, Content: msg.Content})
		}
		return c, history, nil
	}

	c := &storage.Chat{
		ID:        uuid.New().String(),
		Title:     chat.GenerateTitle(req.Message),
		Provider:  req.Provider,
		Model:     req.Model,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.ProjectID != "" {
		if _, err := s.store.GetProject(req.ProjectID); err != nil {
			return nil, nil, err
		}
		c.ProjectID = &req.ProjectID
	}
	if err := s.store.SaveChat(c); err != nil {
		return nil, nil, err
	}
	return c, nil, nil
}

func (s *Server) persistMessage(c *storage.Chat, role, content string) {
	msg := &storage.ChatMessage{
		ID:        uuid.New().String(),
		ChatID:    c.ID,
		Role:      role,
		Content:   content,
		Provider:  c.Provider,
		Model:     c.Model,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.AppendMessage(msg); err != nil {
		logging.Error("Failed to persist %s message for chat %s: %v", role, c.ID, err)
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.errorResponse(w, http.StatusBadRequest, "Message is required")
		return
	}
	if strings.TrimSpace(req.Provider) == "" || strings.TrimSpace(req.Model) == "" {
		s.errorResponse(w, http.StatusBadRequest, "Provider and model are required")
		return
	}

	c, history, err := s.resolveChat(&req)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}

	s.persistMessage(c, "user", req.Message)

	reply := s.service.GenerateReply(r.Context(), req.Provider, req.Model, req.Message, history, parseParams(req.Params))

	if reply.Err == "" {
		s.persistMessage(c, "assistant", reply.Content)
	}
	if err := s.store.TouchChat(c.ID, time.Now().UTC()); err != nil {
		logging.Warn("Failed to touch chat %s: %v", c.ID, err)
	}

	s.jsonResponse(w, http.StatusOK, ChatResponseBody{
		Reply:         reply.Content,
		ChatID:        c.ID,
		Title:         c.Title,
		Warning:       reply.Warning,
		Error:         reply.Err,
		MissingKeyFor: reply.MissingKeyFor,
	})
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.errorResponse(w, http.StatusBadRequest, "Message is required")
		return
	}
	if strings.TrimSpace(req.Provider) == "" || strings.TrimSpace(req.Model) == "" {
		s.errorResponse(w, http.StatusBadRequest, "Provider and model are required")
		return
	}

	c, history, err := s.resolveChat(&req)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}

	s.persistMessage(c, "user", req.Message)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, ok := w.(http.Flusher)
	if !ok {
		logging.Error("Streaming unsupported by response writer")
		return
	}

	failed := false
	writeEvent := func(event StreamEvent) error {
		payload, err := json.Marshal(event)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	content := s.service.GenerateReplyStream(r.Context(), req.Provider, req.Model, req.Message, history, parseParams(req.Params), func(chunk chat.StreamChunk) error {
		if chunk.Err != "" {
			failed = true
		}
		return writeEvent(StreamEvent{
			Token:         chunk.Token,
			Warning:       chunk.Warning,
			Error:         chunk.Err,
			MissingKeyFor: chunk.MissingKeyFor,
		})
	})

	// Persist whatever reached the client, even from a failed stream
	if content != "" {
		s.persistMessage(c, "assistant", content)
	}
	if err := s.store.TouchChat(c.ID, time.Now().UTC()); err != nil {
		logging.Warn("Failed to touch chat %s: %v", c.ID, err)
	}

	if !failed {
		writeEvent(StreamEvent{Done: true, ChatID: c.ID, Title: c.Title})
	}
}
