package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JawandS/omni-chat/internal/storage"
)

// ChatSummary represents a chat without its messages
type ChatSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	ProjectID string    `json:"project_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MessageResponse represents a stored message
type MessageResponse struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Provider  string    `json:"provider,omitempty"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatDetail is a chat with its messages
type ChatDetail struct {
	ChatSummary
	Messages []MessageResponse `json:"messages"`
}

// ProjectResponse represents a project
type ProjectResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ChatCount int       `json:"chat_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func chatSummary(c *storage.Chat) ChatSummary {
	summary := ChatSummary{
		ID:        c.ID,
		Title:     c.Title,
		Provider:  c.Provider,
		Model:     c.Model,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if c.ProjectID != nil {
		summary.ProjectID = *c.ProjectID
	}
	return summary
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.store.ListChats()
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to list chats: "+err.Error())
		return
	}

	resp := make([]ChatSummary, len(chats))
	for i, c := range chats {
		resp[i] = chatSummary(c)
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")

	c, err := s.store.GetChat(chatID)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}

	messages, err := s.store.ListMessages(chatID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to load messages: "+err.Error())
		return
	}

	detail := ChatDetail{
		ChatSummary: chatSummary(c),
		Messages:    make([]MessageResponse, len(messages)),
	}
	for i, msg := range messages {
		detail.Messages[i] = MessageResponse{
			ID:        msg.ID,
			Role:      msg.Role,
			Content:   msg.Content,
			Provider:  msg.Provider,
			Model:     msg.Model,
			CreatedAt: msg.CreatedAt,
		}
	}
	s.jsonResponse(w, http.StatusOK, detail)
}

func (s *Server) handleUpdateChat(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")

	var req struct {
		Title *string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	c, err := s.store.GetChat(chatID)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			s.errorResponse(w, http.StatusBadRequest, "Title cannot be empty")
			return
		}
		c.Title = title
	}
	c.UpdatedAt = time.Now().UTC()

	if err := s.store.SaveChat(c); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to update chat: "+err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, chatSummary(c))
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")

	if _, err := s.store.GetChat(chatID); err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	if err := s.store.DeleteChat(chatID); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to delete chat: "+err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleCountChats(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.CountChats()
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to count chats: "+err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]int{"count": count})
}

func (s *Server) handleDeleteAllChats(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.store.DeleteAllChats()
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to delete chats: "+err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]int{"deleted": deleted})
}

// handleListChatsByProject returns chats for ?project_id=X, or the
// ungrouped chats when the parameter is absent.
func (s *Server) handleListChatsByProject(w http.ResponseWriter, r *http.Request) {
	var projectID *string
	if id := r.URL.Query().Get("project_id"); id != "" {
		if _, err := s.store.GetProject(id); err != nil {
			s.errorResponse(w, http.StatusNotFound, err.Error())
			return
		}
		projectID = &id
	}

	chats, err := s.store.ListChatsByProject(projectID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to list chats: "+err.Error())
		return
	}

	resp := make([]ChatSummary, len(chats))
	for i, c := range chats {
		resp[i] = chatSummary(c)
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleAssignChatProject(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")

	var req struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.ProjectID == "" {
		s.errorResponse(w, http.StatusBadRequest, "project_id is required")
		return
	}

	c, err := s.store.GetChat(chatID)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	if _, err := s.store.GetProject(req.ProjectID); err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}

	c.ProjectID = &req.ProjectID
	c.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveChat(c); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to update chat: "+err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, chatSummary(c))
}

func (s *Server) handleUnassignChatProject(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")

	c, err := s.store.GetChat(chatID)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}

	c.ProjectID = nil
	c.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveChat(c); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to update chat: "+err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, chatSummary(c))
}

func (s *Server) projectResponse(p *storage.Project) ProjectResponse {
	resp := ProjectResponse{
		ID:        p.ID,
		Name:      p.Name,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	if chats, err := s.store.ListChatsByProject(&p.ID); err == nil {
		resp.ChatCount = len(chats)
	}
	return resp
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects()
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to list projects: "+err.Error())
		return
	}

	resp := make([]ProjectResponse, len(projects))
	for i, p := range projects {
		resp[i] = s.projectResponse(p)
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		s.errorResponse(w, http.StatusBadRequest, "Name is required")
		return
	}

	now := time.Now().UTC()
	project := &storage.Project{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.SaveProject(project); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to create project: "+err.Error())
		return
	}
	s.jsonResponse(w, http.StatusCreated, s.projectResponse(project))
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	project, err := s.store.GetProject(projectID)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, s.projectResponse(project))
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	if _, err := s.store.GetProject(projectID); err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	if err := s.store.DeleteProject(projectID); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to delete project: "+err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "deleted"})
}
