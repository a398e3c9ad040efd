package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JawandS/omni-chat/internal/settings"
)

// handleGetKeys reports which providers have a usable API key. Key
// material itself never leaves the server.
func (s *Server) handleGetKeys(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.settings.Keys())
}

// handleUpdateKeys stores API keys from a provider-to-key map. Empty
// values remove the key.
func (s *Server) handleUpdateKeys(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	for provider, key := range req {
		if err := s.settings.SetKey(provider, key); err != nil {
			s.errorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	s.jsonResponse(w, http.StatusOK, s.settings.Keys())
}

func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	if err := s.settings.DeleteKey(provider); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, s.settings.Keys())
}

func (s *Server) handleGetEmailConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.settings.Email()
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to load email config: "+err.Error())
		return
	}
	// The password never round-trips in clear
	if cfg.Password != "" {
		cfg.Password = "***"
	}
	s.jsonResponse(w, http.StatusOK, cfg)
}

func (s *Server) handleUpdateEmailConfig(w http.ResponseWriter, r *http.Request) {
	var cfg settings.EmailConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	// A masked password means "keep the stored one"
	if cfg.Password == "***" {
		cfg.Password = ""
	}
	if err := s.settings.SetEmail(cfg); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) handleTestEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if !strings.Contains(req.Email, "@") {
		s.errorResponse(w, http.StatusBadRequest, "A valid email is required")
		return
	}

	if err := s.mailer.SendTest(r.Context(), req.Email); err != nil {
		s.errorResponse(w, http.StatusBadGateway, "Failed to send test email: "+err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "sent"})
}

// handleSendTaskResult re-delivers an arbitrary task result by email,
// used by the UI's "send to email" action on an in-app result.
func (s *Server) handleSendTaskResult(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		TaskName    string `json:"task_name"`
		Description string `json:"description"`
		Result      string `json:"result"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if !strings.Contains(req.Email, "@") {
		s.errorResponse(w, http.StatusBadRequest, "A valid email is required")
		return
	}
	if req.TaskName == "" || req.Result == "" {
		s.errorResponse(w, http.StatusBadRequest, "task_name and result are required")
		return
	}

	if err := s.mailer.SendTaskResult(r.Context(), req.Email, req.TaskName, req.Description, req.Result); err != nil {
		s.errorResponse(w, http.StatusBadGateway, "Failed to send email: "+err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (s *Server) handleProvidersConfig(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.catalogue.Snapshot())
}

type favoriteRequest struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

func (s *Server) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string][]string{"favorites": s.catalogue.Snapshot().Favorites})
}

func (s *Server) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	var req favoriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := s.catalogue.AddFavorite(req.Provider, req.Model); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string][]string{"favorites": s.catalogue.Snapshot().Favorites})
}

func (s *Server) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	var req favoriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := s.catalogue.RemoveFavorite(req.Provider, req.Model); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string][]string{"favorites": s.catalogue.Snapshot().Favorites})
}

func (s *Server) handleListBlacklist(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string][]string{"blacklist": s.catalogue.Snapshot().Blacklist})
}

func (s *Server) handleAddBlacklistWord(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Word string `json:"word"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := s.catalogue.AddBlacklistWord(req.Word); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	w.Header().Set("X-Blacklist-Updated", "true")
	s.jsonResponse(w, http.StatusOK, map[string][]string{"blacklist": s.catalogue.Snapshot().Blacklist})
}

func (s *Server) handleRemoveBlacklistWord(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Word string `json:"word"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := s.catalogue.RemoveBlacklistWord(req.Word); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("X-Blacklist-Updated", "true")
	s.jsonResponse(w, http.StatusOK, map[string][]string{"blacklist": s.catalogue.Snapshot().Blacklist})
}

func (s *Server) handleSetDefaultModel(w http.ResponseWriter, r *http.Request) {
	var req favoriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := s.catalogue.SetDefault(req.Provider, req.Model); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "saved"})
}

// handleModelConfig serves the tunable-parameter schema for a
// provider/model pair
func (s *Server) handleModelConfig(w http.ResponseWriter, r *http.Request) {
	provider := r.URL.Query().Get("provider")
	model := r.URL.Query().Get("model")
	if provider == "" || model == "" {
		s.errorResponse(w, http.StatusBadRequest, "provider and model query parameters are required")
		return
	}

	params, err := s.params.ForModel(provider, model)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"provider": provider,
		"model":    model,
		"params":   params,
	})
}
