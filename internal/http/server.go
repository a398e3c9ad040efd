// Package http exposes the JSON and SSE API surface of the
// application.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/JawandS/omni-chat/internal/catalogue"
	"github.com/JawandS/omni-chat/internal/chat"
	"github.com/JawandS/omni-chat/internal/config"
	"github.com/JawandS/omni-chat/internal/logging"
	"github.com/JawandS/omni-chat/internal/mailer"
	"github.com/JawandS/omni-chat/internal/modelparams"
	"github.com/JawandS/omni-chat/internal/scheduler"
	"github.com/JawandS/omni-chat/internal/settings"
	"github.com/JawandS/omni-chat/internal/storage"
)

// Server represents the HTTP API server
type Server struct {
	config    *config.Config
	store     storage.Store
	service   *chat.Service
	scheduler *scheduler.Scheduler
	mailer    *mailer.Mailer
	settings  *settings.Manager
	catalogue *catalogue.Catalogue
	params    *modelparams.Schema
	router    chi.Router
	port      int
}

// NewServer creates a new HTTP server instance
func NewServer(
	cfg *config.Config,
	store storage.Store,
	service *chat.Service,
	sched *scheduler.Scheduler,
	m *mailer.Mailer,
	sm *settings.Manager,
	cat *catalogue.Catalogue,
	params *modelparams.Schema,
	port int,
) *Server {
	s := &Server{
		config:    cfg,
		store:     store,
		service:   service,
		scheduler: sched,
		mailer:    m,
		settings:  sm,
		catalogue: cat,
		params:    params,
		port:      port,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Minute))

	// CORS configuration - allow all origins, the app is local-only
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Blacklist-Updated"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		// Chat generation
		r.Post("/chat", s.handleChat)
		r.Post("/chat/stream", s.handleChatStream)

		// Chat history
		r.Get("/chats", s.handleListChats)
		r.Delete("/chats", s.handleDeleteAllChats)
		r.Get("/chats/count", s.handleCountChats)
		r.Get("/chats/by-project", s.handleListChatsByProject)
		r.Get("/chats/{chatID}", s.handleGetChat)
		r.Patch("/chats/{chatID}", s.handleUpdateChat)
		r.Delete("/chats/{chatID}", s.handleDeleteChat)
		r.Post("/chats/{chatID}/project", s.handleAssignChatProject)
		r.Delete("/chats/{chatID}/project", s.handleUnassignChatProject)

		// Projects
		r.Get("/projects", s.handleListProjects)
		r.Post("/projects", s.handleCreateProject)
		r.Get("/projects/{projectID}", s.handleGetProject)
		r.Delete("/projects/{projectID}", s.handleDeleteProject)

		// Scheduled tasks
		r.Get("/tasks", s.handleListTasks)
		r.Post("/tasks", s.handleCreateTask)
		r.Get("/tasks/{taskID}", s.handleGetTask)
		r.Put("/tasks/{taskID}", s.handleUpdateTask)
		r.Delete("/tasks/{taskID}", s.handleDeleteTask)
		r.Post("/tasks/{taskID}/copy", s.handleCopyTask)
		r.Post("/tasks/{taskID}/execute", s.handleExecuteTask)

		// API keys
		r.Get("/keys", s.handleGetKeys)
		r.Put("/keys", s.handleUpdateKeys)
		r.Delete("/keys/{provider}", s.handleDeleteKey)

		// Email
		r.Get("/email/config", s.handleGetEmailConfig)
		r.Put("/email/config", s.handleUpdateEmailConfig)
		r.Post("/email/test", s.handleTestEmail)
		r.Post("/email/send-task-result", s.handleSendTaskResult)

		// Provider catalogue
		r.Get("/providers-config", s.handleProvidersConfig)
		r.Get("/favorites", s.handleListFavorites)
		r.Post("/favorites", s.handleAddFavorite)
		r.Delete("/favorites", s.handleRemoveFavorite)
		r.Get("/blacklist", s.handleListBlacklist)
		r.Post("/blacklist", s.handleAddBlacklistWord)
		r.Delete("/blacklist", s.handleRemoveBlacklistWord)
		r.Put("/default-model", s.handleSetDefaultModel)
		r.Get("/model-config", s.handleModelConfig)
	})

	s.router = r
}

// Run starts the HTTP server and blocks until the context is cancelled
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	logging.Info("Starting HTTP server on %s", addr)
	fmt.Printf("Omni Chat running on http://%s\n", addr)

	server := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		logging.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	return server.ListenAndServe()
}

// Handler returns the configured router, used by tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	logging.Error("HTTP error: %d - %s", status, message)
	s.jsonResponse(w, status, map[string]string{"error": message})
}
