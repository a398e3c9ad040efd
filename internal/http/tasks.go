package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JawandS/omni-chat/internal/scheduler"
	"github.com/JawandS/omni-chat/internal/storage"
)

// TaskRequest is the create/update payload for scheduled tasks
type TaskRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Frequency   string `json:"frequency"`
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	Output      string `json:"output"`
	Email       string `json:"email,omitempty"`
}

// TaskResponse represents a scheduled task
type TaskResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Date        string     `json:"date"`
	Time        string     `json:"time"`
	Frequency   string     `json:"frequency"`
	Provider    string     `json:"provider"`
	Model       string     `json:"model"`
	Output      string     `json:"output"`
	Email       string     `json:"email,omitempty"`
	Status      string     `json:"status"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	NextRunAt   *time.Time `json:"next_run_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func taskResponse(t *storage.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Date:        t.Date,
		Time:        t.Time,
		Frequency:   t.Frequency,
		Provider:    t.Provider,
		Model:       t.Model,
		Output:      t.Output,
		Email:       t.Email,
		Status:      t.Status,
		LastRunAt:   t.LastRunAt,
		NextRunAt:   t.NextRunAt,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// validateTask checks a task payload, returning a user-facing message
// when invalid.
func validateTask(req *TaskRequest) string {
	if strings.TrimSpace(req.Name) == "" {
		return "Name is required"
	}
	if strings.TrimSpace(req.Description) == "" {
		return "Description is required"
	}
	if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		return "Date must be YYYY-MM-DD"
	}
	if _, err := time.Parse("15:04", req.Time); err != nil {
		return "Time must be HH:MM"
	}
	if !scheduler.ValidFrequency(req.Frequency) {
		return "Unknown frequency: " + req.Frequency
	}
	if strings.TrimSpace(req.Provider) == "" || strings.TrimSpace(req.Model) == "" {
		return "Provider and model are required"
	}
	switch req.Output {
	case "app":
	case "email":
		if !strings.Contains(req.Email, "@") {
			return "A valid email is required for email output"
		}
	default:
		return "Output must be \"app\" or \"email\""
	}
	return ""
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.ListTasks()
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to list tasks: "+err.Error())
		return
	}

	resp := make([]TaskResponse, len(tasks))
	for i, t := range tasks {
		resp[i] = taskResponse(t)
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if msg := validateTask(&req); msg != "" {
		s.errorResponse(w, http.StatusBadRequest, msg)
		return
	}

	now := time.Now().UTC()
	task := &storage.Task{
		ID:          uuid.New().String(),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Date:        req.Date,
		Time:        req.Time,
		Frequency:   strings.ToLower(req.Frequency),
		Provider:    req.Provider,
		Model:       req.Model,
		Output:      req.Output,
		Email:       req.Email,
		Status:      storage.TaskStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	next, err := scheduler.NextRun(task, time.Now())
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid schedule: "+err.Error())
		return
	}
	task.NextRunAt = &next

	if err := s.store.SaveTask(task); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to create task: "+err.Error())
		return
	}
	s.jsonResponse(w, http.StatusCreated, taskResponse(task))
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	task, err := s.store.GetTask(taskID)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, taskResponse(task))
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	var req TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if msg := validateTask(&req); msg != "" {
		s.errorResponse(w, http.StatusBadRequest, msg)
		return
	}

	task, err := s.store.GetTask(taskID)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}

	task.Name = strings.TrimSpace(req.Name)
	task.Description = req.Description
	task.Date = req.Date
	task.Time = req.Time
	task.Frequency = strings.ToLower(req.Frequency)
	task.Provider = req.Provider
	task.Model = req.Model
	task.Output = req.Output
	task.Email = req.Email
	task.UpdatedAt = time.Now().UTC()

	// A schedule change recomputes the next run
	next, err := scheduler.NextRun(task, time.Now())
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid schedule: "+err.Error())
		return
	}
	task.NextRunAt = &next

	if err := s.store.SaveTask(task); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to update task: "+err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, taskResponse(task))
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	if _, err := s.store.GetTask(taskID); err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	if err := s.store.DeleteTask(taskID); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to delete task: "+err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleCopyTask duplicates a task under a fresh ID with a pending
// status
func (s *Server) handleCopyTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	task, err := s.store.GetTask(taskID)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}

	now := time.Now().UTC()
	dup := *task
	dup.ID = uuid.New().String()
	dup.Name = "Copy of " + task.Name
	dup.Status = storage.TaskStatusPending
	dup.LastRunAt = nil
	dup.CreatedAt = now
	dup.UpdatedAt = now

	if next, err := scheduler.NextRun(&dup, time.Now()); err == nil {
		dup.NextRunAt = &next
	} else {
		dup.NextRunAt = nil
	}

	if err := s.store.SaveTask(&dup); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to copy task: "+err.Error())
		return
	}
	s.jsonResponse(w, http.StatusCreated, taskResponse(&dup))
}

// handleExecuteTask runs a task immediately, outside its schedule
func (s *Server) handleExecuteTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	task, err := s.store.GetTask(taskID)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}

	s.scheduler.Execute(r.Context(), task)

	updated, err := s.store.GetTask(taskID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Failed to reload task: "+err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, taskResponse(updated))
}
