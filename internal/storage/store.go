package storage

import (
	"time"
)

// Chat represents a stored conversation
type Chat struct {
	ID        string
	Title     string
	Provider  string
	Model     string
	ProjectID *string // nil for ungrouped chats
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChatMessage represents a stored message within a chat
type ChatMessage struct {
	ID        string
	ChatID    string
	Role      string // "user" or "assistant"
	Content   string
	Provider  string
	Model     string
	CreatedAt time.Time
}

// Project groups related chats
type Project struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Task statuses
const (
	TaskStatusPending   = "pending"
	TaskStatusRunning   = "running"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
)

// Task represents a scheduled AI task
type Task struct {
	ID          string
	Name        string
	Description string // the prompt sent to the model
	Date        string // YYYY-MM-DD, first scheduled day
	Time        string // HH:MM, local time of day
	Frequency   string // "once", "hourly", "daily", "weekly", "monthly"
	Provider    string
	Model       string
	Output      string // "app" or "email"
	Email       string // destination when Output is "email"
	Status      string
	LastRunAt   *time.Time
	NextRunAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store defines the persistence interface
type Store interface {
	// Chats
	SaveChat(chat *Chat) error
	GetChat(id string) (*Chat, error)
	ListChats() ([]*Chat, error)
	ListChatsByProject(projectID *string) ([]*Chat, error)
	CountChats() (int, error)
	TouchChat(id string, at time.Time) error
	DeleteChat(id string) error
	DeleteAllChats() (int, error)

	// Messages
	AppendMessage(msg *ChatMessage) error
	ListMessages(chatID string) ([]*ChatMessage, error)

	// Projects
	SaveProject(project *Project) error
	GetProject(id string) (*Project, error)
	ListProjects() ([]*Project, error)
	DeleteProject(id string) error

	// Tasks
	SaveTask(task *Task) error
	GetTask(id string) (*Task, error)
	ListTasks() ([]*Task, error)
	DeleteTask(id string) error
	GetDueTasks(now time.Time) ([]*Task, error)
	// ClaimTask flips a due task to running. It reports false when the
	// task was already running, so two runners never pick the same task.
	ClaimTask(id string, at time.Time) (bool, error)

	Close() error
}
