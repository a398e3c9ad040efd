package storage

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(dataPath string) (*SQLiteStore, error) {
	dbPath := filepath.Join(dataPath, "omnichat.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS chats (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			provider TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			project_id TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			provider TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			FOREIGN KEY (chat_id) REFERENCES chats(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat_id ON messages(chat_id)`,
		`CREATE INDEX IF NOT EXISTS idx_chats_project_id ON chats(project_id)`,
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL,
			date TEXT NOT NULL,
			time TEXT NOT NULL,
			frequency TEXT NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			output TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			last_run_at TIMESTAMP,
			next_run_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_next_run ON tasks(next_run_at)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// ALTER TABLE migrations fail when the column already exists
			if strings.HasPrefix(m, "ALTER") {
				continue
			}
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// SaveChat inserts or updates a chat
func (s *SQLiteStore) SaveChat(chat *Chat) error {
	_, err := s.db.Exec(`
		INSERT INTO chats (id, title, provider, model, project_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			provider = excluded.provider,
			model = excluded.model,
			project_id = excluded.project_id,
			updated_at = excluded.updated_at
	`, chat.ID, chat.Title, chat.Provider, chat.Model, chat.ProjectID, chat.CreatedAt, chat.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save chat: %w", err)
	}
	return nil
}

func (s *SQLiteStore) scanChat(row interface{ Scan(...interface{}) error }) (*Chat, error) {
	var chat Chat
	var projectID sql.NullString

	err := row.Scan(&chat.ID, &chat.Title, &chat.Provider, &chat.Model, &projectID, &chat.CreatedAt, &chat.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if projectID.Valid {
		chat.ProjectID = &projectID.String
	}
	return &chat, nil
}

// GetChat retrieves a chat by ID
func (s *SQLiteStore) GetChat(id string) (*Chat, error) {
	row := s.db.QueryRow(`
		SELECT id, title, provider, model, project_id, created_at, updated_at
		FROM chats WHERE id = ?
	`, id)

	chat, err := s.scanChat(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("chat not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return chat, nil
}

// ListChats returns all chats, most recently active first
func (s *SQLiteStore) ListChats() ([]*Chat, error) {
	rows, err := s.db.Query(`
		SELECT id, title, provider, model, project_id, created_at, updated_at
		FROM chats ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []*Chat
	for rows.Next() {
		chat, err := s.scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

// ListChatsByProject returns chats for a project. A nil projectID
// selects the ungrouped chats.
func (s *SQLiteStore) ListChatsByProject(projectID *string) ([]*Chat, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if projectID == nil {
		rows, err = s.db.Query(`
			SELECT id, title, provider, model, project_id, created_at, updated_at
			FROM chats WHERE project_id IS NULL ORDER BY updated_at DESC
		`)
	} else {
		rows, err = s.db.Query(`
			SELECT id, title, provider, model, project_id, created_at, updated_at
			FROM chats WHERE project_id = ? ORDER BY updated_at DESC
		`, *projectID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []*Chat
	for rows.Next() {
		chat, err := s.scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

// CountChats returns the total number of chats
func (s *SQLiteStore) CountChats() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM chats").Scan(&count)
	return count, err
}

// TouchChat bumps a chat's updated_at timestamp
func (s *SQLiteStore) TouchChat(id string, at time.Time) error {
	result, err := s.db.Exec("UPDATE chats SET updated_at = ? WHERE id = ?", at, id)
	if err != nil {
		return fmt.Errorf("failed to touch chat: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("chat not found: %s", id)
	}
	return nil
}

// DeleteChat removes a chat and its messages
func (s *SQLiteStore) DeleteChat(id string) error {
	// Explicit message delete so cascade behavior does not depend on
	// the connection's foreign_keys pragma.
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM messages WHERE chat_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM chats WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	return tx.Commit()
}

// DeleteAllChats removes every chat and message, returning the number
// of chats deleted
func (s *SQLiteStore) DeleteAllChats() (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM messages"); err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}
	result, err := tx.Exec("DELETE FROM chats")
	if err != nil {
		return 0, fmt.Errorf("failed to delete chats: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), tx.Commit()
}

// AppendMessage stores a message
func (s *SQLiteStore) AppendMessage(msg *ChatMessage) error {
	_, err := s.db.Exec(`
		INSERT INTO messages (id, chat_id, role, content, provider, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.ChatID, msg.Role, msg.Content, msg.Provider, msg.Model, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// ListMessages returns a chat's messages in insertion order
func (s *SQLiteStore) ListMessages(chatID string) ([]*ChatMessage, error) {
	rows, err := s.db.Query(`
		SELECT id, chat_id, role, content, provider, model, created_at
		FROM messages WHERE chat_id = ? ORDER BY created_at, id
	`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*ChatMessage
	for rows.Next() {
		var msg ChatMessage
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Role, &msg.Content, &msg.Provider, &msg.Model, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

// SaveProject inserts or updates a project
func (s *SQLiteStore) SaveProject(project *Project) error {
	_, err := s.db.Exec(`
		INSERT INTO projects (id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			updated_at = excluded.updated_at
	`, project.ID, project.Name, project.CreatedAt, project.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}
	return nil
}

// GetProject retrieves a project by ID
func (s *SQLiteStore) GetProject(id string) (*Project, error) {
	var project Project
	err := s.db.QueryRow(`
		SELECT id, name, created_at, updated_at FROM projects WHERE id = ?
	`, id).Scan(&project.ID, &project.Name, &project.CreatedAt, &project.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// ListProjects returns all projects ordered by name
func (s *SQLiteStore) ListProjects() ([]*Project, error) {
	rows, err := s.db.Query("SELECT id, name, created_at, updated_at FROM projects ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		var project Project
		if err := rows.Scan(&project.ID, &project.Name, &project.CreatedAt, &project.UpdatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, &project)
	}
	return projects, rows.Err()
}

// DeleteProject removes a project. Its chats are kept and become
// ungrouped.
func (s *SQLiteStore) DeleteProject(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("UPDATE chats SET project_id = NULL WHERE project_id = ?", id); err != nil {
		return fmt.Errorf("failed to unassign chats: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM projects WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return tx.Commit()
}

// SaveTask inserts or updates a task
func (s *SQLiteStore) SaveTask(task *Task) error {
	_, err := s.db.Exec(`
		INSERT INTO tasks (id, name, description, date, time, frequency, provider, model, output, email, status, last_run_at, next_run_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			date = excluded.date,
			time = excluded.time,
			frequency = excluded.frequency,
			provider = excluded.provider,
			model = excluded.model,
			output = excluded.output,
			email = excluded.email,
			status = excluded.status,
			last_run_at = excluded.last_run_at,
			next_run_at = excluded.next_run_at,
			updated_at = excluded.updated_at
	`, task.ID, task.Name, task.Description, task.Date, task.Time, task.Frequency,
		task.Provider, task.Model, task.Output, task.Email, task.Status,
		task.LastRunAt, task.NextRunAt, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

func (s *SQLiteStore) scanTask(row interface{ Scan(...interface{}) error }) (*Task, error) {
	var task Task
	var lastRun, nextRun sql.NullTime

	err := row.Scan(&task.ID, &task.Name, &task.Description, &task.Date, &task.Time,
		&task.Frequency, &task.Provider, &task.Model, &task.Output, &task.Email,
		&task.Status, &lastRun, &nextRun, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastRun.Valid {
		task.LastRunAt = &lastRun.Time
	}
	if nextRun.Valid {
		task.NextRunAt = &nextRun.Time
	}
	return &task, nil
}

const taskColumns = `id, name, description, date, time, frequency, provider, model, output, email, status, last_run_at, next_run_at, created_at, updated_at`

// GetTask retrieves a task by ID
func (s *SQLiteStore) GetTask(id string) (*Task, error) {
	row := s.db.QueryRow("SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	task, err := s.scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

// ListTasks returns all tasks, newest first
func (s *SQLiteStore) ListTasks() ([]*Task, error) {
	rows, err := s.db.Query("SELECT " + taskColumns + " FROM tasks ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := s.scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// DeleteTask removes a task
func (s *SQLiteStore) DeleteTask(id string) error {
	_, err := s.db.Exec("DELETE FROM tasks WHERE id = ?", id)
	return err
}

// GetDueTasks returns tasks whose next run time has passed. Running
// tasks are excluded; completed or failed recurring tasks become due
// again once their next run time arrives.
func (s *SQLiteStore) GetDueTasks(now time.Time) ([]*Task, error) {
	rows, err := s.db.Query(`
		SELECT `+taskColumns+` FROM tasks
		WHERE status != ? AND next_run_at IS NOT NULL AND next_run_at <= ?
		ORDER BY next_run_at
	`, TaskStatusRunning, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := s.scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// ClaimTask flips a due task to running
func (s *SQLiteStore) ClaimTask(id string, at time.Time) (bool, error) {
	result, err := s.db.Exec(`
		UPDATE tasks SET status = ?, updated_at = ? WHERE id = ? AND status != ?
	`, TaskStatusRunning, at, id, TaskStatusRunning)
	if err != nil {
		return false, fmt.Errorf("failed to claim task: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
