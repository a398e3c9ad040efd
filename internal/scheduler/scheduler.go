package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/JawandS/omni-chat/internal/chat"
	"github.com/JawandS/omni-chat/internal/llm"
	"github.com/JawandS/omni-chat/internal/logging"
	"github.com/JawandS/omni-chat/internal/mailer"
	"github.com/JawandS/omni-chat/internal/storage"
)

// FrequencyOnce and friends are the supported task frequencies
const (
	FrequencyOnce    = "once"
	FrequencyHourly  = "hourly"
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
)

// taskTimeout bounds a single task execution
const taskTimeout = 10 * time.Minute

// Scheduler manages recurring task execution
type Scheduler struct {
	store   storage.Store
	service *chat.Service
	mailer  *mailer.Mailer

	ticker   *time.Ticker
	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// NewScheduler creates a new scheduler instance
func NewScheduler(store storage.Store, service *chat.Service, m *mailer.Mailer) *Scheduler {
	return &Scheduler{
		store:    store,
		service:  service,
		mailer:   m,
		stopChan: make(chan struct{}),
	}
}

// Start begins the scheduler background loop
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.ticker = time.NewTicker(1 * time.Minute)
	s.mu.Unlock()

	logging.Info("Scheduler started, checking tasks every minute")

	// Run immediately on start to catch any missed tasks
	s.checkAndRunDueTasks(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				logging.Info("Scheduler stopping due to context cancellation")
				return
			case <-s.stopChan:
				logging.Info("Scheduler stopped")
				return
			case <-s.ticker.C:
				s.checkAndRunDueTasks(ctx)
			}
		}
	}()
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.running = false
	s.ticker.Stop()
	close(s.stopChan)
	s.wg.Wait()
}

// checkAndRunDueTasks checks for tasks that need to run and executes them
func (s *Scheduler) checkAndRunDueTasks(ctx context.Context) {
	now := time.Now()

	tasks, err := s.store.GetDueTasks(now)
	if err != nil {
		logging.Error("Failed to get due tasks: %v", err)
		return
	}

	if len(tasks) == 0 {
		return
	}

	logging.Info("Found %d due task(s) to execute", len(tasks))

	for _, task := range tasks {
		s.wg.Add(1)
		go func(task *storage.Task) {
			defer s.wg.Done()
			s.Execute(ctx, task)
		}(task)
	}
}

// Execute runs a single task. The immediate-run API uses it too.
func (s *Scheduler) Execute(ctx context.Context, task *storage.Task) {
	now := time.Now()

	claimed, err := s.store.ClaimTask(task.ID, now)
	if err != nil {
		logging.Error("Failed to claim task %s: %v", task.ID, err)
		return
	}
	if !claimed {
		logging.Debug("Task %s already running, skipping", task.ID)
		return
	}

	logging.LogTaskRun(task.ID, task.Name, "started")

	taskCtx, cancel := context.WithTimeout(ctx, taskTimeout)
	defer cancel()

	reply := s.service.GenerateReply(taskCtx, task.Provider, task.Model, task.Description, nil, llm.Params{})

	status := storage.TaskStatusCompleted
	if reply.Err != "" {
		status = storage.TaskStatusFailed
		logging.Error("Task %s generation failed: %s", task.ID, reply.Err)
	} else if err := s.deliver(taskCtx, task, reply.Content); err != nil {
		status = storage.TaskStatusFailed
		logging.Error("Task %s delivery failed: %v", task.ID, err)
	}

	finished := time.Now()
	task.Status = status
	task.LastRunAt = &finished
	task.UpdatedAt = finished

	if task.Frequency == FrequencyOnce {
		task.NextRunAt = nil
	} else if next, err := NextRun(task, finished); err == nil {
		task.NextRunAt = &next
		logging.Info("Task %s next run scheduled for: %s", task.Name, next.Format(time.RFC3339))
	} else {
		logging.Error("Failed to compute next run for task %s: %v", task.ID, err)
		task.NextRunAt = nil
	}

	if err := s.store.SaveTask(task); err != nil {
		logging.Error("Failed to update task %s after execution: %v", task.ID, err)
	}

	logging.LogTaskRun(task.ID, task.Name, status)
}

// deliver routes the generated result to the task's output target
func (s *Scheduler) deliver(ctx context.Context, task *storage.Task, result string) error {
	switch task.Output {
	case "email":
		if task.Email == "" {
			return fmt.Errorf("task has no destination email")
		}
		return s.mailer.SendTaskResult(ctx, task.Email, task.Name, task.Description, result)
	default:
		return s.deliverToChat(task, result)
	}
}

// deliverToChat records the result as a new chat: the prompt as the
// user message, the result as the assistant reply.
func (s *Scheduler) deliverToChat(task *storage.Task, result string) error {
	now := time.Now()
	c := &storage.Chat{
		ID:        uuid.New().String(),
		Title:     "Task: " + task.Name,
		Provider:  task.Provider,
		Model:     task.Model,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.SaveChat(c); err != nil {
		return err
	}

	userMsg := &storage.ChatMessage{
		ID:        uuid.New().String(),
		ChatID:    c.ID,
		Role:      "user",
		Content:   task.Description,
		Provider:  task.Provider,
		Model:     task.Model,
		CreatedAt: now,
	}
	if err := s.store.AppendMessage(userMsg); err != nil {
		return err
	}

	assistantMsg := &storage.ChatMessage{
		ID:        uuid.New().String(),
		ChatID:    c.ID,
		Role:      "assistant",
		Content:   result,
		Provider:  task.Provider,
		Model:     task.Model,
		CreatedAt: now.Add(time.Millisecond),
	}
	return s.store.AppendMessage(assistantMsg)
}

// anchor parses the task's date and time in the local timezone
func anchor(task *storage.Task) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02 15:04", task.Date+" "+task.Time, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid task schedule %q %q: %w", task.Date, task.Time, err)
	}
	return t, nil
}

// cronExpr builds the cron expression for a recurring frequency,
// anchored at the task's configured date and time.
func cronExpr(task *storage.Task) (string, error) {
	at, err := anchor(task)
	if err != nil {
		return "", err
	}

	switch task.Frequency {
	case FrequencyHourly:
		return fmt.Sprintf("%d * * * *", at.Minute()), nil
	case FrequencyDaily:
		return fmt.Sprintf("%d %d * * *", at.Minute(), at.Hour()), nil
	case FrequencyWeekly:
		return fmt.Sprintf("%d %d * * %d", at.Minute(), at.Hour(), int(at.Weekday())), nil
	case FrequencyMonthly:
		return fmt.Sprintf("%d %d %d * *", at.Minute(), at.Hour(), at.Day()), nil
	default:
		return "", fmt.Errorf("unknown frequency: %s", task.Frequency)
	}
}

// NextRun computes the next run after the given time. For one-off
// tasks it is the anchor itself; a one-off whose time already passed
// runs at the next scheduler tick.
func NextRun(task *storage.Task, after time.Time) (time.Time, error) {
	if task.Frequency == FrequencyOnce {
		return anchor(task)
	}

	at, err := anchor(task)
	if err != nil {
		return time.Time{}, err
	}
	if at.After(after) {
		return at, nil
	}

	expr, err := cronExpr(task)
	if err != nil {
		return time.Time{}, err
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(after), nil
}

// ValidFrequency reports whether the given frequency is supported
func ValidFrequency(frequency string) bool {
	switch strings.ToLower(frequency) {
	case FrequencyOnce, FrequencyHourly, FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	default:
		return false
	}
}
