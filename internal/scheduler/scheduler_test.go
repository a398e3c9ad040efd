package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JawandS/omni-chat/internal/chat"
	"github.com/JawandS/omni-chat/internal/mailer"
	"github.com/JawandS/omni-chat/internal/settings"
	"github.com/JawandS/omni-chat/internal/storage"
)

func TestValidFrequency(t *testing.T) {
	for _, f := range []string{"once", "hourly", "daily", "weekly", "monthly", "Daily"} {
		if !ValidFrequency(f) {
			t.Fatalf("expected %q to be valid", f)
		}
	}
	for _, f := range []string{"", "yearly", "every-minute"} {
		if ValidFrequency(f) {
			t.Fatalf("expected %q to be invalid", f)
		}
	}
}

func scheduleTask(frequency, date, clock string) *storage.Task {
	return &storage.Task{
		ID:        "t1",
		Name:      "Digest",
		Date:      date,
		Time:      clock,
		Frequency: frequency,
	}
}

func TestNextRunOnceReturnsAnchor(t *testing.T) {
	task := scheduleTask(FrequencyOnce, "2026-03-01", "09:30")
	want := time.Date(2026, 3, 1, 9, 30, 0, 0, time.Local)

	got, err := NextRun(task, want.Add(time.Hour))
	if err != nil {
		t.Fatalf("NextRun failed: %v", err)
	}
	if !got.Equal(want) {
		t.Fatalf("expected anchor %v, got %v", want, got)
	}
}

func TestNextRunFutureAnchorWins(t *testing.T) {
	task := scheduleTask(FrequencyDaily, "2026-03-01", "09:30")
	anchor := time.Date(2026, 3, 1, 9, 30, 0, 0, time.Local)

	got, err := NextRun(task, anchor.Add(-time.Hour))
	if err != nil {
		t.Fatalf("NextRun failed: %v", err)
	}
	if !got.Equal(anchor) {
		t.Fatalf("expected future anchor %v, got %v", anchor, got)
	}
}

func TestNextRunRecurring(t *testing.T) {
	anchor := time.Date(2026, 3, 1, 9, 30, 0, 0, time.Local)
	after := anchor.Add(10 * time.Minute)

	cases := []struct {
		frequency string
		want      time.Time
	}{
		{FrequencyHourly, anchor.Add(time.Hour)},
		{FrequencyDaily, anchor.AddDate(0, 0, 1)},
		{FrequencyWeekly, anchor.AddDate(0, 0, 7)},
		{FrequencyMonthly, anchor.AddDate(0, 1, 0)},
	}
	for _, tc := range cases {
		task := scheduleTask(tc.frequency, "2026-03-01", "09:30")
		got, err := NextRun(task, after)
		if err != nil {
			t.Fatalf("NextRun(%s) failed: %v", tc.frequency, err)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("NextRun(%s) = %v, want %v", tc.frequency, got, tc.want)
		}
	}
}

func TestNextRunInvalidSchedule(t *testing.T) {
	task := scheduleTask(FrequencyDaily, "not-a-date", "09:30")
	if _, err := NextRun(task, time.Now()); err == nil {
		t.Fatal("expected error for invalid date")
	}
}

func newTestScheduler(t *testing.T, ollamaURL string) (*Scheduler, storage.Store) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	store, err := storage.NewSQLiteStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	sm := settings.NewManager(t.TempDir())
	service := chat.NewService(sm, ollamaURL)
	return NewScheduler(store, service, mailer.New(sm)), store
}

func savedTask(t *testing.T, store storage.Store, frequency, output string) *storage.Task {
	t.Helper()
	now := time.Now().UTC()
	next := now.Add(-time.Minute)
	task := &storage.Task{
		ID:          "task-1",
		Name:        "Morning digest",
		Description: "Summarize the news",
		Date:        "2026-01-05",
		Time:        "09:00",
		Frequency:   frequency,
		Provider:    "ollama",
		Model:       "llama3",
		Output:      output,
		Status:      storage.TaskStatusPending,
		NextRunAt:   &next,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := store.SaveTask(task); err != nil {
		t.Fatalf("failed to save task: %v", err)
	}
	return task
}

func TestExecuteDeliversToChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"content":"today's summary"},"done":true,"done_reason":"stop"}`))
	}))
	defer server.Close()

	sched, store := newTestScheduler(t, server.URL)
	task := savedTask(t, store, FrequencyDaily, "app")

	sched.Execute(context.Background(), task)

	updated, err := store.GetTask(task.ID)
	if err != nil {
		t.Fatalf("failed to reload task: %v", err)
	}
	if updated.Status != storage.TaskStatusCompleted {
		t.Fatalf("expected completed status, got %q", updated.Status)
	}
	if updated.LastRunAt == nil {
		t.Fatal("expected last_run_at to be set")
	}
	if updated.NextRunAt == nil || !updated.NextRunAt.After(time.Now()) {
		t.Fatalf("expected a future next run, got %v", updated.NextRunAt)
	}

	chats, err := store.ListChats()
	if err != nil {
		t.Fatalf("failed to list chats: %v", err)
	}
	if len(chats) != 1 || chats[0].Title != "Task: Morning digest" {
		t.Fatalf("expected task chat, got %+v", chats)
	}

	messages, err := store.ListMessages(chats[0].ID)
	if err != nil {
		t.Fatalf("failed to list messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected prompt and reply, got %d messages", len(messages))
	}
	if messages[0].Role != "user" || messages[0].Content != "Summarize the news" {
		t.Fatalf("unexpected user message: %+v", messages[0])
	}
	if messages[1].Role != "assistant" || messages[1].Content != "today's summary" {
		t.Fatalf("unexpected assistant message: %+v", messages[1])
	}
}

func TestExecuteOnceClearsNextRun(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"content":"done"},"done":true}`))
	}))
	defer server.Close()

	sched, store := newTestScheduler(t, server.URL)
	task := savedTask(t, store, FrequencyOnce, "app")

	sched.Execute(context.Background(), task)

	updated, err := store.GetTask(task.ID)
	if err != nil {
		t.Fatalf("failed to reload task: %v", err)
	}
	if updated.Status != storage.TaskStatusCompleted {
		t.Fatalf("expected completed status, got %q", updated.Status)
	}
	if updated.NextRunAt != nil {
		t.Fatalf("one-off task should not reschedule, got %v", updated.NextRunAt)
	}
}

func TestExecuteFailureMarksTaskFailed(t *testing.T) {
	sched, store := newTestScheduler(t, "")
	task := savedTask(t, store, FrequencyDaily, "app")
	// Unknown providers fail before any provider call
	task.Provider = "nonexistent"
	if err := store.SaveTask(task); err != nil {
		t.Fatalf("failed to save task: %v", err)
	}

	sched.Execute(context.Background(), task)

	updated, err := store.GetTask(task.ID)
	if err != nil {
		t.Fatalf("failed to reload task: %v", err)
	}
	if updated.Status != storage.TaskStatusFailed {
		t.Fatalf("expected failed status, got %q", updated.Status)
	}
	// A failed recurring task still reschedules
	if updated.NextRunAt == nil {
		t.Fatal("expected failed recurring task to reschedule")
	}
}

func TestExecuteSkipsRunningTask(t *testing.T) {
	sched, store := newTestScheduler(t, "")
	task := savedTask(t, store, FrequencyDaily, "app")

	if claimed, err := store.ClaimTask(task.ID, time.Now()); err != nil || !claimed {
		t.Fatalf("setup claim failed: claimed=%v err=%v", claimed, err)
	}

	sched.Execute(context.Background(), task)

	updated, err := store.GetTask(task.ID)
	if err != nil {
		t.Fatalf("failed to reload task: %v", err)
	}
	if updated.Status != storage.TaskStatusRunning {
		t.Fatalf("expected task left running, got %q", updated.Status)
	}

	chats, err := store.ListChats()
	if err != nil {
		t.Fatalf("failed to list chats: %v", err)
	}
	if len(chats) != 0 {
		t.Fatalf("expected no delivery for a running task, got %d chats", len(chats))
	}
}

func TestExecuteEmailWithoutAddressFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"content":"done"},"done":true}`))
	}))
	defer server.Close()

	sched, store := newTestScheduler(t, server.URL)
	task := savedTask(t, store, FrequencyDaily, "email")

	sched.Execute(context.Background(), task)

	updated, err := store.GetTask(task.ID)
	if err != nil {
		t.Fatalf("failed to reload task: %v", err)
	}
	if updated.Status != storage.TaskStatusFailed {
		t.Fatalf("expected failed status, got %q", updated.Status)
	}
}

func TestCronExprShapes(t *testing.T) {
	task := scheduleTask(FrequencyHourly, "2026-03-01", "09:30")
	expr, err := cronExpr(task)
	if err != nil {
		t.Fatalf("cronExpr failed: %v", err)
	}
	if !strings.HasPrefix(expr, "30 ") {
		t.Fatalf("hourly expr should pin the minute, got %q", expr)
	}

	task.Frequency = "yearly"
	if _, err := cronExpr(task); err == nil {
		t.Fatal("expected error for unknown frequency")
	}
}
