package mailer

import (
	"context"
	"strings"
	"testing"

	"github.com/JawandS/omni-chat/internal/settings"
)

func TestSendWithoutConfiguration(t *testing.T) {
	t.Setenv("SMTP_SERVER", "")
	t.Setenv("SMTP_PORT", "")
	t.Setenv("FROM_EMAIL", "")

	m := New(settings.NewManager(t.TempDir()))

	err := m.SendTest(context.Background(), "user@example.com")
	if err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Fatalf("expected not-configured error, got %v", err)
	}

	err = m.SendTaskResult(context.Background(), "user@example.com", "Digest", "prompt", "result")
	if err == nil || !strings.Contains(err.Error(), "not configured") {
		t.Fatalf("expected not-configured error, got %v", err)
	}
}
