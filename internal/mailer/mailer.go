// Package mailer delivers task results over SMTP as multipart
// text+HTML messages.
package mailer

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/JawandS/omni-chat/internal/logging"
	"github.com/JawandS/omni-chat/internal/settings"
)

// Mailer sends email using the SMTP configuration from settings
type Mailer struct {
	settings *settings.Manager
}

// New creates a mailer backed by the given settings manager
func New(sm *settings.Manager) *Mailer {
	return &Mailer{settings: sm}
}

func (m *Mailer) client(cfg settings.EmailConfig) (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
	}
	if cfg.UseTLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	return mail.NewClient(cfg.Server, opts...)
}

func (m *Mailer) send(ctx context.Context, to, subject, text, htmlBody string) error {
	cfg, err := m.settings.Email()
	if err != nil {
		return err
	}
	if !cfg.Configured() {
		return fmt.Errorf("email is not configured")
	}

	msg := mail.NewMsg()
	if err := msg.From(cfg.From); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, text)
	if htmlBody != "" {
		msg.AddAlternativeString(mail.TypeTextHTML, htmlBody)
	}

	client, err := m.client(cfg)
	if err != nil {
		return fmt.Errorf("failed to create mail client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	logging.Info("Email sent: to=%s subject=%q", to, subject)
	return nil
}

// SendTest sends a short plain-text message to verify the SMTP
// configuration
func (m *Mailer) SendTest(ctx context.Context, to string) error {
	return m.send(ctx, to,
		"Omni Chat test email",
		"This is a test email from Omni Chat. Your email configuration works.",
		"")
}

// SendTaskResult delivers a task's generated result
func (m *Mailer) SendTaskResult(ctx context.Context, to, taskName, description, result string) error {
	now := time.Now()
	subject := fmt.Sprintf("%s - %s", taskName, now.Format("01/02/06 15:04:05"))

	text := fmt.Sprintf("Task: %s\n\nPrompt:\n%s\n\nResult:\n%s\n\n--\nThis message was sent automatically by the Omni Chat task scheduler.",
		taskName, description, result)

	htmlBody := fmt.Sprintf(`<html><body>
<h2>%s</h2>
<h3>Prompt</h3>
<p>%s</p>
<h3>Result</h3>
<p style="white-space: pre-wrap">%s</p>
<hr>
<p style="color: #888; font-size: 12px">This message was sent automatically by the Omni Chat task scheduler.</p>
</body></html>`,
		html.EscapeString(taskName),
		html.EscapeString(description),
		html.EscapeString(result))

	return m.send(ctx, to, subject, text, htmlBody)
}
