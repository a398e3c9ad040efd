// Package settings manages the .env-backed application secrets: API
// keys per provider and the SMTP configuration used for task emails.
// Updates rewrite the .env file and keep the process environment in
// sync so freshly saved keys take effect without a restart.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// Env var names for provider API keys. Ollama runs locally and has no
// key.
var keyEnvVars = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"gemini":    "GEMINI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
}

// SMTP env var names
const (
	envSMTPServer   = "SMTP_SERVER"
	envSMTPPort     = "SMTP_PORT"
	envSMTPUsername = "SMTP_USERNAME"
	envSMTPPassword = "SMTP_PASSWORD"
	envSMTPUseTLS   = "SMTP_USE_TLS"
	envFromEmail    = "FROM_EMAIL"
)

const placeholderPrefix = "PUT_"

// EmailConfig holds SMTP delivery settings
type EmailConfig struct {
	Server   string `json:"smtp_server"`
	Port     int    `json:"smtp_port"`
	Username string `json:"smtp_username"`
	Password string `json:"smtp_password"`
	UseTLS   bool   `json:"use_tls"`
	From     string `json:"from_email"`
}

// Configured reports whether enough fields are set to send mail
func (c EmailConfig) Configured() bool {
	return c.Server != "" && c.Port > 0 && c.From != ""
}

// Manager reads and writes the .env settings file
type Manager struct {
	mu   sync.Mutex
	path string
}

// NewManager creates a settings manager for the .env file under
// dataPath
func NewManager(dataPath string) *Manager {
	return &Manager{path: filepath.Join(dataPath, ".env")}
}

// Path returns the .env file location
func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) read() (map[string]string, error) {
	values, err := godotenv.Read(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}
	return values, nil
}

func (m *Manager) write(values map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	if err := godotenv.Write(values, m.path); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}
	return nil
}

// KeyProviders returns the providers that take an API key
func KeyProviders() []string {
	return []string{"openai", "gemini", "anthropic"}
}

// IsPlaceholder reports whether a key value counts as unset: empty or
// still carrying the template placeholder.
func IsPlaceholder(value string) bool {
	v := strings.TrimSpace(value)
	return v == "" || strings.HasPrefix(v, placeholderPrefix)
}

// APIKey returns the stored key for a provider. The .env file wins
// over the process environment. An unset or placeholder key returns "".
func (m *Manager) APIKey(provider string) string {
	envVar, ok := keyEnvVars[strings.ToLower(provider)]
	if !ok {
		return ""
	}

	m.mu.Lock()
	values, err := m.read()
	m.mu.Unlock()

	value := ""
	if err == nil {
		value = values[envVar]
	}
	if value == "" {
		value = os.Getenv(envVar)
	}
	if IsPlaceholder(value) {
		return ""
	}
	return strings.TrimSpace(value)
}

// Keys returns the key status per provider: true when a usable key is
// present. Raw key material never leaves this package through Keys.
func (m *Manager) Keys() map[string]bool {
	status := make(map[string]bool, len(keyEnvVars))
	for provider := range keyEnvVars {
		status[provider] = m.APIKey(provider) != ""
	}
	return status
}

// SetKey stores an API key for a provider. An empty value removes the
// key.
func (m *Manager) SetKey(provider, value string) error {
	envVar, ok := keyEnvVars[strings.ToLower(provider)]
	if !ok {
		return fmt.Errorf("unknown provider: %s", provider)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	values, err := m.read()
	if err != nil {
		return err
	}

	value = strings.TrimSpace(value)
	if value == "" {
		delete(values, envVar)
		os.Unsetenv(envVar)
	} else {
		values[envVar] = value
		os.Setenv(envVar, value)
	}
	return m.write(values)
}

// DeleteKey removes a provider's API key
func (m *Manager) DeleteKey(provider string) error {
	return m.SetKey(provider, "")
}

// Email returns the stored SMTP configuration
func (m *Manager) Email() (EmailConfig, error) {
	m.mu.Lock()
	values, err := m.read()
	m.mu.Unlock()
	if err != nil {
		return EmailConfig{}, err
	}

	get := func(key string) string {
		if v, ok := values[key]; ok && v != "" {
			return v
		}
		return os.Getenv(key)
	}

	cfg := EmailConfig{
		Server:   get(envSMTPServer),
		Username: get(envSMTPUsername),
		Password: get(envSMTPPassword),
		From:     get(envFromEmail),
	}
	if port := get(envSMTPPort); port != "" {
		cfg.Port, _ = strconv.Atoi(port)
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	useTLS := strings.ToLower(get(envSMTPUseTLS))
	cfg.UseTLS = useTLS != "false" && useTLS != "0"
	return cfg, nil
}

// SetEmail stores the SMTP configuration. An empty password keeps the
// previously stored one, so a masked round-trip does not wipe it.
func (m *Manager) SetEmail(cfg EmailConfig) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid SMTP port: %d", cfg.Port)
	}
	if cfg.From == "" || !strings.Contains(cfg.From, "@") {
		return fmt.Errorf("invalid from address: %q", cfg.From)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	values, err := m.read()
	if err != nil {
		return err
	}

	values[envSMTPServer] = cfg.Server
	values[envSMTPPort] = strconv.Itoa(cfg.Port)
	values[envSMTPUsername] = cfg.Username
	if cfg.Password != "" {
		values[envSMTPPassword] = cfg.Password
	}
	values[envSMTPUseTLS] = strconv.FormatBool(cfg.UseTLS)
	values[envFromEmail] = cfg.From

	for k, v := range values {
		os.Setenv(k, v)
	}
	return m.write(values)
}
