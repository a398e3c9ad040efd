package modelparams

import (
	"testing"
)

func loadSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := Load()
	if err != nil {
		t.Fatalf("failed to load embedded catalogue: %v", err)
	}
	return s
}

func paramNames(params []Param) map[string]bool {
	names := make(map[string]bool, len(params))
	for _, p := range params {
		names[p.Name] = true
	}
	return names
}

func TestProvidersPresent(t *testing.T) {
	s := loadSchema(t)

	providers := paramNamesFromList(s.Providers())
	for _, want := range []string{"openai", "gemini", "anthropic", "ollama"} {
		if !providers[want] {
			t.Fatalf("expected provider %q in catalogue, got %v", want, s.Providers())
		}
	}
}

func paramNamesFromList(list []string) map[string]bool {
	names := make(map[string]bool, len(list))
	for _, n := range list {
		names[n] = true
	}
	return names
}

func TestForModelBase(t *testing.T) {
	s := loadSchema(t)

	params, err := s.ForModel("openai", "gpt-4o")
	if err != nil {
		t.Fatalf("ForModel failed: %v", err)
	}
	names := paramNames(params)
	for _, want := range []string{"temperature", "top_p", "max_tokens"} {
		if !names[want] {
			t.Fatalf("expected %q for gpt-4o, got %v", want, names)
		}
	}
	if names["reasoning_effort"] {
		t.Fatal("gpt-4o should not expose reasoning_effort")
	}
}

func TestForModelReplacingFamily(t *testing.T) {
	s := loadSchema(t)

	params, err := s.ForModel("openai", "o3-mini")
	if err != nil {
		t.Fatalf("ForModel failed: %v", err)
	}
	names := paramNames(params)
	if !names["reasoning_effort"] {
		t.Fatalf("expected reasoning_effort for o3 family, got %v", names)
	}
	// The o3 family replaces the base set; sampling knobs disappear
	if names["temperature"] {
		t.Fatalf("o3 family should drop base sampling params, got %v", names)
	}
}

func TestForModelExtendingFamily(t *testing.T) {
	s := loadSchema(t)

	params, err := s.ForModel("openai", "gpt-5")
	if err != nil {
		t.Fatalf("ForModel failed: %v", err)
	}
	names := paramNames(params)
	// gpt-5 keeps the base set and adds its own
	if !names["temperature"] || !names["reasoning_effort"] {
		t.Fatalf("expected base plus family params for gpt-5, got %v", names)
	}
}

func TestForModelGeminiWebSearch(t *testing.T) {
	s := loadSchema(t)

	params, err := s.ForModel("gemini", "gemini-2.5-pro")
	if err != nil {
		t.Fatalf("ForModel failed: %v", err)
	}
	if !paramNames(params)["web_search"] {
		t.Fatalf("expected web_search for gemini, got %v", paramNames(params))
	}
}

func TestForModelUnknownProvider(t *testing.T) {
	s := loadSchema(t)
	if _, err := s.ForModel("grok", "grok-1"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestForModelCaseInsensitive(t *testing.T) {
	s := loadSchema(t)

	params, err := s.ForModel("OpenAI", "O3-Mini")
	if err != nil {
		t.Fatalf("ForModel failed: %v", err)
	}
	if !paramNames(params)["reasoning_effort"] {
		t.Fatal("expected case-insensitive family match")
	}
}
