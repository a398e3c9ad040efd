package catalogue

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestCatalogue(t *testing.T) (*Catalogue, string) {
	t.Helper()
	dir := t.TempDir()
	c, err := Load(dir)
	if err != nil {
		t.Fatalf("failed to load catalogue: %v", err)
	}
	return c, dir
}

func TestLoadSeedsDefaults(t *testing.T) {
	c, dir := newTestCatalogue(t)

	snap := c.Snapshot()
	for _, provider := range []string{"openai", "gemini", "anthropic"} {
		p, ok := snap.Providers[provider]
		if !ok || len(p.Models) == 0 {
			t.Fatalf("expected seeded provider %q with models, got %+v", provider, p)
		}
	}

	// The seed persists to disk
	if _, err := os.Stat(filepath.Join(dir, "providers.json")); err != nil {
		t.Fatalf("expected providers.json on disk: %v", err)
	}

	// A reload reads the persisted file, not the seed path
	again, err := Load(dir)
	if err != nil {
		t.Fatalf("failed to reload catalogue: %v", err)
	}
	if !again.HasProvider("openai") {
		t.Fatal("expected reloaded catalogue to keep providers")
	}
}

func TestHasModel(t *testing.T) {
	c, _ := newTestCatalogue(t)

	if !c.HasModel("openai", "gpt-4o") {
		t.Fatal("expected gpt-4o in seeded catalogue")
	}
	if c.HasModel("openai", "not-a-model") {
		t.Fatal("unexpected model match")
	}
	if c.HasModel("nope", "gpt-4o") {
		t.Fatal("unexpected provider match")
	}
}

func TestSetOllama(t *testing.T) {
	c, _ := newTestCatalogue(t)

	if err := c.SetOllama([]string{"mistral:latest", "llama3:8b"}); err != nil {
		t.Fatalf("failed to set ollama models: %v", err)
	}
	p, ok := c.Snapshot().Providers["ollama"]
	if !ok {
		t.Fatal("expected ollama provider entry")
	}
	// Model lists stay sorted
	if len(p.Models) != 2 || p.Models[0] != "llama3:8b" {
		t.Fatalf("unexpected models: %v", p.Models)
	}

	// An empty list removes the entry
	if err := c.SetOllama(nil); err != nil {
		t.Fatalf("failed to clear ollama models: %v", err)
	}
	if c.HasProvider("ollama") {
		t.Fatal("expected ollama entry removed")
	}
}

func TestFavorites(t *testing.T) {
	c, _ := newTestCatalogue(t)

	if err := c.AddFavorite("openai", "gpt-4o"); err != nil {
		t.Fatalf("failed to add favorite: %v", err)
	}
	// Adding twice is idempotent
	if err := c.AddFavorite("openai", "gpt-4o"); err != nil {
		t.Fatalf("failed to re-add favorite: %v", err)
	}
	favs := c.Snapshot().Favorites
	if len(favs) != 1 || favs[0] != "openai:gpt-4o" {
		t.Fatalf("unexpected favorites: %v", favs)
	}

	if err := c.AddFavorite("openai", "not-a-model"); err == nil {
		t.Fatal("expected error for unknown model")
	}

	if err := c.RemoveFavorite("openai", "gpt-4o"); err != nil {
		t.Fatalf("failed to remove favorite: %v", err)
	}
	if len(c.Snapshot().Favorites) != 0 {
		t.Fatal("expected favorites cleared")
	}
	// Removing an absent favorite is not an error
	if err := c.RemoveFavorite("openai", "gpt-4o"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBlacklist(t *testing.T) {
	c, _ := newTestCatalogue(t)

	if err := c.AddBlacklistWord("  Preview "); err != nil {
		t.Fatalf("failed to add blacklist word: %v", err)
	}
	if err := c.AddBlacklistWord("beta"); err != nil {
		t.Fatalf("failed to add blacklist word: %v", err)
	}
	// Lowercased and sorted
	words := c.Snapshot().Blacklist
	if len(words) != 2 || words[0] != "beta" || words[1] != "preview" {
		t.Fatalf("unexpected blacklist: %v", words)
	}

	if err := c.AddBlacklistWord("   "); err == nil {
		t.Fatal("expected error for empty word")
	}

	if err := c.RemoveBlacklistWord("PREVIEW"); err != nil {
		t.Fatalf("failed to remove blacklist word: %v", err)
	}
	words = c.Snapshot().Blacklist
	if len(words) != 1 || words[0] != "beta" {
		t.Fatalf("unexpected blacklist after removal: %v", words)
	}
}

func TestSetDefault(t *testing.T) {
	c, _ := newTestCatalogue(t)

	if err := c.SetDefault("gemini", "gemini-2.5-pro"); err != nil {
		t.Fatalf("failed to set default: %v", err)
	}
	def := c.Snapshot().Default
	if def == nil || def.Provider != "gemini" || def.Model != "gemini-2.5-pro" {
		t.Fatalf("unexpected default: %+v", def)
	}

	if err := c.SetDefault("gemini", "not-a-model"); err == nil {
		t.Fatal("expected error for unknown model")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	c, _ := newTestCatalogue(t)

	snap := c.Snapshot()
	snap.Providers["openai"] = Provider{Name: "mutated"}
	snap.Favorites = append(snap.Favorites, "x:y")

	if c.Snapshot().Providers["openai"].Name == "mutated" {
		t.Fatal("snapshot mutation leaked into catalogue")
	}
	if len(c.Snapshot().Favorites) != 0 {
		t.Fatal("snapshot favorites mutation leaked")
	}
}
