// Package catalogue manages the providers.json file: the provider and
// model catalogue shown to the UI, plus favorites, the model blacklist
// and the default model selection.
package catalogue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Provider describes one catalogue entry
type Provider struct {
	Name   string   `json:"name"`
	Models []string `json:"models"`
}

// Selection is a provider/model pair
type Selection struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Data is the persisted catalogue document
type Data struct {
	Providers map[string]Provider `json:"providers"`
	Favorites []string            `json:"favorites"` // "provider:model" keys
	Blacklist []string            `json:"blacklist"` // lowercase substrings
	Default   *Selection          `json:"default,omitempty"`
}

// Catalogue provides concurrency-safe access to the providers.json
// file. Writes go through a temp file and rename.
type Catalogue struct {
	mu   sync.Mutex
	path string
	data Data
}

func seedData() Data {
	return Data{
		Providers: map[string]Provider{
			"openai": {
				Name:   "OpenAI",
				Models: []string{"gpt-4o", "gpt-4o-mini", "gpt-4.1", "gpt-4.1-mini", "gpt-5", "o3", "o3-mini"},
			},
			"gemini": {
				Name:   "Gemini",
				Models: []string{"gemini-2.0-flash", "gemini-2.5-flash", "gemini-2.5-pro"},
			},
			"anthropic": {
				Name:   "Anthropic",
				Models: []string{"claude-sonnet-4-20250514", "claude-3-5-haiku-20241022"},
			},
		},
		Favorites: []string{},
		Blacklist: []string{},
	}
}

// Load opens the catalogue at dataPath/providers.json, seeding it with
// the bundled defaults when missing.
func Load(dataPath string) (*Catalogue, error) {
	c := &Catalogue{path: filepath.Join(dataPath, "providers.json")}

	raw, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read catalogue: %w", err)
		}
		c.data = seedData()
		if err := c.save(); err != nil {
			return nil, err
		}
		return c, nil
	}

	if err := json.Unmarshal(raw, &c.data); err != nil {
		return nil, fmt.Errorf("failed to parse catalogue: %w", err)
	}
	if c.data.Providers == nil {
		c.data.Providers = map[string]Provider{}
	}
	if c.data.Favorites == nil {
		c.data.Favorites = []string{}
	}
	if c.data.Blacklist == nil {
		c.data.Blacklist = []string{}
	}
	return c, nil
}

// save writes the catalogue atomically. Callers hold the lock.
func (c *Catalogue) save() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create catalogue directory: %w", err)
	}

	raw, err := json.MarshalIndent(c.data, "", "  ")
	if err != nil {
		return err
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("failed to write catalogue: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace catalogue: %w", err)
	}
	return nil
}

// Snapshot returns a deep copy of the catalogue document
func (c *Catalogue) Snapshot() Data {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := Data{
		Providers: make(map[string]Provider, len(c.data.Providers)),
		Favorites: append([]string{}, c.data.Favorites...),
		Blacklist: append([]string{}, c.data.Blacklist...),
	}
	for id, p := range c.data.Providers {
		out.Providers[id] = Provider{Name: p.Name, Models: append([]string{}, p.Models...)}
	}
	if c.data.Default != nil {
		d := *c.data.Default
		out.Default = &d
	}
	return out
}

// HasModel reports whether the provider/model pair exists in the
// catalogue
func (c *Catalogue) HasModel(provider, model string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasModelLocked(provider, model)
}

func (c *Catalogue) hasModelLocked(provider, model string) bool {
	p, ok := c.data.Providers[provider]
	if !ok {
		return false
	}
	for _, m := range p.Models {
		if m == model {
			return true
		}
	}
	return false
}

// HasProvider reports whether a provider exists in the catalogue
func (c *Catalogue) HasProvider(provider string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data.Providers[provider]
	return ok
}

// SetOllama replaces the local provider entry with the given model
// list. An empty list removes the entry (server unreachable).
func (c *Catalogue) SetOllama(models []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(models) == 0 {
		delete(c.data.Providers, "ollama")
	} else {
		sorted := append([]string{}, models...)
		sort.Strings(sorted)
		c.data.Providers["ollama"] = Provider{Name: "Ollama", Models: sorted}
	}
	return c.save()
}

func favoriteKey(provider, model string) string {
	return provider + ":" + model
}

// AddFavorite marks a provider/model pair as a favorite
func (c *Catalogue) AddFavorite(provider, model string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hasModelLocked(provider, model) {
		return fmt.Errorf("unknown model: %s/%s", provider, model)
	}

	key := favoriteKey(provider, model)
	for _, f := range c.data.Favorites {
		if f == key {
			return nil
		}
	}
	c.data.Favorites = append(c.data.Favorites, key)
	return c.save()
}

// RemoveFavorite unmarks a favorite. Removing an absent favorite is
// not an error.
func (c *Catalogue) RemoveFavorite(provider, model string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := favoriteKey(provider, model)
	kept := c.data.Favorites[:0]
	for _, f := range c.data.Favorites {
		if f != key {
			kept = append(kept, f)
		}
	}
	c.data.Favorites = kept
	return c.save()
}

// AddBlacklistWord adds a lowercase word to the model blacklist
func (c *Catalogue) AddBlacklistWord(word string) error {
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return fmt.Errorf("blacklist word is empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, w := range c.data.Blacklist {
		if w == word {
			return nil
		}
	}
	c.data.Blacklist = append(c.data.Blacklist, word)
	sort.Strings(c.data.Blacklist)
	return c.save()
}

// RemoveBlacklistWord removes a word from the model blacklist
func (c *Catalogue) RemoveBlacklistWord(word string) error {
	word = strings.ToLower(strings.TrimSpace(word))

	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.data.Blacklist[:0]
	for _, w := range c.data.Blacklist {
		if w != word {
			kept = append(kept, w)
		}
	}
	c.data.Blacklist = kept
	return c.save()
}

// SetDefault records the default provider/model selection
func (c *Catalogue) SetDefault(provider, model string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hasModelLocked(provider, model) {
		return fmt.Errorf("unknown model: %s/%s", provider, model)
	}
	c.data.Default = &Selection{Provider: provider, Model: model}
	return c.save()
}
