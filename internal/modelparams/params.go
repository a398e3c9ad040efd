// Package modelparams serves the tunable-parameter schema per provider
// and model family. The UI renders its parameter controls from these
// descriptors instead of hard-coding them.
package modelparams

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v2"
)

//go:embed params.yaml
var rawCatalogue []byte

// Param describes one tunable parameter
type Param struct {
	Name    string      `yaml:"name" json:"name"`
	Label   string      `yaml:"label" json:"label"`
	Type    string      `yaml:"type" json:"type"` // float, int, bool, string, select
	Min     *float64    `yaml:"min" json:"min,omitempty"`
	Max     *float64    `yaml:"max" json:"max,omitempty"`
	Step    *float64    `yaml:"step" json:"step,omitempty"`
	Default interface{} `yaml:"default" json:"default,omitempty"`
	Options []string    `yaml:"options" json:"options,omitempty"`
}

type family struct {
	Prefix  string  `yaml:"prefix"`
	Replace bool    `yaml:"replace"`
	Params  []Param `yaml:"params"`
}

type providerSchema struct {
	Base     []Param  `yaml:"base"`
	Families []family `yaml:"families"`
}

type catalogue struct {
	Providers map[string]providerSchema `yaml:"providers"`
}

// Schema resolves parameter descriptors against the embedded catalogue
type Schema struct {
	providers map[string]providerSchema
}

// Load parses the embedded catalogue
func Load() (*Schema, error) {
	var c catalogue
	if err := yaml.Unmarshal(rawCatalogue, &c); err != nil {
		return nil, fmt.Errorf("failed to parse parameter catalogue: %w", err)
	}
	return &Schema{providers: c.Providers}, nil
}

// ForModel returns the parameters for a provider/model pair. Family
// entries match by model name prefix; a replacing family discards the
// base set, otherwise its parameters append to it.
func (s *Schema) ForModel(provider, model string) ([]Param, error) {
	schema, ok := s.providers[strings.ToLower(provider)]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}

	params := append([]Param{}, schema.Base...)
	lower := strings.ToLower(model)
	for _, fam := range schema.Families {
		if !strings.HasPrefix(lower, fam.Prefix) {
			continue
		}
		if fam.Replace {
			params = append([]Param{}, fam.Params...)
		} else {
			params = append(params, fam.Params...)
		}
	}
	return params, nil
}

// Providers lists the providers present in the catalogue
func (s *Schema) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	return names
}
