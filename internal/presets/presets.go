// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package presets loads and saves named conversion presets: a YAML document
// mapping preset names to a format pair, an optional plugin, and converter
// options.
package presets

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/docbridge/pkg/types"
)

// Preset is one saved conversion configuration.
type Preset struct {
	Source  string         `yaml:"source" json:"source"`
	Target  string         `yaml:"target" json:"target"`
	Plugin  string         `yaml:"plugin,omitempty" json:"plugin,omitempty"`
	Options map[string]any `yaml:"options,omitempty" json:"options,omitempty"`
}

// Store is an in-memory preset table backed by one YAML file.
type Store struct {
	path    string
	presets map[string]Preset
}

// Load reads the preset document at path. A missing file yields an empty
// store; a malformed file is a configuration error, never silently ignored.
func Load(path string) (*Store, error) {
	s := &Store{path: path, presets: make(map[string]Preset)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading presets %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &s.presets); err != nil {
		return nil, types.NewError(types.KindConfiguration, "presets file is malformed").
			WithCause(err).
			WithDetail("path", path)
	}

	for name, p := range s.presets {
		if p.Source == "" || p.Target == "" {
			return nil, types.NewError(types.KindConfiguration, "preset missing source or target format").
				WithDetail("preset", name).
				WithDetail("path", path)
		}
	}
	return s, nil
}

// Get returns the named preset.
func (s *Store) Get(name string) (Preset, error) {
	p, ok := s.presets[name]
	if !ok {
		return Preset{}, types.NewError(types.KindValidation, fmt.Sprintf("unknown preset %q", name)).
			WithDetail("preset", name)
	}
	return p, nil
}

// Names returns the sorted preset names.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.presets))
	for name := range s.presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Set stores a preset in memory; Save persists the table.
func (s *Store) Set(name string, p Preset) error {
	if name == "" {
		return types.NewError(types.KindValidation, "preset name is required")
	}
	if p.Source == "" || p.Target == "" {
		return types.NewError(types.KindValidation, "preset requires source and target formats").
			WithDetail("preset", name)
	}
	s.presets[name] = p
	return nil
}

// Delete removes a preset from memory. It reports whether it existed.
func (s *Store) Delete(name string) bool {
	_, ok := s.presets[name]
	delete(s.presets, name)
	return ok
}

// Save writes the preset table back to its file.
func (s *Store) Save() error {
	data, err := yaml.Marshal(s.presets)
	if err != nil {
		return fmt.Errorf("encoding presets: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating presets directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing presets %s: %w", s.path, err)
	}
	return nil
}
