// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// CacheConfig holds settings for the conversion result cache.
type CacheConfig struct {
	// MaxEntries is the capacity of the cache (default 100). The least
	// recently accessed entry is evicted when the cache is full.
	MaxEntries int `json:"max_entries" yaml:"max_entries"`

	// TTL is how long an entry stays valid after creation (default 1h).
	TTL time.Duration `json:"ttl" yaml:"ttl"`

	// PersistPath, when non-empty, enables a best-effort on-disk snapshot of
	// the cache written after every store.
	PersistPath string `json:"persist_path,omitempty" yaml:"persist_path,omitempty"`

	// Watch enables filesystem watching of cached source files so that
	// on-disk changes invalidate their entries immediately.
	Watch bool `json:"watch" yaml:"watch"`
}

// LicenseConfig holds settings for license activation and trial tracking.
type LicenseConfig struct {
	// Dir is the directory holding the license record and the trial usage
	// database (default: ~/.config/docbridge).
	Dir string `json:"dir" yaml:"dir"`

	// Endpoint is an optional license backend URL. When set, activation
	// attempts online validation first and falls back to offline key
	// verification on any failure.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	// Timeout is the HTTP timeout for online validation (default 10s).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// EventsConfig holds settings for the event bus.
type EventsConfig struct {
	// HistorySize is the capacity of the in-memory event history ring
	// (default 100). Older events are dropped.
	HistorySize int `json:"history_size" yaml:"history_size"`
}

// ProgressConfig holds settings for the operation tracker.
type ProgressConfig struct {
	// RetainFor is how long finished operations are kept before Cleanup
	// evicts them (default 1h).
	RetainFor time.Duration `json:"retain_for" yaml:"retain_for"`
}

// ConvertConfig holds settings for the conversion engine.
type ConvertConfig struct {
	// Workers is the maximum number of parallel conversions in a batch run
	// (default 4).
	Workers int `json:"workers" yaml:"workers"`

	// PresetsFile is an optional YAML document of named conversion presets.
	PresetsFile string `json:"presets_file,omitempty" yaml:"presets_file,omitempty"`
}

// ToolkitConfig groups all component configurations. It is built once at
// startup (from the config file, environment, and flags) and handed to the
// engine constructor; components never read global state.
type ToolkitConfig struct {
	Cache    CacheConfig    `json:"cache" yaml:"cache"`
	License  LicenseConfig  `json:"license" yaml:"license"`
	Events   EventsConfig   `json:"events" yaml:"events"`
	Progress ProgressConfig `json:"progress" yaml:"progress"`
	Convert  ConvertConfig  `json:"convert" yaml:"convert"`
}
