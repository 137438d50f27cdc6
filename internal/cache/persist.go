// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.yaml.in/yaml/v3"
)

// snapshot is the on-disk cache representation.
type snapshot struct {
	Entries []*Entry `yaml:"entries"`
}

// load reads the snapshot at persistPath into the cache. Entries are added
// oldest-accessed first so LRU order survives the round trip. A missing file
// is not an error.
func (c *Cache) load() error {
	data, err := os.ReadFile(c.persistPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading cache snapshot %s: %w", c.persistPath, err)
	}

	var snap snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parsing cache snapshot %s: %w", c.persistPath, err)
	}

	sort.Slice(snap.Entries, func(i, j int) bool {
		return snap.Entries[i].AccessedAt.Before(snap.Entries[j].AccessedAt)
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range snap.Entries {
		if e.Key == "" {
			continue
		}
		c.entries.Add(e.Key, e)
	}
	return nil
}

// save writes the full cache to persistPath. Best-effort: the write is not
// atomic with respect to concurrent Puts; callers treat persistence as a
// cache warm-up aid, not durable state.
func (c *Cache) save() error {
	c.mu.Lock()
	snap := snapshot{Entries: make([]*Entry, 0, c.entries.Len())}
	for _, key := range c.entries.Keys() {
		if e, ok := c.entries.Peek(key); ok {
			snap.Entries = append(snap.Entries, e)
		}
	}
	c.mu.Unlock()

	data, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding cache snapshot: %w", err)
	}

	if dir := filepath.Dir(c.persistPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating snapshot directory: %w", err)
		}
	}
	if err := os.WriteFile(c.persistPath, data, 0o644); err != nil {
		return fmt.Errorf("writing cache snapshot %s: %w", c.persistPath, err)
	}
	return nil
}
