// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache stores conversion results keyed by input file content,
// conversion type, and options. Entries expire by TTL, are invalidated when
// the source file's bytes change, and are evicted least-recently-accessed
// first when the cache is full.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pdiddy/docbridge/pkg/types"
)

const defaultMaxEntries = 100

const defaultTTL = time.Hour

// Entry is one cached conversion result. FileHash is the SHA-256 of the
// source file at store time; an empty hash never matches, so an entry whose
// hash computation failed is always treated as stale.
type Entry struct {
	Key            string            `yaml:"key" json:"key"`
	InputFile      string            `yaml:"input_file" json:"input_file"`
	ConversionType string            `yaml:"conversion_type" json:"conversion_type"`
	Result         any               `yaml:"result" json:"result"`
	CreatedAt      time.Time         `yaml:"created_at" json:"created_at"`
	AccessedAt     time.Time         `yaml:"accessed_at" json:"accessed_at"`
	AccessCount    int               `yaml:"access_count" json:"access_count"`
	FileHash       string            `yaml:"file_hash" json:"file_hash"`
	FileSize       int64             `yaml:"file_size" json:"file_size"`
	Metadata       map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Entries   int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Cache is the conversion result cache. Construct with New.
type Cache struct {
	mu          sync.Mutex
	entries     *lru.Cache[string, *Entry]
	ttl         time.Duration
	persistPath string
	warn        io.Writer
	watcher     *Watcher

	hits      uint64
	misses    uint64
	evictions uint64

	// now is the clock, overridable in tests to simulate TTL expiry.
	now func() time.Time
}

// New creates a cache from cfg. When cfg.PersistPath names an existing
// snapshot it is loaded; load failures are logged to warn (stderr when nil)
// and the cache degrades to memory-only. When cfg.Watch is set, a filesystem
// watcher invalidates entries whose source files change on disk.
func New(cfg types.CacheConfig, warn io.Writer) (*Cache, error) {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = defaultMaxEntries
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if warn == nil {
		warn = os.Stderr
	}

	c := &Cache{
		ttl:         cfg.TTL,
		persistPath: cfg.PersistPath,
		warn:        warn,
		now:         time.Now,
	}

	entries, err := lru.New[string, *Entry](cfg.MaxEntries)
	if err != nil {
		return nil, fmt.Errorf("creating cache store: %w", err)
	}
	c.entries = entries

	if c.persistPath != "" {
		if err := c.load(); err != nil {
			fmt.Fprintf(warn, "warning: cache snapshot load failed, continuing in memory: %v\n", err)
		}
	}

	if cfg.Watch {
		w, err := newWatcher(c)
		if err != nil {
			fmt.Fprintf(warn, "warning: cache watcher unavailable: %v\n", err)
		} else {
			c.watcher = w
		}
	}

	return c, nil
}

// Close stops the watcher, if any.
func (c *Cache) Close() error {
	if c.watcher != nil {
		return c.watcher.Close()
	}
	return nil
}

// Key computes the deterministic cache key for a request. Options are
// serialized with sorted keys so equivalent maps produce the same key.
func Key(inputFile, conversionType string, opts map[string]any) string {
	payload := struct {
		InputFile      string         `json:"input_file"`
		ConversionType string         `json:"conversion_type"`
		Options        map[string]any `json:"options,omitempty"`
	}{inputFile, conversionType, opts}

	// encoding/json emits map keys in sorted order, which makes the
	// serialization canonical.
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(inputFile + "|" + conversionType)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Get returns the cached result for a request, or ok=false on a miss. A hit
// requires the entry to be within TTL and the source file's current content
// hash to match the stored one; a stale entry is evicted and reported as a
// miss. A hit bumps the entry's access metadata and LRU recency.
func (c *Cache) Get(inputFile, conversionType string, opts map[string]any) (any, bool) {
	key := Key(inputFile, conversionType, opts)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Peek(key)
	if !ok {
		c.misses++
		return nil, false
	}

	if c.now().Sub(e.CreatedAt) > c.ttl {
		c.entries.Remove(key)
		c.misses++
		return nil, false
	}

	hash, _, err := hashFile(inputFile)
	if err != nil || e.FileHash == "" || hash != e.FileHash {
		c.entries.Remove(key)
		c.misses++
		return nil, false
	}

	e.AccessedAt = c.now()
	e.AccessCount++
	c.entries.Get(key) // bump LRU recency
	c.hits++
	return e.Result, true
}

// Put stores a conversion result. Expired entries are swept first; when the
// cache is full the least recently accessed entry is evicted. A hashing
// failure is not fatal: the entry is stored with an empty hash and will be
// treated as stale on the next Get. When persistence is enabled the snapshot
// is rewritten after every store, best-effort.
func (c *Cache) Put(inputFile, conversionType string, result any, opts map[string]any, metadata map[string]string) {
	key := Key(inputFile, conversionType, opts)

	hash, size, err := hashFile(inputFile)
	if err != nil {
		fmt.Fprintf(c.warn, "warning: hashing %s failed, entry will not survive revalidation: %v\n", inputFile, err)
		hash, size = "", 0
	}

	c.mu.Lock()
	c.sweepExpiredLocked()

	now := c.now()
	evicted := c.entries.Add(key, &Entry{
		Key:            key,
		InputFile:      inputFile,
		ConversionType: conversionType,
		Result:         result,
		CreatedAt:      now,
		AccessedAt:     now,
		FileHash:       hash,
		FileSize:       size,
		Metadata:       metadata,
	})
	if evicted {
		c.evictions++
	}
	c.mu.Unlock()

	if c.watcher != nil {
		c.watcher.Add(inputFile)
	}
	if c.persistPath != "" {
		if err := c.save(); err != nil {
			fmt.Fprintf(c.warn, "warning: cache snapshot save failed: %v\n", err)
		}
	}
}

// sweepExpiredLocked removes entries past TTL. Caller holds the lock.
func (c *Cache) sweepExpiredLocked() {
	now := c.now()
	for _, key := range c.entries.Keys() {
		if e, ok := c.entries.Peek(key); ok && now.Sub(e.CreatedAt) > c.ttl {
			c.entries.Remove(key)
		}
	}
}

// Invalidate removes entries for a source file, optionally restricted to the
// given conversion types. It returns the number of entries removed.
func (c *Cache) Invalidate(inputFile string, conversionTypes ...string) int {
	restrict := make(map[string]struct{}, len(conversionTypes))
	for _, ct := range conversionTypes {
		restrict[ct] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.entries.Keys() {
		e, ok := c.entries.Peek(key)
		if !ok || e.InputFile != inputFile {
			continue
		}
		if len(restrict) > 0 {
			if _, ok := restrict[e.ConversionType]; !ok {
				continue
			}
		}
		c.entries.Remove(key)
		removed++
	}
	return removed
}

// Clear drops all entries and removes the snapshot file if present.
func (c *Cache) Clear() error {
	c.mu.Lock()
	c.entries.Purge()
	c.mu.Unlock()

	if c.persistPath != "" {
		if err := os.Remove(c.persistPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing cache snapshot: %w", err)
		}
	}
	return nil
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Stats returns effectiveness counters. Evictions counts only capacity
// evictions, not TTL or hash invalidations.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:   c.entries.Len(),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// hashFile streams the file through SHA-256 and returns the hex digest and
// the file size.
func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
