// Package sizecache caches measured bundle sizes in memory and on disk.
package sizecache

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Sumatoshi-tech/importcost/pkg/importmodel"
)

// DefaultMemoryEntries is the default capacity of the in-memory LRU tier.
const DefaultMemoryEntries = 4096

// cacheSubdir is the directory under the user cache dir holding the disk tier.
const cacheSubdir = "importcost"

// Key identifies a measurement. Keys are content-derived so that reordering
// import specifiers in the source cannot force recomputation.
type Key struct {
	Package string
	Version string
	Import  string
}

// String renders the key for the serialized disk map.
func (k Key) String() string {
	return k.Package + "@" + k.Version + "|" + k.Import
}

// Config holds parameters for creating a Cache.
type Config struct {
	// Dir is the disk tier directory. Empty selects the user cache dir.
	Dir string

	// MemoryEntries is the in-memory LRU capacity. Zero selects the default.
	MemoryEntries int

	// BundlerVersion participates in disk invalidation: a cache written by a
	// different bundler is discarded wholesale.
	BundlerVersion string

	Logger *slog.Logger
}

// Cache is a two-tier size cache: an in-memory LRU in front of a versioned
// disk file. Get and Put are safe for concurrent use. Clear empties the
// memory tier only; subsequent misses rehydrate from disk.
type Cache struct {
	mem    *lru.Cache[string, importmodel.SizeResult]
	disk   *diskStore
	logger *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a Cache backed by the given directory.
func New(cfg Config) (*Cache, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	entries := cfg.MemoryEntries
	if entries <= 0 {
		entries = DefaultMemoryEntries
	}

	mem, err := lru.New[string, importmodel.SizeResult](entries)
	if err != nil {
		return nil, fmt.Errorf("create memory tier: %w", err)
	}

	dir := cfg.Dir
	if dir == "" {
		dir, err = defaultDir()
		if err != nil {
			return nil, err
		}
	}

	return &Cache{
		mem:    mem,
		disk:   newDiskStore(dir, cfg.BundlerVersion, logger),
		logger: logger,
	}, nil
}

func defaultDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("locate user cache dir: %w", err)
	}

	return filepath.Join(base, cacheSubdir), nil
}

// Get looks up a measurement, consulting memory first and rehydrating from
// disk on a memory miss.
func (c *Cache) Get(key Key) (importmodel.SizeResult, bool) {
	ks := key.String()

	if res, ok := c.mem.Get(ks); ok {
		c.hits.Add(1)

		return res, true
	}

	if res, ok := c.disk.lookup(ks); ok {
		c.mem.Add(ks, res)
		c.hits.Add(1)

		return res, true
	}

	c.misses.Add(1)

	return importmodel.SizeResult{}, false
}

// Put stores a measurement in both tiers. Disk failures are logged and
// tolerated; the memory tier stays authoritative for the process lifetime.
func (c *Cache) Put(key Key, res importmodel.SizeResult) {
	ks := key.String()

	c.mem.Add(ks, res)

	if err := c.disk.store(ks, res); err != nil {
		c.logger.Warn("size cache disk write failed", "key", ks, "error", err)
	}
}

// Clear empties the in-memory tier. Disk state is untouched and rehydrates
// on the next miss.
func (c *Cache) Clear() {
	c.mem.Purge()
}

// RemoveDiskTier deletes the on-disk cache file.
func (c *Cache) RemoveDiskTier() error {
	return c.disk.remove()
}

// DiskPath returns the path of the on-disk cache file.
func (c *Cache) DiskPath() string {
	return c.disk.path
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Hits          int64
	Misses        int64
	MemoryEntries int
	DiskEntries   int
}

// HitRate returns the cache hit rate (0.0 to 1.0).
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0.0
	}

	return float64(s.Hits) / float64(total)
}

// Stats returns current cache statistics.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		MemoryEntries: c.mem.Len(),
		DiskEntries:   c.disk.len(),
	}
}
