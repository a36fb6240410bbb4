// Package maps resolves, decodes and caches terrain map files.
package maps

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash"
	"go.uber.org/zap"

	"github.com/Faultbox/terrmap/internal/config"
	"github.com/Faultbox/terrmap/internal/logger"
	"github.com/Faultbox/terrmap/pkg/formats"
)

// Manager loads terrain maps from a set of search directories and keeps
// decoded grids cached by file content fingerprint.
type Manager struct {
	dirs   []string
	strict bool
	cache  *Cache
	mu     sync.RWMutex
}

// NewManager creates a manager from the maps configuration.
func NewManager(cfg config.MapsConfig) *Manager {
	m := &Manager{
		strict: cfg.Strict,
		cache:  NewCache(),
	}
	for _, dir := range cfg.SearchPaths {
		m.AddSearchPath(dir)
	}
	return m
}

// AddSearchPath adds a directory to search for terrain files.
// Directories are searched in reverse order (last added = highest priority).
func (m *Manager) AddSearchPath(dir string) {
	m.mu.Lock()
	m.dirs = append(m.dirs, dir)
	m.mu.Unlock()
}

// Load returns the decoded terrain map for the given file name,
// resolving it across the search directories. The result is cached; a
// map whose bytes changed on disk since the last load is decoded again.
func (m *Manager) Load(name string) (*formats.TERR, error) {
	path, err := m.resolve(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading terrain map %s: %w", path, err)
	}
	sum := xxhash.Sum64(data)

	if terr, ok := m.cache.Get(path, sum); ok {
		logger.Debug("terrain map cache hit",
			zap.String("path", path),
			zap.Uint64("fingerprint", sum))
		return terr, nil
	}

	decode := formats.DecodeTERR
	if m.strict {
		decode = formats.DecodeTERRStrict
	}

	terr, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding terrain map %s: %w", path, err)
	}

	logger.Info("terrain map loaded",
		zap.String("path", path),
		zap.Uint32("version", terr.Version),
		zap.Int("width", terr.Width),
		zap.Int("height", terr.Height),
		zap.Int("cluster_size", terr.ClusterSize),
		zap.Uint64("fingerprint", sum))

	m.cache.Set(path, sum, terr)
	return terr, nil
}

// resolve finds the terrain file in the search directories, last
// directory first.
func (m *Manager) resolve(name string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.dirs) - 1; i >= 0; i-- {
		path := filepath.Join(m.dirs[i], name)
		if _, err := os.Stat(path); err == nil {
			return filepath.Clean(path), nil
		}
	}

	return "", fmt.Errorf("terrain map not found: %s", name)
}

// Clear drops all cached grids.
func (m *Manager) Clear() {
	m.cache.Clear()
}

// CacheStats returns the cache hit and miss counters.
func (m *Manager) CacheStats() (hits, misses int) {
	return m.cache.Stats()
}

// cacheEntry pairs a decoded grid with the fingerprint of the bytes it
// was decoded from.
type cacheEntry struct {
	sum  uint64
	terr *formats.TERR
}

// Cache is an in-memory cache for decoded terrain maps, keyed by path
// and invalidated by content fingerprint.
type Cache struct {
	entries map[string]cacheEntry
	mu      sync.RWMutex

	// Stats
	hits   int
	misses int
}

// NewCache creates a new cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
	}
}

// Get retrieves a decoded map if it is cached with the same fingerprint.
// A fingerprint mismatch counts as a miss.
func (c *Cache) Get(path string, sum uint64) (*formats.TERR, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[path]
	if !ok || e.sum != sum {
		c.misses++
		return nil, false
	}

	c.hits++
	return e.terr, true
}

// Set stores a decoded map.
func (c *Cache) Set(path string, sum uint64, terr *formats.TERR) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[path] = cacheEntry{sum: sum, terr: terr}
}

// Clear clears the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
	c.hits = 0
	c.misses = 0
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}
