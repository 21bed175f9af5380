// Package filecache is the short-lived in-process cache for whole,
// reassembled files, plus per-file access counters with their own TTL.
package filecache

import (
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/marmos91/shardstore/internal/logger"
)

// Config holds the cache policy.
type Config struct {
	// FileTTL is how long a cached file stays valid. Default 1 hour.
	FileTTL time.Duration

	// MaxFileSize caps which files get cached at all. Default 50 MiB.
	MaxFileSize int64

	// AccessCountTTL is the lifetime of the per-file access counters.
	// Default 24 hours.
	AccessCountTTL time.Duration
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.FileTTL <= 0 {
		c.FileTTL = time.Hour
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 50 * 1024 * 1024
	}
	if c.AccessCountTTL <= 0 {
		c.AccessCountTTL = 24 * time.Hour
	}
}

// Stats is a point-in-time snapshot of the cache.
type Stats struct {
	Items       int   `json:"items"`
	SizeBytes   int64 `json:"size_bytes"`
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	MaxFileSize int64 `json:"max_file_size"`
}

// Cache holds reassembled file bytes keyed by file ID. Counters live in
// a second map so the hot read path never contends with them.
type Cache struct {
	files    *gocache.Cache
	counters *gocache.Cache
	config   Config

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates the cache.
func New(config Config) *Cache {
	config.ApplyDefaults()
	return &Cache{
		files:    gocache.New(config.FileTTL, 10*time.Minute),
		counters: gocache.New(config.AccessCountTTL, time.Hour),
		config:   config,
	}
}

// Get returns the cached bytes for a file, or nil and false on miss.
func (c *Cache) Get(fileID string) ([]byte, bool) {
	value, ok := c.files.Get(fileID)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return value.([]byte), true
}

// Put stores a file's bytes. Files over the size cap are not cached;
// the return value reports whether the file was kept.
func (c *Cache) Put(fileID string, data []byte) bool {
	if int64(len(data)) > c.config.MaxFileSize {
		return false
	}
	c.files.Set(fileID, data, gocache.DefaultExpiration)
	logger.Debug("File cached", "file_id", fileID, "size", len(data))
	return true
}

// Invalidate drops a file's cached bytes. Called on any structural
// change to the file's chunks; replica creation does not invalidate
// since the bytes are unchanged.
func (c *Cache) Invalidate(fileID string) {
	c.files.Delete(fileID)
}

// RecordAccess bumps the file's access counter and returns the new
// value. The counter's TTL restarts on first access after expiry only.
func (c *Cache) RecordAccess(fileID string) int64 {
	if err := c.counters.Add(fileID, int64(1), gocache.DefaultExpiration); err == nil {
		return 1
	}
	n, err := c.counters.IncrementInt64(fileID, 1)
	if err != nil {
		// Counter expired between Add and Increment; start over.
		c.counters.Set(fileID, int64(1), gocache.DefaultExpiration)
		return 1
	}
	return n
}

// AccessCount returns the file's current access counter.
func (c *Cache) AccessCount(fileID string) int64 {
	value, ok := c.counters.Get(fileID)
	if !ok {
		return 0
	}
	return value.(int64)
}

// Stats returns a snapshot of cache occupancy and hit rates.
func (c *Cache) Stats() Stats {
	items := c.files.Items()
	var size int64
	for _, item := range items {
		if data, ok := item.Object.([]byte); ok {
			size += int64(len(data))
		}
	}
	return Stats{
		Items:       len(items),
		SizeBytes:   size,
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		MaxFileSize: c.config.MaxFileSize,
	}
}

// Flush drops every cached file. Access counters survive.
func (c *Cache) Flush() {
	c.files.Flush()
	logger.Info("File cache flushed")
}
