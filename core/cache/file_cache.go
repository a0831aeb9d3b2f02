// Package cache holds the bounded in-memory file cache shared by every pool
// worker of a process.
//
// The cache has a fixed number of slots and no eviction policy: a new path
// takes the first empty slot, an existing path is overwritten in place, and
// once every slot is occupied new paths are simply not cached.
package cache

import (
	"sync"
	"time"

	"github.com/zeebo/xxh3"
)

// DefaultSlots is the slot count used when none is configured.
const DefaultSlots = 64

// Entry is the cached content and metadata of one file. Entries are never
// mutated after Put publishes them; an overwrite installs a new Entry.
type Entry struct {
	Content      []byte
	Size         int64
	LastModified time.Time
}

type slot struct {
	path  string
	hash  uint64
	entry *Entry
}

// FileCache maps normalized file paths to their last-read content
type FileCache struct {
	mu    sync.RWMutex
	slots []slot
	used  int
}

// Stats is a point-in-time view of slot usage.
type Stats struct {
	Slots int `json:"slots"`
	Used  int `json:"used"`
}

// New creates a cache with n slots (DefaultSlots when n <= 0).
func New(n int) *FileCache {
	if n <= 0 {
		n = DefaultSlots
	}
	return &FileCache{slots: make([]slot, n)}
}

// find returns the slot index holding path, or -1. Caller holds mu.
func (c *FileCache) find(path string, h uint64) int {
	for i := range c.slots {
		s := &c.slots[i]
		if s.entry != nil && s.hash == h && s.path == path {
			return i
		}
	}
	return -1
}

// Get returns the entry cached for path.
func (c *FileCache) Get(path string) (*Entry, bool) {
	h := xxh3.HashString(path)

	c.mu.RLock()
	defer c.mu.RUnlock()

	if idx := c.find(path, h); idx >= 0 {
		return c.slots[idx].entry, true
	}
	return nil, false
}

// Put stores content for path and reports whether it was stored. The cache
// takes ownership of content; callers must not modify it afterwards.
// When the path is new and every slot is taken, nothing is stored.
func (c *FileCache) Put(path string, content []byte, lastModified time.Time) bool {
	if path == "" {
		return false
	}
	h := xxh3.HashString(path)
	entry := &Entry{
		Content:      content,
		Size:         int64(len(content)),
		LastModified: lastModified,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.find(path, h)
	if idx < 0 {
		for i := range c.slots {
			if c.slots[i].entry == nil {
				idx = i
				break
			}
		}
		if idx < 0 {
			return false
		}
		c.used++
	}

	c.slots[idx] = slot{path: path, hash: h, entry: entry}
	return true
}

// Len returns the number of occupied slots.
func (c *FileCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.used
}

// Cap returns the slot count.
func (c *FileCache) Cap() int {
	return len(c.slots)
}

// Stats returns slot usage.
func (c *FileCache) Stats() Stats {
	return Stats{Slots: c.Cap(), Used: c.Len()}
}
