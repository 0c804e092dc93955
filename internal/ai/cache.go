package ai

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// cacheEntry represents a cached completion.
type cacheEntry struct {
	expiry     time.Time
	completion Completion
}

// completionCache provides thread-safe TTL caching for completions so
// repeated prompts within one session cost nothing.
type completionCache struct {
	entries map[string]cacheEntry
	stopCh  chan struct{}
	ttl     time.Duration
	mu      sync.RWMutex
}

func newCompletionCache(ttl time.Duration) *completionCache {
	if ttl == 0 {
		ttl = 15 * time.Minute
	}

	cache := &completionCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}

	go cache.cleanup()

	return cache
}

// cacheKey hashes the parts of a task that determine its answer.
func cacheKey(task Task) string {
	h := sha256.New()
	h.Write([]byte(task.Preference))
	h.Write([]byte{0})
	h.Write([]byte(task.Model))
	h.Write([]byte{0})
	h.Write([]byte(task.SystemPrompt))
	h.Write([]byte{0})
	h.Write([]byte(task.Prompt))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *completionCache) get(key string) (Completion, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key]
	if !exists {
		return Completion{}, false
	}

	if time.Now().After(entry.expiry) {
		return Completion{}, false
	}

	return entry.completion, true
}

func (c *completionCache) set(key string, completion Completion) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		completion: completion,
		expiry:     time.Now().Add(c.ttl),
	}
}

// cleanup periodically removes expired entries.
func (c *completionCache) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, entry := range c.entries {
				if now.After(entry.expiry) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

// Close stops the cleanup goroutine.
func (c *completionCache) Close() {
	close(c.stopCh)
}
