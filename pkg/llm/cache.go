// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/teradata-labs/sentinel/pkg/clock"
)

const (
	// DefaultCacheTTL bounds staleness of cached completions.
	DefaultCacheTTL = 1 * time.Hour

	// DefaultCacheMaxEntries bounds cache memory; oldest entries evict first.
	DefaultCacheMaxEntries = 1000

	// cacheableMaxTemperature: above this, responses are too variable to
	// reuse, so they are never cached.
	cacheableMaxTemperature = 0.5
)

type cacheEntry struct {
	value      *Response
	insertedAt time.Time
	expiresAt  time.Time
	hits       int64
}

// Cache is a hash-keyed, TTL-bound, size-bound response cache.
// The cache is advisory: a miss is never an error. Safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	order      []string // insertion order for eviction
	ttl        time.Duration
	maxEntries int
	clk        clock.Clock

	hits   int64
	misses int64
}

// NewCache creates a response cache. Zero ttl/maxEntries use the defaults.
func NewCache(ttl time.Duration, maxEntries int, clk clock.Clock) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Cache{
		entries:    make(map[string]*cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		clk:        clk,
	}
}

// CacheKey derives the lookup key for a request.
func CacheKey(req Request) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%.3f\x00%s\x00%s", req.Model, req.Temperature, req.System, req.User)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached response for a request, or nil on miss.
// Expired entries are evicted on access.
func (c *Cache) Get(req Request) *Response {
	key := CacheKey(req)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil
	}
	if c.clk.Now().After(entry.expiresAt) {
		c.removeLocked(key)
		c.misses++
		return nil
	}
	entry.hits++
	c.hits++
	return entry.value
}

// Put stores a response unless the request temperature disqualifies it.
func (c *Cache) Put(req Request, resp *Response) {
	if resp == nil || req.Temperature > cacheableMaxTemperature {
		return
	}
	key := CacheKey(req)
	now := c.clk.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = &cacheEntry{
		value:      resp,
		insertedAt: now,
		expiresAt:  now.Add(c.ttl),
	}

	// Enforce the size cap, oldest first.
	for len(c.entries) > c.maxEntries && len(c.order) > 0 {
		c.removeLocked(c.order[0])
	}
}

func (c *Cache) removeLocked(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// CacheStats is a point-in-time cache snapshot.
type CacheStats struct {
	Entries int
	Hits    int64
	Misses  int64
	HitRate float64
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

// Clear drops all entries but keeps counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
	c.order = nil
}
