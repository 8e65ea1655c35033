package routing

import (
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zeebo/blake3"
)

// cacheKey digests the routable identity of an operation. Flags are sorted
// so equivalent flag sets share one entry.
func cacheKey(operation string, complexity Complexity, persona string, flags []string) string {
	sorted := make([]string, len(flags))
	copy(sorted, flags)
	sort.Strings(sorted)

	var b strings.Builder
	b.WriteString(operation)
	b.WriteByte(0)
	b.WriteString(string(complexity))
	b.WriteByte(0)
	b.WriteString(persona)
	for _, f := range sorted {
		b.WriteByte(0)
		b.WriteString(f)
	}

	sum := blake3.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:16])
}

type cacheEntry struct {
	decision  Decision
	expiresAt time.Time
}

// decisionCache is advisory: every read is re-validated against live server
// availability, so a stale entry can never produce an unsafe decision.
type decisionCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

func newDecisionCache(ttl time.Duration) *decisionCache {
	return &decisionCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
	}
}

// get returns a cached decision only if it has not expired and every target
// server still passes the online check. Invalid entries are evicted.
func (c *decisionCache) get(key string, online func(serverID string) bool) (Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return Decision{}, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return Decision{}, false
	}
	for _, id := range entry.decision.TargetServers {
		if !online(id) {
			delete(c.entries, key)
			return Decision{}, false
		}
	}
	return entry.decision, true
}

func (c *decisionCache) put(key string, d Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{
		decision:  d,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// evictServer drops every cached decision that targets the given server.
// Called when a server's health changes.
func (c *decisionCache) evictServer(serverID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		for _, id := range entry.decision.TargetServers {
			if id == serverID {
				delete(c.entries, key)
				break
			}
		}
	}
}

func (c *decisionCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
