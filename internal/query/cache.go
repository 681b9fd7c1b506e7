package query

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// allFieldsKey is the cache-key sentinel for a request with no field filter.
const allFieldsKey = "all"

// responseCache is a TTL cache of fully assembled lookup results, keyed by
// the normalized address plus the canonical field set. Expiry is computed at
// write time from the configured TTL.
type responseCache struct {
	ttl   time.Duration
	clock clockwork.Clock

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	result  *LookupResult
	expires time.Time
}

func newResponseCache(ttl time.Duration, clock clockwork.Clock) *responseCache {
	return &responseCache{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]cacheEntry),
	}
}

func (c *responseCache) get(key string) (*LookupResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.clock.Now().After(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.result, true
}

func (c *responseCache) put(key string, result *LookupResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{
		result:  result,
		expires: c.clock.Now().Add(c.ttl),
	}
}

// cacheKey canonicalizes a request into its cache key: lowercased trimmed
// address, the optional region override, and the sorted field set (or the
// "all" sentinel when no filter was given).
func cacheKey(address, region string, fields []string) string {
	parts := []string{strings.ToLower(strings.TrimSpace(address))}
	if region != "" {
		parts = append(parts, "r="+strings.ToLower(region))
	}
	parts = append(parts, canonicalFields(fields))
	return strings.Join(parts, "|")
}

func canonicalFields(fields []string) string {
	if len(fields) == 0 {
		return allFieldsKey
	}
	cleaned := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		cleaned = append(cleaned, f)
	}
	if len(cleaned) == 0 {
		return allFieldsKey
	}
	sort.Strings(cleaned)
	return strings.Join(cleaned, ",")
}
