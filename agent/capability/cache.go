package capability

import (
	"sync"
	"sync/atomic"
	"time"

	contractx "github.com/itinera-labs/itinera/agent/contract"
)

const defaultSampleRate = 8

// Entry is one cached invocation outcome. Provenance fields are kept so a
// hit reproduces the original call's provider name and latency.
type Entry struct {
	Fingerprint string
	Payload     any
	Provider    string
	Latency     time.Duration
	Volatility  Volatility
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

func (e Entry) live(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// corrupt detects an entry that violates the cache invariant
// (expires_at > created_at). Treated as a miss; the next Set overwrites it.
func (e Entry) corrupt() bool {
	return e.Fingerprint == "" || !e.ExpiresAt.After(e.CreatedAt)
}

// CacheStats are sampled, observability-only counters.
type CacheStats struct {
	SampledHits   uint64
	SampledMisses uint64
}

// Cache is the fingerprint-keyed result cache. TTL is always derived from
// the entry's volatility class by the caller (the Manager); the cache
// itself only enforces expiry.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry

	sampleRate uint64
	accesses   atomic.Uint64
	hits       atomic.Uint64
	misses     atomic.Uint64

	now func() time.Time
}

type CacheOption func(*Cache)

// WithSampleRate records one in n hit/miss observations.
func WithSampleRate(n int) CacheOption {
	return func(c *Cache) {
		if n > 0 {
			c.sampleRate = uint64(n)
		}
	}
}

// WithClock overrides the cache clock.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		entries:    make(map[string]Entry, 64),
		sampleRate: defaultSampleRate,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the live entry for fingerprint. Expired and corrupt entries
// are misses; corrupt ones additionally report ErrCacheCorruption so the
// caller can log the self-heal.
func (c *Cache) Get(fingerprint string) (Entry, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[fingerprint]
	c.mu.RUnlock()

	if !ok {
		c.observe(false)
		return Entry{}, false, nil
	}
	if entry.corrupt() {
		c.observe(false)
		return Entry{}, false, contractx.ErrCacheCorruption
	}
	if !entry.live(c.now()) {
		c.observe(false)
		return Entry{}, false, nil
	}
	c.observe(true)
	return entry, true, nil
}

// Set stores an entry, overwriting whatever was there. TTL must be the
// volatility class's TTL; expires_at - created_at equals it exactly.
func (c *Cache) Set(fingerprint string, payload any, provider string, latency time.Duration, volatility Volatility) Entry {
	created := c.now()
	entry := Entry{
		Fingerprint: fingerprint,
		Payload:     payload,
		Provider:    provider,
		Latency:     latency,
		Volatility:  volatility,
		CreatedAt:   created,
		ExpiresAt:   created.Add(volatility.TTL()),
	}

	c.mu.Lock()
	c.entries[fingerprint] = entry
	c.mu.Unlock()
	return entry
}

// Invalidate drops the entry for fingerprint.
func (c *Cache) Invalidate(fingerprint string) {
	c.mu.Lock()
	delete(c.entries, fingerprint)
	c.mu.Unlock()
}

// Stats returns the sampled counters.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		SampledHits:   c.hits.Load(),
		SampledMisses: c.misses.Load(),
	}
}

func (c *Cache) observe(hit bool) {
	if c.accesses.Add(1)%c.sampleRate != 0 {
		return
	}
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
}
