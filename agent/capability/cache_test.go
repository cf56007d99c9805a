package capability

import (
	"errors"
	"testing"
	"time"

	contractx "github.com/itinera-labs/itinera/agent/contract"
)

func TestCacheTTLPerVolatility(t *testing.T) {
	t.Parallel()

	cases := []struct {
		volatility Volatility
		ttl        time.Duration
	}{
		{VolatilityNearRealTime, 100 * time.Second},
		{VolatilityTimeSensitive, 5 * time.Minute},
		{VolatilityDaily, time.Hour},
		{VolatilitySemiStatic, 8 * time.Hour},
		{VolatilityStatic, 24 * time.Hour},
	}

	for _, tc := range cases {
		t.Run(string(tc.volatility), func(t *testing.T) {
			t.Parallel()

			current := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
			cache := NewCache(WithClock(func() time.Time { return current }))

			entry := cache.Set("fp", "payload", "flights", 40*time.Millisecond, tc.volatility)
			if got := entry.ExpiresAt.Sub(entry.CreatedAt); got != tc.ttl {
				t.Fatalf("expected ttl %s, got %s", tc.ttl, got)
			}

			current = current.Add(tc.ttl - time.Second)
			if _, hit, _ := cache.Get("fp"); !hit {
				t.Fatal("expected hit just before expiry")
			}

			current = current.Add(2 * time.Second)
			if _, hit, _ := cache.Get("fp"); hit {
				t.Fatal("expected miss after expiry")
			}
		})
	}
}

func TestCacheHitPreservesProvenance(t *testing.T) {
	t.Parallel()

	cache := NewCache()
	cache.Set("fp", map[string]any{"flights": 3}, "flights", 123*time.Millisecond, VolatilityDaily)

	entry, hit, err := cache.Get("fp")
	if err != nil || !hit {
		t.Fatalf("expected clean hit, hit=%v err=%v", hit, err)
	}
	if entry.Provider != "flights" || entry.Latency != 123*time.Millisecond {
		t.Fatalf("provenance not preserved: %+v", entry)
	}
}

func TestCacheCorruptEntryIsMissAndSelfHeals(t *testing.T) {
	t.Parallel()

	cache := NewCache()
	created := time.Now()
	cache.mu.Lock()
	cache.entries["fp"] = Entry{
		Fingerprint: "fp",
		Payload:     "broken",
		CreatedAt:   created,
		ExpiresAt:   created, // violates expires_at > created_at
	}
	cache.mu.Unlock()

	_, hit, err := cache.Get("fp")
	if hit {
		t.Fatal("corrupt entry must not hit")
	}
	if !errors.Is(err, contractx.ErrCacheCorruption) {
		t.Fatalf("expected ErrCacheCorruption, got %v", err)
	}

	cache.Set("fp", "fresh", "flights", time.Millisecond, VolatilityDaily)
	entry, hit, err := cache.Get("fp")
	if err != nil || !hit {
		t.Fatalf("expected self-healed hit, hit=%v err=%v", hit, err)
	}
	if entry.Payload != "fresh" {
		t.Fatalf("expected overwritten payload, got %v", entry.Payload)
	}
}

func TestCacheInvalidate(t *testing.T) {
	t.Parallel()

	cache := NewCache()
	cache.Set("fp", "payload", "geo", time.Millisecond, VolatilityStatic)
	cache.Invalidate("fp")

	if _, hit, _ := cache.Get("fp"); hit {
		t.Fatal("expected miss after invalidate")
	}
}

func TestCacheSampledStats(t *testing.T) {
	t.Parallel()

	cache := NewCache(WithSampleRate(1))
	cache.Set("fp", "payload", "geo", time.Millisecond, VolatilityStatic)

	cache.Get("fp")
	cache.Get("absent")

	stats := cache.Stats()
	if stats.SampledHits != 1 || stats.SampledMisses != 1 {
		t.Fatalf("expected 1 hit and 1 miss at sample rate 1, got %+v", stats)
	}
}
