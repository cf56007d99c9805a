package capability

import (
	"strings"
	"testing"
)

func TestFingerprintStableUnderKeyOrder(t *testing.T) {
	t.Parallel()

	a := Fingerprint("flights", "search", map[string]any{
		"origin":      "BKK",
		"destination": "NRT",
		"date":        "2026-09-01",
	})
	b := Fingerprint("flights", "search", map[string]any{
		"date":        "2026-09-01",
		"destination": "NRT",
		"origin":      "BKK",
	})
	if a != b {
		t.Fatalf("fingerprints differ for identical params:\n%s\n%s", a, b)
	}
}

func TestFingerprintNormalizesNumbers(t *testing.T) {
	t.Parallel()

	a := Fingerprint("weather", "forecast", map[string]any{"lat": 13, "lon": 100, "days": 3})
	b := Fingerprint("weather", "forecast", map[string]any{"lat": 13.0, "lon": 100.0, "days": float64(3)})
	if a != b {
		t.Fatalf("int and float forms should fingerprint identically:\n%s\n%s", a, b)
	}
}

func TestFingerprintDistinguishesMethodAndParams(t *testing.T) {
	t.Parallel()

	base := Fingerprint("flights", "search", map[string]any{"origin": "BKK"})
	if got := Fingerprint("flights", "status", map[string]any{"origin": "BKK"}); got == base {
		t.Fatal("different methods must not collide")
	}
	if got := Fingerprint("flights", "search", map[string]any{"origin": "NRT"}); got == base {
		t.Fatal("different params must not collide")
	}
	if got := Fingerprint("lodging", "search", map[string]any{"origin": "BKK"}); got == base {
		t.Fatal("different capabilities must not collide")
	}
}

func TestFingerprintShape(t *testing.T) {
	t.Parallel()

	fp := Fingerprint("geo", "geocode", map[string]any{"query": "Kyoto"})
	if !strings.HasPrefix(fp, "geo:geocode:") {
		t.Fatalf("expected capability:method prefix, got %s", fp)
	}
	if len(fp) != len("geo:geocode:")+64 {
		t.Fatalf("expected sha256 hex digest suffix, got %s", fp)
	}

	nested := Fingerprint("geo", "route", map[string]any{
		"from": map[string]any{"lat": 1, "lon": 2},
		"to":   map[string]any{"lon": 4, "lat": 3},
	})
	same := Fingerprint("geo", "route", map[string]any{
		"to":   map[string]any{"lat": 3, "lon": 4},
		"from": map[string]any{"lon": 2, "lat": 1},
	})
	if nested != same {
		t.Fatal("nested maps must canonicalize recursively")
	}
}
