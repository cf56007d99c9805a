package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	contractx "github.com/itinera-labs/itinera/agent/contract"
)

func TestFlightsSearch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/flights/search" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Fatalf("missing bearer auth, got %q", got)
		}
		q := r.URL.Query()
		if q.Get("origin") != "BKK" || q.Get("destination") != "NRT" || q.Get("date") != "2026-09-01" {
			t.Fatalf("unexpected query %v", q)
		}
		fmt.Fprint(w, `{
			"origin": "BKK",
			"destination": "NRT",
			"date": "2026-09-01",
			"options": [
				{"carrier": "TG", "flight_no": "TG640", "departure": "08:00", "arrival": "16:00", "price": 420.5, "currency": "USD"}
			]
		}`)
	}))
	t.Cleanup(server.Close)

	wrapper, err := NewFlightsWrapper(FlightsConfig{BaseURL: server.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("new wrapper: %v", err)
	}
	t.Cleanup(func() { _ = wrapper.Close() })

	payload, err := wrapper.Invoke(context.Background(), "search", map[string]any{
		"origin":      "BKK",
		"destination": "NRT",
		"date":        "2026-09-01",
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	result, ok := payload.(FlightSearchResult)
	if !ok {
		t.Fatalf("unexpected payload type %T", payload)
	}
	if len(result.Options) != 1 || result.Options[0].FlightNo != "TG640" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestFlightsMethodNotSupported(t *testing.T) {
	t.Parallel()

	wrapper, err := NewFlightsWrapper(FlightsConfig{BaseURL: "http://localhost:1"})
	if err != nil {
		t.Fatalf("new wrapper: %v", err)
	}

	_, err = wrapper.Invoke(context.Background(), "teleport", nil)
	if !errors.Is(err, contractx.ErrMethodNotSupported) {
		t.Fatalf("expected ErrMethodNotSupported, got %v", err)
	}
}

func TestFlightsStatusErrorClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, contractx.ErrProviderTransient},
		{"server error", http.StatusBadGateway, contractx.ErrProviderTransient},
		{"unauthorized", http.StatusUnauthorized, contractx.ErrProviderTerminal},
		{"bad request", http.StatusBadRequest, contractx.ErrProviderTerminal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tc.status)
			}))
			t.Cleanup(server.Close)

			wrapper, err := NewFlightsWrapper(FlightsConfig{BaseURL: server.URL})
			if err != nil {
				t.Fatalf("new wrapper: %v", err)
			}
			t.Cleanup(func() { _ = wrapper.Close() })

			_, err = wrapper.Invoke(context.Background(), "status", map[string]any{
				"flight_no": "TG640",
				"date":      "2026-09-01",
			})
			if !errors.Is(err, tc.want) {
				t.Fatalf("status %d: expected %v, got %v", tc.status, tc.want, err)
			}
		})
	}
}

func TestNewRESTClientRejectsEmptyBaseURL(t *testing.T) {
	t.Parallel()

	if _, err := newRESTClient("   ", "", 0); err == nil {
		t.Fatal("expected error for empty base url")
	}
}
