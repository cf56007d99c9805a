package intent

import (
	"context"
	"testing"
	"time"

	statex "github.com/itinera-labs/itinera/agent/state"
)

func TestRuleClassifierKeywordScoring(t *testing.T) {
	t.Parallel()

	c := NewRuleClassifier()

	cases := []struct {
		name       string
		message    string
		wantIntent string
		minConf    float64
	}{
		{"single keyword", "I need a flight", IntentFlightSearch, 0.4},
		{"stacked keywords", "round trip airfare, any flight works", IntentFlightSearch, 0.6},
		{"status beats search", "is my flight delayed? flight status please", IntentFlightStatus, 0.6},
		{"lodging", "find me a hotel in Kyoto", IntentLodgingSearch, 0.4},
		{"weather", "what's the forecast, will it rain?", IntentWeather, 0.6},
		{"no match", "tell me a joke", IntentUnknown, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cls, err := c.Classify(context.Background(), tc.message, nil)
			if err != nil {
				t.Fatalf("classify: %v", err)
			}
			if cls.Intent != tc.wantIntent {
				t.Fatalf("intent = %s, want %s", cls.Intent, tc.wantIntent)
			}
			if cls.Confidence < tc.minConf {
				t.Fatalf("confidence = %.2f, want >= %.2f", cls.Confidence, tc.minConf)
			}
		})
	}
}

func TestRuleClassifierURLFallback(t *testing.T) {
	t.Parallel()

	c := NewRuleClassifier()
	cls, err := c.Classify(context.Background(), "https://example.com/trip-report", nil)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if cls.Intent != IntentWebpage {
		t.Fatalf("bare URL should classify as webpage, got %s", cls.Intent)
	}
	if url, _ := cls.Slots["url"].(string); url != "https://example.com/trip-report" {
		t.Fatalf("url slot = %v", cls.Slots["url"])
	}
}

func TestRuleClassifierHistoryBias(t *testing.T) {
	t.Parallel()

	c := NewRuleClassifier()
	history := []statex.IntentRecord{
		{Intent: IntentFlightSearch, Confidence: 0.8, Turn: 1, DecidedAt: time.Now()},
	}

	without, err := c.Classify(context.Background(), "I need a flight", nil)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	with, err := c.Classify(context.Background(), "I need a flight", history)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if with.Confidence <= without.Confidence {
		t.Fatalf("same-intent history should raise confidence: %.2f vs %.2f",
			with.Confidence, without.Confidence)
	}
}

func TestExtractSlots(t *testing.T) {
	t.Parallel()

	slots := extractSlots("Fly BKK to NRT on 2026-09-01, back 2026-09-10, flight TG640, details at https://example.com/fare")
	if slots["origin"] != "BKK" || slots["destination"] != "NRT" {
		t.Fatalf("airport slots wrong: %v", slots)
	}
	if slots["date"] != "2026-09-01" || slots["end_date"] != "2026-09-10" {
		t.Fatalf("date slots wrong: %v", slots)
	}
	if slots["flight_no"] != "TG640" {
		t.Fatalf("flight_no slot wrong: %v", slots)
	}
	if slots["url"] != "https://example.com/fare" {
		t.Fatalf("url slot wrong: %v", slots)
	}

	if got := extractSlots("nothing to see"); got != nil {
		t.Fatalf("expected nil slots, got %v", got)
	}
}

func TestCitySlotCapitalizationHeuristic(t *testing.T) {
	t.Parallel()

	slots := extractSlots("any hotels in Kyoto next week?")
	if slots["city"] != "Kyoto" {
		t.Fatalf("capitalized city not slotted: %v", slots)
	}

	slots = extractSlots("In San Francisco, ideally downtown")
	if slots["city"] != "San Francisco" {
		t.Fatalf("two-word city not slotted: %v", slots)
	}

	// Lowercase words after a preposition are prose, not places.
	if slots := extractSlots("flights to paris tomorrow"); slots["city"] != nil {
		t.Fatalf("lowercase word must not slot as a city: %v", slots)
	}

	// Airport codes already land in origin/destination.
	slots = extractSlots("Fly BKK to NRT next month")
	if slots["city"] != nil {
		t.Fatalf("IATA code must not double as a city: %v", slots)
	}
}
