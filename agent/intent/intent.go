package intent

import (
	"context"
	"regexp"
	"strings"

	statex "github.com/itinera-labs/itinera/agent/state"
)

// Known intents. Every intent maps onto exactly one primary capability plan
// in the Router.
const (
	IntentFlightSearch  = "flight_search"
	IntentFlightStatus  = "flight_status"
	IntentLodgingSearch = "lodging_search"
	IntentWeather       = "weather"
	IntentRoute         = "route"
	IntentWebpage       = "webpage"
	IntentCalendar      = "calendar"
	IntentMemoryRecall  = "memory_recall"
	IntentUnknown       = "unknown"
)

// Classification is the routing node's view of one user message.
type Classification struct {
	Intent     string         `json:"intent"`
	Confidence float64        `json:"confidence"`
	Slots      map[string]any `json:"slots,omitempty"`
}

// Classifier turns the latest message plus intent history into a
// classification.
type Classifier interface {
	Classify(ctx context.Context, message string, history []statex.IntentRecord) (Classification, error)
}

var (
	iataPattern = regexp.MustCompile(`\b[A-Z]{3}\b`)
	datePattern = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	urlPattern  = regexp.MustCompile(`https?://\S+`)
	// The preposition is case-insensitive; the city itself must be
	// capitalized, or every lowercase word after "to" would slot as one.
	cityPattern     = regexp.MustCompile(`\b(?i:in|to|at|around)\s+([A-Z][a-zA-Z]+(?:\s[A-Z][a-zA-Z]+)?)`)
	flightNoPattern = regexp.MustCompile(`\b[A-Z]{2}\d{2,4}\b`)
)

type intentRule struct {
	intent   string
	keywords []string
}

// Rule order matters only for ties; scoring picks the best match.
var rules = []intentRule{
	{IntentFlightStatus, []string{"flight status", "delayed", "on time", "departure gate"}},
	{IntentFlightSearch, []string{"flight", "fly", "airfare", "plane ticket", "one-way", "round trip"}},
	{IntentLodgingSearch, []string{"hotel", "hostel", "lodging", "accommodation", "place to stay", "airbnb"}},
	{IntentWeather, []string{"weather", "forecast", "rain", "temperature", "sunny", "snow"}},
	{IntentRoute, []string{"route", "directions", "how far", "drive", "distance", "get from"}},
	{IntentCalendar, []string{"calendar", "schedule", "remind", "my events", "add event"}},
	{IntentMemoryRecall, []string{"remember", "last time", "my preferences", "previous trip", "told you"}},
	{IntentWebpage, []string{"this page", "this link", "summarize", "read this"}},
}

// RuleClassifier scores keyword matches deterministically. Always available,
// and the fallback when the model classifier is unconfigured or failing.
type RuleClassifier struct{}

func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{}
}

func (c *RuleClassifier) Classify(ctx context.Context, message string, history []statex.IntentRecord) (Classification, error) {
	lower := strings.ToLower(message)

	best := Classification{Intent: IntentUnknown, Confidence: 0}
	for _, rule := range rules {
		hits := 0
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		confidence := 0.4 + 0.2*float64(hits-1)
		if confidence > 0.9 {
			confidence = 0.9
		}
		if confidence > best.Confidence {
			best = Classification{Intent: rule.intent, Confidence: confidence}
		}
	}

	// A bare URL is a webpage request even without keywords.
	if best.Intent == IntentUnknown && urlPattern.MatchString(message) {
		best = Classification{Intent: IntentWebpage, Confidence: 0.7}
	}

	// Bias toward the running topic: a weak match for the same intent as
	// the previous turn is probably a follow-up.
	if len(history) > 0 && history[len(history)-1].Intent == best.Intent && best.Intent != IntentUnknown {
		best.Confidence += 0.1
		if best.Confidence > 0.95 {
			best.Confidence = 0.95
		}
	}

	best.Slots = extractSlots(message)
	return best, nil
}

func extractSlots(message string) map[string]any {
	slots := make(map[string]any, 4)

	if codes := iataPattern.FindAllString(message, 2); len(codes) > 0 {
		slots["origin"] = codes[0]
		if len(codes) > 1 {
			slots["destination"] = codes[1]
		}
	}
	if dates := datePattern.FindAllString(message, 2); len(dates) > 0 {
		slots["date"] = dates[0]
		if len(dates) > 1 {
			slots["end_date"] = dates[1]
		}
	}
	if flightNo := flightNoPattern.FindString(message); flightNo != "" {
		slots["flight_no"] = flightNo
	}
	if url := urlPattern.FindString(message); url != "" {
		slots["url"] = strings.TrimRight(url, ".,)")
	}
	// Drop all-caps candidates so airport codes never double as cities.
	if m := cityPattern.FindStringSubmatch(message); len(m) > 1 && m[1] != strings.ToUpper(m[1]) {
		slots["city"] = m[1]
	}

	if len(slots) == 0 {
		return nil
	}
	return slots
}
