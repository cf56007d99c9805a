package intent

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	defaultThreshold    = 0.55
	defaultMaxFallbacks = 2
)

// Task is one capability invocation inside a plan. Tasks without After fan
// out in parallel; a task with After runs once its prerequisite succeeds,
// deriving its params from the prerequisite's payload.
type Task struct {
	Name       string
	Capability string
	Method     string
	Params     map[string]any
	Cacheable  bool

	After  string
	Derive func(prev any) (map[string]any, bool)
}

// Plan is what the Routing state hands to ExecutingTask.
type Plan struct {
	Intent    string
	Tasks     []Task
	Fallbacks []Task

	Clarify  bool
	Question string
}

// RouterConfig tunes routing decisions.
type RouterConfig struct {
	Threshold    float64 `envconfig:"THRESHOLD" split_words:"true" default:"0.55"`
	MaxFallbacks int     `envconfig:"MAX_FALLBACKS" split_words:"true" default:"2"`
}

// Router owns the fixed intent → plan table. Built once at startup from the
// manager's available capabilities; routes whose capability is missing
// degrade to clarification instead of failing at dispatch time.
type Router struct {
	available    map[string]bool
	threshold    float64
	maxFallbacks int
	now          func() time.Time
}

func NewRouter(available []string, cfg RouterConfig) *Router {
	set := make(map[string]bool, len(available))
	for _, name := range available {
		set[name] = true
	}
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	maxFallbacks := cfg.MaxFallbacks
	if maxFallbacks <= 0 {
		maxFallbacks = defaultMaxFallbacks
	}
	return &Router{
		available:    set,
		threshold:    threshold,
		maxFallbacks: maxFallbacks,
		now:          time.Now,
	}
}

var explicitPattern = regexp.MustCompile(`^/(\w+)\s+(\w+)\s*(.*)$`)

// Decide picks the plan for one turn. Priority: explicit user capability
// request, then classification above threshold, then clarification.
func (r *Router) Decide(message string, cls Classification) Plan {
	if plan, ok := r.explicitPlan(message); ok {
		return plan
	}
	if cls.Confidence >= r.threshold && cls.Intent != IntentUnknown {
		return r.planFor(cls)
	}
	return Plan{
		Intent:   IntentUnknown,
		Clarify:  true,
		Question: "I can help with flights, lodging, weather, routes, your calendar, and saved trip notes. What would you like to do?",
	}
}

// explicitPlan parses "/capability method key=value ..." requests.
func (r *Router) explicitPlan(message string) (Plan, bool) {
	m := explicitPattern.FindStringSubmatch(strings.TrimSpace(message))
	if m == nil {
		return Plan{}, false
	}
	capability, method := m[1], m[2]
	if !r.available[capability] {
		return Plan{
			Intent:   capability,
			Clarify:  true,
			Question: fmt.Sprintf("The %s capability is not available right now.", capability),
		}, true
	}

	params := make(map[string]any)
	for _, pair := range strings.Fields(m[3]) {
		if k, v, ok := strings.Cut(pair, "="); ok {
			params[k] = v
		}
	}
	return Plan{
		Intent: capability,
		Tasks: []Task{{
			Name:       capability + "." + method,
			Capability: capability,
			Method:     method,
			Params:     params,
			Cacheable:  true,
		}},
	}, true
}

func (r *Router) planFor(cls Classification) Plan {
	switch cls.Intent {
	case IntentFlightSearch:
		return r.flightSearchPlan(cls)
	case IntentFlightStatus:
		return r.flightStatusPlan(cls)
	case IntentLodgingSearch:
		return r.lodgingPlan(cls)
	case IntentWeather:
		return r.weatherPlan(cls)
	case IntentRoute:
		return r.routePlan(cls)
	case IntentWebpage:
		return r.webpagePlan(cls)
	case IntentCalendar:
		return r.calendarPlan(cls)
	case IntentMemoryRecall:
		return r.memoryPlan(cls)
	default:
		return Plan{Intent: cls.Intent, Clarify: true, Question: "Could you tell me more about what you need?"}
	}
}

func (r *Router) flightSearchPlan(cls Classification) Plan {
	origin, _ := cls.Slots["origin"].(string)
	destination, _ := cls.Slots["destination"].(string)
	date, _ := cls.Slots["date"].(string)
	if origin == "" || destination == "" || date == "" {
		return Plan{
			Intent:   cls.Intent,
			Clarify:  true,
			Question: "Where are you flying from and to, and on what date (YYYY-MM-DD)?",
		}
	}

	plan := Plan{
		Intent: cls.Intent,
		Tasks: []Task{{
			Name:       "flights.search",
			Capability: "flights",
			Method:     "search",
			Params:     map[string]any{"origin": origin, "destination": destination, "date": date},
			Cacheable:  true,
		}},
	}
	return r.withMemoryFallback(plan, fmt.Sprintf("flights %s to %s", origin, destination))
}

func (r *Router) flightStatusPlan(cls Classification) Plan {
	flightNo, _ := cls.Slots["flight_no"].(string)
	date, _ := cls.Slots["date"].(string)
	if flightNo == "" {
		return Plan{Intent: cls.Intent, Clarify: true, Question: "Which flight number should I check?"}
	}
	if date == "" {
		date = r.now().UTC().Format("2006-01-02")
	}
	plan := Plan{
		Intent: cls.Intent,
		Tasks: []Task{{
			Name:       "flights.status",
			Capability: "flights",
			Method:     "status",
			Params:     map[string]any{"flight_no": flightNo, "date": date},
			Cacheable:  true,
		}},
	}
	return r.withMemoryFallback(plan, "flight "+flightNo)
}

func (r *Router) lodgingPlan(cls Classification) Plan {
	city, _ := cls.Slots["city"].(string)
	checkIn, _ := cls.Slots["date"].(string)
	checkOut, _ := cls.Slots["end_date"].(string)
	if city == "" || checkIn == "" || checkOut == "" {
		return Plan{
			Intent:   cls.Intent,
			Clarify:  true,
			Question: "Which city, and what are your check-in and check-out dates (YYYY-MM-DD)?",
		}
	}
	plan := Plan{
		Intent: cls.Intent,
		Tasks: []Task{{
			Name:       "lodging.search",
			Capability: "lodging",
			Method:     "search",
			Params:     map[string]any{"city": city, "check_in": checkIn, "check_out": checkOut},
			Cacheable:  true,
		}},
	}
	return r.withMemoryFallback(plan, "lodging in "+city)
}

func (r *Router) weatherPlan(cls Classification) Plan {
	city, _ := cls.Slots["city"].(string)
	if city == "" {
		return Plan{Intent: cls.Intent, Clarify: true, Question: "Which city's weather should I check?"}
	}
	plan := Plan{
		Intent: cls.Intent,
		Tasks: []Task{
			{
				Name:       "geo.geocode",
				Capability: "geo",
				Method:     "geocode",
				Params:     map[string]any{"query": city},
				Cacheable:  true,
			},
			{
				Name:       "weather.forecast",
				Capability: "weather",
				Method:     "forecast",
				Cacheable:  true,
				After:      "geo.geocode",
				Derive:     deriveForecastParams,
			},
		},
	}
	return r.withMemoryFallback(plan, "weather in "+city)
}

func (r *Router) routePlan(cls Classification) Plan {
	from, _ := cls.Slots["origin"].(string)
	to, _ := cls.Slots["destination"].(string)
	if from == "" || to == "" {
		city, _ := cls.Slots["city"].(string)
		if city != "" && from != "" {
			to = city
		} else {
			return Plan{Intent: cls.Intent, Clarify: true, Question: "Where does the route start and end?"}
		}
	}
	plan := Plan{
		Intent: cls.Intent,
		Tasks: []Task{{
			Name:       "geo.route",
			Capability: "geo",
			Method:     "route",
			Params:     map[string]any{"from": from, "to": to, "mode": "driving"},
			Cacheable:  true,
		}},
	}
	return r.withMemoryFallback(plan, fmt.Sprintf("route %s to %s", from, to))
}

func (r *Router) webpagePlan(cls Classification) Plan {
	url, _ := cls.Slots["url"].(string)
	if url == "" {
		return Plan{Intent: cls.Intent, Clarify: true, Question: "Which link should I read?"}
	}
	return Plan{
		Intent: cls.Intent,
		Tasks: []Task{{
			Name:       "webpage.extract",
			Capability: "webpage",
			Method:     "extract",
			Params:     map[string]any{"url": url},
			Cacheable:  true,
		}},
	}
}

func (r *Router) calendarPlan(cls Classification) Plan {
	from, _ := cls.Slots["date"].(string)
	to, _ := cls.Slots["end_date"].(string)
	if from == "" {
		from = r.now().UTC().Format("2006-01-02")
	}
	if to == "" {
		to = r.now().UTC().AddDate(0, 0, 7).Format("2006-01-02")
	}
	return Plan{
		Intent: cls.Intent,
		Tasks: []Task{{
			Name:       "calendar.list_events",
			Capability: "calendar",
			Method:     "list_events",
			Params:     map[string]any{"from": from, "to": to},
			// Calendar contents are personal and change constantly.
			Cacheable: false,
		}},
	}
}

func (r *Router) memoryPlan(cls Classification) Plan {
	query := strings.TrimSpace(fmt.Sprint(cls.Slots["city"]))
	if query == "" || query == "<nil>" {
		query = "trip"
	}
	return Plan{
		Intent: cls.Intent,
		Tasks: []Task{{
			Name:       "memory.search",
			Capability: "memory",
			Method:     "search",
			Params:     map[string]any{"query": query},
			Cacheable:  false,
		}},
	}
}

// withMemoryFallback declares the semantic store as the degraded source for
// intents whose live provider may be down: prior trips often answer the
// same question.
func (r *Router) withMemoryFallback(plan Plan, query string) Plan {
	if !r.available["memory"] || len(plan.Fallbacks) >= r.maxFallbacks {
		return plan
	}
	plan.Fallbacks = append(plan.Fallbacks, Task{
		Name:       "memory.search",
		Capability: "memory",
		Method:     "search",
		Params:     map[string]any{"query": query},
		Cacheable:  false,
	})
	return plan
}

// deriveForecastParams maps a geocode payload onto forecast params. The
// payload may be the typed provider result or a decoded map, depending on
// the wrapper behind the capability.
func deriveForecastParams(prev any) (map[string]any, bool) {
	switch v := prev.(type) {
	case map[string]any:
		lat, latOK := v["lat"].(float64)
		lon, lonOK := v["lon"].(float64)
		if !latOK || !lonOK {
			return nil, false
		}
		return map[string]any{"lat": lat, "lon": lon, "days": 3}, true
	case interface{ Coordinates() (float64, float64) }:
		lat, lon := v.Coordinates()
		return map[string]any{"lat": lat, "lon": lon, "days": 3}, true
	default:
		return nil, false
	}
}
