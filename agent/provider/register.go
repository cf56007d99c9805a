package provider

import (
	"fmt"

	capx "github.com/itinera-labs/itinera/agent/capability"
	contractx "github.com/itinera-labs/itinera/agent/contract"
)

// Config aggregates every provider's settings. Providers without a base URL
// are simply not registered, keeping local setups partial-fleet friendly.
type Config struct {
	Flights  FlightsConfig  `envconfig:"FLIGHTS"`
	Lodging  LodgingConfig  `envconfig:"LODGING"`
	Geo      GeoConfig      `envconfig:"GEO"`
	Weather  WeatherConfig  `envconfig:"WEATHER"`
	Webpage  WebpageConfig  `envconfig:"WEBPAGE"`
	Calendar CalendarConfig `envconfig:"CALENDAR"`
}

// Descriptors returns the registration-time declaration of the whole fleet.
// Method sets are closed; anything outside them is rejected by the manager
// before dispatch.
func Descriptors() map[string]capx.Descriptor {
	return map[string]capx.Descriptor{
		"flights": {
			Name: "flights",
			Methods: []capx.MethodSpec{
				{Name: "search", Params: []capx.ParamSpec{
					{Name: "origin", Type: capx.ParamString, Required: true},
					{Name: "destination", Type: capx.ParamString, Required: true},
					{Name: "date", Type: capx.ParamString, Required: true},
				}},
				{Name: "status", Params: []capx.ParamSpec{
					{Name: "flight_no", Type: capx.ParamString, Required: true},
					{Name: "date", Type: capx.ParamString, Required: true},
				}},
			},
			Idempotent: true,
			Volatility: capx.VolatilityTimeSensitive,
		},
		"lodging": {
			Name: "lodging",
			Methods: []capx.MethodSpec{
				{Name: "search", Params: []capx.ParamSpec{
					{Name: "city", Type: capx.ParamString, Required: true},
					{Name: "check_in", Type: capx.ParamString, Required: true},
					{Name: "check_out", Type: capx.ParamString, Required: true},
				}},
				{Name: "details", Params: []capx.ParamSpec{
					{Name: "property_id", Type: capx.ParamString, Required: true},
				}},
			},
			Idempotent: true,
			Volatility: capx.VolatilityDaily,
		},
		"geo": {
			Name: "geo",
			Methods: []capx.MethodSpec{
				{Name: "geocode", Params: []capx.ParamSpec{
					{Name: "query", Type: capx.ParamString, Required: true},
				}},
				{Name: "route", Params: []capx.ParamSpec{
					{Name: "from", Type: capx.ParamString, Required: true},
					{Name: "to", Type: capx.ParamString, Required: true},
					{Name: "mode", Type: capx.ParamString, Required: false},
				}},
			},
			Idempotent: true,
			Volatility: capx.VolatilityStatic,
		},
		"weather": {
			Name: "weather",
			Methods: []capx.MethodSpec{
				{Name: "forecast", Params: []capx.ParamSpec{
					{Name: "lat", Type: capx.ParamNumber, Required: true},
					{Name: "lon", Type: capx.ParamNumber, Required: true},
					{Name: "days", Type: capx.ParamNumber, Required: false},
				}},
			},
			Idempotent: true,
			Volatility: capx.VolatilityTimeSensitive,
		},
		"webpage": {
			Name: "webpage",
			Methods: []capx.MethodSpec{
				{Name: "extract", Params: []capx.ParamSpec{
					{Name: "url", Type: capx.ParamString, Required: true},
				}},
			},
			Idempotent: true,
			Volatility: capx.VolatilityDaily,
		},
		"calendar": {
			Name: "calendar",
			Methods: []capx.MethodSpec{
				{Name: "list_events", Params: []capx.ParamSpec{
					{Name: "from", Type: capx.ParamString, Required: true},
					{Name: "to", Type: capx.ParamString, Required: true},
				}},
				{Name: "create_event", Params: []capx.ParamSpec{
					{Name: "title", Type: capx.ParamString, Required: true},
					{Name: "start", Type: capx.ParamString, Required: true},
					{Name: "end", Type: capx.ParamString, Required: true},
				}},
			},
			Idempotent: false,
			Volatility: capx.VolatilityNearRealTime,
		},
		"memory": {
			Name: "memory",
			Methods: []capx.MethodSpec{
				{Name: "search", Params: []capx.ParamSpec{
					{Name: "query", Type: capx.ParamString, Required: true},
				}},
				{Name: "open", Params: []capx.ParamSpec{
					{Name: "names", Type: capx.ParamList, Required: true},
				}},
			},
			Idempotent: true,
			Volatility: capx.VolatilityNearRealTime,
		},
	}
}

// RegisterAll binds the configured provider fleet into the registry at
// bootstrap. Registration is serialized here; after this the registry is
// read-only.
func RegisterAll(reg *capx.Registry, cfg Config, graph GraphSearcher) error {
	descs := Descriptors()

	factories := map[string]contractx.WrapperFactory{}
	if cfg.Flights.BaseURL != "" {
		factories["flights"] = func() (contractx.Wrapper, error) { return NewFlightsWrapper(cfg.Flights) }
	}
	if cfg.Lodging.BaseURL != "" {
		factories["lodging"] = func() (contractx.Wrapper, error) { return NewLodgingWrapper(cfg.Lodging) }
	}
	if cfg.Geo.BaseURL != "" {
		factories["geo"] = func() (contractx.Wrapper, error) { return NewGeoWrapper(cfg.Geo) }
	}
	if cfg.Weather.BaseURL != "" {
		factories["weather"] = func() (contractx.Wrapper, error) { return NewWeatherWrapper(cfg.Weather) }
	}
	if cfg.Webpage.BaseURL != "" {
		factories["webpage"] = func() (contractx.Wrapper, error) { return NewWebpageWrapper(cfg.Webpage) }
	}
	if cfg.Calendar.BaseURL != "" {
		factories["calendar"] = func() (contractx.Wrapper, error) { return NewCalendarWrapper(cfg.Calendar) }
	}
	if graph != nil {
		factories["memory"] = func() (contractx.Wrapper, error) { return NewMemoryWrapper(graph) }
	}

	for name, factory := range factories {
		desc, ok := descs[name]
		if !ok {
			return fmt.Errorf("no descriptor for capability %s", name)
		}
		if err := reg.Register(desc, factory, false); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}
	return nil
}
