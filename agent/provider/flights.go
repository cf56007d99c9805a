package provider

import (
	"context"
	"fmt"
	"net/url"
	"time"

	contractx "github.com/itinera-labs/itinera/agent/contract"
)

type FlightsConfig struct {
	BaseURL string        `envconfig:"BASE_URL" split_words:"true"`
	APIKey  string        `envconfig:"API_KEY" split_words:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// FlightOption is one itinerary candidate returned by a flight search.
type FlightOption struct {
	Carrier   string  `json:"carrier"`
	FlightNo  string  `json:"flight_no"`
	Departure string  `json:"departure"`
	Arrival   string  `json:"arrival"`
	Price     float64 `json:"price"`
	Currency  string  `json:"currency"`
}

type FlightSearchResult struct {
	Origin      string         `json:"origin"`
	Destination string         `json:"destination"`
	Date        string         `json:"date"`
	Options     []FlightOption `json:"options"`
}

type FlightStatusResult struct {
	FlightNo  string `json:"flight_no"`
	Date      string `json:"date"`
	Status    string `json:"status"`
	Gate      string `json:"gate,omitempty"`
	DelayMins int    `json:"delay_mins,omitempty"`
}

type flightsWrapper struct {
	client *restClient
}

func NewFlightsWrapper(cfg FlightsConfig) (contractx.Wrapper, error) {
	client, err := newRESTClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("flights wrapper: %w", err)
	}
	return &flightsWrapper{client: client}, nil
}

func (w *flightsWrapper) Invoke(ctx context.Context, method string, params map[string]any) (any, error) {
	switch method {
	case "search":
		return w.search(ctx, params)
	case "status":
		return w.status(ctx, params)
	default:
		return nil, fmt.Errorf("%w: flights.%s", contractx.ErrMethodNotSupported, method)
	}
}

func (w *flightsWrapper) Close() error {
	return w.client.Close()
}

func (w *flightsWrapper) search(ctx context.Context, params map[string]any) (any, error) {
	query := url.Values{}
	query.Set("origin", stringParam(params, "origin"))
	query.Set("destination", stringParam(params, "destination"))
	query.Set("date", stringParam(params, "date"))

	var out FlightSearchResult
	if err := w.client.getJSON(ctx, "/v1/flights/search", query, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (w *flightsWrapper) status(ctx context.Context, params map[string]any) (any, error) {
	query := url.Values{}
	query.Set("flight_no", stringParam(params, "flight_no"))
	query.Set("date", stringParam(params, "date"))

	var out FlightStatusResult
	if err := w.client.getJSON(ctx, "/v1/flights/status", query, &out); err != nil {
		return nil, err
	}
	return out, nil
}
