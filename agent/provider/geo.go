package provider

import (
	"context"
	"fmt"
	"net/url"
	"time"

	contractx "github.com/itinera-labs/itinera/agent/contract"
)

type GeoConfig struct {
	BaseURL string        `envconfig:"BASE_URL" split_words:"true"`
	APIKey  string        `envconfig:"API_KEY" split_words:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

type GeocodeResult struct {
	Query   string  `json:"query"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Display string  `json:"display"`
	Country string  `json:"country,omitempty"`
}

// Coordinates returns the geocoded point.
func (g GeocodeResult) Coordinates() (float64, float64) {
	return g.Lat, g.Lon
}

type RouteResult struct {
	From       string  `json:"from"`
	To         string  `json:"to"`
	Mode       string  `json:"mode"`
	DistanceKM float64 `json:"distance_km"`
	Duration   string  `json:"duration"`
}

type geoWrapper struct {
	client *restClient
}

func NewGeoWrapper(cfg GeoConfig) (contractx.Wrapper, error) {
	client, err := newRESTClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("geo wrapper: %w", err)
	}
	return &geoWrapper{client: client}, nil
}

func (w *geoWrapper) Invoke(ctx context.Context, method string, params map[string]any) (any, error) {
	switch method {
	case "geocode":
		query := url.Values{}
		query.Set("q", stringParam(params, "query"))

		var out GeocodeResult
		if err := w.client.getJSON(ctx, "/v1/geocode", query, &out); err != nil {
			return nil, err
		}
		return out, nil
	case "route":
		query := url.Values{}
		query.Set("from", stringParam(params, "from"))
		query.Set("to", stringParam(params, "to"))
		mode := stringParam(params, "mode")
		if mode == "" {
			mode = "driving"
		}
		query.Set("mode", mode)

		var out RouteResult
		if err := w.client.getJSON(ctx, "/v1/route", query, &out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: geo.%s", contractx.ErrMethodNotSupported, method)
	}
}

func (w *geoWrapper) Close() error {
	return w.client.Close()
}
