package provider

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	contractx "github.com/itinera-labs/itinera/agent/contract"
)

type WeatherConfig struct {
	BaseURL string        `envconfig:"BASE_URL" split_words:"true"`
	APIKey  string        `envconfig:"API_KEY" split_words:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

type DailyForecast struct {
	Date      string  `json:"date"`
	Summary   string  `json:"summary"`
	HighC     float64 `json:"high_c"`
	LowC      float64 `json:"low_c"`
	RainProb  float64 `json:"rain_prob"`
	WindKMH   float64 `json:"wind_kmh"`
	UVIndex   float64 `json:"uv_index,omitempty"`
	Humidity  float64 `json:"humidity,omitempty"`
}

type ForecastResult struct {
	Lat  float64         `json:"lat"`
	Lon  float64         `json:"lon"`
	Days []DailyForecast `json:"days"`
}

type weatherWrapper struct {
	client *restClient
}

func NewWeatherWrapper(cfg WeatherConfig) (contractx.Wrapper, error) {
	client, err := newRESTClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("weather wrapper: %w", err)
	}
	return &weatherWrapper{client: client}, nil
}

func (w *weatherWrapper) Invoke(ctx context.Context, method string, params map[string]any) (any, error) {
	if method != "forecast" {
		return nil, fmt.Errorf("%w: weather.%s", contractx.ErrMethodNotSupported, method)
	}

	lat, latOK := numberParam(params, "lat")
	lon, lonOK := numberParam(params, "lon")
	if !latOK || !lonOK {
		return nil, fmt.Errorf("%w: lat and lon must be numbers", contractx.ErrValidation)
	}
	days, ok := numberParam(params, "days")
	if !ok || days <= 0 {
		days = 3
	}

	query := url.Values{}
	query.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	query.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	query.Set("days", strconv.Itoa(int(days)))

	var out ForecastResult
	if err := w.client.getJSON(ctx, "/v1/forecast", query, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (w *weatherWrapper) Close() error {
	return w.client.Close()
}
