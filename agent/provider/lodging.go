package provider

import (
	"context"
	"fmt"
	"net/url"
	"time"

	contractx "github.com/itinera-labs/itinera/agent/contract"
)

type LodgingConfig struct {
	BaseURL string        `envconfig:"BASE_URL" split_words:"true"`
	APIKey  string        `envconfig:"API_KEY" split_words:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

type LodgingOption struct {
	PropertyID string  `json:"property_id"`
	Name       string  `json:"name"`
	Rating     float64 `json:"rating"`
	Nightly    float64 `json:"nightly"`
	Currency   string  `json:"currency"`
}

type LodgingSearchResult struct {
	City     string          `json:"city"`
	CheckIn  string          `json:"check_in"`
	CheckOut string          `json:"check_out"`
	Options  []LodgingOption `json:"options"`
}

type LodgingDetails struct {
	PropertyID string   `json:"property_id"`
	Name       string   `json:"name"`
	Address    string   `json:"address"`
	Amenities  []string `json:"amenities,omitempty"`
	Rating     float64  `json:"rating"`
}

type lodgingWrapper struct {
	client *restClient
}

func NewLodgingWrapper(cfg LodgingConfig) (contractx.Wrapper, error) {
	client, err := newRESTClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("lodging wrapper: %w", err)
	}
	return &lodgingWrapper{client: client}, nil
}

func (w *lodgingWrapper) Invoke(ctx context.Context, method string, params map[string]any) (any, error) {
	switch method {
	case "search":
		query := url.Values{}
		query.Set("city", stringParam(params, "city"))
		query.Set("check_in", stringParam(params, "check_in"))
		query.Set("check_out", stringParam(params, "check_out"))

		var out LodgingSearchResult
		if err := w.client.getJSON(ctx, "/v1/properties/search", query, &out); err != nil {
			return nil, err
		}
		return out, nil
	case "details":
		id := stringParam(params, "property_id")
		var out LodgingDetails
		if err := w.client.getJSON(ctx, "/v1/properties/"+url.PathEscape(id), nil, &out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: lodging.%s", contractx.ErrMethodNotSupported, method)
	}
}

func (w *lodgingWrapper) Close() error {
	return w.client.Close()
}
