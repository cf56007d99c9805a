package provider

import (
	"context"
	"fmt"
	"net/url"
	"time"

	contractx "github.com/itinera-labs/itinera/agent/contract"
)

type WebpageConfig struct {
	BaseURL string        `envconfig:"BASE_URL" split_words:"true"`
	APIKey  string        `envconfig:"API_KEY" split_words:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"15s"`
}

type ExtractResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Text    string `json:"text"`
	SiteName string `json:"site_name,omitempty"`
}

type webpageWrapper struct {
	client *restClient
}

func NewWebpageWrapper(cfg WebpageConfig) (contractx.Wrapper, error) {
	client, err := newRESTClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("webpage wrapper: %w", err)
	}
	return &webpageWrapper{client: client}, nil
}

func (w *webpageWrapper) Invoke(ctx context.Context, method string, params map[string]any) (any, error) {
	if method != "extract" {
		return nil, fmt.Errorf("%w: webpage.%s", contractx.ErrMethodNotSupported, method)
	}

	target := stringParam(params, "url")
	if _, err := url.ParseRequestURI(target); err != nil {
		return nil, fmt.Errorf("%w: invalid url %q", contractx.ErrValidation, target)
	}

	var out ExtractResult
	if err := w.client.postJSON(ctx, "/v1/extract", map[string]string{"url": target}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (w *webpageWrapper) Close() error {
	return w.client.Close()
}
