package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	contractx "github.com/itinera-labs/itinera/agent/contract"
)

const maxGraphResponseBytes = 2 << 20

// GraphConfig points at the knowledge-graph memory service.
type GraphConfig struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// GraphClient talks to the semantic store over bearer-token REST. Entities
// are upserted idempotently by (name, kind); relations by (from, to, kind).
type GraphClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type GraphOption func(*GraphClient)

func WithGraphHTTPClient(client *http.Client) GraphOption {
	return func(c *GraphClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewGraphClient(cfg GraphConfig, opts ...GraphOption) (*GraphClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("graph store url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid graph store url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &GraphClient{
		baseURL:    baseURL,
		token:      strings.TrimSpace(cfg.Token),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

func (c *GraphClient) UpsertEntities(ctx context.Context, entities []contractx.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	return c.post(ctx, "/entities/upsert", map[string]any{"entities": entities}, nil)
}

func (c *GraphClient) UpsertRelations(ctx context.Context, relations []contractx.Relation) error {
	if len(relations) == 0 {
		return nil
	}
	return c.post(ctx, "/relations/upsert", map[string]any{"relations": relations}, nil)
}

func (c *GraphClient) DeleteEntities(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	return c.post(ctx, "/entities/delete", map[string]any{"names": names}, nil)
}

// Search returns entities matching a free-text query.
func (c *GraphClient) Search(ctx context.Context, query string) ([]contractx.Entity, error) {
	var out struct {
		Entities []contractx.Entity `json:"entities"`
	}
	if err := c.post(ctx, "/search", map[string]any{"query": query}, &out); err != nil {
		return nil, err
	}
	return out.Entities, nil
}

// Open loads entities by exact name.
func (c *GraphClient) Open(ctx context.Context, names []string) ([]contractx.Entity, error) {
	var out struct {
		Entities []contractx.Entity `json:"entities"`
	}
	if err := c.post(ctx, "/entities/open", map[string]any{"names": names}, &out); err != nil {
		return nil, err
	}
	return out.Entities, nil
}

func (c *GraphClient) post(ctx context.Context, path string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal graph request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build graph request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute graph request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxGraphResponseBytes))
	if err != nil {
		return fmt.Errorf("read graph response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("graph store http status=%d body=%s", resp.StatusCode, string(payload))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode graph response: %w", err)
	}
	return nil
}
