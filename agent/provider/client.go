package provider

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
	"sync"
	"time"

	contractx "github.com/itinera-labs/itinera/agent/contract"
)

const maxResponseSizeBytes = 4 << 20

// restClient is the shared provider transport. The underlying http.Client
// (the provider session) is created lazily on first use and owned by the
// wrapper; Close releases its idle connections.
type restClient struct {
	baseURL string
	apiKey  string
	timeout time.Duration

	once   sync.Once
	client *http.Client
}

func newRESTClient(baseURL, apiKey string, timeout time.Duration) (*restClient, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errors.New("provider base url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid provider base url: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &restClient{
		baseURL: trimmed,
		apiKey:  strings.TrimSpace(apiKey),
		timeout: timeout,
	}, nil
}

func (c *restClient) session() *http.Client {
	c.once.Do(func() {
		c.client = &http.Client{Timeout: c.timeout}
	})
	return c.client
}

func (c *restClient) Close() error {
	if c.client != nil {
		c.client.CloseIdleConnections()
	}
	return nil
}

func (c *restClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", contractx.ErrProviderTerminal, err)
	}
	return c.do(req, out)
}

func (c *restClient) postJSON(ctx context.Context, path string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: marshal request body: %v", contractx.ErrValidation, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", contractx.ErrProviderTerminal, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *restClient) do(req *http.Request, out any) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.session().Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("%w: %v", contractx.ErrProviderTransient, err)
		}
		// Network-level failures (DNS, refused, client timeout) are
		// retryable by contract.
		return fmt.Errorf("%w: %v", contractx.ErrProviderTransient, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", contractx.ErrProviderTransient, err)
	}

	if err := classifyStatus(resp.StatusCode, raw); err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", contractx.ErrProviderTerminal, err)
	}
	return nil
}

// classifyStatus folds an HTTP status into the error taxonomy: rate limits
// and server errors are transient, auth failures and other client errors
// are terminal.
func classifyStatus(status int, body []byte) error {
	switch {
	case status >= http.StatusOK && status < http.StatusMultipleChoices:
		return nil
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: http status=%d body=%s", contractx.ErrProviderTransient, status, truncate(body))
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: http status=%d", contractx.ErrProviderTerminal, status)
	default:
		return fmt.Errorf("%w: http status=%d body=%s", contractx.ErrProviderTerminal, status, truncate(body))
	}
}

func truncate(body []byte) string {
	const limit = 256
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "..."
}

func stringParam(params map[string]any, name string) string {
	if raw, ok := params[name].(string); ok {
		return strings.TrimSpace(raw)
	}
	return ""
}

func numberParam(params map[string]any, name string) (float64, bool) {
	switch v := params[name].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
