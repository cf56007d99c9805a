package provider

import (
	"context"
	"fmt"
	"net/url"
	"time"

	contractx "github.com/itinera-labs/itinera/agent/contract"
)

type CalendarConfig struct {
	BaseURL string        `envconfig:"BASE_URL" split_words:"true"`
	APIKey  string        `envconfig:"API_KEY" split_words:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

type CalendarEvent struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Start string `json:"start"`
	End   string `json:"end"`
}

type EventList struct {
	Events []CalendarEvent `json:"events"`
}

type calendarWrapper struct {
	client *restClient
}

func NewCalendarWrapper(cfg CalendarConfig) (contractx.Wrapper, error) {
	client, err := newRESTClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("calendar wrapper: %w", err)
	}
	return &calendarWrapper{client: client}, nil
}

func (w *calendarWrapper) Invoke(ctx context.Context, method string, params map[string]any) (any, error) {
	switch method {
	case "list_events":
		query := url.Values{}
		query.Set("from", stringParam(params, "from"))
		query.Set("to", stringParam(params, "to"))

		var out EventList
		if err := w.client.getJSON(ctx, "/v1/events", query, &out); err != nil {
			return nil, err
		}
		return out, nil
	case "create_event":
		body := map[string]string{
			"title": stringParam(params, "title"),
			"start": stringParam(params, "start"),
			"end":   stringParam(params, "end"),
		}
		var out CalendarEvent
		if err := w.client.postJSON(ctx, "/v1/events", body, &out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: calendar.%s", contractx.ErrMethodNotSupported, method)
	}
}

func (w *calendarWrapper) Close() error {
	return w.client.Close()
}
