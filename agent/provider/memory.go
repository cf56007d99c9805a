package provider

import (
	"context"
	"errors"
	"fmt"

	contractx "github.com/itinera-labs/itinera/agent/contract"
)

// GraphSearcher is the read surface of the semantic store the memory
// capability exposes to the orchestration graph.
type GraphSearcher interface {
	Search(ctx context.Context, query string) ([]contractx.Entity, error)
	Open(ctx context.Context, names []string) ([]contractx.Entity, error)
}

type memoryWrapper struct {
	graph GraphSearcher
}

// NewMemoryWrapper adapts the semantic graph store into a capability. Reads
// only; all writes go through the Synchronizer.
func NewMemoryWrapper(graph GraphSearcher) (contractx.Wrapper, error) {
	if graph == nil {
		return nil, errors.New("graph searcher is required")
	}
	return &memoryWrapper{graph: graph}, nil
}

func (w *memoryWrapper) Invoke(ctx context.Context, method string, params map[string]any) (any, error) {
	switch method {
	case "search":
		query := stringParam(params, "query")
		if query == "" {
			return nil, fmt.Errorf("%w: query is required", contractx.ErrValidation)
		}
		entities, err := w.graph.Search(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("%w: memory search: %v", contractx.ErrProviderTransient, err)
		}
		return entities, nil
	case "open":
		raw, ok := params["names"]
		if !ok {
			return nil, fmt.Errorf("%w: names is required", contractx.ErrValidation)
		}
		names, err := toStringSlice(raw)
		if err != nil {
			return nil, err
		}
		entities, err := w.graph.Open(ctx, names)
		if err != nil {
			return nil, fmt.Errorf("%w: memory open: %v", contractx.ErrProviderTransient, err)
		}
		return entities, nil
	default:
		return nil, fmt.Errorf("%w: memory.%s", contractx.ErrMethodNotSupported, method)
	}
}

func (w *memoryWrapper) Close() error {
	return nil
}

func toStringSlice(raw any) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: names must be strings", contractx.ErrValidation)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: names must be a list", contractx.ErrValidation)
	}
}
