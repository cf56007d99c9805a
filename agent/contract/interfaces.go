package contract

import "context"

// Wrapper is the per-provider adapter behind one capability. The closed
// method set is declared at registration; Invoke never sees a method
// outside it. Provider sessions are created lazily and released by Close.
type Wrapper interface {
	Invoke(ctx context.Context, method string, params map[string]any) (any, error)
	Close() error
}

// WrapperFactory builds a capability's wrapper on first use.
type WrapperFactory func() (Wrapper, error)

// Dispatcher is the sole entry point the orchestration graph uses to reach
// providers.
type Dispatcher interface {
	Invoke(ctx context.Context, req InvocationRequest) InvocationResult
	AvailableCapabilities() []string
}

// Synchronizer owns both stores: authoritative relational writes, then
// best-effort semantic mirroring.
type Synchronizer interface {
	Create(ctx context.Context, payload RecordPayload) (SyncOutcome, error)
	Retrieve(ctx context.Context, id string, includeGraph bool) (RetrieveResult, error)
	Update(ctx context.Context, id string, payload RecordPayload) (SyncOutcome, error)
	Delete(ctx context.Context, id string) (SyncOutcome, error)
}

// RecordPayload is the write shape the Synchronizer accepts from the
// UpdatingMemory node.
type RecordPayload struct {
	TripID string         `json:"trip_id,omitempty"`
	Kind   string         `json:"kind"`
	Name   string         `json:"name"`
	Fields map[string]any `json:"fields,omitempty"`

	Entities  []Entity   `json:"entities,omitempty"`
	Relations []Relation `json:"relations,omitempty"`
}

// RetrieveResult pairs the relational record with the optional graph join.
type RetrieveResult struct {
	Record   any      `json:"record"`
	Graph    []Entity `json:"graph,omitempty"`
	Warnings []string `json:"warnings"`
}
