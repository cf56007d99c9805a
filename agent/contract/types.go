package contract

import "time"

// Source tags where an invocation result came from.
type Source string

const (
	SourceProvider Source = "provider"
	SourceCache    Source = "cache"
)

// InvokeOptions tunes a single capability invocation.
type InvokeOptions struct {
	Cacheable      bool          `json:"cacheable"`
	Timeout        time.Duration `json:"timeout"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
}

// InvocationRequest is the uniform request every orchestration node and
// wrapper speaks.
type InvocationRequest struct {
	Capability string         `json:"capability"`
	Method     string         `json:"method"`
	Params     map[string]any `json:"params,omitempty"`
	Options    InvokeOptions  `json:"options"`
}

// Provenance records how a result was produced.
type Provenance struct {
	Source       Source        `json:"source"`
	ProviderName string        `json:"provider_name"`
	Latency      time.Duration `json:"latency_ms"`
}

// InvocationError is the machine-readable error half of a result.
type InvocationError struct {
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
}

// InvocationResult is the uniform outcome of Manager.Invoke. Exactly one of
// Payload and Err is set; Status mirrors which.
type InvocationResult struct {
	Status     string           `json:"status"` // "ok" | "error"
	Payload    any              `json:"payload,omitempty"`
	Err        *InvocationError `json:"error,omitempty"`
	Provenance Provenance       `json:"provenance"`
}

func (r InvocationResult) OK() bool {
	return r.Status == "ok"
}

// Entity is a node in the semantic store: idempotently upserted by
// (Name, Kind), carrying free-form observation strings.
type Entity struct {
	Name         string   `json:"name"`
	Kind         string   `json:"kind"`
	Observations []string `json:"observations,omitempty"`
}

// Relation is a typed edge between two entities.
type Relation struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind"`
}

// WriteStatus reports per-step outcome of a dual-store write.
type WriteStatus string

const (
	WriteOK       WriteStatus = "ok"
	WriteDegraded WriteStatus = "degraded"
	WriteError    WriteStatus = "error"
)

// SyncOutcome is the combined result of a Synchronizer write.
type SyncOutcome struct {
	ID           string      `json:"id"`
	PrimaryWrite WriteStatus `json:"primary_write"`
	MirrorWrite  WriteStatus `json:"mirror_write"`
}
