package nodes

import (
	"context"
	"fmt"

	contractx "github.com/itinera-labs/itinera/agent/contract"
	statex "github.com/itinera-labs/itinera/agent/state"
)

// MemorySink receives derived trip records for persistence. The
// orchestrator's implementation persists off the turn's critical path, so
// a slow or degraded store never delays the reply.
type MemorySink interface {
	Persist(sessionID string, payloads []contractx.RecordPayload)
}

// UpdateMemory derives durable trip records from the turn's successful
// results, queues them on the session, then drains the queue into the
// sink. Queue-then-drain keeps payloads recoverable from a checkpoint if
// the process dies between the two steps.
func UpdateMemory(ctx context.Context, st *GraphState, sink MemorySink, store statex.Store) (*GraphState, error) {
	for _, r := range st.Results {
		if !r.Result.OK() || r.Result.Provenance.Source == contractx.SourceCache {
			continue
		}
		if payload, ok := deriveRecord(st, r); ok {
			st.Session.QueueMemoryUpdate(payload)
		}
	}

	pending := st.Session.DrainMemoryUpdates()
	Checkpoint(ctx, store, st.Session)
	if len(pending) > 0 && sink != nil {
		sink.Persist(st.Session.SessionID, pending)
	}
	return st, nil
}

// deriveRecord maps a task result onto a record worth keeping across
// turns. Read-back intents (memory recall, webpage summaries) are not
// re-recorded.
func deriveRecord(st *GraphState, r TaskResult) (contractx.RecordPayload, bool) {
	var kind string
	switch r.Task.Capability {
	case "flights":
		kind = "flight_" + r.Task.Method
	case "lodging":
		kind = "lodging_" + r.Task.Method
	case "calendar":
		kind = "calendar_" + r.Task.Method
	case "geo":
		kind = "route"
		if r.Task.Method != "route" {
			return contractx.RecordPayload{}, false
		}
	default:
		return contractx.RecordPayload{}, false
	}

	fields := map[string]any{
		"intent":  st.Plan.Intent,
		"turn":    st.Session.Turn,
		"session": st.Session.SessionID,
	}
	for k, v := range r.Task.Params {
		fields["param_"+k] = v
	}

	return contractx.RecordPayload{
		Kind:   kind,
		Name:   fmt.Sprintf("%s turn %d", r.Task.Name, st.Session.Turn),
		Fields: fields,
	}, true
}
