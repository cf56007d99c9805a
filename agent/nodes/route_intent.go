package nodes

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	intentx "github.com/itinera-labs/itinera/agent/intent"
	statex "github.com/itinera-labs/itinera/agent/state"
)

// RouteIntent classifies the turn's user message and picks a task plan.
// Classifier failures are absorbed by falling back to the rule table, so
// the node itself never errors the graph.
func RouteIntent(ctx context.Context, st *GraphState, classifier intentx.Classifier, router *intentx.Router, store statex.Store, now func() time.Time) (*GraphState, error) {
	message := st.Session.LatestUserMessage()

	cls, err := classifier.Classify(ctx, message, st.Session.IntentHistory)
	if err != nil {
		log.Warn().Err(err).Str("session_id", st.Session.SessionID).
			Msg("intent classification failed, routing as unknown")
		cls = intentx.Classification{Intent: intentx.IntentUnknown}
	}

	st.Classification = cls
	st.Plan = router.Decide(message, cls)
	st.Session.RecordIntent(st.Plan.Intent, cls.Confidence, now())
	Checkpoint(ctx, store, st.Session)

	log.Debug().
		Str("session_id", st.Session.SessionID).
		Str("intent", st.Plan.Intent).
		Float64("confidence", cls.Confidence).
		Bool("clarify", st.Plan.Clarify).
		Int("tasks", len(st.Plan.Tasks)).
		Msg("turn routed")
	return st, nil
}
