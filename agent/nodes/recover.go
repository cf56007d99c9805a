package nodes

import (
	"context"

	"github.com/rs/zerolog/log"

	contractx "github.com/itinera-labs/itinera/agent/contract"
	statex "github.com/itinera-labs/itinera/agent/state"
)

// Recover runs when no primary task produced a payload. It tries the
// plan's fallback tasks in order; any fallback success marks the turn
// degraded. Exhausting the fallbacks is terminal for the turn, which sets
// Failure so ComposeReply can apologize without raw provider errors.
func Recover(ctx context.Context, st *GraphState, dispatcher contractx.Dispatcher, store statex.Store) (*GraphState, error) {
	for _, fb := range st.Plan.Fallbacks {
		res := dispatchOne(ctx, dispatcher, st.Session, store, fb)
		st.Results = append(st.Results, res)
		if res.Result.OK() {
			st.Degraded = true
			st.Session.ClearError()
			log.Info().
				Str("session_id", st.Session.SessionID).
				Str("fallback", fb.Name).
				Msg("turn recovered via fallback")
			Checkpoint(ctx, store, st.Session)
			return st, nil
		}
	}

	st.Failure = terminalError(st.Results)
	st.Session.SetError(st.Failure.Kind, st.Failure.Message)
	Checkpoint(ctx, store, st.Session)
	log.Error().
		Str("session_id", st.Session.SessionID).
		Str("intent", st.Plan.Intent).
		Str("kind", string(st.Failure.Kind)).
		Msg("turn failed after exhausting fallbacks")
	return st, nil
}

// terminalError picks the most informative failure to surface: the last
// provider-side error if any, otherwise the first error recorded.
func terminalError(results []TaskResult) *contractx.InvocationError {
	var picked *contractx.InvocationError
	for _, r := range results {
		if r.Result.Err == nil {
			continue
		}
		if picked == nil || r.Result.Err.Kind != contractx.KindValidation {
			picked = r.Result.Err
		}
	}
	if picked == nil {
		picked = &contractx.InvocationError{
			Kind:    contractx.KindProviderTerminal,
			Message: "no sub-task produced a result",
		}
	}
	return picked
}
