package nodes

import (
	"context"

	"github.com/rs/zerolog/log"

	statex "github.com/itinera-labs/itinera/agent/state"
)

// Checkpoint persists the conversation state after a transition. Checkpoint
// failures are logged, not fatal: the turn keeps its in-memory state and
// the next successful save catches up.
func Checkpoint(ctx context.Context, store statex.Store, st *statex.ConversationState) {
	if store == nil || st == nil {
		return
	}
	if err := store.Save(ctx, st); err != nil {
		log.Warn().
			Str("session_id", st.SessionID).
			Err(err).
			Msg("state checkpoint failed")
	}
}
