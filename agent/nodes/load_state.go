package nodes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	contractx "github.com/itinera-labs/itinera/agent/contract"
	statex "github.com/itinera-labs/itinera/agent/state"
)

// LoadState validates the turn input, loads or creates the session's
// conversation state, appends the user message, and advances the turn
// counter.
func LoadState(ctx context.Context, in GraphInput, store statex.Store, now func() time.Time) (*GraphState, error) {
	if strings.TrimSpace(in.SessionID) == "" {
		return nil, fmt.Errorf("%w: session id is empty", contractx.ErrValidation)
	}
	if strings.TrimSpace(in.Text) == "" {
		return nil, fmt.Errorf("%w: message is empty", contractx.ErrValidation)
	}

	st, err := store.Load(ctx, in.SessionID)
	if errors.Is(err, statex.ErrStateNotFound) {
		st = statex.NewConversationState(in.SessionID, now())
	} else if err != nil {
		return nil, err
	}

	st.Turn++
	st.ClearSearches()
	st.AppendMessage(statex.RoleUser, in.Text, now())
	Checkpoint(ctx, store, st)

	return &GraphState{Input: in, Session: st}, nil
}
