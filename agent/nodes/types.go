package nodes

import (
	contractx "github.com/itinera-labs/itinera/agent/contract"
	intentx "github.com/itinera-labs/itinera/agent/intent"
	statex "github.com/itinera-labs/itinera/agent/state"
)

// GraphInput is one turn's request from the session layer.
type GraphInput struct {
	SessionID string
	Text      string
}

// GraphOutput is the user-visible outcome of a turn.
type GraphOutput struct {
	Reply string
	State *statex.ConversationState
}

// TaskResult pairs a planned task with its dispatch outcome.
type TaskResult struct {
	Task   intentx.Task
	Result contractx.InvocationResult
}

// GraphState flows through one turn of the orchestration graph. It is
// owned exclusively by the running turn.
type GraphState struct {
	Input   GraphInput
	Session *statex.ConversationState

	Classification intentx.Classification
	Plan           intentx.Plan

	Results  []TaskResult
	Degraded bool

	// Failure is set when the turn reached Recovering's terminal branch.
	Failure *contractx.InvocationError
}

// Succeeded reports whether at least one sub-task produced a payload; a
// turn with partial failures still counts as a success.
func (s *GraphState) Succeeded() bool {
	for _, r := range s.Results {
		if r.Result.OK() {
			return true
		}
	}
	return false
}

// SuccessfulResults filters the task outcomes that carry payloads.
func (s *GraphState) SuccessfulResults() []TaskResult {
	out := make([]TaskResult, 0, len(s.Results))
	for _, r := range s.Results {
		if r.Result.OK() {
			out = append(out, r)
		}
	}
	return out
}
