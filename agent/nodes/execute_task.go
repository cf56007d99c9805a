package nodes

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	capx "github.com/itinera-labs/itinera/agent/capability"
	contractx "github.com/itinera-labs/itinera/agent/contract"
	intentx "github.com/itinera-labs/itinera/agent/intent"
	statex "github.com/itinera-labs/itinera/agent/state"
)

// ExecuteTasks fans the plan's independent tasks out through the dispatcher
// and then runs dependent tasks against their parents' payloads. Individual
// task failures land in Results rather than erroring the node; Recovering
// decides what a fully failed turn means.
func ExecuteTasks(ctx context.Context, st *GraphState, dispatcher contractx.Dispatcher, store statex.Store) (*GraphState, error) {
	var independent, dependent []intentx.Task
	for _, task := range st.Plan.Tasks {
		if task.After == "" {
			independent = append(independent, task)
		} else {
			dependent = append(dependent, task)
		}
	}

	// The session is single-owner: all state writes happen on this
	// goroutine, before the fan-out and after the join. Workers only fill
	// their own results slot.
	fingerprints := make([]string, len(independent))
	for i, task := range independent {
		fingerprints[i] = capx.Fingerprint(task.Capability, task.Method, task.Params)
		st.Session.BeginSearch(fingerprints[i])
	}
	Checkpoint(ctx, store, st.Session)

	results := make([]TaskResult, len(independent))
	g, gctx := errgroup.WithContext(ctx)
	for i, task := range independent {
		g.Go(func() error {
			results[i] = invokeTask(gctx, dispatcher, st.Session.SessionID, task)
			return nil
		})
	}
	// Workers never return errors; Wait is only a join point.
	_ = g.Wait()

	for i, res := range results {
		st.Session.FinishSearch(fingerprints[i], res.Result.OK())
	}
	Checkpoint(ctx, store, st.Session)
	st.Results = append(st.Results, results...)

	for _, task := range dependent {
		parent, ok := findResult(st.Results, task.After)
		if !ok || !parent.Result.OK() {
			st.Results = append(st.Results, TaskResult{Task: task, Result: skippedResult("dependency " + task.After + " did not succeed")})
			continue
		}
		if task.Derive != nil {
			derived, ok := task.Derive(parent.Result.Payload)
			if !ok {
				st.Results = append(st.Results, TaskResult{Task: task, Result: skippedResult("dependency " + task.After + " payload unusable")})
				continue
			}
			merged := make(map[string]any, len(task.Params)+len(derived))
			for k, v := range task.Params {
				merged[k] = v
			}
			for k, v := range derived {
				merged[k] = v
			}
			task.Params = merged
		}
		st.Results = append(st.Results, dispatchOne(ctx, dispatcher, st.Session, store, task))
	}

	Checkpoint(ctx, store, st.Session)
	return st, nil
}

// dispatchOne runs a single task serially, tracking it in the session's
// active-search map. Callers that fan out use invokeTask directly and do
// the search bookkeeping themselves on the owning goroutine.
func dispatchOne(ctx context.Context, dispatcher contractx.Dispatcher, session *statex.ConversationState, store statex.Store, task intentx.Task) TaskResult {
	fp := capx.Fingerprint(task.Capability, task.Method, task.Params)
	session.BeginSearch(fp)
	Checkpoint(ctx, store, session)

	res := invokeTask(ctx, dispatcher, session.SessionID, task)
	session.FinishSearch(fp, res.Result.OK())
	return res
}

// invokeTask calls the dispatcher without touching shared state; safe to
// run from fan-out workers.
func invokeTask(ctx context.Context, dispatcher contractx.Dispatcher, sessionID string, task intentx.Task) TaskResult {
	res := dispatcher.Invoke(ctx, contractx.InvocationRequest{
		Capability: task.Capability,
		Method:     task.Method,
		Params:     task.Params,
		Options:    contractx.InvokeOptions{Cacheable: task.Cacheable},
	})

	if !res.OK() {
		log.Warn().
			Str("session_id", sessionID).
			Str("task", task.Name).
			Str("kind", string(res.Err.Kind)).
			Str("message", res.Err.Message).
			Msg("sub-task failed")
	}
	return TaskResult{Task: task, Result: res}
}

func findResult(results []TaskResult, name string) (TaskResult, bool) {
	for _, r := range results {
		if r.Task.Name == name {
			return r, true
		}
	}
	return TaskResult{}, false
}

func skippedResult(reason string) contractx.InvocationResult {
	return contractx.InvocationResult{
		Status: "error",
		Err: &contractx.InvocationError{
			Kind:    contractx.KindValidation,
			Message: reason,
		},
	}
}
