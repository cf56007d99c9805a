package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/itinera-labs/itinera/agent/contract"
	intentx "github.com/itinera-labs/itinera/agent/intent"
	nodex "github.com/itinera-labs/itinera/agent/nodes"
	statex "github.com/itinera-labs/itinera/agent/state"
)

// Config tunes the orchestration service.
type Config struct {
	// PersistTimeout bounds each asynchronous memory write.
	PersistTimeout time.Duration `envconfig:"PERSIST_TIMEOUT" split_words:"true" default:"15s"`
}

// TurnResult is what the caller of RunTurn gets back.
type TurnResult struct {
	Reply string
	State *statex.ConversationState
}

// Orchestrator runs one compiled turn graph per user message. Turns for
// the same session are serialized; distinct sessions run concurrently.
type Orchestrator struct {
	store      statex.Store
	dispatcher contractx.Dispatcher
	classifier intentx.Classifier
	router     *intentx.Router
	records    contractx.Synchronizer
	composer   nodex.Composer
	sink       nodex.MemorySink

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	sessionMu sync.Mutex
	sessions  map[string]*sync.Mutex

	persistWG      sync.WaitGroup
	persistTimeout time.Duration

	now func() time.Time
}

// New compiles the turn graph once and returns a ready service. The
// composer may be nil; replies then come from the deterministic template.
func New(
	store statex.Store,
	dispatcher contractx.Dispatcher,
	classifier intentx.Classifier,
	router *intentx.Router,
	synchronizer contractx.Synchronizer,
	composer nodex.Composer,
	cfg Config,
) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if classifier == nil {
		return nil, errors.New("classifier is required")
	}
	if router == nil {
		return nil, errors.New("router is required")
	}

	persistTimeout := cfg.PersistTimeout
	if persistTimeout <= 0 {
		persistTimeout = 15 * time.Second
	}

	o := &Orchestrator{
		store:          store,
		dispatcher:     dispatcher,
		classifier:     classifier,
		router:         router,
		records:        synchronizer,
		composer:       composer,
		sessions:       make(map[string]*sync.Mutex),
		persistTimeout: persistTimeout,
		now:            time.Now,
	}
	o.sink = o

	graphRunner, err := o.compileTurnGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// RunTurn processes one user message end to end and returns the reply
// plus the post-turn conversation state.
func (o *Orchestrator) RunTurn(ctx context.Context, sessionID, text string) (TurnResult, error) {
	mu := o.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{
		SessionID: sessionID,
		Text:      text,
	})
	if err != nil {
		return TurnResult{}, err
	}
	return TurnResult{Reply: out.Reply, State: out.State}, nil
}

// Persist writes derived trip records through the synchronizer off the
// turn's critical path. Failures are logged, never surfaced to the user.
func (o *Orchestrator) Persist(sessionID string, payloads []contractx.RecordPayload) {
	if o.records == nil || len(payloads) == 0 {
		return
	}
	o.persistWG.Add(1)
	go func() {
		defer o.persistWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), o.persistTimeout)
		defer cancel()
		for _, payload := range payloads {
			outcome, err := o.records.Create(ctx, payload)
			if err != nil {
				log.Error().Err(err).
					Str("session_id", sessionID).
					Str("kind", payload.Kind).
					Msg("memory record write failed")
				continue
			}
			if outcome.MirrorWrite == contractx.WriteDegraded {
				log.Warn().
					Str("session_id", sessionID).
					Str("record_id", outcome.ID).
					Msg("memory record mirrored with degradation")
			}
		}
	}()
}

// Flush blocks until every in-flight asynchronous memory write finishes.
func (o *Orchestrator) Flush() {
	o.persistWG.Wait()
}

func (o *Orchestrator) sessionLock(sessionID string) *sync.Mutex {
	o.sessionMu.Lock()
	defer o.sessionMu.Unlock()
	mu, ok := o.sessions[sessionID]
	if !ok {
		mu = &sync.Mutex{}
		o.sessions[sessionID] = mu
	}
	return mu
}
