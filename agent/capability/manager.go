package capability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	contractx "github.com/itinera-labs/itinera/agent/contract"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultMaxRetries  = 3
	defaultBackoffBase = 200 * time.Millisecond
)

// ManagerConfig bounds retry and timeout behavior. Zero values fall back to
// conservative defaults.
type ManagerConfig struct {
	DefaultTimeout time.Duration `envconfig:"DEFAULT_TIMEOUT" split_words:"true" default:"10s"`
	MaxRetries     int           `envconfig:"MAX_RETRIES" split_words:"true" default:"3"`
	BackoffBase    time.Duration `envconfig:"BACKOFF_BASE" split_words:"true" default:"200ms"`
}

func (c ManagerConfig) withDefaults() ManagerConfig {
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = defaultTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = defaultBackoffBase
	}
	return c
}

// Manager is the central dispatcher: it lazily constructs wrappers through
// the Registry, fingerprints invocations, coalesces concurrent duplicates,
// caches results by volatility, and classifies failures.
type Manager struct {
	registry *Registry
	cache    *Cache
	cfg      ManagerConfig

	initFlight singleflight.Group
	callFlight singleflight.Group

	mu       sync.Mutex
	wrappers map[string]contractx.Wrapper
	closed   bool

	sleep func(context.Context, time.Duration) error
}

var _ contractx.Dispatcher = (*Manager)(nil)

func NewManager(registry *Registry, cache *Cache, cfg ManagerConfig) (*Manager, error) {
	if registry == nil {
		return nil, errors.New("registry is required")
	}
	if cache == nil {
		cache = NewCache()
	}
	return &Manager{
		registry: registry,
		cache:    cache,
		cfg:      cfg.withDefaults(),
		wrappers: make(map[string]contractx.Wrapper, 8),
		sleep:    sleepCtx,
	}, nil
}

// AvailableCapabilities enumerates resolvable capability names; the
// orchestration graph builds its routing table from this at startup.
func (m *Manager) AvailableCapabilities() []string {
	return m.registry.Names()
}

// Cache exposes the manager's cache for observability reads.
func (m *Manager) Cache() *Cache {
	return m.cache
}

// Invoke is the primary dispatch contract. It never returns a raw error:
// every failure is folded into the result's machine-readable error half.
func (m *Manager) Invoke(ctx context.Context, req contractx.InvocationRequest) contractx.InvocationResult {
	reg, err := m.registry.Resolve(req.Capability)
	if err != nil {
		return errResult(req.Capability, err)
	}

	method, ok := reg.Descriptor.Method(req.Method)
	if !ok {
		return errResult(req.Capability, fmt.Errorf("%w: %s.%s", contractx.ErrMethodNotSupported, req.Capability, req.Method))
	}
	if err := method.ValidateParams(req.Params); err != nil {
		return errResult(req.Capability, err)
	}

	// The idempotency key joins the normalized param bag before hashing so
	// every fingerprint keeps the capability:method:digest shape.
	fpParams := req.Params
	if key := strings.TrimSpace(req.Options.IdempotencyKey); key != "" {
		fpParams = make(map[string]any, len(req.Params)+1)
		for k, v := range req.Params {
			fpParams[k] = v
		}
		fpParams["_idempotency_key"] = key
	}
	fp := Fingerprint(req.Capability, req.Method, fpParams)

	if req.Options.Cacheable {
		entry, hit, cacheErr := m.cache.Get(fp)
		if cacheErr != nil {
			log.Warn().Str("fingerprint", fp).Msg("cache entry corrupt, treating as miss")
		}
		if hit {
			return contractx.InvocationResult{
				Status:  "ok",
				Payload: entry.Payload,
				Provenance: contractx.Provenance{
					Source:       contractx.SourceCache,
					ProviderName: entry.Provider,
					Latency:      entry.Latency,
				},
			}
		}
	}

	// Per-fingerprint admission: at most one concurrent underlying call;
	// every awaiter observes the identical outcome. The flight runs on a
	// context detached from this caller so a torn-down session never
	// cancels a call other awaiters share.
	ch := m.callFlight.DoChan(fp, func() (any, error) {
		return m.runFlight(context.WithoutCancel(ctx), reg, req, fp)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return errResult(req.Capability, res.Err)
		}
		out := res.Val.(flightOutcome)
		return contractx.InvocationResult{
			Status:  "ok",
			Payload: out.payload,
			Provenance: contractx.Provenance{
				Source:       contractx.SourceProvider,
				ProviderName: req.Capability,
				Latency:      out.latency,
			},
		}
	case <-ctx.Done():
		return errResult(req.Capability, fmt.Errorf("%w: %v", contractx.ErrProviderTransient, ctx.Err()))
	}
}

type flightOutcome struct {
	payload any
	latency time.Duration
}

func (m *Manager) runFlight(ctx context.Context, reg Registration, req contractx.InvocationRequest, fp string) (flightOutcome, error) {
	wrapper, err := m.wrapper(reg)
	if err != nil {
		return flightOutcome{}, err
	}

	timeout := req.Options.Timeout
	if timeout <= 0 {
		timeout = m.cfg.DefaultTimeout
	}

	started := time.Now()
	var lastErr error
	for attempt := 0; attempt <= m.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := m.cfg.BackoffBase << (attempt - 1)
			if err := m.sleep(ctx, backoff); err != nil {
				return flightOutcome{}, fmt.Errorf("%w: %v", contractx.ErrProviderTransient, err)
			}
		}

		payload, err := m.callOnce(ctx, wrapper, req, timeout)
		if err == nil {
			latency := time.Since(started)
			if req.Options.Cacheable {
				m.cache.Set(fp, payload, req.Capability, latency, reg.Descriptor.Volatility)
			}
			return flightOutcome{payload: payload, latency: latency}, nil
		}

		lastErr = err
		if !contractx.Retryable(err) {
			break
		}
		log.Debug().
			Str("capability", req.Capability).
			Str("method", req.Method).
			Int("attempt", attempt+1).
			Err(err).
			Msg("transient provider failure, retrying")
	}
	return flightOutcome{}, lastErr
}

func (m *Manager) callOnce(ctx context.Context, wrapper contractx.Wrapper, req contractx.InvocationRequest, timeout time.Duration) (any, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := wrapper.Invoke(callCtx, req.Method, req.Params)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s.%s timed out after %s", contractx.ErrProviderTransient, req.Capability, req.Method, timeout)
		}
		return nil, err
	}
	return payload, nil
}

// wrapper lazily builds and caches one wrapper instance per capability;
// concurrent initializations for the same name coalesce.
func (m *Manager) wrapper(reg Registration) (contractx.Wrapper, error) {
	name := reg.Descriptor.Name

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: manager is shut down", contractx.ErrProviderTerminal)
	}
	if w, ok := m.wrappers[name]; ok {
		m.mu.Unlock()
		return w, nil
	}
	m.mu.Unlock()

	built, err, _ := m.initFlight.Do(name, func() (any, error) {
		m.mu.Lock()
		if w, ok := m.wrappers[name]; ok {
			m.mu.Unlock()
			return w, nil
		}
		m.mu.Unlock()

		w, err := reg.Factory()
		if err != nil {
			return nil, fmt.Errorf("%w: build wrapper %s: %v", contractx.ErrProviderTerminal, name, err)
		}

		m.mu.Lock()
		m.wrappers[name] = w
		m.mu.Unlock()
		return w, nil
	})
	if err != nil {
		return nil, err
	}
	return built.(contractx.Wrapper), nil
}

// Shutdown releases every constructed wrapper's provider session.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	m.closed = true
	wrappers := m.wrappers
	m.wrappers = make(map[string]contractx.Wrapper)
	m.mu.Unlock()

	var firstErr error
	for name, w := range wrappers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close wrapper %s: %w", name, err)
		}
	}
	return firstErr
}

func errResult(capability string, err error) contractx.InvocationResult {
	return contractx.InvocationResult{
		Status: "error",
		Err: &contractx.InvocationError{
			Kind:      contractx.KindOf(err),
			Message:   err.Error(),
			Retryable: contractx.Retryable(err),
		},
		Provenance: contractx.Provenance{
			Source:       contractx.SourceProvider,
			ProviderName: capability,
		},
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
