package capability

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	contractx "github.com/itinera-labs/itinera/agent/contract"
)

type fakeWrapper struct {
	mu     sync.Mutex
	calls  int
	closed bool
	invoke func(call int, method string, params map[string]any) (any, error)
}

func (f *fakeWrapper) Invoke(ctx context.Context, method string, params map[string]any) (any, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.invoke(call, method, params)
}

func (f *fakeWrapper) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeWrapper) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestManager(t *testing.T, wrapper *fakeWrapper, cfg ManagerConfig) *Manager {
	t.Helper()

	reg := NewRegistry()
	desc := Descriptor{
		Name: "flights",
		Methods: []MethodSpec{
			{Name: "search", Params: []ParamSpec{
				{Name: "origin", Type: ParamString, Required: true},
				{Name: "destination", Type: ParamString, Required: false},
			}},
		},
		Idempotent: true,
		Volatility: VolatilityNearRealTime,
	}
	err := reg.Register(desc, func() (contractx.Wrapper, error) { return wrapper, nil }, false)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	m, err := NewManager(reg, NewCache(), cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(func() { _ = m.Shutdown() })
	return m
}

func searchReq(cacheable bool) contractx.InvocationRequest {
	return contractx.InvocationRequest{
		Capability: "flights",
		Method:     "search",
		Params:     map[string]any{"origin": "BKK"},
		Options:    contractx.InvokeOptions{Cacheable: cacheable},
	}
}

func TestInvokeUnknownCapability(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, &fakeWrapper{}, ManagerConfig{})
	res := m.Invoke(context.Background(), contractx.InvocationRequest{Capability: "horoscope", Method: "read"})
	if res.OK() {
		t.Fatal("expected error result")
	}
	if res.Err.Kind != contractx.KindUnknownCapability {
		t.Fatalf("expected UnknownCapability kind, got %s", res.Err.Kind)
	}
}

func TestInvokeMethodNotSupported(t *testing.T) {
	t.Parallel()

	wrapper := &fakeWrapper{invoke: func(int, string, map[string]any) (any, error) {
		return nil, errors.New("must not be called")
	}}
	m := newTestManager(t, wrapper, ManagerConfig{})

	res := m.Invoke(context.Background(), contractx.InvocationRequest{Capability: "flights", Method: "teleport"})
	if res.OK() || res.Err.Kind != contractx.KindMethodNotSupported {
		t.Fatalf("expected MethodNotSupported, got %+v", res)
	}
	if res.Err.Retryable {
		t.Fatal("configuration errors must not be retryable")
	}
	if wrapper.callCount() != 0 {
		t.Fatal("wrapper must not run for undeclared methods")
	}
}

func TestInvokeParamValidation(t *testing.T) {
	t.Parallel()

	wrapper := &fakeWrapper{invoke: func(int, string, map[string]any) (any, error) {
		return nil, errors.New("must not be called")
	}}
	m := newTestManager(t, wrapper, ManagerConfig{})

	res := m.Invoke(context.Background(), contractx.InvocationRequest{
		Capability: "flights",
		Method:     "search",
		Params:     map[string]any{"destination": "NRT"}, // origin missing
	})
	if res.OK() || res.Err.Kind != contractx.KindValidation {
		t.Fatalf("expected ValidationError, got %+v", res)
	}
	if wrapper.callCount() != 0 {
		t.Fatal("wrapper must not run on invalid params")
	}
}

func TestInvokeRetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()

	wrapper := &fakeWrapper{invoke: func(call int, _ string, _ map[string]any) (any, error) {
		if call < 3 {
			return nil, fmt.Errorf("%w: upstream 503", contractx.ErrProviderTransient)
		}
		return "ok", nil
	}}
	m := newTestManager(t, wrapper, ManagerConfig{MaxRetries: 3, BackoffBase: time.Millisecond})

	res := m.Invoke(context.Background(), searchReq(false))
	if !res.OK() {
		t.Fatalf("expected recovery, got %+v", res.Err)
	}
	if wrapper.callCount() != 3 {
		t.Fatalf("expected 3 attempts, got %d", wrapper.callCount())
	}
	if res.Provenance.Source != contractx.SourceProvider {
		t.Fatalf("expected provider source, got %s", res.Provenance.Source)
	}
}

func TestInvokeRetryBound(t *testing.T) {
	t.Parallel()

	wrapper := &fakeWrapper{invoke: func(int, string, map[string]any) (any, error) {
		return nil, fmt.Errorf("%w: upstream 503", contractx.ErrProviderTransient)
	}}
	m := newTestManager(t, wrapper, ManagerConfig{MaxRetries: 2, BackoffBase: time.Millisecond})

	res := m.Invoke(context.Background(), searchReq(false))
	if res.OK() {
		t.Fatal("expected exhaustion")
	}
	if res.Err.Kind != contractx.KindProviderTransient || !res.Err.Retryable {
		t.Fatalf("expected retryable transient error, got %+v", res.Err)
	}
	if wrapper.callCount() != 3 { // initial + 2 retries
		t.Fatalf("expected 3 attempts, got %d", wrapper.callCount())
	}
}

func TestInvokeTerminalNotRetried(t *testing.T) {
	t.Parallel()

	wrapper := &fakeWrapper{invoke: func(int, string, map[string]any) (any, error) {
		return nil, fmt.Errorf("%w: 401 unauthorized", contractx.ErrProviderTerminal)
	}}
	m := newTestManager(t, wrapper, ManagerConfig{MaxRetries: 3, BackoffBase: time.Millisecond})

	res := m.Invoke(context.Background(), searchReq(false))
	if res.OK() || res.Err.Kind != contractx.KindProviderTerminal || res.Err.Retryable {
		t.Fatalf("expected non-retryable terminal error, got %+v", res)
	}
	if wrapper.callCount() != 1 {
		t.Fatalf("terminal errors must not retry, got %d attempts", wrapper.callCount())
	}
}

func TestInvokeSingleFlight(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	wrapper := &fakeWrapper{invoke: func(int, string, map[string]any) (any, error) {
		<-release
		return "shared", nil
	}}
	m := newTestManager(t, wrapper, ManagerConfig{})

	const callers = 5
	var wg sync.WaitGroup
	results := make([]contractx.InvocationResult, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = m.Invoke(context.Background(), searchReq(false))
		}()
	}

	// Give every caller time to join the flight before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if wrapper.callCount() != 1 {
		t.Fatalf("expected exactly one underlying call, got %d", wrapper.callCount())
	}
	for i, res := range results {
		if !res.OK() || res.Payload != "shared" {
			t.Fatalf("caller %d: expected shared payload, got %+v", i, res)
		}
	}
}

func TestInvokeCacheHitReplaysProvenance(t *testing.T) {
	t.Parallel()

	wrapper := &fakeWrapper{invoke: func(int, string, map[string]any) (any, error) {
		return map[string]any{"flights": 2}, nil
	}}
	m := newTestManager(t, wrapper, ManagerConfig{})

	first := m.Invoke(context.Background(), searchReq(true))
	if !first.OK() || first.Provenance.Source != contractx.SourceProvider {
		t.Fatalf("expected provider-sourced first call, got %+v", first)
	}

	second := m.Invoke(context.Background(), searchReq(true))
	if !second.OK() {
		t.Fatalf("expected cache hit, got %+v", second.Err)
	}
	if second.Provenance.Source != contractx.SourceCache {
		t.Fatalf("expected cache source, got %s", second.Provenance.Source)
	}
	if second.Provenance.Latency != first.Provenance.Latency {
		t.Fatalf("cache hit must replay the original latency: %s vs %s",
			second.Provenance.Latency, first.Provenance.Latency)
	}
	if second.Provenance.ProviderName != first.Provenance.ProviderName {
		t.Fatalf("cache hit must replay the original provider: %s vs %s",
			second.Provenance.ProviderName, first.Provenance.ProviderName)
	}
	if wrapper.callCount() != 1 {
		t.Fatalf("second call must not reach the provider, got %d calls", wrapper.callCount())
	}
}

func TestInvokeFailuresAreNotCached(t *testing.T) {
	t.Parallel()

	wrapper := &fakeWrapper{invoke: func(call int, _ string, _ map[string]any) (any, error) {
		if call == 1 {
			return nil, fmt.Errorf("%w: 400 bad request", contractx.ErrProviderTerminal)
		}
		return "ok", nil
	}}
	m := newTestManager(t, wrapper, ManagerConfig{MaxRetries: 1, BackoffBase: time.Millisecond})

	if res := m.Invoke(context.Background(), searchReq(true)); res.OK() {
		t.Fatal("first call should fail")
	}
	if res := m.Invoke(context.Background(), searchReq(true)); !res.OK() {
		t.Fatalf("second call should reach the provider and succeed, got %+v", res.Err)
	}
	if wrapper.callCount() != 2 {
		t.Fatalf("expected 2 provider calls, got %d", wrapper.callCount())
	}
}

func TestIdempotencyKeySplitsFlights(t *testing.T) {
	t.Parallel()

	wrapper := &fakeWrapper{invoke: func(call int, _ string, _ map[string]any) (any, error) {
		return call, nil
	}}
	m := newTestManager(t, wrapper, ManagerConfig{})

	req := searchReq(true)
	req.Options.IdempotencyKey = "turn-1"
	first := m.Invoke(context.Background(), req)

	req.Options.IdempotencyKey = "turn-2"
	second := m.Invoke(context.Background(), req)

	if !first.OK() || !second.OK() {
		t.Fatalf("expected both calls to succeed: %+v %+v", first.Err, second.Err)
	}
	if wrapper.callCount() != 2 {
		t.Fatalf("distinct idempotency keys must not share cache entries, got %d calls", wrapper.callCount())
	}

	// The key is hashed into the param bag, not appended after the digest,
	// so cache entries keep the capability:method:digest shape.
	folded := Fingerprint("flights", "search", map[string]any{
		"origin":           "BKK",
		"_idempotency_key": "turn-1",
	})
	if _, hit, err := m.Cache().Get(folded); err != nil || !hit {
		t.Fatalf("expected cache entry under folded fingerprint %s (hit=%v err=%v)", folded, hit, err)
	}
	appended := Fingerprint("flights", "search", map[string]any{"origin": "BKK"}) + ":turn-1"
	if _, hit, _ := m.Cache().Get(appended); hit {
		t.Fatalf("no entry should live under the appended-key shape %s", appended)
	}
}

func TestShutdownClosesWrappers(t *testing.T) {
	t.Parallel()

	wrapper := &fakeWrapper{invoke: func(int, string, map[string]any) (any, error) {
		return "ok", nil
	}}
	m := newTestManager(t, wrapper, ManagerConfig{})

	if res := m.Invoke(context.Background(), searchReq(false)); !res.OK() {
		t.Fatalf("setup invoke failed: %+v", res.Err)
	}
	if err := m.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !wrapper.closed {
		t.Fatal("shutdown must close constructed wrappers")
	}

	res := m.Invoke(context.Background(), searchReq(false))
	if res.OK() || res.Err.Kind != contractx.KindProviderTerminal {
		t.Fatalf("expected terminal error after shutdown, got %+v", res)
	}
}
