package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	contractx "github.com/itinera-labs/itinera/agent/contract"
)

type fakeRecordStore struct {
	mu       sync.Mutex
	trips    map[string]*Trip
	records  map[string]*TravelRecord
	insertEr error
	staleEr  error
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{
		trips:   make(map[string]*Trip),
		records: make(map[string]*TravelRecord),
	}
}

func (f *fakeRecordStore) EnsureTrip(ctx context.Context, trip *Trip) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.trips[trip.ID]; !ok {
		f.trips[trip.ID] = trip
	}
	return nil
}

func (f *fakeRecordStore) InsertRecord(ctx context.Context, rec *TravelRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertEr != nil {
		return f.insertEr
	}
	cp := *rec
	f.records[rec.ID] = &cp
	return nil
}

func (f *fakeRecordStore) GetRecord(ctx context.Context, id string) (*TravelRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeRecordStore) UpdateRecord(ctx context.Context, rec *TravelRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[rec.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, rec.ID)
	}
	cp := *rec
	f.records[rec.ID] = &cp
	return nil
}

func (f *fakeRecordStore) DeleteRecord(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, id)
	return nil
}

func (f *fakeRecordStore) SetMirrorStale(ctx context.Context, id string, stale bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.staleEr != nil {
		return f.staleEr
	}
	if rec, ok := f.records[id]; ok {
		rec.MirrorStale = stale
	}
	return nil
}

func (f *fakeRecordStore) staleFlag(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	return ok && rec.MirrorStale
}

type fakeGraphStore struct {
	mu          sync.Mutex
	failUpserts int
	upserts     int
	deletes     [][]string
	entities    []contractx.Entity
	relations   []contractx.Relation
	openErr     error
	openResult  []contractx.Entity
}

func (f *fakeGraphStore) UpsertEntities(ctx context.Context, entities []contractx.Entity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if f.upserts <= f.failUpserts {
		return errors.New("graph store unavailable")
	}
	f.entities = append(f.entities, entities...)
	return nil
}

func (f *fakeGraphStore) UpsertRelations(ctx context.Context, relations []contractx.Relation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.relations = append(f.relations, relations...)
	return nil
}

func (f *fakeGraphStore) DeleteEntities(ctx context.Context, names []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, names)
	return nil
}

func (f *fakeGraphStore) Open(ctx context.Context, names []string) ([]contractx.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.openResult, nil
}

func newTestSynchronizer(t *testing.T, records RecordStore, graph GraphStore) *Synchronizer {
	t.Helper()
	s, err := NewSynchronizer(records, graph, SyncConfig{MirrorRetries: 2, MirrorBackoff: time.Millisecond})
	if err != nil {
		t.Fatalf("new synchronizer: %v", err)
	}
	return s
}

func tripPayload() contractx.RecordPayload {
	return contractx.RecordPayload{
		Kind: "flight_search",
		Name: "BKK-NRT option",
		Fields: map[string]any{
			"origin":      "BKK",
			"destination": "NRT",
		},
	}
}

func TestCreateWritesBothStores(t *testing.T) {
	t.Parallel()

	records := newFakeRecordStore()
	graph := &fakeGraphStore{}
	s := newTestSynchronizer(t, records, graph)

	outcome, err := s.Create(context.Background(), tripPayload())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if outcome.PrimaryWrite != contractx.WriteOK || outcome.MirrorWrite != contractx.WriteOK {
		t.Fatalf("expected clean dual write, got %+v", outcome)
	}
	if outcome.ID == "" {
		t.Fatal("expected authoritative record id")
	}

	rec, err := records.GetRecord(context.Background(), outcome.ID)
	if err != nil {
		t.Fatalf("relational read-back: %v", err)
	}
	if rec.TripID == "" {
		t.Fatal("record must belong to a trip aggregate")
	}

	graph.mu.Lock()
	defer graph.mu.Unlock()
	if len(graph.entities) < 2 {
		t.Fatalf("expected trip and record entities mirrored, got %d", len(graph.entities))
	}
	if len(graph.relations) != 1 || graph.relations[0].Kind != "contains" {
		t.Fatalf("expected trip containment relation, got %+v", graph.relations)
	}
}

func TestCreateValidatesPayload(t *testing.T) {
	t.Parallel()

	s := newTestSynchronizer(t, newFakeRecordStore(), &fakeGraphStore{})
	_, err := s.Create(context.Background(), contractx.RecordPayload{Kind: "flight_search"})
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation for nameless payload, got %v", err)
	}
}

func TestMirrorFailureDegradesAndRecovers(t *testing.T) {
	t.Parallel()

	records := newFakeRecordStore()
	graph := &fakeGraphStore{failUpserts: 1}
	s := newTestSynchronizer(t, records, graph)

	outcome, err := s.Create(context.Background(), tripPayload())
	if err != nil {
		t.Fatalf("create must survive a mirror failure: %v", err)
	}
	if outcome.PrimaryWrite != contractx.WriteOK {
		t.Fatal("relational write is the durability boundary and must succeed")
	}
	if outcome.MirrorWrite != contractx.WriteDegraded {
		t.Fatalf("expected degraded mirror, got %s", outcome.MirrorWrite)
	}
	if !records.staleFlag(outcome.ID) {
		t.Fatal("record must be flagged mirror_stale while the mirror lags")
	}

	// The bounded async retry clears the flag once the graph store heals.
	s.Close()
	if records.staleFlag(outcome.ID) {
		t.Fatal("stale flag must clear after a successful retry")
	}
}

func TestRetrieveWarnsOnStaleMirror(t *testing.T) {
	t.Parallel()

	records := newFakeRecordStore()
	// Graph stays down longer than the retry budget.
	graph := &fakeGraphStore{failUpserts: 10}
	s := newTestSynchronizer(t, records, graph)

	outcome, err := s.Create(context.Background(), tripPayload())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	s.Close()

	got, err := s.Retrieve(context.Background(), outcome.ID, false)
	if err != nil {
		t.Fatalf("retrieve must serve relational data regardless of the mirror: %v", err)
	}
	if got.Record == nil {
		t.Fatal("expected relational record")
	}
	if !containsWarning(got.Warnings, WarningMirrorStale) {
		t.Fatalf("expected %s warning, got %v", WarningMirrorStale, got.Warnings)
	}
}

func TestRetrieveGraphJoinFailureDegrades(t *testing.T) {
	t.Parallel()

	records := newFakeRecordStore()
	graph := &fakeGraphStore{}
	s := newTestSynchronizer(t, records, graph)

	outcome, err := s.Create(context.Background(), tripPayload())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	graph.mu.Lock()
	graph.openErr = errors.New("graph store unavailable")
	graph.mu.Unlock()

	got, err := s.Retrieve(context.Background(), outcome.ID, true)
	if err != nil {
		t.Fatalf("graph join failure must not fail the read: %v", err)
	}
	if !containsWarning(got.Warnings, WarningGraphUnavailable) {
		t.Fatalf("expected %s warning, got %v", WarningGraphUnavailable, got.Warnings)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	t.Parallel()

	records := newFakeRecordStore()
	graph := &fakeGraphStore{}
	s := newTestSynchronizer(t, records, graph)

	outcome, err := s.Create(context.Background(), tripPayload())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := s.Update(context.Background(), outcome.ID, contractx.RecordPayload{
		Name:   "BKK-NRT booked",
		Fields: map[string]any{"status": "booked"},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.PrimaryWrite != contractx.WriteOK {
		t.Fatalf("expected ok update, got %+v", updated)
	}

	rec, err := records.GetRecord(context.Background(), outcome.ID)
	if err != nil {
		t.Fatalf("read-back: %v", err)
	}
	if rec.Name != "BKK-NRT booked" {
		t.Fatalf("update not applied: %+v", rec)
	}

	deleted, err := s.Delete(context.Background(), outcome.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted.PrimaryWrite != contractx.WriteOK || deleted.MirrorWrite != contractx.WriteOK {
		t.Fatalf("expected clean dual delete, got %+v", deleted)
	}
	if _, err := records.GetRecord(context.Background(), outcome.ID); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound after delete, got %v", err)
	}

	graph.mu.Lock()
	defer graph.mu.Unlock()
	if len(graph.deletes) != 1 {
		t.Fatalf("expected one mirror delete, got %v", graph.deletes)
	}
}

func containsWarning(warnings []string, want string) bool {
	for _, w := range warnings {
		if w == want {
			return true
		}
	}
	return false
}
