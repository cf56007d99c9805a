package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/itinera-labs/itinera/agent/contract"
)

const (
	defaultMirrorRetries = 3
	defaultMirrorBackoff = 500 * time.Millisecond

	WarningMirrorStale      = "mirror_stale"
	WarningGraphUnavailable = "graph_unavailable"
)

// GraphStore is the semantic-store surface the Synchronizer mirrors into.
type GraphStore interface {
	UpsertEntities(ctx context.Context, entities []contractx.Entity) error
	UpsertRelations(ctx context.Context, relations []contractx.Relation) error
	DeleteEntities(ctx context.Context, names []string) error
	Open(ctx context.Context, names []string) ([]contractx.Entity, error)
}

// SyncConfig bounds the asynchronous mirror retry loop.
type SyncConfig struct {
	MirrorRetries int           `envconfig:"MIRROR_RETRIES" split_words:"true" default:"3"`
	MirrorBackoff time.Duration `envconfig:"MIRROR_BACKOFF" split_words:"true" default:"500ms"`
}

func (c SyncConfig) withDefaults() SyncConfig {
	if c.MirrorRetries <= 0 {
		c.MirrorRetries = defaultMirrorRetries
	}
	if c.MirrorBackoff <= 0 {
		c.MirrorBackoff = defaultMirrorBackoff
	}
	return c
}

// Synchronizer owns the dual-store consistency contract: the relational
// write is the durability boundary; the semantic mirror follows, degrades
// on failure, and is retried asynchronously with bounded attempts. A mirror
// failure never rolls back the relational write.
type Synchronizer struct {
	records RecordStore
	graph   GraphStore
	cfg     SyncConfig

	wg  sync.WaitGroup
	now func() time.Time
}

var _ contractx.Synchronizer = (*Synchronizer)(nil)

func NewSynchronizer(records RecordStore, graph GraphStore, cfg SyncConfig) (*Synchronizer, error) {
	if records == nil {
		return nil, errors.New("record store is required")
	}
	if graph == nil {
		return nil, errors.New("graph store is required")
	}
	return &Synchronizer{
		records: records,
		graph:   graph,
		cfg:     cfg.withDefaults(),
		now:     time.Now,
	}, nil
}

func (s *Synchronizer) Create(ctx context.Context, payload contractx.RecordPayload) (contractx.SyncOutcome, error) {
	if strings.TrimSpace(payload.Kind) == "" || strings.TrimSpace(payload.Name) == "" {
		return contractx.SyncOutcome{PrimaryWrite: contractx.WriteError, MirrorWrite: contractx.WriteError},
			fmt.Errorf("%w: record kind and name are required", contractx.ErrValidation)
	}

	tripID := strings.TrimSpace(payload.TripID)
	if tripID == "" {
		tripID = "trip-" + uuid.NewString()
	}
	if err := s.records.EnsureTrip(ctx, &Trip{ID: tripID, Title: tripID, CreatedAt: s.now().UTC()}); err != nil {
		return contractx.SyncOutcome{PrimaryWrite: contractx.WriteError, MirrorWrite: contractx.WriteError}, err
	}

	rec := &TravelRecord{
		ID:        uuid.NewString(),
		TripID:    tripID,
		Kind:      payload.Kind,
		Name:      payload.Name,
		Fields:    payload.Fields,
		CreatedAt: s.now().UTC(),
		UpdatedAt: s.now().UTC(),
	}
	if err := s.records.InsertRecord(ctx, rec); err != nil {
		return contractx.SyncOutcome{PrimaryWrite: contractx.WriteError, MirrorWrite: contractx.WriteError}, err
	}

	mirror := s.mirror(ctx, rec, payload)
	return contractx.SyncOutcome{ID: rec.ID, PrimaryWrite: contractx.WriteOK, MirrorWrite: mirror}, nil
}

func (s *Synchronizer) Retrieve(ctx context.Context, id string, includeGraph bool) (contractx.RetrieveResult, error) {
	rec, err := s.records.GetRecord(ctx, id)
	if err != nil {
		return contractx.RetrieveResult{}, err
	}

	result := contractx.RetrieveResult{Record: rec, Warnings: []string{}}
	if rec.MirrorStale {
		result.Warnings = append(result.Warnings, WarningMirrorStale)
	}
	if !includeGraph {
		return result, nil
	}

	entities, err := s.graph.Open(ctx, []string{rec.Name})
	if err != nil {
		// Graph join failure degrades, never fails the read.
		log.Warn().Str("record_id", id).Err(err).Msg("graph join failed during retrieve")
		result.Warnings = append(result.Warnings, WarningGraphUnavailable)
		return result, nil
	}
	result.Graph = entities
	return result, nil
}

func (s *Synchronizer) Update(ctx context.Context, id string, payload contractx.RecordPayload) (contractx.SyncOutcome, error) {
	rec, err := s.records.GetRecord(ctx, id)
	if err != nil {
		return contractx.SyncOutcome{PrimaryWrite: contractx.WriteError, MirrorWrite: contractx.WriteError}, err
	}

	if strings.TrimSpace(payload.Kind) != "" {
		rec.Kind = payload.Kind
	}
	if strings.TrimSpace(payload.Name) != "" {
		rec.Name = payload.Name
	}
	if payload.Fields != nil {
		rec.Fields = payload.Fields
	}
	if err := s.records.UpdateRecord(ctx, rec); err != nil {
		return contractx.SyncOutcome{PrimaryWrite: contractx.WriteError, MirrorWrite: contractx.WriteError}, err
	}

	mirror := s.mirror(ctx, rec, payload)
	return contractx.SyncOutcome{ID: rec.ID, PrimaryWrite: contractx.WriteOK, MirrorWrite: mirror}, nil
}

func (s *Synchronizer) Delete(ctx context.Context, id string) (contractx.SyncOutcome, error) {
	rec, err := s.records.GetRecord(ctx, id)
	if err != nil {
		return contractx.SyncOutcome{PrimaryWrite: contractx.WriteError, MirrorWrite: contractx.WriteError}, err
	}
	if err := s.records.DeleteRecord(ctx, id); err != nil {
		return contractx.SyncOutcome{PrimaryWrite: contractx.WriteError, MirrorWrite: contractx.WriteError}, err
	}

	mirror := contractx.WriteOK
	if err := s.graph.DeleteEntities(ctx, []string{rec.Name}); err != nil {
		log.Warn().Str("record_id", id).Err(err).Msg("mirror delete degraded")
		mirror = contractx.WriteDegraded
	}
	return contractx.SyncOutcome{ID: id, PrimaryWrite: contractx.WriteOK, MirrorWrite: mirror}, nil
}

// Close waits for in-flight asynchronous mirror retries.
func (s *Synchronizer) Close() {
	s.wg.Wait()
}

// mirror performs the synchronous first mirror attempt. On failure it marks
// the record stale and schedules bounded asynchronous retries.
func (s *Synchronizer) mirror(ctx context.Context, rec *TravelRecord, payload contractx.RecordPayload) contractx.WriteStatus {
	entities, relations := deriveGraph(rec, payload)

	if err := s.writeMirror(ctx, entities, relations); err != nil {
		log.Warn().
			Str("record_id", rec.ID).
			Err(err).
			Msg("mirror write degraded, scheduling retry")

		if staleErr := s.records.SetMirrorStale(ctx, rec.ID, true); staleErr != nil {
			log.Error().Str("record_id", rec.ID).Err(staleErr).Msg("failed to flag stale mirror")
		}
		s.retryAsync(rec.ID, entities, relations)
		return contractx.WriteDegraded
	}
	return contractx.WriteOK
}

func (s *Synchronizer) writeMirror(ctx context.Context, entities []contractx.Entity, relations []contractx.Relation) error {
	if err := s.graph.UpsertEntities(ctx, entities); err != nil {
		return fmt.Errorf("%w: upsert entities: %v", contractx.ErrMirrorWriteDegraded, err)
	}
	if err := s.graph.UpsertRelations(ctx, relations); err != nil {
		return fmt.Errorf("%w: upsert relations: %v", contractx.ErrMirrorWriteDegraded, err)
	}
	return nil
}

func (s *Synchronizer) retryAsync(recordID string, entities []contractx.Entity, relations []contractx.Relation) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx := context.Background()
		for attempt := 1; attempt <= s.cfg.MirrorRetries; attempt++ {
			time.Sleep(s.cfg.MirrorBackoff * time.Duration(attempt))

			if err := s.writeMirror(ctx, entities, relations); err != nil {
				log.Debug().
					Str("record_id", recordID).
					Int("attempt", attempt).
					Err(err).
					Msg("mirror retry failed")
				continue
			}
			if err := s.records.SetMirrorStale(ctx, recordID, false); err != nil {
				log.Error().Str("record_id", recordID).Err(err).Msg("failed to clear stale mirror flag")
			}
			return
		}
		log.Error().
			Str("record_id", recordID).
			Int("attempts", s.cfg.MirrorRetries).
			Msg("mirror retries exhausted, record stays stale")
	}()
}

// deriveGraph turns a structured record into its semantic projection: one
// entity per record plus any caller-provided entities/relations, and a
// containment edge from the trip aggregate.
func deriveGraph(rec *TravelRecord, payload contractx.RecordPayload) ([]contractx.Entity, []contractx.Relation) {
	observations := make([]string, 0, len(rec.Fields))
	keys := make([]string, 0, len(rec.Fields))
	for k := range rec.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		observations = append(observations, fmt.Sprintf("%s=%v", k, rec.Fields[k]))
	}

	entities := []contractx.Entity{
		{Name: rec.TripID, Kind: "trip"},
		{Name: rec.Name, Kind: rec.Kind, Observations: observations},
	}
	relations := []contractx.Relation{
		{From: rec.TripID, To: rec.Name, Kind: "contains"},
	}

	entities = append(entities, payload.Entities...)
	relations = append(relations, payload.Relations...)
	return entities, relations
}
