package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

var ErrRecordNotFound = errors.New("travel record not found")

// Trip is the parent aggregate every travel record hangs off.
type Trip struct {
	bun.BaseModel `bun:"table:trips,alias:t"`

	ID        string    `bun:"id,pk"`
	Title     string    `bun:"title,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// TravelRecord is the authoritative structured row. Only the Synchronizer
// creates or mutates these; orchestration nodes never touch them directly.
type TravelRecord struct {
	bun.BaseModel `bun:"table:travel_records,alias:tr"`

	ID          string         `bun:"id,pk"`
	TripID      string         `bun:"trip_id,notnull"`
	Kind        string         `bun:"kind,notnull"`
	Name        string         `bun:"name,notnull"`
	Fields      map[string]any `bun:"fields,type:jsonb"`
	MirrorStale bool           `bun:"mirror_stale,notnull,default:false"`
	CreatedAt   time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// RecordStore is the relational persistence contract the Synchronizer
// writes through.
type RecordStore interface {
	EnsureTrip(ctx context.Context, trip *Trip) error
	InsertRecord(ctx context.Context, rec *TravelRecord) error
	GetRecord(ctx context.Context, id string) (*TravelRecord, error)
	UpdateRecord(ctx context.Context, rec *TravelRecord) error
	DeleteRecord(ctx context.Context, id string) error
	SetMirrorStale(ctx context.Context, id string, stale bool) error
}

type PostgresConfig struct {
	DSN string `envconfig:"DSN" split_words:"true" required:"true" validate:"required"`
}

// NewDB opens a bun handle over pgdriver.
func NewDB(cfg PostgresConfig) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// BunRecordStore implements RecordStore over Postgres.
type BunRecordStore struct {
	db *bun.DB
}

var _ RecordStore = (*BunRecordStore)(nil)

func NewBunRecordStore(db *bun.DB) (*BunRecordStore, error) {
	if db == nil {
		return nil, errors.New("bun db is required")
	}
	return &BunRecordStore{db: db}, nil
}

// CreateSchema creates the tables if they do not exist yet.
func (s *BunRecordStore) CreateSchema(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*Trip)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create trips table: %w", err)
	}
	if _, err := s.db.NewCreateTable().Model((*TravelRecord)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create travel_records table: %w", err)
	}
	return nil
}

func (s *BunRecordStore) EnsureTrip(ctx context.Context, trip *Trip) error {
	_, err := s.db.NewInsert().
		Model(trip).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ensure trip: %w", err)
	}
	return nil
}

func (s *BunRecordStore) InsertRecord(ctx context.Context, rec *TravelRecord) error {
	if _, err := s.db.NewInsert().Model(rec).Exec(ctx); err != nil {
		return fmt.Errorf("insert travel record: %w", err)
	}
	return nil
}

func (s *BunRecordStore) GetRecord(ctx context.Context, id string) (*TravelRecord, error) {
	rec := new(TravelRecord)
	err := s.db.NewSelect().Model(rec).Where("tr.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get travel record: %w", err)
	}
	return rec, nil
}

func (s *BunRecordStore) UpdateRecord(ctx context.Context, rec *TravelRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	res, err := s.db.NewUpdate().
		Model(rec).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update travel record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, rec.ID)
	}
	return nil
}

func (s *BunRecordStore) DeleteRecord(ctx context.Context, id string) error {
	res, err := s.db.NewDelete().
		Model((*TravelRecord)(nil)).
		Where("tr.id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete travel record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return nil
}

func (s *BunRecordStore) SetMirrorStale(ctx context.Context, id string, stale bool) error {
	_, err := s.db.NewUpdate().
		Model((*TravelRecord)(nil)).
		Set("mirror_stale = ?", stale).
		Set("updated_at = ?", time.Now().UTC()).
		Where("tr.id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set mirror_stale: %w", err)
	}
	return nil
}
