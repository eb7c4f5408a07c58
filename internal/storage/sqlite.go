package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type stateEntry struct {
	bun.BaseModel `bun:"table:client_state"`

	Key       string    `bun:"state_key,pk"`
	Value     string    `bun:"state_value,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// SQLiteTier is the durable tier backed by a local SQLite file.
type SQLiteTier struct {
	db      *bun.DB
	timeout time.Duration
}

// OpenSQLite opens (and creates if needed) the durable state database at
// path. ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string, timeout time.Duration) (*SQLiteTier, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// One connection keeps ":memory:" databases alive and serialises writers.
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if _, err := db.NewCreateTable().Model((*stateEntry)(nil)).IfNotExists().Exec(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create client_state table: %w", err)
	}

	return &SQLiteTier{db: db, timeout: timeout}, nil
}

func (s *SQLiteTier) Get(key string) (string, bool, error) {
	ctx, cancel := opContext(s.timeout)
	defer cancel()

	var entry stateEntry
	err := s.db.NewSelect().Model(&entry).Where("state_key = ?", key).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %q: %w", key, err)
	}

	return entry.Value, true, nil
}

func (s *SQLiteTier) Set(key string, value string) error {
	if key == "" {
		return ErrEmptyKey
	}

	ctx, cancel := opContext(s.timeout)
	defer cancel()

	entry := &stateEntry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	_, err := s.db.NewInsert().
		Model(entry).
		On("CONFLICT (state_key) DO UPDATE").
		Set("state_value = EXCLUDED.state_value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("write %q: %w", key, err)
	}

	return nil
}

func (s *SQLiteTier) Delete(key string) error {
	ctx, cancel := opContext(s.timeout)
	defer cancel()

	if _, err := s.db.NewDelete().Model((*stateEntry)(nil)).Where("state_key = ?", key).Exec(ctx); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}

	return nil
}

func (s *SQLiteTier) Close() error {
	return s.db.Close()
}
