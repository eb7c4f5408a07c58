package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"go-creator-hub/internal/database"
)

// PostgresTier is a durable tier kept in PostgreSQL. Several clients can
// share one database; each one reads and writes under its own profile.
type PostgresTier struct {
	db      *database.DB
	profile string
	timeout time.Duration
}

func NewPostgresTier(db *database.DB, profile string, timeout time.Duration) *PostgresTier {
	if profile == "" {
		profile = "default"
	}
	return &PostgresTier{db: db, profile: profile, timeout: timeout}
}

func (p *PostgresTier) Get(key string) (string, bool, error) {
	ctx, cancel := opContext(p.timeout)
	defer cancel()

	var value string
	err := p.db.Pool.QueryRow(ctx,
		`SELECT state_value FROM client_state
		 WHERE profile = $1 AND state_key = $2`, p.profile, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %q: %w", key, err)
	}

	return value, true, nil
}

func (p *PostgresTier) Set(key string, value string) error {
	if key == "" {
		return ErrEmptyKey
	}

	ctx, cancel := opContext(p.timeout)
	defer cancel()

	_, err := p.db.Pool.Exec(ctx,
		`INSERT INTO client_state (profile, state_key, state_value, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (profile, state_key)
		 DO UPDATE SET state_value = EXCLUDED.state_value, updated_at = EXCLUDED.updated_at`,
		p.profile, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("write %q: %w", key, err)
	}

	return nil
}

func (p *PostgresTier) Delete(key string) error {
	ctx, cancel := opContext(p.timeout)
	defer cancel()

	_, err := p.db.Pool.Exec(ctx,
		`DELETE FROM client_state WHERE profile = $1 AND state_key = $2`, p.profile, key)
	if err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}

	return nil
}
