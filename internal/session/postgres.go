package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps the credential as one row of session_slots.
type PostgresStore struct {
	pool *pgxpool.Pool
	slot string
}

func NewPostgresStore(pool *pgxpool.Pool, slot string) *PostgresStore {
	return &PostgresStore{pool: pool, slot: slot}
}

// EnsureSchema creates the slot table if it does not already exist.
// Safe to call repeatedly (idempotent).
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS session_slots (
  slot text PRIMARY KEY,
  credential text NOT NULL,
  updated_at timestamptz NOT NULL DEFAULT NOW()
);`)
	return err
}

func (s *PostgresStore) Get(ctx context.Context) (string, bool, error) {
	var token string
	err := s.pool.QueryRow(ctx, `SELECT credential FROM session_slots WHERE slot=$1`, s.slot).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select slot %s: %w", s.slot, err)
	}
	return token, token != "", nil
}

func (s *PostgresStore) Set(ctx context.Context, token string) error {
	if token == "" {
		return s.Clear(ctx)
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO session_slots(slot, credential, updated_at) VALUES ($1,$2,NOW())
	  ON CONFLICT (slot) DO UPDATE SET credential=EXCLUDED.credential, updated_at=NOW()`, s.slot, token)
	if err != nil {
		return fmt.Errorf("upsert slot %s: %w", s.slot, err)
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM session_slots WHERE slot=$1`, s.slot); err != nil {
		return fmt.Errorf("delete slot %s: %w", s.slot, err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
