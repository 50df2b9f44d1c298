package activestate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const queryTimeout = 5 * time.Second

// PostgresState keeps the active snippet in a single-row table, so every
// server instance sharing the database agrees on it. The upsert makes
// concurrent activations converge to whichever write lands last.
type PostgresState struct {
	pool *pgxpool.Pool
}

// NewPostgresState wraps a pool and creates the state table if needed.
func NewPostgresState(ctx context.Context, pool *pgxpool.Pool) (*PostgresState, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS active_script (
			singleton  BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
			snippet_id TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return nil, fmt.Errorf("ensure active_script table: %w", err)
	}
	return &PostgresState{pool: pool}, nil
}

func (p *PostgresState) Activate(ctx context.Context, snippetID string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := p.pool.Exec(ctx, `
		INSERT INTO active_script (singleton, snippet_id, updated_at)
		VALUES (TRUE, $1, now())
		ON CONFLICT (singleton)
		DO UPDATE SET snippet_id = EXCLUDED.snippet_id, updated_at = now()`,
		snippetID)
	if err != nil {
		return fmt.Errorf("activate snippet: %w", err)
	}
	return nil
}

func (p *PostgresState) Active(ctx context.Context) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var id string
	err := p.pool.QueryRow(ctx, `SELECT snippet_id FROM active_script WHERE singleton`).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read active snippet: %w", err)
	}
	return id, true, nil
}

func (p *PostgresState) Deactivate(ctx context.Context, snippetID string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := p.pool.Exec(ctx, `DELETE FROM active_script WHERE singleton AND snippet_id = $1`, snippetID)
	if err != nil {
		return fmt.Errorf("deactivate snippet: %w", err)
	}
	return nil
}

// Close is a no-op; the pool is owned by the store.
func (p *PostgresState) Close() error { return nil }
