package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresBackend stores each key as a row of the collections table.
// The table is created by the migrations in internal/db/migrations.
type PostgresBackend struct {
	db *sql.DB
}

func NewPostgresBackend(db *sql.DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

func (p *PostgresBackend) Get(ctx context.Context, key string) ([]byte, error) {
	const query = `SELECT value FROM collections WHERE key = $1`
	var value []byte
	if err := p.db.QueryRowContext(ctx, query, key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

func (p *PostgresBackend) Put(ctx context.Context, key string, value []byte) error {
	const query = `
		INSERT INTO collections (key, value, updated_at)
		VALUES ($1, $2::jsonb, $3)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at`
	_, err := p.db.ExecContext(ctx, query, key, string(value), time.Now())
	return err
}

func (p *PostgresBackend) Close() error {
	return p.db.Close()
}
