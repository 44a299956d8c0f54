// Package postgres provides a Postgres-backed State Store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/threadwatch/internal/watch"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool and the watermark row.
type Config struct {
	DSN             string
	Table           string
	Key             string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// StateStore keeps one watermark row per key so several watchers can share a table.
type StateStore struct {
	pool  pool
	table string
	key   string
}

// New connects to Postgres and ensures the watermark table exists.
func New(ctx context.Context, cfg Config) (*StateStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("state.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(p, cfg.Table, cfg.Key)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table, key string) (*StateStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "watermarks"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if key == "" {
		key = "default"
	}
	return &StateStore{pool: p, table: table, key: key}, nil
}

// EnsureSchema creates the watermark table when missing.
func (s *StateStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	key TEXT PRIMARY KEY,
	last BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *StateStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Load reads the watermark row. A missing row is not an error.
func (s *StateStore) Load(ctx context.Context) (int, error) {
	query := fmt.Sprintf(`SELECT last FROM %s WHERE key = $1`, s.table)
	var last int64
	if err := s.pool.QueryRow(ctx, query, s.key).Scan(&last); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("select watermark: %w", err)
	}
	if last < 0 {
		return 0, fmt.Errorf("%w: negative watermark %d for key %q", watch.ErrMalformedState, last, s.key)
	}
	return int(last), nil
}

// Save upserts the watermark row in a single statement.
func (s *StateStore) Save(ctx context.Context, last int) error {
	if last < 0 {
		return fmt.Errorf("watermark must be >= 0, got %d", last)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (key, last, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET last = EXCLUDED.last, updated_at = EXCLUDED.updated_at`, s.table)
	tag, err := s.pool.Exec(ctx, query, s.key, int64(last))
	if err != nil {
		return fmt.Errorf("upsert watermark: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("upsert watermark: expected 1 row, got %d", tag.RowsAffected())
	}
	return nil
}
