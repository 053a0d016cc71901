// Package postgres keeps the capture ledger in Postgres.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Default table names.
const (
	DefaultCaptureTable = "camera_captures"
	DefaultCycleTable   = "capture_cycles"
)

// Config controls the Postgres connection pool and table names.
type Config struct {
	DSN             string
	CaptureTable    string
	CycleTable      string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Store writes capture and cycle rows.
type Store struct {
	pool         execCloser
	captureTable string
	cycleTable   string
}

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(pool, cfg.CaptureTable, cfg.CycleTable)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool builds a store over an existing pool.
func NewWithPool(pool execCloser, captureTable, cycleTable string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if captureTable == "" {
		captureTable = DefaultCaptureTable
	}
	if cycleTable == "" {
		cycleTable = DefaultCycleTable
	}
	for _, table := range []string{captureTable, cycleTable} {
		if !validTableName.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q", table)
		}
	}
	return &Store{pool: pool, captureTable: captureTable, cycleTable: cycleTable}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the ledger tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	discovered INTEGER NOT NULL,
	visited INTEGER NOT NULL,
	captured INTEGER NOT NULL,
	unavailable INTEGER NOT NULL,
	skipped INTEGER NOT NULL,
	aborted BOOLEAN NOT NULL,
	abort_reason TEXT NOT NULL DEFAULT ''
)`, s.cycleTable),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	cycle_id TEXT NOT NULL,
	ordinal INTEGER NOT NULL,
	camera_name TEXT NOT NULL,
	file_name TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	archive_uri TEXT NOT NULL,
	classified BOOLEAN NOT NULL,
	flood BOOLEAN NOT NULL,
	flood_probability DOUBLE PRECISION NOT NULL,
	captured_at TIMESTAMPTZ NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
)`, s.captureTable),
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
