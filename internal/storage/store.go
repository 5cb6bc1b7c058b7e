package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wayfare-dev/wayfare/internal/config"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Store is the SQLite-backed persistence layer. All statement execution
// goes through the connection pool so concurrent batch jobs and interactive
// reads share the same bounded resource.
type Store struct {
	db   *sql.DB
	pool *Pool
	path string
}

// Open opens (creating if necessary) the database at opts.DatabasePath and
// initializes the connection pool sized from the options.
func Open(ctx context.Context, opts config.Options) (*Store, error) {
	if opts.DatabasePath == "" {
		return nil, fmt.Errorf("database path must not be empty")
	}

	if opts.DatabasePath != ":memory:" {
		dir := filepath.Dir(opts.DatabasePath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", opts.DatabasePath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The pool enforces the P+O bound; cap database/sql at the same limit
	// so no connections exist outside it.
	limit := opts.PoolPersistentSize + opts.PoolOverflowSize
	db.SetMaxOpenConns(limit)
	db.SetMaxIdleConns(limit)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	timeout := opts.PoolAcquireTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	pool, err := NewPool(ctx, db, opts.PoolPersistentSize, opts.PoolOverflowSize, timeout)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{
		db:   db,
		pool: pool,
		path: opts.DatabasePath,
	}, nil
}

// Pool exposes the underlying connection pool for transaction-scoped work.
func (s *Store) Pool() *Pool {
	return s.pool
}

// WithTx runs fn inside one pooled transaction.
func (s *Store) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return s.pool.WithTx(ctx, fn)
}

// Close closes the pool and the database.
func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		return err
	}
	return s.db.Close()
}
