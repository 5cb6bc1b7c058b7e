// Package storage implements SQLite persistence behind a bounded
// connection pool with transactional scoping.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wayfare-dev/wayfare/internal/common"
)

// Handle is an exclusively-owned connection checked out of a Pool. A handle
// is never held by two callers simultaneously; it must be returned with
// Release exactly once.
type Handle struct {
	conn     *sql.Conn
	overflow bool
}

// Conn returns the underlying database connection.
func (h *Handle) Conn() *sql.Conn {
	return h.conn
}

// Pool manages a fixed set of persistent connections plus a bounded number
// of transient overflow connections created on demand when the persistent
// pool is exhausted. Overflow connections are closed on release rather than
// recycled. The number of outstanding handles never exceeds
// persistent + maxOverflow.
type Pool struct {
	db          *sql.DB
	free        chan *Handle
	slots       chan struct{}
	timeout     time.Duration
	maxOverflow int
	mu          sync.Mutex
	overflow    int
	closed      bool
}

// NewPool creates a pool with the given persistent size, overflow limit,
// and default acquisition timeout. The persistent connections are opened
// eagerly so exhaustion is visible at startup rather than mid-batch.
func NewPool(ctx context.Context, db *sql.DB, persistent, maxOverflow int, timeout time.Duration) (*Pool, error) {
	if persistent < 1 {
		return nil, fmt.Errorf("%w: pool size must be >= 1, got %d", common.ErrInvalidConfig, persistent)
	}
	if maxOverflow < 0 {
		return nil, fmt.Errorf("%w: overflow size must be >= 0, got %d", common.ErrInvalidConfig, maxOverflow)
	}

	p := &Pool{
		db:          db,
		free:        make(chan *Handle, persistent),
		slots:       make(chan struct{}, 1),
		timeout:     timeout,
		maxOverflow: maxOverflow,
	}

	for i := 0; i < persistent; i++ {
		conn, err := db.Conn(ctx)
		if err != nil {
			p.drain()
			return nil, fmt.Errorf("failed to open pooled connection %d: %w", i, err)
		}
		p.free <- &Handle{conn: conn}
	}

	return p, nil
}

// Acquire returns an exclusively-owned handle. When all persistent and
// overflow connections are in use it blocks until one is released or the
// pool's acquisition timeout elapses, in which case it fails with
// ErrPoolExhausted.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, common.ErrPoolClosed
	}
	p.mu.Unlock()

	// Fast path: a persistent connection is free.
	select {
	case h := <-p.free:
		return h, nil
	default:
	}

	// Persistent pool exhausted; create an overflow connection if allowed.
	if h, ok, err := p.claimOverflow(ctx); err != nil {
		return nil, err
	} else if ok {
		return h, nil
	}

	// Everything is in use; wait for a persistent release or a freed
	// overflow slot. The slot signal is only a hint, so losing the claim
	// race to another caller just resumes the wait.
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	for {
		select {
		case h := <-p.free:
			return h, nil
		case <-p.slots:
			if h, ok, err := p.claimOverflow(ctx); err != nil {
				return nil, err
			} else if ok {
				return h, nil
			}
		case <-timer.C:
			return nil, fmt.Errorf("%w: no connection available within %s", common.ErrPoolExhausted, p.timeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// claimOverflow reserves an overflow slot and opens a connection for it.
// The second return value reports whether a slot was available.
func (p *Pool) claimOverflow(ctx context.Context) (*Handle, bool, error) {
	p.mu.Lock()
	if p.overflow >= p.maxOverflow {
		p.mu.Unlock()
		return nil, false, nil
	}
	p.overflow++
	p.mu.Unlock()

	conn, err := p.db.Conn(ctx)
	if err != nil {
		p.releaseSlot()
		return nil, false, fmt.Errorf("failed to open overflow connection: %w", err)
	}
	return &Handle{conn: conn, overflow: true}, true, nil
}

// releaseSlot returns an overflow slot and wakes one waiter, if any. The
// signal channel holds at most one pending wakeup; woken waiters re-check
// the slot count, so a dropped signal never strands capacity.
func (p *Pool) releaseSlot() {
	p.mu.Lock()
	p.overflow--
	p.mu.Unlock()

	select {
	case p.slots <- struct{}{}:
	default:
	}
}

// Release returns a handle to the pool. Persistent handles go back to the
// free list; overflow handles are closed and their slot freed.
func (p *Pool) Release(h *Handle) {
	if h == nil {
		return
	}

	if h.overflow {
		if err := h.conn.Close(); err != nil {
			slog.Warn("Failed to close overflow connection", "error", err)
		}
		p.releaseSlot()
		return
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	if closed {
		_ = h.conn.Close()
		return
	}

	p.free <- h
}

// WithConn acquires a handle, invokes fn, and releases the handle on every
// exit path.
func (p *Pool) WithConn(ctx context.Context, fn func(*sql.Conn) error) error {
	h, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(h)

	return fn(h.conn)
}

// WithTx acquires a handle, begins a transaction, and invokes fn. The
// transaction commits on a nil return and rolls back on any error; the
// handle is released on every exit path.
func (p *Pool) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	h, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(h)

	tx, err := h.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.Error("Rollback failed", "error", rbErr)
		}
		return fmt.Errorf("%w: %w", common.ErrTransactionRollback, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close marks the pool closed and closes all free persistent connections.
// Handles still outstanding are closed as they are released.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.drain()
	return nil
}

func (p *Pool) drain() {
	for {
		select {
		case h := <-p.free:
			_ = h.conn.Close()
		default:
			return
		}
	}
}

// Stats reports current pool occupancy, used for diagnostics and tests.
type Stats struct {
	Free     int
	Overflow int
}

// Stats returns a snapshot of the pool's occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Free:     len(p.free),
		Overflow: p.overflow,
	}
}
