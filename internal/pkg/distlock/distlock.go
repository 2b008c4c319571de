// Package distlock provides mutual exclusion across processes, used to keep
// two dispatches of the same issue from running at once.
package distlock

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock is a non-blocking lock. A DistLock value belongs to one holder;
// concurrent holders need separate instances for the same key.
type DistLock interface {
	// Acquire tries to take the lock. Returns true if it was taken.
	Acquire(ctx context.Context) (bool, error)
	// Refresh confirms the lock is still held and, for expiring backends,
	// restarts its TTL. It returns ErrNotHeld once the lock is gone.
	Refresh(ctx context.Context) error
	// Release gives the lock up if this instance still holds it.
	Release(ctx context.Context) error
}

// Factory creates a lock instance for key.
type Factory func(key string) DistLock

// NewFactory picks the best backend available: Redis when a client is given,
// PostgreSQL advisory locks when only a database is, and an in-process lock
// table otherwise.
func NewFactory(redisClient *redis.Client, db *sql.DB, ttl time.Duration) Factory {
	switch {
	case redisClient != nil:
		return func(key string) DistLock { return NewRedisLock(redisClient, key, ttl) }
	case db != nil:
		return func(key string) DistLock { return NewPGAdvisoryLock(db, key) }
	default:
		table := NewLocalTable()
		return func(key string) DistLock { return table.Lock(key) }
	}
}

// PGAdvisoryLock uses pg_try_advisory_lock. Advisory locks belong to a
// session, so the connection that took the lock is pinned until Release.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// NewPGAdvisoryLock derives a stable 64-bit lock id from key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	if l.conn != nil {
		return false, nil
	}
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("advisory lock: get conn: %w", err)
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, fmt.Errorf("advisory lock: %w", err)
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Refresh pings the pinned session. The advisory lock lives exactly as
// long as that session.
func (l *PGAdvisoryLock) Refresh(ctx context.Context) error {
	if l.conn == nil {
		return ErrNotHeld
	}
	if err := l.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("advisory lock session: %w", err)
	}
	return nil
}

func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	defer func() {
		l.conn.Close()
		l.conn = nil
	}()
	if _, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID); err != nil {
		return fmt.Errorf("advisory unlock: %w", err)
	}
	return nil
}

// LocalTable hands out locks that exclude each other within one process.
type LocalTable struct {
	mu   sync.Mutex
	held map[string]*LocalLock
}

func NewLocalTable() *LocalTable {
	return &LocalTable{held: make(map[string]*LocalLock)}
}

// Lock returns a new lock instance for key.
func (t *LocalTable) Lock(key string) *LocalLock {
	return &LocalLock{table: t, key: key}
}

// LocalLock is a DistLock scoped to a single process.
type LocalLock struct {
	table *LocalTable
	key   string
}

func (l *LocalLock) Acquire(context.Context) (bool, error) {
	l.table.mu.Lock()
	defer l.table.mu.Unlock()
	if _, taken := l.table.held[l.key]; taken {
		return false, nil
	}
	l.table.held[l.key] = l
	return true, nil
}

func (l *LocalLock) Refresh(context.Context) error {
	l.table.mu.Lock()
	defer l.table.mu.Unlock()
	if l.table.held[l.key] != l {
		return ErrNotHeld
	}
	return nil
}

func (l *LocalLock) Release(context.Context) error {
	l.table.mu.Lock()
	defer l.table.mu.Unlock()
	if l.table.held[l.key] == l {
		delete(l.table.held, l.key)
	}
	return nil
}
