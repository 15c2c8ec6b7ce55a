// Package distlock provides cross-replica mutual exclusion backed by Redis
// or PostgreSQL advisory locks.
package distlock

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const closeTimeout = 5 * time.Second

// ErrNotHeld is returned by Release when the lock is not held by this instance.
var ErrNotHeld = errors.New("lock not held")

// DistLock is a distributed lock. An instance guards a single critical
// section; create a new one per attempt.
type DistLock interface {
	// Acquire tries to take the lock without blocking. Returns true on success.
	Acquire(ctx context.Context) (bool, error)
	// Release frees the lock if this instance still owns it.
	Release(ctx context.Context) error
}

// Factory creates a lock for key.
type Factory func(key string) DistLock

// NewFactory returns a factory using Redis when redisClient is set and
// PostgreSQL advisory locks otherwise. ttl only applies to Redis locks.
func NewFactory(redisClient *redis.Client, pool *pgxpool.Pool, ttl time.Duration) Factory {
	return func(key string) DistLock {
		if redisClient != nil {
			return NewRedisLock(redisClient, key, ttl)
		}
		return NewPGAdvisoryLock(pool, key)
	}
}

// PGAdvisoryLock implements DistLock with pg_try_advisory_lock. Advisory
// locks are session scoped, so the connection that took the lock is kept out
// of the pool until Release. A dropped connection releases the lock.
type PGAdvisoryLock struct {
	pool   *pgxpool.Pool
	lockID int64

	mu   sync.Mutex
	conn *pgxpool.Conn
}

// NewPGAdvisoryLock creates an advisory lock whose id is derived from key.
func NewPGAdvisoryLock(pool *pgxpool.Pool, key string) *PGAdvisoryLock {
	return &PGAdvisoryLock{
		pool:   pool,
		lockID: LockID(key),
	}
}

// LockID maps key to a stable advisory lock id.
func LockID(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}

// Acquire implements DistLock.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		return false, errors.New("advisory lock already acquired by this instance")
	}

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Release()
		return false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return false, nil
	}

	l.conn = conn
	return true, nil
}

// Release implements DistLock. If the unlock query fails the session may
// still hold the lock, so its connection is closed instead of returned to
// the pool.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return ErrNotHeld
	}
	conn := l.conn
	l.conn = nil

	var released bool
	if err := conn.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", l.lockID).Scan(&released); err != nil {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if closeErr := conn.Hijack().Close(closeCtx); closeErr != nil {
			return fmt.Errorf("advisory unlock: %w (close connection: %v)", err, closeErr)
		}
		return fmt.Errorf("advisory unlock: %w", err)
	}
	conn.Release()
	if !released {
		return ErrNotHeld
	}
	return nil
}
