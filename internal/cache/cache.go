// Package cache implements the best-effort cache-aside layer that fronts
// expensive reads. The cache is never a source of truth: backend failures are
// absorbed here and callers always receive the computed value.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Backend.Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// ScanBatch is the COUNT hint passed to incremental scans.
const ScanBatch = 100

// Backend is a key-value store with expiry and incremental keyspace iteration.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Scan returns keys matching a glob pattern starting at cursor, and the
	// cursor to continue from. A returned cursor of 0 means iteration is done.
	Scan(ctx context.Context, cursor uint64, pattern string, count int64) ([]string, uint64, error)
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// TTLs tunes freshness per data class.
type TTLs struct {
	QuizList          time.Duration
	QuizDetail        time.Duration
	Leaderboard       time.Duration
	GlobalLeaderboard time.Duration
}

// DefaultTTLs trades freshness for load: quiz content changes rarely, the
// per-quiz leaderboard should reflect new attempts within about a minute, the
// global aggregate is more expensive and tolerates two.
func DefaultTTLs() TTLs {
	return TTLs{
		QuizList:          5 * time.Minute,
		QuizDetail:        10 * time.Minute,
		Leaderboard:       time.Minute,
		GlobalLeaderboard: 2 * time.Minute,
	}
}

// Noop is the backend used when caching is disabled. Every read misses.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, error) { return nil, ErrMiss }

func (Noop) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (Noop) Scan(context.Context, uint64, string, int64) ([]string, uint64, error) {
	return nil, 0, nil
}

func (Noop) Delete(context.Context, ...string) error { return nil }

func (Noop) Close() error { return nil }
