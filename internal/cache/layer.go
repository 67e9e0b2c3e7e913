package cache

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"respondeo-service/internal/metrics"
)

// Layer wraps a Backend with get-or-compute semantics. It is safe for
// concurrent use and is meant to be shared process-wide.
type Layer struct {
	backend  Backend
	timeout  time.Duration
	log      *zap.Logger
	sf       singleflight.Group
	disabled bool
	warned   atomic.Bool
}

// NewLayer builds a layer over backend. Every backend call is bounded by
// timeout so a degraded cache cannot delay the request beyond the store call.
func NewLayer(backend Backend, timeout time.Duration, log *zap.Logger) *Layer {
	if backend == nil {
		backend = Noop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	_, disabled := backend.(Noop)
	return &Layer{
		backend:  backend,
		timeout:  timeout,
		log:      log,
		disabled: disabled,
	}
}

// Fetch returns the cached value for key or computes, stores and returns it.
// Compute errors and nil results are returned as-is and never cached.
// Cache failures are never returned.
func Fetch[T any](ctx context.Context, l *Layer, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	if l.disabled {
		metrics.CacheRequests.WithLabelValues("bypass").Inc()
		return compute(ctx)
	}

	if data, ok := l.get(ctx, key); ok {
		var cached T
		err := json.Unmarshal(data, &cached)
		if err == nil {
			metrics.CacheRequests.WithLabelValues("hit").Inc()
			return cached, nil
		}
		l.fail("decode", key, err)
	}
	metrics.CacheRequests.WithLabelValues("miss").Inc()

	// Concurrent misses on one key share a single compute.
	result, err, _ := l.sf.Do(key, func() (interface{}, error) {
		value, err := compute(ctx)
		if err != nil {
			return value, err
		}
		if !isAbsent(value) {
			l.set(ctx, key, value, ttl)
		}
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	value, _ := result.(T)
	return value, nil
}

// Invalidate removes every key matching pattern using an incremental scan.
// It returns the number of keys deleted; failures stop the sweep silently.
// Matches are collected before deleting so offset-based cursors stay valid.
func (l *Layer) Invalidate(ctx context.Context, pattern string) int {
	if l.disabled {
		return 0
	}

	var matched []string
	var cursor uint64
	for {
		scanCtx, cancel := l.opContext(ctx)
		keys, next, err := l.backend.Scan(scanCtx, cursor, pattern, ScanBatch)
		cancel()
		if err != nil {
			l.fail("scan", pattern, err)
			return 0
		}
		matched = append(matched, keys...)
		if next == 0 {
			break
		}
		cursor = next
	}

	removed := 0
	for start := 0; start < len(matched); start += ScanBatch {
		end := start + ScanBatch
		if end > len(matched) {
			end = len(matched)
		}
		delCtx, cancel := l.opContext(ctx)
		err := l.backend.Delete(delCtx, matched[start:end]...)
		cancel()
		if err != nil {
			l.fail("delete", pattern, err)
			break
		}
		removed += end - start
	}

	metrics.CacheInvalidatedKeys.Add(float64(removed))
	return removed
}

// Delete removes a single key.
func (l *Layer) Delete(ctx context.Context, key string) {
	if l.disabled {
		return
	}
	opCtx, cancel := l.opContext(ctx)
	defer cancel()
	if err := l.backend.Delete(opCtx, key); err != nil {
		l.fail("delete", key, err)
	}
}

// Close releases the backend.
func (l *Layer) Close() error {
	return l.backend.Close()
}

func (l *Layer) get(ctx context.Context, key string) ([]byte, bool) {
	opCtx, cancel := l.opContext(ctx)
	defer cancel()
	data, err := l.backend.Get(opCtx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			l.fail("get", key, err)
		}
		return nil, false
	}
	return data, true
}

func (l *Layer) set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		l.fail("encode", key, err)
		return
	}
	opCtx, cancel := l.opContext(ctx)
	defer cancel()
	if err := l.backend.Set(opCtx, key, data, ttl); err != nil {
		l.fail("set", key, err)
	}
}

func (l *Layer) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, l.timeout)
}

// fail records an absorbed backend error. Only the first one per layer is
// logged at warn level so an unreachable backend does not flood the log.
func (l *Layer) fail(op, key string, err error) {
	metrics.CacheErrors.WithLabelValues(op).Inc()
	if l.warned.CompareAndSwap(false, true) {
		l.log.Warn("cache backend unavailable, falling through to source",
			zap.String("op", op), zap.String("key", key), zap.Error(err))
		return
	}
	l.log.Debug("cache operation failed", zap.String("op", op), zap.String("key", key), zap.Error(err))
}

func isAbsent(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
