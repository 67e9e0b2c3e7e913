package cache_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"respondeo-service/internal/cache"
	"respondeo-service/internal/infra/memory"
)

type board struct {
	Names []string `json:"names"`
}

func TestFetchComputesOncePerTTL(t *testing.T) {
	clock := newFakeClock()
	layer := cache.NewLayer(memory.NewCacheWithClock(clock.Now), time.Second, zap.NewNop())

	calls := 0
	compute := func(context.Context) (board, error) {
		calls++
		return board{Names: []string{"alice"}}, nil
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		got, err := cache.Fetch(ctx, layer, "leaderboard:global:1:30", time.Minute, compute)
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		if len(got.Names) != 1 || got.Names[0] != "alice" {
			t.Fatalf("unexpected value %+v", got)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one compute within ttl, got %d", calls)
	}

	clock.Advance(time.Minute + time.Second)
	if _, err := cache.Fetch(ctx, layer, "leaderboard:global:1:30", time.Minute, compute); err != nil {
		t.Fatalf("fetch after ttl: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected recompute after ttl, got %d calls", calls)
	}
}

func TestFetchFallsThroughWhenBackendFails(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	layer := cache.NewLayer(failingBackend{}, time.Second, zap.New(core))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		got, err := cache.Fetch(ctx, layer, "quizzes:detail:q1", time.Minute, func(context.Context) (board, error) {
			return board{Names: []string{"bob"}}, nil
		})
		if err != nil {
			t.Fatalf("cache error leaked to caller: %v", err)
		}
		if len(got.Names) != 1 {
			t.Fatalf("expected computed value, got %+v", got)
		}
	}
	if removed := layer.Invalidate(ctx, "leaderboard:*"); removed != 0 {
		t.Fatalf("expected nothing removed, got %d", removed)
	}
	layer.Delete(ctx, "quizzes:detail:q1")

	if logs.Len() != 1 {
		t.Fatalf("expected a single warning for repeated failures, got %d", logs.Len())
	}
}

func TestFetchDoesNotCacheAbsentOrFailedResults(t *testing.T) {
	layer := cache.NewLayer(memory.NewCache(), time.Second, zap.NewNop())
	ctx := context.Background()

	nilCalls := 0
	for i := 0; i < 2; i++ {
		got, err := cache.Fetch(ctx, layer, "quizzes:detail:missing", time.Minute, func(context.Context) (*board, error) {
			nilCalls++
			return nil, nil
		})
		if err != nil || got != nil {
			t.Fatalf("expected nil result, got %v %v", got, err)
		}
	}
	if nilCalls != 2 {
		t.Fatalf("nil result must not be cached, compute ran %d times", nilCalls)
	}

	boom := errors.New("store down")
	errCalls := 0
	for i := 0; i < 2; i++ {
		_, err := cache.Fetch(ctx, layer, "quizzes:detail:broken", time.Minute, func(context.Context) (board, error) {
			errCalls++
			return board{}, boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected compute error, got %v", err)
		}
	}
	if errCalls != 2 {
		t.Fatalf("errors must not be cached, compute ran %d times", errCalls)
	}
}

func TestFetchTreatsUndecodableEntryAsMiss(t *testing.T) {
	backend := memory.NewCache()
	layer := cache.NewLayer(backend, time.Second, zap.NewNop())
	ctx := context.Background()

	_ = backend.Set(ctx, "quizzes:list:public:1:30", []byte("{not json"), time.Minute)

	calls := 0
	got, err := cache.Fetch(ctx, layer, "quizzes:list:public:1:30", time.Minute, func(context.Context) (board, error) {
		calls++
		return board{Names: []string{"fresh"}}, nil
	})
	if err != nil || calls != 1 || got.Names[0] != "fresh" {
		t.Fatalf("expected recompute on corrupt entry, calls=%d got=%+v err=%v", calls, got, err)
	}
}

func TestFetchSharesConcurrentMisses(t *testing.T) {
	layer := cache.NewLayer(memory.NewCache(), time.Second, zap.NewNop())
	ctx := context.Background()

	release := make(chan struct{})
	var calls atomic.Int32
	compute := func(context.Context) (board, error) {
		calls.Add(1)
		<-release
		return board{Names: []string{"shared"}}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = cache.Fetch(ctx, layer, "leaderboard:quiz:q1:1:30", time.Minute, compute)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n < 1 || n > 5 {
		t.Fatalf("unexpected compute count %d", n)
	}
	before := calls.Load()
	_, _ = cache.Fetch(ctx, layer, "leaderboard:quiz:q1:1:30", time.Minute, compute)
	if calls.Load() != before {
		t.Fatalf("expected cache hit after shared compute")
	}
}

func TestFetchIsBoundedBySlowBackend(t *testing.T) {
	layer := cache.NewLayer(blockingBackend{}, 20*time.Millisecond, zap.NewNop())

	start := time.Now()
	got, err := cache.Fetch(context.Background(), layer, "leaderboard:global:1:30", time.Minute, func(context.Context) (board, error) {
		return board{Names: []string{"carol"}}, nil
	})
	if err != nil || len(got.Names) != 1 {
		t.Fatalf("expected computed value, got %+v %v", got, err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("slow cache delayed the read by %s", elapsed)
	}
}

func TestInvalidateRemovesOnlyMatchingKeysAcrossBatches(t *testing.T) {
	backend := memory.NewCache()
	layer := cache.NewLayer(backend, time.Second, zap.NewNop())
	ctx := context.Background()

	for i := 1; i <= 250; i++ {
		_ = backend.Set(ctx, fmt.Sprintf("leaderboard:quiz:q1:%d:30", i), []byte("{}"), time.Minute)
	}
	_ = backend.Set(ctx, "leaderboard:quiz:q2:1:30", []byte("{}"), time.Minute)
	_ = backend.Set(ctx, "leaderboard:global:1:30", []byte("{}"), time.Minute)

	removed := layer.Invalidate(ctx, "leaderboard:quiz:q1:*")
	if removed != 250 {
		t.Fatalf("expected 250 keys removed, got %d", removed)
	}
	if backend.Len() != 2 {
		t.Fatalf("expected unrelated keys to survive, %d left", backend.Len())
	}
}

func TestNoopBackendAlwaysComputes(t *testing.T) {
	layer := cache.NewLayer(cache.Noop{}, time.Second, zap.NewNop())
	calls := 0
	for i := 0; i < 2; i++ {
		_, _ = cache.Fetch(context.Background(), layer, "k", time.Minute, func(context.Context) (int, error) {
			calls++
			return 1, nil
		})
	}
	if calls != 2 {
		t.Fatalf("expected compute on every call without a backend, got %d", calls)
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errDown = errors.New("connection refused")

type failingBackend struct{}

func (failingBackend) Get(context.Context, string) ([]byte, error) { return nil, errDown }

func (failingBackend) Set(context.Context, string, []byte, time.Duration) error { return errDown }

func (failingBackend) Scan(context.Context, uint64, string, int64) ([]string, uint64, error) {
	return nil, 0, errDown
}

func (failingBackend) Delete(context.Context, ...string) error { return errDown }

func (failingBackend) Close() error { return nil }

type blockingBackend struct{}

func (blockingBackend) Get(ctx context.Context, _ string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingBackend) Set(ctx context.Context, _ string, _ []byte, _ time.Duration) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingBackend) Scan(ctx context.Context, _ uint64, _ string, _ int64) ([]string, uint64, error) {
	<-ctx.Done()
	return nil, 0, ctx.Err()
}

func (blockingBackend) Delete(ctx context.Context, _ ...string) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingBackend) Close() error { return nil }
