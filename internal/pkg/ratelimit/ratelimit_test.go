package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newMiniRedis(t *testing.T) *redis.Client {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(s.Close)

	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() {
		if err := rdb.Close(); err != nil {
			t.Errorf("close redis: %v", err)
		}
	})
	return rdb
}

func TestLimiter_AcquireConsumesToken(t *testing.T) {
	rdb := newMiniRedis(t)

	limiter := NewSiteLimiter(rdb, nil, "alityan", 10, 2)
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	tokensStr, err := rdb.HGet(context.Background(), limiter.key, "tokens").Result()
	if err != nil {
		t.Fatalf("hget tokens: %v", err)
	}
	tokens, err := strconv.ParseFloat(tokensStr, 64)
	if err != nil {
		t.Fatalf("parse tokens: %v", err)
	}
	if tokens > 1.1 {
		t.Fatalf("expected tokens to decrease, got %.2f", tokens)
	}
}

func TestLimiter_BlocksUntilRefill(t *testing.T) {
	rdb := newMiniRedis(t)

	limiter := NewSiteLimiter(rdb, nil, "globaliraq", 10, 1)
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("warm acquire: %v", err)
	}

	start := time.Now()
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("blocked acquire: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Fatalf("expected blocking, elapsed=%v", elapsed)
	}
}

func TestLimiter_ContextTimeout(t *testing.T) {
	rdb := newMiniRedis(t)

	limiter := NewSiteLimiter(rdb, nil, "kolshzin", 1, 1)
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("warm acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := limiter.Acquire(ctx); !errors.Is(err, ErrRateLimitTimeout) {
		t.Fatalf("expected ErrRateLimitTimeout, got %v", err)
	}
}

func TestLimiter_NilOrUnconfiguredPassesThrough(t *testing.T) {
	var limiter *Limiter
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("nil limiter should pass through, got %v", err)
	}

	// Redis 未配置但速率已配置：降级直通，不能碰 nil 客户端
	limiter = NewSiteLimiter(nil, nil, "globaliraq", 3, 5)
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("nil redis limiter should pass through, got %v", err)
	}

	rdb := newMiniRedis(t)
	limiter = NewSiteLimiter(rdb, nil, "spniq", 0, 0)
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("zero-rate limiter should pass through, got %v", err)
	}
}

func TestLimiter_ConcurrentAcquire(t *testing.T) {
	rdb := newMiniRedis(t)

	limiter := NewSiteLimiter(rdb, nil, "concurrent", 5, 5)

	var wg sync.WaitGroup
	var mu sync.Mutex
	success := 0
	timeout := 0

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := limiter.Acquire(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				success++
				return
			}
			if errors.Is(err, ErrRateLimitTimeout) {
				timeout++
			}
		}()
	}

	wg.Wait()

	if success != 5 {
		t.Fatalf("expected 5 immediate successes, got %d (timeout=%d)", success, timeout)
	}
}
