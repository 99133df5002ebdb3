package ratelimit

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRateLimiter_AllowConsumesTokens(t *testing.T) {
	rdb := newMiniRedis(t)
	defer closeRedis(t, rdb)

	limiter := NewRedisRateLimiter(rdb, nil, "test:ratelimit:basic", 10, 2)
	ok, _, err := limiter.Allow(context.Background(), "1.2.3.4")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !ok {
		t.Fatalf("expected first request to pass")
	}

	tokensStr, err := rdb.HGet(context.Background(), "test:ratelimit:basic:1.2.3.4", "tokens").Result()
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

func TestRateLimiter_RejectsWhenBucketEmpty(t *testing.T) {
	rdb := newMiniRedis(t)
	defer closeRedis(t, rdb)

	now := time.UnixMilli(1_700_000_000_000)
	limiter := NewRedisRateLimiter(rdb, nil, "test:ratelimit:empty", 1, 2)
	limiter.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		ok, _, err := limiter.Allow(context.Background(), "client")
		if err != nil || !ok {
			t.Fatalf("request %d: ok=%v err=%v", i, ok, err)
		}
	}
	ok, wait, err := limiter.Allow(context.Background(), "client")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if ok {
		t.Fatalf("expected third request to be rejected")
	}
	if wait != time.Second {
		t.Fatalf("wait = %v, want 1s", wait)
	}

	now = now.Add(time.Second)
	ok, _, err = limiter.Allow(context.Background(), "client")
	if err != nil || !ok {
		t.Fatalf("expected refill after 1s, ok=%v err=%v", ok, err)
	}
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	rdb := newMiniRedis(t)
	defer closeRedis(t, rdb)

	limiter := NewRedisRateLimiter(rdb, nil, "test:ratelimit:keys", 0.001, 1)
	if ok, _, _ := limiter.Allow(context.Background(), "a"); !ok {
		t.Fatalf("expected a to pass")
	}
	if ok, _, _ := limiter.Allow(context.Background(), "a"); ok {
		t.Fatalf("expected a to be limited")
	}
	if ok, _, _ := limiter.Allow(context.Background(), "b"); !ok {
		t.Fatalf("expected b to have its own bucket")
	}
}

func TestRateLimiter_DisabledOrNil(t *testing.T) {
	var nilLimiter *RateLimiter
	if ok, _, err := nilLimiter.Allow(context.Background(), "x"); !ok || err != nil {
		t.Fatalf("nil limiter should allow, ok=%v err=%v", ok, err)
	}
	disabled := NewRedisRateLimiter(nil, nil, "", 0, 0)
	if ok, _, err := disabled.Allow(context.Background(), "x"); !ok || err != nil {
		t.Fatalf("disabled limiter should allow, ok=%v err=%v", ok, err)
	}
}

func newMiniRedis(t *testing.T) *redis.Client {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(s.Close)
	return redis.NewClient(&redis.Options{Addr: s.Addr()})
}

func closeRedis(t *testing.T, rdb *redis.Client) {
	t.Helper()
	if err := rdb.Close(); err != nil {
		t.Fatalf("close redis: %v", err)
	}
}
