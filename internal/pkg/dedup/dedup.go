package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix     = "supertodo:idempotency:"
	pendingMarker = "pending"

	// DefaultPendingTTL 是处理中标记的存活时间，到期后 key 可被重新占用。
	DefaultPendingTTL = 30 * time.Second
)

// Claim 的结果。
type Claim struct {
	Claimed  bool   // 本次请求获得了 key，应继续执行
	Pending  bool   // 首个请求仍在处理中
	ResultID string // 首个请求已完成时的结果 ID
}

// Deduplicator 基于 Redis SETNX 记录 Idempotency-Key。
//
// 处理中标记只保留 pendingTTL，Complete 后结果保留完整的 ttl。
type Deduplicator struct {
	rdb        *redis.Client
	ttl        time.Duration
	pendingTTL time.Duration
}

func NewDeduplicator(rdb *redis.Client, ttl time.Duration) *Deduplicator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	pendingTTL := DefaultPendingTTL
	if pendingTTL > ttl {
		pendingTTL = ttl
	}
	return &Deduplicator{
		rdb:        rdb,
		ttl:        ttl,
		pendingTTL: pendingTTL,
	}
}

// Claim 尝试占用 scope 下的 key。未配置 Redis 时总是放行。
func (d *Deduplicator) Claim(ctx context.Context, scope, key string) (Claim, error) {
	if d == nil || d.rdb == nil || key == "" {
		return Claim{Claimed: true}, nil
	}
	redisKey := buildKey(scope, key)
	ok, err := d.rdb.SetNX(ctx, redisKey, pendingMarker, d.pendingTTL).Result()
	if err != nil {
		return Claim{}, fmt.Errorf("dedup setnx: %w", err)
	}
	if ok {
		return Claim{Claimed: true}, nil
	}

	val, err := d.rdb.Get(ctx, redisKey).Result()
	if errors.Is(err, redis.Nil) {
		// key 恰好过期，重新占用
		return d.Claim(ctx, scope, key)
	}
	if err != nil {
		return Claim{}, fmt.Errorf("dedup get: %w", err)
	}
	if val == pendingMarker {
		return Claim{Pending: true}, nil
	}
	return Claim{ResultID: val}, nil
}

// Complete 记录 key 对应的结果 ID。
func (d *Deduplicator) Complete(ctx context.Context, scope, key, resultID string) error {
	if d == nil || d.rdb == nil || key == "" {
		return nil
	}
	if err := d.rdb.Set(ctx, buildKey(scope, key), resultID, d.ttl).Err(); err != nil {
		return fmt.Errorf("dedup set: %w", err)
	}
	return nil
}

// Release 释放 key，允许重试。
func (d *Deduplicator) Release(ctx context.Context, scope, key string) error {
	if d == nil || d.rdb == nil || key == "" {
		return nil
	}
	if err := d.rdb.Del(ctx, buildKey(scope, key)).Err(); err != nil {
		return fmt.Errorf("dedup del: %w", err)
	}
	return nil
}

func buildKey(scope, key string) string {
	sum := sha256.Sum256([]byte(key))
	return keyPrefix + scope + ":" + hex.EncodeToString(sum[:])
}
