package util

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RetryCounter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRetryCounter ttl <= 0 时默认 24h
func NewRetryCounter(rdb *redis.Client, ttl time.Duration) *RetryCounter {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RetryCounter{rdb: rdb, ttl: ttl}
}

// IncrementAndGet increments the retry count for a given key and returns the new count
func (r *RetryCounter) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	count, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}

	// 第一次计数时设置过期时间
	if count == 1 {
		r.rdb.Expire(ctx, key, r.ttl)
	}

	return count, nil
}

// Reset resets the retry count
func (r *RetryCounter) Reset(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}

// FormatRetryKey formats a retry key for a queue and a message.
// 没有 message id 时使用消息体的摘要，保证同一条重投消息命中同一个 key。
func FormatRetryKey(queue, messageID string, body []byte) string {
	if messageID == "" {
		sum := sha1.Sum(body)
		messageID = hex.EncodeToString(sum[:])
	}
	return fmt.Sprintf("retry:%s:%s", queue, messageID)
}
