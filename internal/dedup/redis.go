package dedup

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisLogKey = "replyengine:emitted"

// RedisLog keeps the duplicate log in Redis so parallel instances share
// one view of emitted messages. The list is trimmed to maxSize on every
// append.
type RedisLog struct {
	client     redis.Cmdable
	thresholds Thresholds
	maxSize    int64
}

// NewRedisLog wraps a Redis client.
func NewRedisLog(client redis.Cmdable, maxSize int, thresholds Thresholds) *RedisLog {
	if client == nil {
		panic("dedup: redis client required")
	}
	if maxSize <= 0 {
		maxSize = 5000
	}
	return &RedisLog{client: client, thresholds: thresholds, maxSize: int64(maxSize)}
}

// Contains scans the logged messages for a near-duplicate. The comparison
// runs client-side; the log is bounded so a full scan stays cheap.
func (l *RedisLog) Contains(ctx context.Context, text string) (bool, error) {
	entries, err := l.client.LRange(ctx, redisLogKey, 0, l.maxSize-1).Result()
	if err != nil {
		return false, fmt.Errorf("dedup: read log: %w", err)
	}
	for _, prior := range entries {
		if NearDuplicate(text, prior, l.thresholds) {
			return true, nil
		}
	}
	return false, nil
}

// Append pushes the message and trims the list to its bound.
func (l *RedisLog) Append(ctx context.Context, text string) error {
	pipe := l.client.TxPipeline()
	pipe.LPush(ctx, redisLogKey, text)
	pipe.LTrim(ctx, redisLogKey, 0, l.maxSize-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dedup: append log: %w", err)
	}
	return nil
}
