package dedup

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLog(t *testing.T, maxSize int) (*RedisLog, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLog(client, maxSize, DefaultThresholds()), mr
}

func TestRedisLogFlagsRepeatedMessage(t *testing.T) {
	log, _ := newRedisLog(t, 100)
	ctx := context.Background()

	msg := "Mein Tag war richtig schön, ich war lange draußen. Und wie war deiner?"
	require.NoError(t, log.Append(ctx, msg))

	dup, err := log.Contains(ctx, msg)
	require.NoError(t, err)
	assert.True(t, dup)
}

func TestRedisLogAcceptsUnrelatedMessage(t *testing.T) {
	log, _ := newRedisLog(t, 100)
	ctx := context.Background()

	require.NoError(t, log.Append(ctx, "Mein Tag war richtig schön, ich war lange draußen unterwegs."))

	dup, err := log.Contains(ctx, "Morgen fahre ich ans Meer und freue mich total darauf, kommst du mit?")
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestRedisLogTrimsToBound(t *testing.T) {
	log, mr := newRedisLog(t, 3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, log.Append(ctx, fmt.Sprintf("Nachricht Nummer %d mit etwas eigenem Inhalt dahinter", i)))
	}

	entries, err := mr.List(redisLogKey)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	// LPush puts the newest entry first; the oldest ones fell off.
	dup, err := log.Contains(ctx, "Nachricht Nummer 0 mit etwas eigenem Inhalt dahinter")
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestRedisLogContainsErrorSurfaces(t *testing.T) {
	log, mr := newRedisLog(t, 100)
	mr.Close()

	_, err := log.Contains(context.Background(), "egal")
	assert.Error(t, err)
}
