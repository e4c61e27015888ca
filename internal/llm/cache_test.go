package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"receipt-agent/internal/common/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls int
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func TestCachedEmbedder(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	next := &countingEmbedder{}
	c := NewCachedEmbedder(next, rdb, "m", time.Hour, logger.NewTestLogger(t))
	ctx := context.Background()

	v1, err := c.Embed(ctx, "abc")
	require.NoError(t, err)
	v2, err := c.Embed(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, next.calls)

	_, err = c.Embed(ctx, "abcd")
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)

	mr.FastForward(2 * time.Hour)
	_, err = c.Embed(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 3, next.calls)
}

func TestCachedEmbedder_FallsThroughWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	next := &countingEmbedder{}
	c := NewCachedEmbedder(next, rdb, "m", time.Hour, logger.NewNoOpLogger())
	v, err := c.Embed(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 1}, v)
}

func TestCachedEmbedder_PropagatesErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	c := NewCachedEmbedder(&countingEmbedder{err: errors.New("quota")}, rdb, "m", time.Hour, logger.NewNoOpLogger())
	_, err := c.Embed(context.Background(), "abc")
	assert.EqualError(t, err, "quota")
}
