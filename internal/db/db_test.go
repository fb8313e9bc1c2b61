package db

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := NewRedisClient(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer rdb.Close()

	opts := rdb.Options()
	assert.Equal(t, redisDialTimeout, opts.DialTimeout)
	assert.Equal(t, redisOpTimeout, opts.ReadTimeout)

	rdb2, err := NewRedisClient(context.Background(), "redis://"+mr.Addr()+"/0?read_timeout=2s")
	require.NoError(t, err)
	defer rdb2.Close()
	assert.Equal(t, 2*time.Second, rdb2.Options().ReadTimeout)
}

func TestNewRedisClient_Errors(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "not-a-url")
	assert.ErrorContains(t, err, "redis.ParseURL")

	_, err = NewRedisClient(context.Background(), "redis://127.0.0.1:1/0")
	assert.ErrorContains(t, err, "redis ping")
}

func TestNewPostgresPool_BadURL(t *testing.T) {
	_, err := NewPostgresPool(context.Background(), "://nope", 4)
	assert.ErrorContains(t, err, "pgxpool.ParseConfig")
}
