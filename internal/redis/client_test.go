package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	return NewClientFromRaw(raw), mr
}

func TestParseOptions(t *testing.T) {
	opt, err := parseOptions("localhost")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opt.Addr)

	opt, err = parseOptions("10.0.0.5:6380")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5:6380", opt.Addr)

	opt, err = parseOptions("redis://:secret@cache.internal/3")
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6379", opt.Addr)
	assert.Equal(t, "secret", opt.Password)
	assert.Equal(t, 3, opt.DB)
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewClient(mr.Addr())
	require.NoError(t, err)
	defer c.Close()
	assert.NoError(t, c.Ping(context.Background()))

	addr := mr.Addr()
	mr.Close()
	_, err = NewClient(addr)
	assert.Error(t, err)
}

func TestKey(t *testing.T) {
	c, _ := newTestClient(t)
	assert.Equal(t, "pool:a.com:gen", c.Key("pool", "a.com", "gen"))

	c.SetKeyPrefix("staging")
	assert.Equal(t, "staging:pool:a.com:gen", c.Key("pool", "a.com", "gen"))
}

func TestLock(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	token, err := c.AcquireLock(ctx, "lock:a", time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	_, err = c.AcquireLock(ctx, "lock:a", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	// 错误令牌不会释放锁
	require.NoError(t, c.ReleaseLock(ctx, "lock:a", "other"))
	assert.True(t, mr.Exists("lock:a"))

	require.NoError(t, c.ReleaseLock(ctx, "lock:a", token))
	assert.False(t, mr.Exists("lock:a"))

	// 过期后可以重新获取
	_, err = c.AcquireLock(ctx, "lock:b", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)
	_, err = c.AcquireLock(ctx, "lock:b", time.Second)
	assert.NoError(t, err)
}
