package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"sealbin/cfg"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestBuildRedisTLSConfig(t *testing.T) {
	c := &cfg.Cfg{RedisHostname: "redis.internal"}
	tc, err := buildRedisTLSConfig(c)
	require.NoError(t, err)
	require.Equal(t, "redis.internal", tc.ServerName)
	require.NotNil(t, tc.RootCAs)

	c.RedisCACert = filepath.Join(t.TempDir(), "missing.pem")
	_, err = buildRedisTLSConfig(c)
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(bad, []byte("not a certificate"), 0o600))
	c.RedisCACert = bad
	_, err = buildRedisTLSConfig(c)
	require.Error(t, err)
}

func TestNewRedisErrors(t *testing.T) {
	ctx := context.Background()
	_, err := NewRedis(ctx, &cfg.Cfg{RedisURL: "mysql://nope"})
	require.Error(t, err)

	// Nothing listens on port 1.
	_, err = NewRedis(ctx, &cfg.Cfg{RedisURL: "redis://127.0.0.1:1/0", RedisTimeout: 200 * time.Millisecond})
	require.Error(t, err)
}

// Runs against a real server when SEALBIN_TEST_REDIS_URL is set.
func TestRateLimitScript(t *testing.T) {
	url := os.Getenv("SEALBIN_TEST_REDIS_URL")
	if url == "" {
		t.Skip("SEALBIN_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	r, err := NewRedis(ctx, &cfg.Cfg{RedisURL: url, RedisTimeout: time.Second})
	require.NoError(t, err)
	defer r.Close()

	key := "test:" + uuid.NewString()
	for i := 1; i <= 3; i++ {
		usage, err := r.RateLimit(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		require.Equal(t, i, usage)
	}
	usage, err := r.RateLimit(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 4, usage)
	usage, err = r.RateLimit(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	require.Equal(t, 4, usage, "counter must not grow past the limit")

	require.NoError(t, r.Ping(ctx))
}
