package db

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"os"
	"time"

	"sealbin/cfg"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "sealbin:"

// Redis backs the rate limiter when several instances share one budget.
// Pastes themselves are never written to Redis.
type Redis struct {
	client  *redis.Client
	timeout time.Duration
}

var rateLimitScript = redis.NewScript(`
	local current = redis.call("GET", KEYS[1])
	if current == false then
		current = 0
	else
		current = tonumber(current)
	end
	if current >= tonumber(ARGV[2]) then
		return current + 1
	end
	local new_val = redis.call("INCR", KEYS[1])
	if new_val == 1 then
		redis.call("PEXPIRE", KEYS[1], ARGV[1])
	end
	return new_val
`)

func NewRedis(ctx context.Context, c *cfg.Cfg) (*Redis, error) {
	opt, err := redis.ParseURL(c.RedisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	opt.PoolSize = 20
	opt.MinIdleConns = 2
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute
	opt.MaxRetries = 2
	opt.MinRetryBackoff = 8 * time.Millisecond
	opt.MaxRetryBackoff = 256 * time.Millisecond
	if c.RedisTLS {
		tlsConfig, err := buildRedisTLSConfig(c)
		if err != nil {
			return nil, errors.Wrap(err, "failed to build Redis TLS config")
		}
		opt.TLSConfig = tlsConfig
	}
	if c.RedisUsername != "" {
		opt.Username = c.RedisUsername
	}
	if c.RedisPassword.Value() != "" {
		opt.Password = c.RedisPassword.Value()
	}
	return newRedis(ctx, redis.NewClient(opt), c.RedisTimeout)
}
func newRedis(ctx context.Context, client *redis.Client, timeout time.Duration) (*Redis, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	r := &Redis{client: client, timeout: timeout}
	if err := r.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return r, nil
}
func buildRedisTLSConfig(c *cfg.Cfg) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: c.RedisHostname,
	}
	if c.RedisCACert != "" {
		caCert, err := os.ReadFile(c.RedisCACert)
		if err != nil {
			return nil, errors.Wrap(err, "read Redis CA cert")
		}
		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(caCert) {
			return nil, errors.New("failed to append Redis CA cert to pool")
		}
		tlsConfig.RootCAs = certPool
		return tlsConfig, nil
	}
	systemPool, err := x509.SystemCertPool()
	if err != nil {
		return nil, errors.Wrap(err, "load system cert pool")
	}
	tlsConfig.RootCAs = systemPool
	return tlsConfig, nil
}

// RateLimit counts one hit against key in a fixed window and returns the
// usage including this hit. Once the limit is reached the counter stops
// growing and the returned usage is limit+1.
func (r *Redis) RateLimit(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	usage, err := rateLimitScript.Run(ctx, r.client, []string{keyPrefix + "rl:" + key}, window.Milliseconds(), limit).Int()
	if err != nil {
		return 0, errors.Wrap(err, "rate limit lua")
	}
	return usage, nil
}
func (r *Redis) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.client.Ping(ctx).Err()
}
func (r *Redis) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
