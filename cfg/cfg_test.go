package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validCfg(t *testing.T) *Cfg {
	t.Helper()
	c, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	return c
}

func TestLoadDefaults(t *testing.T) {
	c := validCfg(t)
	require.Equal(t, ":8080", c.Addr)
	require.Equal(t, 24*time.Hour, c.DefaultTTL)
	require.Equal(t, time.Minute, c.MinTTL)
	require.Equal(t, 168*time.Hour, c.MaxTTL)
	require.True(t, c.AllowTTLOverride)
	require.False(t, c.BurnAfterRead)
	require.Equal(t, int64(10*1024*1024), c.MaxPayloadBytes)
	require.Equal(t, 12, c.NonceSize)
	require.Equal(t, time.Hour, c.SweepInterval)
	require.Equal(t, 60, c.RateLimit.RPM)
	require.False(t, c.TLSEnabled())
	require.NoError(t, Validate(c))
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("MAX_TTL", "48h")
	t.Setenv("BURN_AFTER_READ", "true")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("RATE_LIMIT_RPM", "120")
	t.Setenv("METRICS_PASS", "hunter2")

	c := validCfg(t)
	require.Equal(t, 48*time.Hour, c.MaxTTL)
	require.True(t, c.BurnAfterRead)
	require.Len(t, c.AllowedOrigins, 2)
	require.Equal(t, 120, c.RateLimit.RPM)
	require.Equal(t, "hunter2", c.MetricsPass.Value())
	require.Equal(t, "***REDACTED***", c.MetricsPass.String())
}

func TestLoadDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	// Register cleanup for keys the file will set.
	t.Setenv("SWEEP_INTERVAL", "")
	require.NoError(t, os.Unsetenv("SWEEP_INTERVAL"))
	t.Setenv("STORE_SHARDS", "8")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SWEEP_INTERVAL=10m\nSTORE_SHARDS=64\n"), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 10*time.Minute, c.SweepInterval)
	require.Equal(t, 8, c.StoreShards)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("MAX_ENTRIES", "lots")
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Cfg)
	}{
		{"cert without key", func(c *Cfg) { c.TLSCertFile = "cert.pem" }},
		{"key without cert", func(c *Cfg) { c.TLSKeyFile = "key.pem" }},
		{"bad addr", func(c *Cfg) { c.Addr = "8080" }},
		{"zero min ttl", func(c *Cfg) { c.MinTTL = 0 }},
		{"max below min", func(c *Cfg) { c.MaxTTL = 30 * time.Second }},
		{"default above max", func(c *Cfg) { c.DefaultTTL = 200 * time.Hour }},
		{"zero payload", func(c *Cfg) { c.MaxPayloadBytes = 0 }},
		{"negative nonce", func(c *Cfg) { c.NonceSize = -1 }},
		{"store smaller than payload", func(c *Cfg) { c.MaxStoreBytes = 1024 }},
		{"no shards", func(c *Cfg) { c.StoreShards = 0 }},
		{"fast sweep", func(c *Cfg) { c.SweepInterval = time.Millisecond }},
		{"zero rpm", func(c *Cfg) { c.RateLimit.RPM = 0 }},
		{"conservative above rpm", func(c *Cfg) { c.RateLimit.ConservativeLimit = 1000 }},
		{"bad redis scheme", func(c *Cfg) { c.RedisURL = "http://localhost" }},
		{"rediss without tls", func(c *Cfg) { c.RedisURL = "rediss://localhost:6379" }},
		{"bad proxy", func(c *Cfg) { c.TrustedProxies = []string{"10.0.0.0/99"} }},
		{"production without metrics auth", func(c *Cfg) { c.Environment = "production" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validCfg(t)
			tc.mutate(c)
			require.Error(t, Validate(c))
		})
	}
}

func TestValidateAcceptsTLSPair(t *testing.T) {
	c := validCfg(t)
	c.TLSCertFile = "cert.pem"
	c.TLSKeyFile = "key.pem"
	require.NoError(t, Validate(c))
	require.True(t, c.TLSEnabled())
}

func TestValidateStoreBounds(t *testing.T) {
	c := validCfg(t)
	c.MaxEntries = 0
	c.MaxStoreBytes = 0
	require.Error(t, Validate(c))

	c.MaxEntries = 10
	require.NoError(t, Validate(c), "an entry bound alone is enough")

	c.MaxEntries = 0
	c.MaxStoreBytes = c.MaxPayloadBytes
	require.NoError(t, Validate(c), "a byte bound alone is enough")
}
