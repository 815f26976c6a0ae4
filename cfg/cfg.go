package cfg

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

type Secret struct {
	value []byte
}

func NewSecret(s string) Secret {
	return Secret{value: []byte(s)}
}
func (s *Secret) UnmarshalText(b []byte) error {
	s.value = append([]byte(nil), b...)
	return nil
}
func (s Secret) Value() string {
	return string(s.value)
}
func (s Secret) Wipe() {
	for i := range s.value {
		s.value[i] = 0
	}
}
func (s Secret) String() string {
	return "***REDACTED***"
}

type Cfg struct {
	Addr        string `env:"ADDR" envDefault:":8080"`
	TLSCertFile string `env:"TLS_CERT_FILE"`
	TLSKeyFile  string `env:"TLS_KEY_FILE"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	WebDir      string `env:"WEB_DIR" envDefault:"./web"`

	DefaultTTL       time.Duration `env:"DEFAULT_TTL" envDefault:"24h"`
	MinTTL           time.Duration `env:"MIN_TTL" envDefault:"1m"`
	MaxTTL           time.Duration `env:"MAX_TTL" envDefault:"168h"`
	AllowTTLOverride bool          `env:"ALLOW_TTL_OVERRIDE" envDefault:"true"`
	BurnAfterRead    bool          `env:"BURN_AFTER_READ" envDefault:"false"`

	MaxPayloadBytes int64         `env:"MAX_PAYLOAD_BYTES" envDefault:"10485760"`
	NonceSize       int           `env:"NONCE_SIZE" envDefault:"12"`
	MaxEntries      int64         `env:"MAX_ENTRIES" envDefault:"100000"`
	MaxStoreBytes   int64         `env:"MAX_STORE_BYTES" envDefault:"1073741824"`
	StoreShards     int           `env:"STORE_SHARDS" envDefault:"32"`
	SweepInterval   time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`

	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	ContextTimeout    time.Duration `env:"CONTEXT_TIMEOUT" envDefault:"5s"`

	RateLimit      RateLimitCfg `envPrefix:"RATE_LIMIT_"`
	TrustedProxies []string     `env:"TRUSTED_PROXIES" envSeparator:","`
	AllowedOrigins []string     `env:"ALLOWED_ORIGINS" envSeparator:","`
	MetricsUser    string       `env:"METRICS_USER"`
	MetricsPass    Secret       `env:"METRICS_PASS"`
	PprofEnabled   bool         `env:"PPROF_ENABLED" envDefault:"false"`

	RedisURL      string        `env:"REDIS_URL"`
	RedisTLS      bool          `env:"REDIS_TLS" envDefault:"false"`
	RedisUsername string        `env:"REDIS_USERNAME"`
	RedisPassword Secret        `env:"REDIS_PASSWORD"`
	RedisTimeout  time.Duration `env:"REDIS_TIMEOUT" envDefault:"5s"`
	RedisHostname string        `env:"REDIS_HOSTNAME"`
	RedisCACert   string        `env:"REDIS_TLS_CA_CERT"`

	VaultAddr             string `env:"VAULT_ADDR"`
	VaultToken            Secret `env:"VAULT_TOKEN"`
	VaultTokenFile        string `env:"VAULT_TOKEN_FILE"`
	VaultSecretPath       string `env:"VAULT_SECRET_PATH" envDefault:"secret/data/sealbin"`
	AWSRegion             string `env:"AWS_REGION"`
	SecretsRequirePrimary bool   `env:"SECRETS_REQUIRE_PRIMARY" envDefault:"false"`
}

type RateLimitCfg struct {
	RPM               int `env:"RPM" envDefault:"60"`
	Burst             int `env:"BURST" envDefault:"10"`
	ConservativeLimit int `env:"CONSERVATIVE" envDefault:"5"`
	// ClientTableSize bounds how many per-client limiters are kept in memory.
	ClientTableSize int `env:"CLIENT_TABLE_SIZE" envDefault:"10000"`
}

// Load reads an optional .env file, then the process environment. Variables
// already set in the environment win over the file.
func Load(files ...string) (*Cfg, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "load %s", f)
		}
	}
	c := &Cfg{}
	if err := env.Parse(c); err != nil {
		return nil, errors.Wrap(err, "parse environment")
	}
	return c, nil
}
func Validate(c *Cfg) error {
	if c.Addr == "" {
		return errors.New("ADDR is required")
	}
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return fmt.Errorf("invalid ADDR %q: %w", c.Addr, err)
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return errors.New("TLS certificate and key must be provided together")
	}

	if c.MinTTL <= 0 {
		return errors.New("MIN_TTL must be positive")
	}
	if c.MaxTTL < c.MinTTL {
		return errors.New("MAX_TTL must be >= MIN_TTL")
	}
	if c.DefaultTTL < c.MinTTL || c.DefaultTTL > c.MaxTTL {
		return errors.New("DEFAULT_TTL must lie between MIN_TTL and MAX_TTL")
	}

	if c.MaxPayloadBytes <= 0 {
		return errors.New("MAX_PAYLOAD_BYTES must be positive")
	}
	if c.MaxPayloadBytes > 64*1024*1024 {
		return errors.New("MAX_PAYLOAD_BYTES cannot exceed 64MB")
	}
	if c.NonceSize < 0 || c.NonceSize > 64 {
		return errors.New("NONCE_SIZE must be between 0 and 64")
	}
	if c.MaxEntries < 0 {
		return errors.New("MAX_ENTRIES must not be negative")
	}
	if c.MaxStoreBytes < 0 {
		return errors.New("MAX_STORE_BYTES must not be negative")
	}
	if c.MaxEntries == 0 && c.MaxStoreBytes == 0 {
		return errors.New("at least one of MAX_ENTRIES or MAX_STORE_BYTES must be positive")
	}
	if c.MaxStoreBytes > 0 && c.MaxStoreBytes < c.MaxPayloadBytes {
		return errors.New("MAX_STORE_BYTES must be >= MAX_PAYLOAD_BYTES")
	}
	if c.StoreShards < 1 || c.StoreShards > 4096 {
		return errors.New("STORE_SHARDS must be between 1 and 4096")
	}
	if c.SweepInterval < time.Second {
		return errors.New("SWEEP_INTERVAL must be at least 1s")
	}

	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 || c.IdleTimeout <= 0 || c.ReadHeaderTimeout <= 0 {
		return errors.New("server timeouts must be positive")
	}
	if c.ContextTimeout <= 0 {
		return errors.New("CONTEXT_TIMEOUT must be positive")
	}

	if c.RateLimit.RPM <= 0 {
		return errors.New("RATE_LIMIT_RPM must be positive")
	}
	if c.RateLimit.Burst <= 0 {
		return errors.New("RATE_LIMIT_BURST must be positive")
	}
	if c.RateLimit.ConservativeLimit <= 0 || c.RateLimit.ConservativeLimit > c.RateLimit.RPM {
		return errors.New("RATE_LIMIT_CONSERVATIVE must be positive and <= RATE_LIMIT_RPM")
	}
	if c.RateLimit.ClientTableSize <= 0 {
		return errors.New("RATE_LIMIT_CLIENT_TABLE_SIZE must be positive")
	}

	if c.RedisURL != "" {
		if !strings.HasPrefix(c.RedisURL, "redis://") && !strings.HasPrefix(c.RedisURL, "rediss://") {
			return errors.New("REDIS_URL must start with redis:// or rediss://")
		}
		if strings.HasPrefix(c.RedisURL, "rediss://") && !c.RedisTLS {
			return errors.New("REDIS_URL uses rediss:// but REDIS_TLS=false")
		}
		if c.RedisTLS && c.RedisHostname == "" {
			return errors.New("REDIS_HOSTNAME must be set when REDIS_TLS=true")
		}
	}
	for _, proxy := range c.TrustedProxies {
		if strings.Contains(proxy, "/") {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return fmt.Errorf("invalid CIDR in TRUSTED_PROXIES: %s", proxy)
			}
		} else {
			if net.ParseIP(proxy) == nil {
				return fmt.Errorf("invalid IP in TRUSTED_PROXIES: %s", proxy)
			}
		}
	}

	if c.Environment == "production" {
		if c.MetricsUser == "" || c.MetricsPass.Value() == "" {
			return errors.New("METRICS_USER and METRICS_PASS are required in production")
		}
		if c.PprofEnabled {
			return errors.New("PPROF_ENABLED must be false in production")
		}
	}
	return nil
}
func (c *Cfg) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}
func (c *Cfg) Wipe() {
	c.RedisPassword.Wipe()
	c.MetricsPass.Wipe()
	c.VaultToken.Wipe()
}
