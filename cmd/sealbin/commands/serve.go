package commands

import (
	"context"
	"encoding/base64"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sealbin/cfg"
	"sealbin/pkg/secrets"
	"sealbin/svc/api"
	"sealbin/svc/auth"
	"sealbin/svc/db"
	"sealbin/svc/lim"
	"sealbin/svc/reaper"
	"sealbin/svc/store"
	"sealbin/svc/svc"
	"sealbin/svc/util"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const deletionKeyName = "DELETION_TOKEN_SECRET"

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP(S) server and the expiry reaper",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
}

func runServe(cmd *cobra.Command) error {
	c, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer c.Wipe()
	util.InitLog(c.LogLevel, c.Environment == "development")
	util.Info().Str("environment", c.Environment).Msg("starting sealbin")

	if err := util.ProbeRandom(); err != nil {
		return errors.Wrap(err, "secure randomness unavailable")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	key, err := loadKey(ctx, c)
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokens(key)
	if err != nil {
		util.Wipe(key)
		return errors.Wrap(err, "init deletion tokens")
	}
	ipHasher, err := util.NewIPHasher(key, time.Hour)
	util.Wipe(key)
	if err != nil {
		return err
	}
	defer ipHasher.Stop()

	tlsConfig, err := api.LoadTLS(c)
	if err != nil {
		return err
	}

	st, err := store.New(store.Config{
		Shards:          c.StoreShards,
		MaxEntries:      c.MaxEntries,
		MaxBytes:        c.MaxStoreBytes,
		MaxPayloadBytes: c.MaxPayloadBytes,
	})
	if err != nil {
		return errors.Wrap(err, "create store")
	}
	util.Info().
		Int("shards", st.Stats().Shards).
		Int64("max_entries", c.MaxEntries).
		Int64("max_bytes", c.MaxStoreBytes).
		Msg("store initialized")

	var rdb *db.Redis
	var counter lim.Counter
	if c.RedisURL != "" {
		rdb, err = db.NewRedis(ctx, c)
		if err != nil {
			if c.Environment == "production" {
				return errors.Wrap(err, "redis required in production")
			}
			util.Warn().Err(err).Msg("redis unavailable, rate limits stay per instance")
			rdb = nil
		} else {
			defer rdb.Close()
			counter = rdb
			util.Info().Msg("redis connected")
		}
	}

	limiter, err := lim.New(lim.Config{
		RPM:               c.RateLimit.RPM,
		Burst:             c.RateLimit.Burst,
		ConservativeLimit: c.RateLimit.ConservativeLimit,
		TableSize:         c.RateLimit.ClientTableSize,
		TrustedProxies:    c.TrustedProxies,
		Hasher:            ipHasher,
	}, counter)
	if err != nil {
		return errors.Wrap(err, "create rate limiter")
	}
	limiter.Start()
	defer limiter.Stop()
	util.Info().
		Int("rpm", c.RateLimit.RPM).
		Int("burst", c.RateLimit.Burst).
		Strs("trusted_proxies", c.TrustedProxies).
		Msg("rate limiter initialized")

	rp, err := reaper.New(st, c.SweepInterval)
	if err != nil {
		return err
	}
	server := api.NewServer(c, svc.NewPaste(st, tokens, c), limiter, rdb, tlsConfig)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error { return rp.Run(gctx) })
	err = g.Wait()
	util.Info().Int64("entries_dropped", st.Stats().Entries).Msg("shutdown complete")
	return err
}

// loadKey returns the deletion token key. Without a configured key the
// process generates one, so tokens do not survive a restart; neither do the
// pastes they refer to. Callers wipe the returned slice.
func loadKey(ctx context.Context, c *cfg.Cfg) ([]byte, error) {
	sec, err := secrets.NewAdapter(ctx, secrets.Options{
		VaultAddr:       c.VaultAddr,
		VaultToken:      c.VaultToken.Value(),
		VaultTokenFile:  c.VaultTokenFile,
		VaultSecretPath: c.VaultSecretPath,
		AWSRegion:       c.AWSRegion,
		RequirePrimary:  c.SecretsRequirePrimary,
	})
	if err != nil {
		return nil, errors.Wrap(err, "initialize secret provider")
	}
	encoded, err := sec.GetSecret(ctx, deletionKeyName)
	switch {
	case err == nil:
		key, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, errors.Wrap(err, "decode "+deletionKeyName)
		}
		return key, nil
	case errors.Is(err, secrets.ErrSecretNotFound):
		util.Warn().Msg(deletionKeyName + " not set, using a per-process key")
		return auth.GenerateKey()
	default:
		return nil, errors.Wrap(err, "load "+deletionKeyName)
	}
}
