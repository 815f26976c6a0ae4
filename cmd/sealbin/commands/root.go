package commands

import (
	"sealbin/cfg"
	"sealbin/svc/util"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	envFile string
	addr    string
	cert    string
	key     string
	webDir  string
)

func Execute() error {
	root := &cobra.Command{
		Use:           "sealbin",
		Short:         "Ephemeral store for client-side encrypted pastes",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	root.PersistentFlags().StringVar(&addr, "addr", "", "listen address (overrides ADDR)")
	root.PersistentFlags().StringVar(&cert, "cert", "", "TLS certificate file (overrides TLS_CERT_FILE)")
	root.PersistentFlags().StringVar(&key, "key", "", "TLS private key file (overrides TLS_KEY_FILE)")
	root.PersistentFlags().StringVar(&webDir, "web-dir", "", "directory holding the HTML pages (overrides WEB_DIR)")

	root.AddCommand(serveCmd(), healthCmd())
	if err := root.Execute(); err != nil {
		util.Error().Err(err).Msg("sealbin failed")
		return err
	}
	return nil
}

// loadConfig reads env and dotenv, then lets explicitly set flags win.
func loadConfig(cmd *cobra.Command) (*cfg.Cfg, error) {
	c, err := cfg.Load(envFile)
	if err != nil {
		return nil, errors.Wrap(err, "load configuration")
	}
	flags := cmd.Flags()
	if flags.Changed("addr") {
		c.Addr = addr
	}
	if flags.Changed("cert") {
		c.TLSCertFile = cert
	}
	if flags.Changed("key") {
		c.TLSKeyFile = key
	}
	if flags.Changed("web-dir") {
		c.WebDir = webDir
	}
	if err := cfg.Validate(c); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return c, nil
}
