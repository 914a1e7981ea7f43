// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/locacash/sitescore/config"
	"github.com/locacash/sitescore/logging"
)

var (
	v       = config.NewViper()
	cfg     *config.Config
	logger  = zap.NewNop()
	cfgFile string
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "sitescore",
	Short: "ATM site suitability analysis",
	Long: `
sitescore evaluates candidate ATM sites: it gathers the factors of the area
around a coordinate, caches them by rounded location, and scores the site
with a weighted multi-factor model.

Settings come from --config (YAML), a .env file and SITESCORE_* variables.
`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		var err error

		cfg, err = config.Load(v, cfgFile, envFile)
		if err != nil {
			return err
		}

		logger, err = logging.New(cfg.Log)
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}

		zap.ReplaceGlobals(logger)

		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		_ = logger.Sync()
	},
}

var Version = "dev"

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "YAML configuration file")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.String("log-level", "info", "debug, info, warn or error")
	flags.String("log-format", logging.FormatJSON, "json or console")
	flags.String("store-driver", config.DriverDuckDB, "duckdb, postgres or none")
	flags.String("store-dsn", "data/sitescore.duckdb", "DuckDB file or PostgreSQL DSN")
	flags.String("seed-file", "", "JSON seed file of historical analyses")

	bindFlag(v, "log.level", flags.Lookup("log-level"))
	bindFlag(v, "log.format", flags.Lookup("log-format"))
	bindFlag(v, "store.driver", flags.Lookup("store-driver"))
	bindFlag(v, "store.dsn", flags.Lookup("store-dsn"))
	bindFlag(v, "warm_start.seed_file", flags.Lookup("seed-file"))
}

// bindFlag makes an explicitly set flag win over file and environment.
func bindFlag(v *viper.Viper, key string, f *pflag.Flag) {
	if err := v.BindPFlag(key, f); err != nil {
		panic(err)
	}
}

func Execute(version string) {
	Version = version
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
