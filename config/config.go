// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads sitescore settings from defaults, an optional YAML
// file, a .env file and SITESCORE_* environment variables, in increasing
// order of precedence. Command-line flags bound by the caller win over all.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/locacash/sitescore/cache"
	"github.com/locacash/sitescore/logging"
	"github.com/locacash/sitescore/provider"
)

// EnvPrefix prefixes every environment override, e.g. SITESCORE_STORE_DSN.
const EnvPrefix = "SITESCORE"

// Store drivers.
const (
	DriverDuckDB   = "duckdb"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       logging.Config  `mapstructure:"log"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Store     StoreConfig     `mapstructure:"store"`
	WarmStart WarmStartConfig `mapstructure:"warm_start"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type CacheConfig struct {
	// ProximityRadius in meters. Negative disables proximity matching.
	ProximityRadius float64 `mapstructure:"proximity_radius"`
	Index           string  `mapstructure:"index"`
	H3Resolution    int     `mapstructure:"h3_resolution"`
}

type ProviderConfig struct {
	Endpoints    []string      `mapstructure:"endpoints"`
	SearchRadius float64       `mapstructure:"search_radius"`
	Timeout      time.Duration `mapstructure:"timeout"`
	UserAgent    string        `mapstructure:"user_agent"`
	MaxParallel  int           `mapstructure:"max_parallel"`
	Trace        bool          `mapstructure:"trace"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type WarmStartConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	SeedFile string `mapstructure:"seed_file"`
	SeedUser string `mapstructure:"seed_user"`
}

// NewViper returns a viper instance carrying every default and the
// environment binding. Callers may bind flags on it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logging.FormatJSON)
	v.SetDefault("log.output", []string{"stderr"})

	v.SetDefault("cache.proximity_radius", cache.DefaultProximityRadius)
	v.SetDefault("cache.index", string(cache.IndexH3))
	v.SetDefault("cache.h3_resolution", cache.DefaultH3Resolution)

	v.SetDefault("provider.endpoints", provider.DefaultEndpoints)
	v.SetDefault("provider.search_radius", provider.DefaultSearchRadius)
	v.SetDefault("provider.timeout", provider.DefaultTimeout)
	v.SetDefault("provider.user_agent", provider.DefaultUserAgent)
	v.SetDefault("provider.max_parallel", 4)
	v.SetDefault("provider.trace", false)

	v.SetDefault("store.driver", DriverDuckDB)
	v.SetDefault("store.dsn", "data/sitescore.duckdb")

	v.SetDefault("warm_start.enabled", true)
	v.SetDefault("warm_start.seed_file", "")
	v.SetDefault("warm_start.seed_user", "seed")

	return v
}

// Load reads envFile (ignored when missing) and the YAML file at path
// (skipped when empty) into v, then decodes and validates the result.
func Load(v *viper.Viper, path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	switch strings.ToLower(c.Log.Format) {
	case "", logging.FormatJSON, logging.FormatConsole:
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}

	if math.IsNaN(c.Cache.ProximityRadius) || math.IsInf(c.Cache.ProximityRadius, 0) {
		errs = append(errs, errors.New("cache.proximity_radius must be finite"))
	}

	if _, err := cache.ParseIndexKind(c.Cache.Index); err != nil {
		errs = append(errs, fmt.Errorf("cache.index: %w", err))
	}

	if c.Cache.H3Resolution < 0 || c.Cache.H3Resolution > 15 {
		errs = append(errs, fmt.Errorf("cache.h3_resolution must be between 0 and 15, got %d", c.Cache.H3Resolution))
	}

	if len(c.Provider.Endpoints) == 0 {
		errs = append(errs, errors.New("provider.endpoints must not be empty"))
	}

	for _, ep := range c.Provider.Endpoints {
		u, err := url.Parse(ep)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("provider.endpoints: %q is not an http(s) URL", ep))
		}
	}

	if !(c.Provider.SearchRadius > 0) || math.IsInf(c.Provider.SearchRadius, 0) {
		errs = append(errs, fmt.Errorf("provider.search_radius must be positive, got %v", c.Provider.SearchRadius))
	}

	if c.Provider.Timeout <= 0 {
		errs = append(errs, errors.New("provider.timeout must be positive"))
	}

	switch c.Store.Driver {
	case DriverDuckDB, DriverNone:
	case DriverPostgres:
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver must be duckdb, postgres or none, got %q", c.Store.Driver))
	}

	return errors.Join(errs...)
}

// ProviderOptions converts the provider section.
func (c *Config) ProviderOptions() provider.Config {
	return provider.Config{
		Endpoints:   c.Provider.Endpoints,
		Timeout:     c.Provider.Timeout,
		UserAgent:   c.Provider.UserAgent,
		MaxParallel: c.Provider.MaxParallel,
	}
}

// FetchTimeout bounds one factor fetch, which may try every endpoint in turn.
func (c *Config) FetchTimeout() time.Duration {
	return c.Provider.Timeout * time.Duration(max(1, len(c.Provider.Endpoints)))
}

// CacheOptions converts the cache section.
func (c *Config) CacheOptions() []cache.Option {
	kind, _ := cache.ParseIndexKind(c.Cache.Index)

	return []cache.Option{
		cache.WithIndex(kind),
		cache.WithH3Resolution(c.Cache.H3Resolution),
	}
}
