package main

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/danieldreier/mcp-study/internal/review"
)

// Backends accepted by --backend.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Config is the resolved runtime configuration. Values come from flags,
// STUDY_* environment variables and an optional config file, in that order
// of precedence.
type Config struct {
	File     string                         `mapstructure:"file"`
	Backend  string                         `mapstructure:"backend"`
	LogLevel string                         `mapstructure:"log-level"`
	Sections map[string][]review.SectionDef `mapstructure:"sections"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("file", "./study.json")
	v.SetDefault("backend", BackendJSON)
	v.SetDefault("log-level", "info")
	v.SetEnvPrefix("STUDY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// loadConfig binds flags onto v, reads configFile when given and decodes the result.
func loadConfig(v *viper.Viper, flags *pflag.FlagSet, configFile string) (Config, error) {
	for _, name := range []string{"file", "backend", "log-level"} {
		if f := flags.Lookup(name); f != nil {
			if err := v.BindPFlag(name, f); err != nil {
				return Config{}, fmt.Errorf("error binding flag %s: %w", name, err)
			}
		}
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("error reading config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("error decoding config: %w", err)
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	switch cfg.Backend {
	case BackendJSON, BackendSQLite:
	default:
		return Config{}, fmt.Errorf("unknown backend %q (want %s or %s)", cfg.Backend, BackendJSON, BackendSQLite)
	}
	if cfg.File == "" {
		return Config{}, fmt.Errorf("data file path is required")
	}
	return cfg, nil
}
