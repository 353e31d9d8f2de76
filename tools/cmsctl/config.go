package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the configuration of cmsctl. Values come from flags, CMSCTL_*
// environment variables or a cmsctl.yaml file, in that order of precedence.
type Config struct {
	Postgres         string
	PostgresPassword string
	Schema           string
	LogLevel         string
}

// initConfig sets up viper. An explicit file must exist, the default
// cmsctl.yaml in the working directory or $HOME/.cmsctl is optional.
func initConfig(v *viper.Viper, file string) error {
	v.SetEnvPrefix("CMSCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("schema", "cms")
	v.SetDefault("log-level", "warn")

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", file, err)
		}
		return nil
	}
	v.SetConfigName("cmsctl")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.cmsctl")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	return nil
}

// loadConfig reads the configuration out of v
func loadConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Postgres:         v.GetString("postgres"),
		PostgresPassword: v.GetString("postgres-password"),
		Schema:           v.GetString("schema"),
		LogLevel:         v.GetString("log-level"),
	}
	if cfg.Postgres == "" {
		return nil, fmt.Errorf("postgres is required (--postgres, CMSCTL_POSTGRES or cmsctl.yaml)")
	}
	return cfg, nil
}
