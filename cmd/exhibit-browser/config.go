package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Sternrassler/exhibit-client/pkg/client"
	"github.com/Sternrassler/exhibit-client/pkg/imagecache"
	"github.com/Sternrassler/exhibit-client/pkg/logging"
	"github.com/Sternrassler/exhibit-client/pkg/pagination"
	"github.com/Sternrassler/exhibit-client/pkg/ratelimit"
)

const (
	configName = ".exhibit-browser"
	envPrefix  = "EXHIBIT"

	defaultUserAgent = "exhibit-browser/0.1.0"
)

// appConfig is the resolved CLI configuration. Flags override environment
// variables (EXHIBIT_*), which override the config file.
type appConfig struct {
	LogLevel          string `mapstructure:"log_level"`
	Pretty            bool   `mapstructure:"pretty"`
	Redis             string `mapstructure:"redis" validate:"omitempty,hostname_port"`
	DB                string `mapstructure:"db" validate:"required"`
	MetricsAddr       string `mapstructure:"metrics_addr"`
	BaseURL           string `mapstructure:"base_url" validate:"required,url"`
	UserAgent         string `mapstructure:"user_agent" validate:"required"`
	RequestsPerSecond int    `mapstructure:"requests_per_second" validate:"gte=0"`
	MaxGroupSize      int    `mapstructure:"max_group_size" validate:"gt=0"`
	ImageCacheEntries int    `mapstructure:"image_cache_entries" validate:"gt=0"`
}

var configValidator = validator.New()

// flagKeys maps persistent flag names to config keys.
var flagKeys = map[string]string{
	"log-level":    "log_level",
	"pretty":       "pretty",
	"redis":        "redis",
	"db":           "db",
	"metrics-addr": "metrics_addr",
	"base-url":     "base_url",
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "exhibit-browser.db")
	}
	return filepath.Join(home, ".exhibit-browser", "saved.db")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", string(logging.LevelInfo))
	v.SetDefault("pretty", false)
	v.SetDefault("redis", "")
	v.SetDefault("db", defaultDBPath())
	v.SetDefault("metrics_addr", "")
	v.SetDefault("base_url", client.DefaultBaseURL)
	v.SetDefault("user_agent", defaultUserAgent)
	v.SetDefault("requests_per_second", ratelimit.DefaultRequestsPerSecond)
	v.SetDefault("max_group_size", pagination.DefaultMaxGroupSize)
	v.SetDefault("image_cache_entries", imagecache.DefaultCacheEntries)
}

// loadConfig resolves the configuration from .env, the environment, an
// optional config file and the command line flags.
func loadConfig(v *viper.Viper, flags *pflag.FlagSet, cfgFile string) (appConfig, error) {
	// A missing .env is fine
	_ = godotenv.Load()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	for name, key := range flagKeys {
		if f := flags.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return appConfig{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return appConfig{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg appConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return appConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return appConfig{}, err
	}
	return cfg, nil
}

func (c appConfig) validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}

	err := configValidator.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value: %v)", fe.Field(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
