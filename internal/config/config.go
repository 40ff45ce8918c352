// Package config loads server configuration from flags, environment
// variables, and an optional config file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
// The private key is read from the environment only (X402_PRIVATE_KEY).
type Config struct {
	ListenAddr     string
	SiteURL        string
	FacilitatorURL string
	RPCURL         string
	PrivateKey     string
	PayTo          string
	RedisURL       string
	DrainTimeout   time.Duration
	LogLevel       string
}

// Load merges config file, environment variables, and flags into Config.
// Precedence: flags > env > config file > defaults.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("X402")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen", ":8402")
	v.SetDefault("site-url", "http://localhost:8402")
	v.SetDefault("facilitator", "https://x402.org/facilitator")
	v.SetDefault("rpc", "https://sepolia.base.org")
	v.SetDefault("drain-timeout", 5*time.Second)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		ListenAddr:     v.GetString("listen"),
		SiteURL:        v.GetString("site-url"),
		FacilitatorURL: v.GetString("facilitator"),
		RPCURL:         v.GetString("rpc"),
		PrivateKey:     v.GetString("private-key"),
		PayTo:          v.GetString("payto"),
		RedisURL:       v.GetString("redis-url"),
		DrainTimeout:   v.GetDuration("drain-timeout"),
		LogLevel:       v.GetString("log-level"),
	}

	return cfg, nil
}
