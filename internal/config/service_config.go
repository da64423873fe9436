// Package config resolves service configuration from the environment, with
// optional .env file loading for local development.
package config

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Service holds the full runtime configuration of the CLI.
type Service struct {
	Logger LoggerConfig
	Wallet WalletConfig
}

type LoggerConfig struct {
	// Level is a zerolog level string (trace, debug, info, warn, error)
	Level string

	// PrettyPrintConsole switches from JSON to human-readable console output
	PrettyPrintConsole bool
}

type WalletConfig struct {
	// RPCURLs lists the JSON-RPC endpoints in failover order
	RPCURLs []string

	// DerivationPath is the default account path relative to m/44'/60'
	DerivationPath string

	// RequestTimeoutSec bounds every network call made while populating or
	// broadcasting a transaction
	RequestTimeoutSec int
}

// ZerologLevel parses the configured level, defaulting to info.
func (c LoggerConfig) ZerologLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(c.Level))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}

	return level
}

var (
	serviceConfig     Service
	serviceConfigOnce sync.Once
)

// DefaultServiceConfigFromEnv resolves the configuration exactly once per
// process. A .env file in the working directory is loaded first when
// present; real environment variables win over it.
func DefaultServiceConfigFromEnv() Service {
	serviceConfigOnce.Do(func() {
		if err := gotenv.Load(); err != nil {
			log.Debug().Err(err).Msg("No .env file loaded")
		}

		v := viper.New()
		v.SetEnvPrefix("WALLET")
		v.AutomaticEnv()

		v.SetDefault("LOG_LEVEL", "info")
		v.SetDefault("LOG_PRETTY", true)
		v.SetDefault("RPC_URLS", "")
		v.SetDefault("DERIVATION_PATH", "0'/0/0")
		v.SetDefault("REQUEST_TIMEOUT_SEC", 30)

		serviceConfig = Service{
			Logger: LoggerConfig{
				Level:              v.GetString("LOG_LEVEL"),
				PrettyPrintConsole: v.GetBool("LOG_PRETTY"),
			},
			Wallet: WalletConfig{
				RPCURLs:           splitNonEmpty(v.GetString("RPC_URLS")),
				DerivationPath:    v.GetString("DERIVATION_PATH"),
				RequestTimeoutSec: v.GetInt("REQUEST_TIMEOUT_SEC"),
			},
		}
	})

	return serviceConfig
}

func splitNonEmpty(csv string) []string {
	var out []string

	for _, part := range strings.Split(csv, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}

	return out
}
