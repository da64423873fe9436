package config

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintServiceEnv(t *testing.T) {
	config := DefaultServiceConfigFromEnv()
	_, err := json.MarshalIndent(config, "", "  ")
	require.NoError(t, err)
}

func TestServiceConfigDefaults(t *testing.T) {
	config := DefaultServiceConfigFromEnv()

	assert.Equal(t, "0'/0/0", config.Wallet.DerivationPath)
	assert.Equal(t, 30, config.Wallet.RequestTimeoutSec)
	assert.Equal(t, zerolog.InfoLevel, config.Logger.ZerologLevel())
}

func TestZerologLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, LoggerConfig{Level: "debug"}.ZerologLevel())
	assert.Equal(t, zerolog.WarnLevel, LoggerConfig{Level: "WARN"}.ZerologLevel())
	assert.Equal(t, zerolog.InfoLevel, LoggerConfig{Level: "nonsense"}.ZerologLevel())
	assert.Equal(t, zerolog.InfoLevel, LoggerConfig{}.ZerologLevel())
}

func TestSplitNonEmpty(t *testing.T) {
	assert.Nil(t, splitNonEmpty(""))
	assert.Equal(t, []string{"a"}, splitNonEmpty("a"))
	assert.Equal(t, []string{"a", "b"}, splitNonEmpty("a, b,"))
	assert.Equal(t, []string{"http://x:8545", "http://y:8545"}, splitNonEmpty("http://x:8545,http://y:8545"))
}
