package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tetherto/wdk-wallet-evm/cmd/address"
	"github.com/tetherto/wdk-wallet-evm/cmd/env"
	"github.com/tetherto/wdk-wallet-evm/cmd/sign"
	"github.com/tetherto/wdk-wallet-evm/internal/config"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Version: config.GetFormattedBuildArgs(),
	Use:     "wallet",
	Short:   config.ModuleName,
	Long: fmt.Sprintf(`%v

An EVM wallet signing kit: BIP-44 key derivation, message, typed-data and
transaction signing. Requires configuration through ENV.`, config.ModuleName),
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		configureLogger(config.DefaultServiceConfigFromEnv())
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	// attach the subcommands
	rootCmd.AddCommand(
		address.New(),
		env.New(),
		sign.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Failed to execute root command")
		os.Exit(1)
	}
}

func configureLogger(cfg config.Service) {
	zerolog.SetGlobalLevel(cfg.Logger.ZerologLevel())

	if cfg.Logger.PrettyPrintConsole {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
