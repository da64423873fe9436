package sign

import (
	"github.com/spf13/cobra"
	"github.com/tetherto/wdk-wallet-evm/internal/config"
	"github.com/tetherto/wdk-wallet-evm/internal/util"
	"github.com/tetherto/wdk-wallet-evm/internal/util/command"
	"github.com/tetherto/wdk-wallet-evm/signer"
)

const (
	pathFlag       = "path"
	fileFlag       = "file"
	dataFlag       = "data"
	passphraseFlag = "passphrase"
	broadcastFlag  = "broadcast"
)

func New() *cobra.Command {
	return command.NewSubcommandGroup("sign",
		newMessage(),
		newTransaction(),
		newTypedData(),
	)
}

// deriveSigner prompts for the mnemonic and returns the signer for the path
// flag, plus the root handle the caller must dispose alongside it.
func deriveSigner(cmd *cobra.Command) (signer.Signer, *signer.SeedSigner, error) {
	path, err := cmd.Flags().GetString(pathFlag)
	if err != nil {
		return nil, nil, err
	}

	withPassphrase, err := cmd.Flags().GetBool(passphraseFlag)
	if err != nil {
		return nil, nil, err
	}

	mnemonic, err := util.ReadSecretLine("Mnemonic: ")
	if err != nil {
		return nil, nil, err
	}

	passphrase := ""
	if withPassphrase {
		passphrase, err = util.ReadSecretLine("Passphrase: ")
		if err != nil {
			return nil, nil, err
		}
	}

	root, err := signer.NewSeedSignerFromMnemonic(mnemonic, passphrase)
	if err != nil {
		return nil, nil, err
	}

	child, err := root.Derive(path)
	if err != nil {
		_ = root.Dispose()

		return nil, nil, err
	}

	return child, root, nil
}

func addSignerFlags(cmd *cobra.Command) {
	cfg := config.DefaultServiceConfigFromEnv()
	cmd.Flags().String(pathFlag, cfg.Wallet.DerivationPath, "Derivation path of the signing account")
	cmd.Flags().Bool(passphraseFlag, false, "Also prompt for a BIP-39 passphrase")
}
