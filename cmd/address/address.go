package address

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tetherto/wdk-wallet-evm/internal/config"
	"github.com/tetherto/wdk-wallet-evm/internal/util"
	"github.com/tetherto/wdk-wallet-evm/signer"
)

const (
	pathFlag       = "path"
	countFlag      = "count"
	passphraseFlag = "passphrase"
)

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "address",
		Short: "Derives account addresses from a mnemonic",
		Long: `Prompts for a BIP-39 mnemonic and prints the addresses of consecutive
accounts starting at the given derivation path (relative to m/44'/60').`,
		RunE: run,
	}

	cfg := config.DefaultServiceConfigFromEnv()
	cmd.Flags().String(pathFlag, cfg.Wallet.DerivationPath, "Derivation path of the first account")
	cmd.Flags().Uint32(countFlag, 1, "Number of consecutive accounts")
	cmd.Flags().Bool(passphraseFlag, false, "Also prompt for a BIP-39 passphrase")

	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	path, err := cmd.Flags().GetString(pathFlag)
	if err != nil {
		return err
	}

	count, err := cmd.Flags().GetUint32(countFlag)
	if err != nil {
		return err
	}

	withPassphrase, err := cmd.Flags().GetBool(passphraseFlag)
	if err != nil {
		return err
	}

	root, err := newRootSigner(withPassphrase)
	if err != nil {
		return err
	}
	defer func() { _ = root.Dispose() }()

	for i := uint32(0); i < count; i++ {
		accountPath, err := pathWithOffset(path, i)
		if err != nil {
			return err
		}

		child, err := root.Derive(accountPath)
		if err != nil {
			return errors.Wrapf(err, "failed to derive %q", accountPath)
		}

		addr, err := child.Address(cmd.Context())
		if err != nil {
			_ = child.Dispose()

			return err
		}

		fmt.Printf("%-24s %s\n", child.Path(), addr.Hex())

		if err := child.Dispose(); err != nil {
			return err
		}
	}

	return nil
}

func newRootSigner(withPassphrase bool) (*signer.SeedSigner, error) {
	mnemonic, err := util.ReadSecretLine("Mnemonic: ")
	if err != nil {
		return nil, err
	}

	passphrase := ""
	if withPassphrase {
		passphrase, err = util.ReadSecretLine("Passphrase: ")
		if err != nil {
			return nil, err
		}
	}

	return signer.NewSeedSignerFromMnemonic(mnemonic, passphrase)
}

// pathWithOffset bumps the last path component by the offset, keeping its
// hardened marker.
func pathWithOffset(path string, offset uint32) (string, error) {
	if offset == 0 {
		return path, nil
	}

	slash := strings.LastIndex(path, "/")
	last := path[slash+1:]

	hardened := strings.HasSuffix(last, "'")
	last = strings.TrimSuffix(last, "'")

	index, err := strconv.ParseUint(last, 10, 32)
	if err != nil {
		return "", errors.Wrapf(err, "invalid path %q", path)
	}

	bumped := strconv.FormatUint(index+uint64(offset), 10)
	if hardened {
		bumped += "'"
	}

	return path[:slash+1] + bumped, nil
}
