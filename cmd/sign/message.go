package sign

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newMessage() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message",
		Short: "Signs an EIP-191 personal message",
		RunE:  runMessage,
	}

	addSignerFlags(cmd)
	cmd.Flags().String(dataFlag, "", "Message to sign (0x-prefixed hex is decoded, anything else is signed as UTF-8)")
	_ = cmd.MarkFlagRequired(dataFlag)

	return cmd
}

func runMessage(cmd *cobra.Command, _ []string) error {
	data, err := cmd.Flags().GetString(dataFlag)
	if err != nil {
		return err
	}

	message := []byte(data)
	if decoded, err := hexutil.Decode(data); err == nil {
		message = decoded
	}

	child, root, err := deriveSigner(cmd)
	if err != nil {
		return err
	}
	defer func() {
		_ = child.Dispose()
		_ = root.Dispose()
	}()

	sig, err := child.SignMessage(cmd.Context(), message)
	if err != nil {
		return errors.Wrap(err, "failed to sign message")
	}

	addr, err := child.Address(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("signer:    %s\n", addr.Hex())
	fmt.Printf("signature: %s\n", hexutil.Encode(sig))

	return nil
}
