package sign

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newTypedData() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "typed-data",
		Short: "Signs an EIP-712 typed data document",
		RunE:  runTypedData,
	}

	addSignerFlags(cmd)
	cmd.Flags().String(fileFlag, "", "Path to the typed data JSON document")
	_ = cmd.MarkFlagRequired(fileFlag)

	return cmd
}

func runTypedData(cmd *cobra.Command, _ []string) error {
	file, err := cmd.Flags().GetString(fileFlag)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(file)
	if err != nil {
		return errors.Wrap(err, "failed to read typed data file")
	}

	var typedData apitypes.TypedData
	if err := json.Unmarshal(raw, &typedData); err != nil {
		return errors.Wrap(err, "failed to parse typed data")
	}

	child, root, err := deriveSigner(cmd)
	if err != nil {
		return err
	}
	defer func() {
		_ = child.Dispose()
		_ = root.Dispose()
	}()

	sig, err := child.SignTypedData(cmd.Context(), typedData)
	if err != nil {
		return errors.Wrap(err, "failed to sign typed data")
	}

	addr, err := child.Address(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("signer:    %s\n", addr.Hex())
	fmt.Printf("signature: %s\n", hexutil.Encode(sig))

	return nil
}
