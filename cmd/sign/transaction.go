package sign

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tetherto/wdk-wallet-evm/internal/config"
	"github.com/tetherto/wdk-wallet-evm/provider"
	"github.com/tetherto/wdk-wallet-evm/txbuilder"
)

// txIntent is the JSON shape of a partial transaction request. Quantities
// are 0x-prefixed hex per the usual JSON-RPC conventions.
type txIntent struct {
	Type *hexutil.Uint64 `json:"type,omitempty"`

	To    *common.Address `json:"to,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Data  hexutil.Bytes   `json:"data,omitempty"`

	Nonce    *hexutil.Uint64 `json:"nonce,omitempty"`
	GasLimit *hexutil.Uint64 `json:"gasLimit,omitempty"`

	GasPrice             *hexutil.Big `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big `json:"maxPriorityFeePerGas,omitempty"`

	MaxFeePerBlobGas *hexutil.Big  `json:"maxFeePerBlobGas,omitempty"`
	BlobHashes       []common.Hash `json:"blobVersionedHashes,omitempty"`

	AccessList types.AccessList `json:"accessList,omitempty"`
}

func (in *txIntent) toRequest() *txbuilder.Request {
	req := &txbuilder.Request{
		To:                   in.To,
		Value:                (*big.Int)(in.Value),
		Data:                 in.Data,
		GasPrice:             (*big.Int)(in.GasPrice),
		MaxFeePerGas:         (*big.Int)(in.MaxFeePerGas),
		MaxPriorityFeePerGas: (*big.Int)(in.MaxPriorityFeePerGas),
		MaxFeePerBlobGas:     (*big.Int)(in.MaxFeePerBlobGas),
		BlobHashes:           in.BlobHashes,
		AccessList:           in.AccessList,
	}

	if in.Type != nil {
		t := uint8(*in.Type)
		req.Type = &t
	}
	if in.Nonce != nil {
		n := uint64(*in.Nonce)
		req.Nonce = &n
	}
	if in.GasLimit != nil {
		g := uint64(*in.GasLimit)
		req.GasLimit = &g
	}

	return req
}

func newTransaction() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Populates and signs a transaction intent",
		Long: `Reads a partial transaction intent from a JSON file, completes the
missing fields from the network, signs it and prints the raw transaction.`,
		RunE: runTransaction,
	}

	addSignerFlags(cmd)
	cmd.Flags().String(fileFlag, "", "Path to the transaction intent JSON file")
	cmd.Flags().Bool(broadcastFlag, false, "Broadcast the signed transaction")
	_ = cmd.MarkFlagRequired(fileFlag)

	return cmd
}

func runTransaction(cmd *cobra.Command, _ []string) error {
	file, err := cmd.Flags().GetString(fileFlag)
	if err != nil {
		return err
	}

	broadcast, err := cmd.Flags().GetBool(broadcastFlag)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(file)
	if err != nil {
		return errors.Wrap(err, "failed to read intent file")
	}

	var intent txIntent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return errors.Wrap(err, "failed to parse intent")
	}

	cfg := config.DefaultServiceConfigFromEnv()
	if len(cfg.Wallet.RPCURLs) == 0 {
		return errors.New("no RPC URLs configured, set WALLET_RPC_URLS")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(cfg.Wallet.RequestTimeoutSec)*time.Second)
	defer cancel()

	client, err := provider.Dial(ctx, cfg.Wallet.RPCURLs...)
	if err != nil {
		return err
	}
	defer client.Close()

	child, root, err := deriveSigner(cmd)
	if err != nil {
		return err
	}
	defer func() {
		_ = child.Dispose()
		_ = root.Dispose()
	}()

	from, err := child.Address(ctx)
	if err != nil {
		return err
	}

	utx, err := txbuilder.Populate(ctx, client, from, intent.toRequest())
	if err != nil {
		return errors.Wrap(err, "failed to populate transaction")
	}

	signed, err := child.SignTransaction(ctx, utx)
	if err != nil {
		return errors.Wrap(err, "failed to sign transaction")
	}

	fmt.Printf("from:   %s\n", from.Hex())
	fmt.Printf("rawTx:  %s\n", hexutil.Encode(signed))

	if broadcast {
		hash, err := client.SendRawTransaction(ctx, signed)
		if err != nil {
			return errors.Wrap(err, "failed to broadcast transaction")
		}

		fmt.Printf("txHash: %s\n", hash.Hex())
	}

	return nil
}
