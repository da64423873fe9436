// Package txbuilder populates partial transaction intents into fully
// specified, signable transactions, selecting among the legacy, EIP-1559 and
// EIP-4844 fee models. Population is a pure function of the network data
// fetched through the Provider and the input request; it carries no signer
// state.
package txbuilder

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

var (
	// ErrIncompatibleFeeFields is returned when legacy and EIP-1559/4844 fee
	// fields are mixed in one request
	ErrIncompatibleFeeFields = errors.New("incompatible fee fields")

	// ErrMissingBlobFee is returned when a blob transaction is requested
	// without maxFeePerBlobGas
	ErrMissingBlobFee = errors.New("blob transaction requires maxFeePerBlobGas")
)

// Provider is the narrow network surface the populator consumes.
// *provider.Client satisfies it.
type Provider interface {
	// ChainID returns the chain the provider is connected to
	ChainID(ctx context.Context) (*big.Int, error)

	// FeeData returns the current fee quotes of the network
	FeeData(ctx context.Context) (*FeeData, error)

	// PendingNonceAt returns the pending transaction count of an account
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)

	// EstimateGas estimates the gas needed to execute a call
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
}

// FeeData carries the network fee quotes used for field completion. Fields
// the network does not support are nil; a pre-London network reports only
// GasPrice.
type FeeData struct {
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// Request is a partial transaction intent. Nil fields are completed from the
// network; the explicit Type, when set, overrides fee-model inference.
type Request struct {
	Type *uint8

	To    *common.Address
	Value *big.Int
	Data  []byte

	Nonce    *uint64
	GasLimit *uint64

	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int

	MaxFeePerBlobGas *big.Int
	BlobHashes       []common.Hash

	AccessList types.AccessList
}

// UnsignedTx is a fully specified, signable transaction together with the
// chain it is bound to. The explicit ChainID also covers legacy transactions,
// whose envelope cannot carry one before signing.
type UnsignedTx struct {
	ChainID *big.Int
	Tx      *types.Transaction
}

// Signer returns the go-ethereum signer matching this transaction's chain.
func (u *UnsignedTx) Signer() types.Signer {
	if u.ChainID == nil || u.ChainID.Sign() == 0 {
		return types.HomesteadSigner{}
	}

	return types.LatestSignerForChainID(u.ChainID)
}

// SigningHash returns the digest a signer commits to for this transaction.
func (u *UnsignedTx) SigningHash() common.Hash {
	return u.Signer().Hash(u.Tx)
}
