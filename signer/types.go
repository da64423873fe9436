// Package signer provides one capability interface over three signing
// backends: a seed-derived BIP-44 key tree, a single imported private key,
// and a remote hardware device reached over an asynchronous session
// protocol. All variants produce identical signatures for identical inputs;
// transaction construction stays backend-agnostic through
// txbuilder.Populate.
package signer

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"
	"github.com/tetherto/wdk-wallet-evm/hdwallet"
	"github.com/tetherto/wdk-wallet-evm/txbuilder"
)

// BIP44EVMPrefix is the purpose/coin-type prefix fixed for EVM accounts
// (purpose 44, coin type 60).
const BIP44EVMPrefix = "m/44'/60'"

var (
	// ErrInvalidMnemonic is returned when a BIP-39 mnemonic fails wordlist
	// or checksum validation
	ErrInvalidMnemonic = errors.New("invalid mnemonic")

	// ErrRootSignerCannotSign is returned when a root seed signer is asked
	// for an address or a signature; a root can only derive
	ErrRootSignerCannotSign = errors.New("root signer cannot sign; derive a child first")

	// ErrDerivationNotSupported is returned by Derive on variants that hold
	// a single key and no tree
	ErrDerivationNotSupported = errors.New("signer does not support derivation")

	// ErrSignerDisposed is returned on any operation after Dispose
	ErrSignerDisposed = errors.New("signer has been disposed")
)

// Signer is the capability contract shared by all backends. A signer is
// bound to at most one address; Derive returns an independent signer bound
// to another one.
//
// A single signer instance does not serve concurrent Sign* calls; callers
// must serialize signing requests per instance. Derive is safe to call
// concurrently.
type Signer interface {
	// Derive returns a new signer for a path relative to the BIP-44 EVM
	// prefix (44'/60')
	Derive(path string) (Signer, error)

	// Address returns the EVM address this signer is bound to
	Address(ctx context.Context) (common.Address, error)

	// SignMessage signs an EIP-191 personal message and returns the 65-byte
	// [R || S || V] signature with V in {27, 28}
	SignMessage(ctx context.Context, message []byte) ([]byte, error)

	// SignTransaction signs a populated transaction and returns the
	// RLP-serialized signed transaction
	SignTransaction(ctx context.Context, tx *txbuilder.UnsignedTx) ([]byte, error)

	// SignTypedData signs EIP-712 typed data and returns the 65-byte
	// signature with V in {27, 28}
	SignTypedData(ctx context.Context, typedData apitypes.TypedData) ([]byte, error)

	// Dispose wipes owned key material or closes the device session; every
	// later operation fails with ErrSignerDisposed. Idempotent.
	Dispose() error

	// Active reports whether the signer has not been disposed
	Active() bool

	// Path returns the full derivation path, or "" when not applicable
	Path() string

	// Index returns the last derivation path component without its hardened
	// flag, or 0 when not applicable
	Index() uint32
}

var (
	_ Signer = (*SeedSigner)(nil)
	_ Signer = (*PrivateKeySigner)(nil)
	_ Signer = (*HardwareSigner)(nil)
)

// qualifyPath resolves a path relative to the BIP-44 EVM prefix into a full
// "m/..."-rooted path and the account index of its last component. Passing
// an already qualified path is accepted.
func qualifyPath(relative string) (string, uint32, error) {
	trimmed := strings.TrimPrefix(relative, "m/")
	if !strings.HasPrefix(trimmed, "44'/60'") {
		trimmed = "44'/60'/" + trimmed
	}

	full := "m/" + trimmed

	indices, err := hdwallet.ParsePath(full)
	if err != nil {
		return "", 0, err
	}

	last := indices[len(indices)-1]

	return full, last &^ hdwallet.FirstHardenedIndex, nil
}
