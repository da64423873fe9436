package signer

import (
	"context"
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"
	"github.com/tetherto/wdk-wallet-evm/signingkey"
	"github.com/tetherto/wdk-wallet-evm/txbuilder"
)

// PrivateKeySigner wraps one imported raw private key. It is always bound to
// a single address; derivation is not supported.
type PrivateKeySigner struct {
	key      *signingkey.Key
	addr     common.Address
	disposed bool
}

// NewPrivateKeySigner creates a signer from a 32-byte private key.
// The key bytes are copied; the caller should wipe its own copy.
func NewPrivateKeySigner(key []byte) (*PrivateKeySigner, error) {
	container, err := signingkey.New(key)
	if err != nil {
		return nil, err
	}

	addr, err := container.Address()
	if err != nil {
		container.Dispose()
		return nil, err
	}

	return &PrivateKeySigner{key: container, addr: addr}, nil
}

// NewPrivateKeySignerFromHex creates a signer from a hex-encoded private
// key, with or without a 0x prefix.
func NewPrivateKeySignerFromHex(keyHex string) (*PrivateKeySigner, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid private key hex")
	}
	defer signingkey.Wipe(raw)

	return NewPrivateKeySigner(raw)
}

// Derive always fails: a raw private key has no tree to derive from.
func (s *PrivateKeySigner) Derive(_ string) (Signer, error) {
	if s.disposed {
		return nil, ErrSignerDisposed
	}

	return nil, ErrDerivationNotSupported
}

// Address returns the address of the imported key.
func (s *PrivateKeySigner) Address(_ context.Context) (common.Address, error) {
	if s.disposed {
		return common.Address{}, ErrSignerDisposed
	}

	return s.addr, nil
}

// SignMessage signs an EIP-191 personal message.
func (s *PrivateKeySigner) SignMessage(_ context.Context, message []byte) ([]byte, error) {
	if s.disposed {
		return nil, ErrSignerDisposed
	}

	return signMessageWithKey(s.key, message)
}

// SignTransaction signs a populated transaction.
func (s *PrivateKeySigner) SignTransaction(_ context.Context, tx *txbuilder.UnsignedTx) ([]byte, error) {
	if s.disposed {
		return nil, ErrSignerDisposed
	}

	return signTransactionWithKey(s.key, tx)
}

// SignTypedData signs EIP-712 typed data.
func (s *PrivateKeySigner) SignTypedData(_ context.Context, typedData apitypes.TypedData) ([]byte, error) {
	if s.disposed {
		return nil, ErrSignerDisposed
	}

	return signTypedDataWithKey(s.key, typedData)
}

// Dispose wipes the imported key material. Idempotent.
func (s *PrivateKeySigner) Dispose() error {
	if s.disposed {
		return nil
	}

	s.key.Dispose()
	s.disposed = true

	return nil
}

// Active reports whether the signer has not been disposed.
func (s *PrivateKeySigner) Active() bool {
	return !s.disposed
}

// Path returns "": an imported key has no derivation path.
func (s *PrivateKeySigner) Path() string {
	return ""
}

// Index always returns 0 for an imported key.
func (s *PrivateKeySigner) Index() uint32 {
	return 0
}
