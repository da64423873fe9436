package signer

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"
	"github.com/tetherto/wdk-wallet-evm/hdwallet"
	"github.com/tetherto/wdk-wallet-evm/signingkey"
	"github.com/tetherto/wdk-wallet-evm/txbuilder"
	"github.com/tyler-smith/go-bip39"
)

// seedRoot shares ownership of the HD tree root across a root signer and
// every child derived from it. The root node's key material is wiped exactly
// once, when the last live handle releases it.
type seedRoot struct {
	mu   sync.Mutex
	node *hdwallet.Node
	refs int
}

func (r *seedRoot) retain() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refs++
}

func (r *seedRoot) release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refs--
	if r.refs == 0 {
		r.node.Dispose()
	}
}

// SeedSigner is a signer backed by a BIP-32 key tree expanded from a seed.
// A freshly constructed instance is in the root state: it cannot resolve an
// address or sign, only derive child signers bound to BIP-44 EVM accounts.
type SeedSigner struct {
	root     *seedRoot
	node     *hdwallet.Node // nil in the root state
	path     string
	index    uint32
	disposed bool
}

// NewSeedSignerFromMnemonic creates a root signer from a BIP-39 mnemonic.
// The mnemonic is validated against the wordlist and checksum before the
// seed is expanded; the passphrase may be empty.
func NewSeedSignerFromMnemonic(mnemonic, passphrase string) (*SeedSigner, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidMnemonic, err.Error())
	}
	defer signingkey.Wipe(seed)

	return NewSeedSignerFromSeed(seed)
}

// NewSeedSignerFromSeed creates a root signer from raw seed bytes.
// The signer does not retain the seed; the caller should wipe its copy.
func NewSeedSignerFromSeed(seed []byte) (*SeedSigner, error) {
	node, err := hdwallet.NewMaster(seed)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create master node")
	}

	return &SeedSigner{
		root: &seedRoot{node: node, refs: 1},
		path: "m",
	}, nil
}

// Derive returns a child signer bound to one BIP-44 EVM account. The path is
// relative to m/44'/60'; deriving never mutates this signer and every call
// returns an independent child.
func (s *SeedSigner) Derive(path string) (Signer, error) {
	if s.disposed {
		return nil, ErrSignerDisposed
	}

	full, index, err := qualifyPath(path)
	if err != nil {
		return nil, err
	}

	node, err := s.root.node.Derive(full)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to derive %q", full)
	}

	s.root.retain()

	return &SeedSigner{
		root:  s.root,
		node:  node,
		path:  full,
		index: index,
	}, nil
}

// Address returns the address of the derived account. Fails on a root
// signer.
func (s *SeedSigner) Address(_ context.Context) (common.Address, error) {
	if s.disposed {
		return common.Address{}, ErrSignerDisposed
	}
	if s.node == nil {
		return common.Address{}, ErrRootSignerCannotSign
	}

	return nodeAddress(s.node)
}

// SignMessage signs an EIP-191 personal message. Fails on a root signer.
func (s *SeedSigner) SignMessage(_ context.Context, message []byte) ([]byte, error) {
	key, err := s.signingKey()
	if err != nil {
		return nil, err
	}

	return signMessageWithKey(key, message)
}

// SignTransaction signs a populated transaction. Fails on a root signer.
func (s *SeedSigner) SignTransaction(_ context.Context, tx *txbuilder.UnsignedTx) ([]byte, error) {
	key, err := s.signingKey()
	if err != nil {
		return nil, err
	}

	return signTransactionWithKey(key, tx)
}

// SignTypedData signs EIP-712 typed data. Fails on a root signer.
func (s *SeedSigner) SignTypedData(_ context.Context, typedData apitypes.TypedData) ([]byte, error) {
	key, err := s.signingKey()
	if err != nil {
		return nil, err
	}

	return signTypedDataWithKey(key, typedData)
}

// Dispose wipes this signer's own key material and releases its handle on
// the shared root. The root node is wiped when the last handle goes.
func (s *SeedSigner) Dispose() error {
	if s.disposed {
		return nil
	}

	if s.node != nil {
		s.node.Dispose()
	}
	s.root.release()
	s.disposed = true

	return nil
}

// Active reports whether the signer has not been disposed.
func (s *SeedSigner) Active() bool {
	return !s.disposed
}

// Root reports whether this signer is in the root state.
func (s *SeedSigner) Root() bool {
	return s.node == nil
}

// Path returns "m" for a root signer and the full derivation path for a
// child.
func (s *SeedSigner) Path() string {
	return s.path
}

// Index returns the account index of a child signer, 0 for a root.
func (s *SeedSigner) Index() uint32 {
	return s.index
}

func (s *SeedSigner) signingKey() (*signingkey.Key, error) {
	if s.disposed {
		return nil, ErrSignerDisposed
	}
	if s.node == nil {
		return nil, ErrRootSignerCannotSign
	}

	return s.node.Key(), nil
}

func nodeAddress(node *hdwallet.Node) (common.Address, error) {
	pub, err := node.PublicKey(false)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "failed to read public key")
	}

	pubKey, err := crypto.UnmarshalPubkey(pub)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "failed to parse public key")
	}

	return crypto.PubkeyToAddress(*pubKey), nil
}
