// Package signingkey holds a single secp256k1 private scalar and performs
// ECDSA signing over 32-byte digests. The container owns its scalar buffer
// exclusively and guarantees the buffer is overwritten with zeros on disposal.
package signingkey

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

const (
	// KeyLength is the required private scalar length in bytes
	KeyLength = 32

	// DigestLength is the required signing digest length in bytes
	DigestLength = 32
)

var (
	// ErrInvalidKeyLength is returned when the scalar is not exactly 32 bytes
	ErrInvalidKeyLength = errors.New("private key must be 32 bytes")

	// ErrInvalidDigestLength is returned when the digest is not exactly 32 bytes
	ErrInvalidDigestLength = errors.New("digest must be 32 bytes")

	// ErrKeyDisposed is returned on any use of the container after Dispose
	ErrKeyDisposed = errors.New("signing key has been disposed")
)

// Key is a single-owner container for one secp256k1 private scalar.
// No other component ever holds a second live reference to the scalar
// buffer; the only way to take a copy out is the explicit Extract call.
//
// A Key is not safe for concurrent use; callers must serialize access.
type Key struct {
	scalar []byte // nil after Dispose
	pub    *ecdsa.PublicKey
}

// New creates a key container from a 32-byte private scalar.
// The scalar is copied into a buffer owned by the container; the caller
// remains responsible for wiping its own copy.
func New(scalar []byte) (*Key, error) {
	if len(scalar) != KeyLength {
		return nil, errors.Wrapf(ErrInvalidKeyLength, "got %d bytes", len(scalar))
	}

	owned := make([]byte, KeyLength)
	copy(owned, scalar)

	priv, err := crypto.ToECDSA(owned)
	if err != nil {
		Wipe(owned)
		return nil, errors.Wrap(err, "invalid private scalar")
	}

	key := &Key{
		scalar: owned,
		pub:    &priv.PublicKey,
	}

	wipeECDSA(priv)

	return key, nil
}

// PublicKey returns the public key for this scalar, computed via secp256k1
// base-point multiplication. Compressed form is 33 bytes with a 0x02/0x03
// prefix, uncompressed 65 bytes with a 0x04 prefix.
func (k *Key) PublicKey(compressed bool) ([]byte, error) {
	if k.scalar == nil {
		return nil, ErrKeyDisposed
	}

	if compressed {
		return crypto.CompressPubkey(k.pub), nil
	}

	return crypto.FromECDSAPub(k.pub), nil
}

// Address returns the EVM address for this key.
func (k *Key) Address() (common.Address, error) {
	if k.scalar == nil {
		return common.Address{}, ErrKeyDisposed
	}

	return crypto.PubkeyToAddress(*k.pub), nil
}

// Sign produces a low-S canonical ECDSA signature over a 32-byte digest.
func (k *Key) Sign(digest []byte) (*Signature, error) {
	if k.scalar == nil {
		return nil, ErrKeyDisposed
	}

	if len(digest) != DigestLength {
		return nil, errors.Wrapf(ErrInvalidDigestLength, "got %d bytes", len(digest))
	}

	priv, err := crypto.ToECDSA(k.scalar)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load private scalar")
	}
	defer wipeECDSA(priv)

	// crypto.Sign returns a 65-byte [R || S || V] signature with S already
	// normalized to the lower half of the curve order
	raw, err := crypto.Sign(digest, priv)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign digest")
	}

	return newSignatureFromRaw(raw)
}

// Extract returns a copy of the private scalar.
// WARNING: the caller takes ownership of the copy and must wipe it after use.
func (k *Key) Extract() ([]byte, error) {
	if k.scalar == nil {
		return nil, ErrKeyDisposed
	}

	out := make([]byte, KeyLength)
	copy(out, k.scalar)

	return out, nil
}

// Disposed reports whether the container has been disposed.
func (k *Key) Disposed() bool {
	return k.scalar == nil
}

// Dispose overwrites the owned scalar buffer with zeros in place and
// detaches it. Calling Dispose again is a no-op.
func (k *Key) Dispose() {
	if k.scalar == nil {
		return
	}

	Wipe(k.scalar)
	k.scalar = nil
}

// Wipe overwrites a byte slice with zeros in place.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// wipeECDSA zeros the big.Int words of a transient ECDSA private key
func wipeECDSA(priv *ecdsa.PrivateKey) {
	words := priv.D.Bits()
	for i := range words {
		words[i] = 0
	}
}
