package signingkey

import (
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// SignatureLength is the serialized [R || S || V] signature length in bytes
const SignatureLength = 65

// Signature is a canonical low-S ECDSA signature with its recovery bit.
type Signature struct {
	R [32]byte
	S [32]byte
	V byte // recovery bit, 0 or 1
}

func newSignatureFromRaw(raw []byte) (*Signature, error) {
	if len(raw) != SignatureLength {
		return nil, errors.Errorf("unexpected signature length %d", len(raw))
	}

	sig := &Signature{V: raw[64]}
	copy(sig.R[:], raw[:32])
	copy(sig.S[:], raw[32:64])

	return sig, nil
}

// Bytes serializes the signature to the 65-byte [R || S || V] form.
func (s *Signature) Bytes() []byte {
	out := make([]byte, SignatureLength)
	copy(out[:32], s.R[:])
	copy(out[32:64], s.S[:])
	out[64] = s.V

	return out
}

// RecoverPublicKey recovers the uncompressed public key that produced this
// signature over the given digest.
func (s *Signature) RecoverPublicKey(digest []byte) ([]byte, error) {
	if len(digest) != DigestLength {
		return nil, errors.Wrapf(ErrInvalidDigestLength, "got %d bytes", len(digest))
	}

	pub, err := crypto.Ecrecover(digest, s.Bytes())
	if err != nil {
		return nil, errors.Wrap(err, "failed to recover public key")
	}

	return pub, nil
}
