package signer

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"
	"github.com/tetherto/wdk-wallet-evm/signingkey"
	"github.com/tetherto/wdk-wallet-evm/txbuilder"
)

// recoveryOffset shifts the recovery bit to the V in {27, 28} convention
// used for message and typed-data signatures.
const recoveryOffset = 27

// HashPersonalMessage returns the EIP-191 digest of a personal message:
// keccak256("\x19Ethereum Signed Message:\n" || len(message) || message).
func HashPersonalMessage(message []byte) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(message))

	return crypto.Keccak256([]byte(prefix), message)
}

// HashTypedData returns the EIP-712 digest of typed data.
func HashTypedData(typedData apitypes.TypedData) ([]byte, error) {
	digest, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash typed data")
	}

	return digest, nil
}

// signMessageWithKey produces the EIP-191 signature shared by the software
// backends.
func signMessageWithKey(key *signingkey.Key, message []byte) ([]byte, error) {
	sig, err := key.Sign(HashPersonalMessage(message))
	if err != nil {
		return nil, err
	}

	out := sig.Bytes()
	out[64] += recoveryOffset

	return out, nil
}

// signTypedDataWithKey produces the EIP-712 signature shared by the software
// backends.
func signTypedDataWithKey(key *signingkey.Key, typedData apitypes.TypedData) ([]byte, error) {
	digest, err := HashTypedData(typedData)
	if err != nil {
		return nil, err
	}

	sig, err := key.Sign(digest)
	if err != nil {
		return nil, err
	}

	out := sig.Bytes()
	out[64] += recoveryOffset

	return out, nil
}

// signTransactionWithKey signs a populated transaction with a software key
// and returns the RLP-serialized signed transaction.
func signTransactionWithKey(key *signingkey.Key, utx *txbuilder.UnsignedTx) ([]byte, error) {
	if utx == nil || utx.Tx == nil {
		return nil, errors.New("unsigned transaction is required")
	}

	txSigner := utx.Signer()

	sig, err := key.Sign(txSigner.Hash(utx.Tx).Bytes())
	if err != nil {
		return nil, err
	}

	signed, err := utx.Tx.WithSignature(txSigner, sig.Bytes())
	if err != nil {
		return nil, errors.Wrap(err, "failed to attach signature")
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize signed transaction")
	}

	return raw, nil
}
