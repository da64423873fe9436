// Package hdwallet implements BIP-32 hierarchical deterministic key
// derivation over secp256k1. A Node owns its signing key container and chain
// code; children are derived lazily and are fully independent objects, so
// disposing a child never affects its parent and vice versa.
package hdwallet

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"strconv"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/tetherto/wdk-wallet-evm/signingkey"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // required by BIP-32 fingerprints
)

const (
	// FirstHardenedIndex is the first BIP-32 hardened child index (2^31)
	FirstHardenedIndex uint32 = 0x80000000

	// ChainCodeLength is the BIP-32 chain code length in bytes
	ChainCodeLength = 32

	// FingerprintLength is the BIP-32 key fingerprint length in bytes
	FingerprintLength = 4

	// masterHMACKey seeds the master node per BIP-32
	masterHMACKey = "Bitcoin seed"
)

var (
	// ErrInvalidSeed is returned when a seed produces an out-of-range master key
	ErrInvalidSeed = errors.New("seed produces an invalid master key")

	// ErrInvalidChild is returned when derivation at an index produces an
	// out-of-range or zero key; BIP-32 prescribes skipping to the next index
	ErrInvalidChild = errors.New("derived child key is invalid")

	// ErrHardenedFromPublic is returned when hardened derivation is attempted
	// on a node that has no private scalar
	ErrHardenedFromPublic = errors.New("cannot derive a hardened child without the private key")

	// ErrNodeDisposed is returned on any use of a node after Dispose
	ErrNodeDisposed = errors.New("hd node has been disposed")
)

// groupOrder is the secp256k1 group order n as a fixed-width 256-bit integer.
var groupOrder = uint256.MustFromHex("0xfffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141")

// Node is one node of a BIP-32 key tree. A node derived from a seed carries a
// private key container; a neutered node carries only the compressed public
// key and supports normal (non-hardened) derivation.
//
// Children do not back-reference their parent; only the parent fingerprint
// label is retained.
type Node struct {
	key       *signingkey.Key // nil on watch-only nodes
	pubKey    []byte          // compressed, 33 bytes
	chainCode []byte
	depth     uint8
	index     uint32
	parentFP  [FingerprintLength]byte
	fp        [FingerprintLength]byte
	path      string
	disposed  bool
}

// NewMaster creates the root node of a key tree from a seed.
// Per BIP-32 the seed is expanded with HMAC-SHA512 under the key
// "Bitcoin seed"; the left half becomes the master scalar and the right half
// the master chain code.
func NewMaster(seed []byte) (*Node, error) {
	if len(seed) == 0 {
		return nil, errors.Wrap(ErrInvalidSeed, "empty seed")
	}

	mac := hmac.New(sha512.New, []byte(masterHMACKey))
	mac.Write(seed)
	sum := mac.Sum(nil)
	defer signingkey.Wipe(sum)

	il, ir := sum[:32], sum[32:]

	ilInt := new(uint256.Int).SetBytes(il)
	defer ilInt.Clear()

	if ilInt.IsZero() || ilInt.Cmp(groupOrder) >= 0 {
		return nil, ErrInvalidSeed
	}

	key, err := signingkey.New(il)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create master key container")
	}

	pub, err := key.PublicKey(true)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compute master public key")
	}

	node := &Node{
		key:       key,
		pubKey:    pub,
		chainCode: append([]byte(nil), ir...),
		depth:     0,
		index:     0,
		path:      "m",
	}
	node.fp = fingerprint(pub)

	return node, nil
}

// Child derives the child node at index i. Indices at or above
// FirstHardenedIndex are hardened and require this node's private scalar.
func (n *Node) Child(i uint32) (*Node, error) {
	if n.disposed {
		return nil, ErrNodeDisposed
	}

	data := make([]byte, 0, 37)

	if i >= FirstHardenedIndex {
		if n.key == nil {
			return nil, errors.Wrapf(ErrHardenedFromPublic, "index %d", i)
		}

		scalar, err := n.key.Extract()
		if err != nil {
			return nil, errors.Wrap(err, "failed to read parent scalar")
		}

		// data = 0x00 || ser256(parent scalar) || ser32(i)
		data = append(data, 0x00)
		data = append(data, scalar...)
		signingkey.Wipe(scalar)
	} else {
		// data = serP(parent public key) || ser32(i)
		data = append(data, n.pubKey...)
	}

	data = binary.BigEndian.AppendUint32(data, i)
	defer signingkey.Wipe(data)

	mac := hmac.New(sha512.New, n.chainCode)
	mac.Write(data)
	sum := mac.Sum(nil)
	defer signingkey.Wipe(sum)

	il, ir := sum[:32], sum[32:]

	ilInt := new(uint256.Int).SetBytes(il)
	defer ilInt.Clear()

	if ilInt.Cmp(groupOrder) >= 0 {
		return nil, errors.Wrapf(ErrInvalidChild, "index %d", i)
	}

	child := &Node{
		chainCode: append([]byte(nil), ir...),
		depth:     n.depth + 1,
		index:     i,
		parentFP:  n.fp,
		path:      childPath(n.path, i),
	}

	if n.key != nil {
		if err := child.setPrivate(n.key, ilInt, i); err != nil {
			return nil, err
		}
	} else {
		if err := child.setPublic(n.pubKey, il, i); err != nil {
			return nil, err
		}
	}

	child.fp = fingerprint(child.pubKey)

	return child, nil
}

// setPrivate computes the child scalar as (parent + IL) mod n with the
// explicit BIP-32 correction sequence: add, detect 256-bit overflow, then
// subtract the group order exactly once if the sum overflowed or reached it.
func (c *Node) setPrivate(parent *signingkey.Key, ilInt *uint256.Int, i uint32) error {
	parentScalar, err := parent.Extract()
	if err != nil {
		return errors.Wrap(err, "failed to read parent scalar")
	}
	defer signingkey.Wipe(parentScalar)

	parentInt := new(uint256.Int).SetBytes(parentScalar)
	defer parentInt.Clear()

	sum, overflow := new(uint256.Int).AddOverflow(parentInt, ilInt)
	defer sum.Clear()

	if overflow || sum.Cmp(groupOrder) >= 0 {
		sum.Sub(sum, groupOrder)
	}

	if sum.IsZero() {
		return errors.Wrapf(ErrInvalidChild, "index %d", i)
	}

	childScalar := sum.Bytes32()
	defer signingkey.Wipe(childScalar[:])

	key, err := signingkey.New(childScalar[:])
	if err != nil {
		return errors.Wrap(err, "failed to create child key container")
	}

	pub, err := key.PublicKey(true)
	if err != nil {
		key.Dispose()
		return errors.Wrap(err, "failed to compute child public key")
	}

	c.key = key
	c.pubKey = pub

	return nil
}

// setPublic computes the child public key as point(IL) + parent for
// watch-only derivation.
func (c *Node) setPublic(parentPub []byte, il []byte, i uint32) error {
	parent, err := secp256k1.ParsePubKey(parentPub)
	if err != nil {
		return errors.Wrap(err, "failed to parse parent public key")
	}

	var ilScalar secp256k1.ModNScalar
	if overflow := ilScalar.SetByteSlice(il); overflow {
		return errors.Wrapf(ErrInvalidChild, "index %d", i)
	}

	var ilPoint, parentPoint, childPoint secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&ilScalar, &ilPoint)
	parent.AsJacobian(&parentPoint)
	secp256k1.AddNonConst(&ilPoint, &parentPoint, &childPoint)

	if (childPoint.X.IsZero() && childPoint.Y.IsZero()) || childPoint.Z.IsZero() {
		return errors.Wrapf(ErrInvalidChild, "index %d", i)
	}

	childPoint.ToAffine()
	c.pubKey = secp256k1.NewPublicKey(&childPoint.X, &childPoint.Y).SerializeCompressed()

	return nil
}

// Derive walks a textual derivation path relative to this node and returns
// the final node. Intermediate nodes created along the walk are disposed
// before returning.
func (n *Node) Derive(path string) (*Node, error) {
	if n.disposed {
		return nil, ErrNodeDisposed
	}

	indices, err := ParsePath(path)
	if err != nil {
		return nil, err
	}

	current := n
	for _, idx := range indices {
		next, err := current.Child(idx)
		if current != n {
			current.Dispose()
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to derive path %q", path)
		}
		current = next
	}

	return current, nil
}

// Neuter returns a watch-only copy of this node without the private scalar.
// The copy supports normal derivation only.
func (n *Node) Neuter() (*Node, error) {
	if n.disposed {
		return nil, ErrNodeDisposed
	}

	return &Node{
		pubKey:    append([]byte(nil), n.pubKey...),
		chainCode: append([]byte(nil), n.chainCode...),
		depth:     n.depth,
		index:     n.index,
		parentFP:  n.parentFP,
		fp:        n.fp,
		path:      n.path,
	}, nil
}

// Key returns this node's signing key container, or nil on watch-only nodes.
func (n *Node) Key() *signingkey.Key {
	return n.key
}

// PublicKey returns this node's public key. Works on watch-only nodes too.
func (n *Node) PublicKey(compressed bool) ([]byte, error) {
	if n.disposed {
		return nil, ErrNodeDisposed
	}

	if compressed {
		return append([]byte(nil), n.pubKey...), nil
	}

	pub, err := secp256k1.ParsePubKey(n.pubKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse public key")
	}

	return pub.SerializeUncompressed(), nil
}

// ChainCode returns a copy of this node's chain code.
func (n *Node) ChainCode() []byte {
	return append([]byte(nil), n.chainCode...)
}

// Depth returns the node depth; the master node is at depth 0.
func (n *Node) Depth() uint8 {
	return n.depth
}

// Index returns the child index this node was derived at, with the top bit
// set for hardened children.
func (n *Node) Index() uint32 {
	return n.index
}

// Fingerprint returns the first four bytes of RIPEMD160(SHA256(serP(pub))).
func (n *Node) Fingerprint() [FingerprintLength]byte {
	return n.fp
}

// ParentFingerprint returns the fingerprint label of the parent node;
// 0x00000000 for the master node.
func (n *Node) ParentFingerprint() [FingerprintLength]byte {
	return n.parentFP
}

// Path returns the textual derivation path of this node, rooted at "m".
func (n *Node) Path() string {
	return n.path
}

// Disposed reports whether the node has been disposed.
func (n *Node) Disposed() bool {
	return n.disposed
}

// Dispose wipes this node's own key container and chain code. Children
// already derived from it are independent and stay usable.
func (n *Node) Dispose() {
	if n.disposed {
		return
	}

	if n.key != nil {
		n.key.Dispose()
	}
	signingkey.Wipe(n.chainCode)
	n.disposed = true
}

func fingerprint(compressedPub []byte) [FingerprintLength]byte {
	sha := sha256.Sum256(compressedPub)

	ripe := ripemd160.New()
	ripe.Write(sha[:])

	var fp [FingerprintLength]byte
	copy(fp[:], ripe.Sum(nil)[:FingerprintLength])

	return fp
}

func childPath(parent string, i uint32) string {
	component := strconv.FormatUint(uint64(i&^FirstHardenedIndex), 10)
	if i >= FirstHardenedIndex {
		component += "'"
	}

	return parent + "/" + component
}
