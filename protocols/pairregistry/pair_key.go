package pairregistry

import (
	"bytes"
	"encoding/hex"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrIdenticalAsset is returned when both sides of a pair name the same asset.
var ErrIdenticalAsset = errors.New("pair assets must differ")

// PairKey is the canonical identifier of an unordered asset pair: the two
// 20-byte asset addresses concatenated in ascending byte order. Both
// (a, b) and (b, a) map to the same key, which makes it usable directly as a
// map key for at-most-one-pool-per-pair bookkeeping.
type PairKey [40]byte

// NewPairKey builds the canonical key for the unordered pair {a, b}.
func NewPairKey(a, b common.Address) (PairKey, error) {
	if a == b {
		return PairKey{}, ErrIdenticalAsset
	}
	lo, hi := sortAssets(a, b)
	var key PairKey
	copy(key[:20], lo[:])
	copy(key[20:], hi[:])
	return key, nil
}

// Assets returns the pair in canonical (ascending) order.
func (k PairKey) Assets() (common.Address, common.Address) {
	return common.BytesToAddress(k[:20]), common.BytesToAddress(k[20:])
}

// PoolID derives the pool identity for this pair: the trailing 20 bytes of
// the Keccak-256 hash of the canonical key. The derivation is deterministic,
// so the same pair always yields the same pool identity.
func (k PairKey) PoolID() common.Address {
	hash := crypto.Keccak256(k[:])
	return common.BytesToAddress(hash[12:])
}

// String returns the hex string representation of the key.
func (k PairKey) String() string {
	return "0x" + hex.EncodeToString(k[:])
}

func sortAssets(a, b common.Address) (common.Address, common.Address) {
	if bytes.Compare(a[:], b[:]) < 0 {
		return a, b
	}
	return b, a
}
