// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import (
	"math/big"

	"github.com/luxfi/luxtensor/cryptoutil"
)

// Account is the EVM-style account record. Code is loaded lazily from
// storage by code hash; an account with CodeHash == empty hash has no
// contract code.
type Account struct {
	Balance     *big.Int
	Nonce       uint64
	StorageRoot Hash
	CodeHash    Hash
	Code        []byte // nil unless hydrated; never persisted inline after commit
}

// EmptyCodeHash is keccak256 of the empty byte slice, the code hash of
// a plain (non-contract) account.
var EmptyCodeHash = cryptoutil.Keccak256(nil)

// NewAccount returns a fresh account with zero balance/nonce and no
// code.
func NewAccount() *Account {
	return &Account{
		Balance:  new(big.Int),
		CodeHash: EmptyCodeHash,
	}
}

// IsContract reports whether the account has deployed code.
func (a *Account) IsContract() bool {
	return a.CodeHash != EmptyCodeHash
}

// Leaf computes the state-trie leaf hash for this account under addr:
// keccak256(addr ‖ balance_le ‖ nonce_le ‖ storage_root ‖ code_hash).
func (a *Account) Leaf(addr Address) Hash {
	var nonceLE [8]byte
	putUint64LE(nonceLE[:], a.Nonce)
	balanceLE := toLittleEndian32(a.Balance)
	return cryptoutil.Keccak256(addr[:], balanceLE, nonceLE[:], a.StorageRoot[:], a.CodeHash[:])
}

func putUint64LE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// toLittleEndian32 converts a non-negative big.Int to a fixed 32-byte
// little-endian representation (big.Int.Bytes() is big-endian and
// variable-length).
func toLittleEndian32(v *big.Int) []byte {
	be := v.Bytes()
	out := make([]byte, 32)
	for i, b := range be {
		pos := len(be) - 1 - i
		if pos < 32 {
			out[pos] = b
		}
	}
	return out
}
