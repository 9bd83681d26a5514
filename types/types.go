// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package types holds the primitive and entity types that make up
// LuxTensor's core state: accounts, blocks, transactions, receipts,
// validators, and the governance/weight-consensus proposal records.
package types

import (
	"math/big"

	"github.com/luxfi/geth/common"
)

// Hash and Address reuse geth's primitives rather than hand-rolled
// byte arrays.
type (
	Hash    = common.Hash
	Address = common.Address
)

// Height, Slot and Epoch are all measured in the same monotonically
// increasing block-count domain; they are kept as distinct names for
// readability at call sites, not distinct representations.
type (
	Height    uint64
	Slot      uint64
	Epoch     uint64
	Timestamp int64
)

// BasisPoints is an integer share in parts of 10_000.
type BasisPoints uint16

const MaxBasisPoints BasisPoints = 10_000

// Balance, Stake and Reward are 128-bit unsigned token amounts
// (18-decimal, wei-like units). big.Int is used for the arithmetic
// surface since the EVM layer represents word-sized values the same
// way. All token arithmetic in this module, statedb included, uses
// big.Int.
type (
	Balance = big.Int
	Stake   = big.Int
	Reward  = big.Int
)

func NewBalance(v uint64) *Balance { return new(big.Int).SetUint64(v) }

// ZeroAddress is reserved for system/faucet mint transactions on dev
// chains.
var ZeroAddress = Address{}
