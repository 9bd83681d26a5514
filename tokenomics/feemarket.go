// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tokenomics

import (
	"errors"
	"math/big"
	"sync"
)

var ErrInvalidFeeMarketConfig = errors.New("tokenomics: min_base_fee must be < max_base_fee and target_gas_used <= block_gas_limit")

// FeeMarket implements an EIP-1559-style block-level base fee update:
// new_base_fee = old_base_fee * (1 + (gas_used - target)/target / 8),
// clamped to [min_base_fee, max_base_fee].
type FeeMarket struct {
	MinBaseFee     *big.Int
	MaxBaseFee     *big.Int
	TargetGasUsed  uint64
	BlockGasLimit  uint64

	mu      sync.Mutex
	baseFee *big.Int
}

// NewFeeMarket validates min_base_fee < max_base_fee and
// target_gas_used <= block_gas_limit before constructing the market.
func NewFeeMarket(minBaseFee, maxBaseFee *big.Int, targetGasUsed, blockGasLimit uint64) (*FeeMarket, error) {
	if minBaseFee.Cmp(maxBaseFee) >= 0 || targetGasUsed > blockGasLimit {
		return nil, ErrInvalidFeeMarketConfig
	}
	return &FeeMarket{
		MinBaseFee:    minBaseFee,
		MaxBaseFee:    maxBaseFee,
		TargetGasUsed: targetGasUsed,
		BlockGasLimit: blockGasLimit,
		baseFee:       new(big.Int).Set(minBaseFee),
	}, nil
}

// BaseFee returns the current base fee.
func (f *FeeMarket) BaseFee() *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.baseFee)
}

// UpdateWithBlockGas recomputes the base fee given the gas used by the
// block just produced.
func (f *FeeMarket) UpdateWithBlockGas(gasUsed uint64) *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()

	target := new(big.Int).SetUint64(f.TargetGasUsed)
	if target.Sign() == 0 {
		return new(big.Int).Set(f.baseFee)
	}
	delta := new(big.Int).Sub(new(big.Int).SetUint64(gasUsed), target)

	// new = old * (1 + delta/target/8) = old + old*delta/(target*8)
	adjustment := new(big.Int).Mul(f.baseFee, delta)
	denom := new(big.Int).Mul(target, big.NewInt(8))
	adjustment.Div(adjustment, denom)

	next := new(big.Int).Add(f.baseFee, adjustment)
	if next.Cmp(f.MinBaseFee) < 0 {
		next = new(big.Int).Set(f.MinBaseFee)
	}
	if next.Cmp(f.MaxBaseFee) > 0 {
		next = new(big.Int).Set(f.MaxBaseFee)
	}
	f.baseFee = next
	return new(big.Int).Set(f.baseFee)
}
