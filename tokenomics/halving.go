// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tokenomics

import (
	"math/big"
	"sync"

	"github.com/luxfi/luxtensor/types"
)

// HalvingSchedule implements the era-based halving reward curve:
// era = floor(height / halving_interval), capped at max_halvings;
// reward at height h = initial_reward >> era, floored at
// minimum_reward.
type HalvingSchedule struct {
	InitialReward   *big.Int
	MinimumReward   *big.Int
	HalvingInterval types.Height
	MaxHalvings     uint32

	mu                sync.Mutex
	cumulativeEmission *big.Int
}

// DefaultHalvingSchedule mirrors a conservative emission curve sized
// to exhaust EmissionPool well before MaxHalvings.
func DefaultHalvingSchedule() *HalvingSchedule {
	return &HalvingSchedule{
		InitialReward:      new(big.Int).Mul(big.NewInt(8), OneToken),
		MinimumReward:      new(big.Int).Div(OneToken, big.NewInt(1000)), // 0.001 token
		HalvingInterval:    types.Height(BlocksPerYear * 2),              // halve every 2 years
		MaxHalvings:        32,
		cumulativeEmission: new(big.Int),
	}
}

// Era returns the halving era active at height.
func (h *HalvingSchedule) Era(height types.Height) uint32 {
	era := uint32(uint64(height) / uint64(h.HalvingInterval))
	if era > h.MaxHalvings {
		era = h.MaxHalvings
	}
	return era
}

// RewardAt returns the per-block reward at height, before the
// cumulative-emission cap is applied.
func (h *HalvingSchedule) RewardAt(height types.Height) *big.Int {
	era := h.Era(height)
	reward := new(big.Int).Rsh(h.InitialReward, uint(era))
	if reward.Cmp(h.MinimumReward) < 0 {
		reward = new(big.Int).Set(h.MinimumReward)
	}
	return reward
}

// MintForBlock returns the reward to mint at height, never exceeding
// the remaining EmissionPool allocation: cumulative emission must
// never exceed EmissionPool.
func (h *HalvingSchedule) MintForBlock(height types.Height) *big.Int {
	h.mu.Lock()
	defer h.mu.Unlock()

	reward := h.RewardAt(height)
	remaining := new(big.Int).Sub(EmissionPool, h.cumulativeEmission)
	if remaining.Sign() <= 0 {
		return new(big.Int)
	}
	if reward.Cmp(remaining) > 0 {
		reward = remaining
	}
	h.cumulativeEmission.Add(h.cumulativeEmission, reward)
	return reward
}

// CumulativeEmission returns the total minted so far.
func (h *HalvingSchedule) CumulativeEmission() *big.Int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return new(big.Int).Set(h.cumulativeEmission)
}
