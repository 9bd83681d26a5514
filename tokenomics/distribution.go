// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tokenomics

import (
	"math/big"

	"github.com/luxfi/luxtensor/types"
)

// MinerStats is one miner's epoch performance input: a task-verified
// effective score.
type MinerStats struct {
	Address              types.Address
	Score                float64 // 0.0-1.0 base performance score
	GPUTasksCompleted    uint32
	GPUTasksAssigned     uint32
}

// GPUCompletionRatio is completed/assigned, or 0 if none assigned.
func (m MinerStats) GPUCompletionRatio() float64 {
	if m.GPUTasksAssigned == 0 {
		return 0
	}
	return float64(m.GPUTasksCompleted) / float64(m.GPUTasksAssigned)
}

// MaxGPUBonusRate is the multiplier ceiling for full GPU task
// completion.
const MaxGPUBonusRate = 1.4

// EffectiveScore is score * (1 + (max_bonus_rate-1) * gpu_completion_ratio).
func (m MinerStats) EffectiveScore() float64 {
	return m.Score * (1 + (MaxGPUBonusRate-1)*m.GPUCompletionRatio())
}

type ValidatorStake struct {
	Address types.Address
	Stake   *big.Int
}

type DelegatorStake struct {
	Address  types.Address
	Stake    *big.Int
	LockDays uint32
}

type SubnetOwner struct {
	Address        types.Address
	EmissionWeight *big.Int
}

type InfrastructureNode struct {
	Address     types.Address
	UptimeScore float64
}

// DistributionResult is the per-epoch reward split.
type DistributionResult struct {
	Epoch              uint64
	MinerRewards       map[types.Address]*big.Int
	ValidatorRewards   map[types.Address]*big.Int
	DelegatorRewards   map[types.Address]*big.Int
	SubnetRewards      map[types.Address]*big.Int
	InfrastructureRewards map[types.Address]*big.Int
	DAOCredit          *big.Int // DAO share + community share + the infrastructure pool when no node has a positive uptime weight
}

// Distribute splits totalEmission across the seven BPS pools and
// computes each pool's per-participant share using
// PRECISION-scaled fixed-point math to avoid float drift on large
// amounts.
func Distribute(epoch uint64, totalEmission *big.Int, miners []MinerStats, validators []ValidatorStake, delegators []DelegatorStake, subnets []SubnetOwner, infra []InfrastructureNode) DistributionResult {
	minerPool := bpsOf(totalEmission, MinerShareBps)
	validatorPool := bpsOf(totalEmission, ValidatorShareBps)
	infraPool := bpsOf(totalEmission, InfrastructureShareBps)
	delegatorPool := bpsOf(totalEmission, DelegatorShareBps)
	subnetPool := bpsOf(totalEmission, SubnetOwnerShareBps)
	daoPool := bpsOf(totalEmission, DAOShareBps)
	communityPool := bpsOf(totalEmission, CommunityShareBps)

	result := DistributionResult{
		Epoch:                 epoch,
		MinerRewards:          make(map[types.Address]*big.Int),
		ValidatorRewards:      make(map[types.Address]*big.Int),
		DelegatorRewards:      make(map[types.Address]*big.Int),
		SubnetRewards:         make(map[types.Address]*big.Int),
		InfrastructureRewards: make(map[types.Address]*big.Int),
		DAOCredit:             new(big.Int).Add(daoPool, communityPool),
	}

	distributeMiners(minerPool, miners, result.MinerRewards)
	distributeByWeight(validatorPool, validatorWeights(validators), result.ValidatorRewards)
	distributeByWeight(delegatorPool, delegatorWeights(delegators), result.DelegatorRewards)
	distributeByWeight(subnetPool, subnetWeights(subnets), result.SubnetRewards)

	// Infrastructure: undistributed remainder (no nodes with uptime
	// scores) credits the DAO treasury as a fallback.
	if !distributeByWeight(infraPool, infraWeights(infra), result.InfrastructureRewards) {
		result.DAOCredit.Add(result.DAOCredit, infraPool)
	}

	return result
}

func distributeMiners(pool *big.Int, miners []MinerStats, out map[types.Address]*big.Int) bool {
	weights := make(map[types.Address]float64, len(miners))
	for _, m := range miners {
		weights[m.Address] = m.EffectiveScore()
	}
	return distributeByWeight(pool, weights, out)
}

func validatorWeights(validators []ValidatorStake) map[types.Address]float64 {
	w := make(map[types.Address]float64, len(validators))
	for _, v := range validators {
		w[v.Address] = LogarithmicStake(v.Stake)
	}
	return w
}

func delegatorWeights(delegators []DelegatorStake) map[types.Address]float64 {
	w := make(map[types.Address]float64, len(delegators))
	for _, d := range delegators {
		bonus := 1 + float64(LockBonusBps(d.LockDays))/10_000
		w[d.Address] = LogarithmicStake(d.Stake) * bonus
	}
	return w
}

func subnetWeights(subnets []SubnetOwner) map[types.Address]float64 {
	w := make(map[types.Address]float64, len(subnets))
	for _, s := range subnets {
		f, _ := new(big.Float).SetInt(s.EmissionWeight).Float64()
		w[s.Address] += f
	}
	return w
}

func infraWeights(infra []InfrastructureNode) map[types.Address]float64 {
	w := make(map[types.Address]float64, len(infra))
	for _, n := range infra {
		w[n.Address] += n.UptimeScore
	}
	return w
}

// distributeByWeight splits pool proportionally to weights using
// PRECISION-scaled fixed-point shares. Returns false (and leaves out
// untouched) if the total weight is zero, signaling the
// caller should route pool to its fallback.
func distributeByWeight(pool *big.Int, weights map[types.Address]float64, out map[types.Address]*big.Int) bool {
	var total float64
	for _, w := range weights {
		total += w
	}
	if total <= 0 || pool.Sign() == 0 {
		return false
	}
	for addr, w := range weights {
		if w <= 0 {
			continue
		}
		scaledShare := new(big.Float).Mul(big.NewFloat(w/total), new(big.Float).SetInt(SharePrecision))
		shareInt, _ := scaledShare.Int(nil)
		reward := new(big.Int).Mul(pool, shareInt)
		reward.Div(reward, SharePrecision)
		out[addr] = reward
	}
	return true
}
