// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tokenomics

import (
	"math/big"
	"sync"

	log "github.com/luxfi/log"
	"github.com/luxfi/luxtensor/types"
)

// RewardType distinguishes reward-history entries for reward
// history/claim bookkeeping.
type RewardType int

const (
	RewardMining RewardType = iota
	RewardValidation
	RewardDelegation
	RewardSubnetOwner
	RewardInfrastructure
)

// PendingReward is an address's not-yet-claimed reward balance.
// Reward credits accumulate per address, tracking the epoch they
// started accumulating from.
type PendingReward struct {
	Amount               *big.Int
	LastEpoch            uint64
	AccumulatedFromEpoch uint64
}

// HistoryEntry records one credited reward for audit/claim bookkeeping.
type HistoryEntry struct {
	Epoch      uint64
	Amount     *big.Int
	RewardType RewardType
	Claimed    bool
}

// RewardExecutor processes epoch rewards, crediting pending balances
// and letting participants claim them atomically.
type RewardExecutor struct {
	halving     *HalvingSchedule
	burn        *BurnManager
	daoAddress  types.Address

	mu        sync.Mutex
	available map[types.Address]*big.Int
	pending   map[types.Address]*PendingReward
	history   map[types.Address][]HistoryEntry
	daoBalance *big.Int
}

func NewRewardExecutor(halving *HalvingSchedule, burn *BurnManager, daoAddress types.Address) *RewardExecutor {
	return &RewardExecutor{
		halving:    halving,
		burn:       burn,
		daoAddress: daoAddress,
		available:  make(map[types.Address]*big.Int),
		pending:    make(map[types.Address]*PendingReward),
		history:    make(map[types.Address][]HistoryEntry),
		daoBalance: new(big.Int),
	}
}

// EpochResult summarizes one DistributeEpoch call.
type EpochResult struct {
	Epoch             uint64
	TotalEmission     *big.Int
	ParticipantsCredited int
	DAOAllocation     *big.Int
}

// DistributeEpoch runs Distribute over totalEmission and credits every
// participant's pending balance. If the infrastructure pool has no
// uptime scores to distribute against, Distribute already routed its
// share to DAOCredit (see DESIGN.md).
func (r *RewardExecutor) DistributeEpoch(epoch uint64, totalEmission *big.Int, miners []MinerStats, validators []ValidatorStake, delegators []DelegatorStake, subnets []SubnetOwner, infra []InfrastructureNode) EpochResult {
	dist := Distribute(epoch, totalEmission, miners, validators, delegators, subnets, infra)
	if len(infra) == 0 {
		log.Info("tokenomics: infrastructure pool has no uptime scores, crediting DAO treasury", "epoch", epoch)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	credited := 0
	credited += r.creditPoolLocked(dist.MinerRewards, epoch, RewardMining)
	credited += r.creditPoolLocked(dist.ValidatorRewards, epoch, RewardValidation)
	credited += r.creditPoolLocked(dist.DelegatorRewards, epoch, RewardDelegation)
	credited += r.creditPoolLocked(dist.SubnetRewards, epoch, RewardSubnetOwner)
	credited += r.creditPoolLocked(dist.InfrastructureRewards, epoch, RewardInfrastructure)

	r.daoBalance.Add(r.daoBalance, dist.DAOCredit)

	return EpochResult{
		Epoch:                epoch,
		TotalEmission:        new(big.Int).Set(totalEmission),
		ParticipantsCredited: credited,
		DAOAllocation:        new(big.Int).Set(dist.DAOCredit),
	}
}

func (r *RewardExecutor) creditPoolLocked(rewards map[types.Address]*big.Int, epoch uint64, rt RewardType) int {
	count := 0
	for addr, amount := range rewards {
		if amount.Sign() == 0 {
			continue
		}
		p, ok := r.pending[addr]
		if !ok {
			p = &PendingReward{Amount: new(big.Int), AccumulatedFromEpoch: epoch}
			r.pending[addr] = p
		}
		p.Amount.Add(p.Amount, amount)
		p.LastEpoch = epoch
		r.history[addr] = append(r.history[addr], HistoryEntry{Epoch: epoch, Amount: new(big.Int).Set(amount), RewardType: rt})
		count++
	}
	return count
}

// ClaimRewards moves addr's pending balance to available in one
// atomic step and marks every unclaimed history entry claimed.
func (r *RewardExecutor) ClaimRewards(addr types.Address) *big.Int {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending[addr]
	if !ok || p.Amount.Sign() == 0 {
		return new(big.Int)
	}
	claimed := new(big.Int).Set(p.Amount)
	if r.available[addr] == nil {
		r.available[addr] = new(big.Int)
	}
	r.available[addr].Add(r.available[addr], claimed)
	p.Amount = new(big.Int)

	for i := range r.history[addr] {
		r.history[addr][i].Claimed = true
	}
	return claimed
}

func (r *RewardExecutor) Pending(addr types.Address) *big.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pending[addr]; ok {
		return new(big.Int).Set(p.Amount)
	}
	return new(big.Int)
}

func (r *RewardExecutor) Available(addr types.Address) *big.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.available[addr]; ok {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

func (r *RewardExecutor) DAOBalance() *big.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return new(big.Int).Set(r.daoBalance)
}

func (r *RewardExecutor) History(addr types.Address) []HistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]HistoryEntry, len(r.history[addr]))
	copy(out, r.history[addr])
	return out
}
