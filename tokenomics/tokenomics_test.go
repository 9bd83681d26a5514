// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tokenomics

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/luxtensor/types"
)

func TestDistributionSharesSumTo10000(t *testing.T) {
	total := MinerShareBps + ValidatorShareBps + InfrastructureShareBps + DelegatorShareBps + SubnetOwnerShareBps + DAOShareBps + CommunityShareBps
	require.Equal(t, 10_000, total)
}

func TestHalvingBoundaryHalvesReward(t *testing.T) {
	h := DefaultHalvingSchedule()
	before := h.RewardAt(h.HalvingInterval - 1)
	after := h.RewardAt(h.HalvingInterval)
	require.Equal(t, new(big.Int).Rsh(before, 1), after)
}

func TestHalvingFloorsAtMinimumReward(t *testing.T) {
	h := DefaultHalvingSchedule()
	far := h.RewardAt(types.Height(uint64(h.HalvingInterval) * uint64(h.MaxHalvings+10)))
	require.Equal(t, h.MinimumReward, far)
}

func TestMintForBlockNeverExceedsEmissionPool(t *testing.T) {
	h := DefaultHalvingSchedule()
	h.cumulativeEmission = new(big.Int).Sub(EmissionPool, big.NewInt(100))
	minted := h.MintForBlock(0)
	require.LessOrEqual(t, minted.Cmp(big.NewInt(100)), 0)
	require.Equal(t, 0, h.CumulativeEmission().Cmp(EmissionPool))
}

func TestBurnNeverExceedsTotalSupply(t *testing.T) {
	bm := NewBurnManager()
	bm.cumulativeBurned = new(big.Int).Sub(TotalSupply, big.NewInt(50))
	burned, _ := bm.BurnTxFee(new(big.Int).Mul(big.NewInt(1_000_000), OneToken), 1)
	require.LessOrEqual(t, burned.Cmp(big.NewInt(50)), 0)
	require.Equal(t, 0, bm.CumulativeBurned().Cmp(TotalSupply))
}

func TestFeeMarketRejectsInvalidConfig(t *testing.T) {
	_, err := NewFeeMarket(big.NewInt(100), big.NewInt(50), 10, 20)
	require.ErrorIs(t, err, ErrInvalidFeeMarketConfig)
}

func TestFeeMarketAdjustsTowardTarget(t *testing.T) {
	fm, err := NewFeeMarket(big.NewInt(1000), big.NewInt(1_000_000), 1_000_000, 2_000_000)
	require.NoError(t, err)
	base := fm.BaseFee()
	next := fm.UpdateWithBlockGas(2_000_000) // above target: base fee rises
	require.Equal(t, 1, next.Cmp(base))
}

func addr(b byte) types.Address {
	var a types.Address
	a[19] = b
	return a
}

func TestDistributeRoutesEmptyInfraPoolToDAO(t *testing.T) {
	total := new(big.Int).Mul(big.NewInt(10_000), OneToken)
	dist := Distribute(1, total, nil, nil, nil, nil, nil)
	infraPool := bpsOf(total, InfrastructureShareBps)
	require.Equal(t, 0, dist.DAOCredit.Cmp(new(big.Int).Add(bpsOf(total, DAOShareBps+CommunityShareBps), infraPool)))
}

func TestClaimRewardsMovesAllPendingAndMarksHistoryClaimed(t *testing.T) {
	h := DefaultHalvingSchedule()
	bm := NewBurnManager()
	re := NewRewardExecutor(h, bm, addr(255))

	miner := addr(1)
	total := new(big.Int).Mul(big.NewInt(1000), OneToken)
	re.DistributeEpoch(1, total, []MinerStats{{Address: miner, Score: 1.0}}, nil, nil, nil, nil)

	pendingBefore := re.Pending(miner)
	require.Greater(t, pendingBefore.Sign(), 0)

	claimed := re.ClaimRewards(miner)
	require.Equal(t, 0, claimed.Cmp(pendingBefore))
	require.Equal(t, 0, re.Pending(miner).Sign())
	require.Equal(t, 0, re.Available(miner).Cmp(claimed))

	for _, entry := range re.History(miner) {
		require.True(t, entry.Claimed)
	}
}

func TestLogarithmicStakeDampensWhales(t *testing.T) {
	small := LogarithmicStake(new(big.Int).Mul(big.NewInt(1_000), OneToken))
	huge := LogarithmicStake(new(big.Int).Mul(big.NewInt(1_000_000), OneToken))
	// 1000x stake should yield nowhere near 1000x weight.
	require.Less(t, huge/small, 10.0)
}
