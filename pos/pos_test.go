// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pos

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/luxtensor/types"
)

func addr(b byte) types.Address {
	var a types.Address
	a[19] = b
	return a
}

func newStakedValidator(a types.Address, stake int64) *types.Validator {
	return &types.Validator{Address: a, Stake: big.NewInt(stake), Active: true, Rewards: new(big.Int)}
}

func TestSelectValidatorFallsBackToRoundRobinWhenSetEmpty(t *testing.T) {
	vs := NewValidatorSet()
	peers := []types.Address{addr(1), addr(2), addr(3)}
	got := vs.SelectValidator(types.Hash{}, 5, peers, addr(9))
	require.Equal(t, peers[5%len(peers)], got)
}

func TestSelectValidatorWeightedDraw(t *testing.T) {
	vs := NewValidatorSet()
	vs.Upsert(newStakedValidator(addr(1), 100_000))
	vs.Upsert(newStakedValidator(addr(2), 100))
	counts := map[types.Address]int{}
	for slot := types.Slot(0); slot < 200; slot++ {
		h := types.Hash{byte(slot), byte(slot >> 8)}
		got := vs.SelectValidator(h, slot, nil, types.Address{})
		counts[got]++
	}
	require.Greater(t, counts[addr(1)], counts[addr(2)])
}

func TestFastFinalityIdempotentAndThreshold(t *testing.T) {
	vs := NewValidatorSet()
	vs.Upsert(newStakedValidator(addr(1), 40))
	vs.Upsert(newStakedValidator(addr(2), 40))
	vs.Upsert(newStakedValidator(addr(3), 20))
	ff := NewFastFinality(vs)

	hash := types.Hash{1}
	ff.OnBlockProposed(hash)
	require.False(t, ff.AddSignature(hash, addr(1)))
	require.False(t, ff.AddSignature(hash, addr(1))) // idempotent, no re-count
	require.True(t, ff.AddSignature(hash, addr(2)))  // 80/100 >= 2/3
	require.True(t, ff.IsFinalized(hash))
}

func TestForkChoiceHeaviestSubtree(t *testing.T) {
	genesis := types.Hash{0}
	fc := NewForkChoice(genesis)

	a := types.Hash{1}
	b := types.Hash{2}
	fc.AddBlock(a, genesis, 1)
	fc.AddBlock(b, genesis, 1)
	fc.AddAttestation(a, big.NewInt(10))
	fc.AddAttestation(b, big.NewInt(50))

	require.Equal(t, b, fc.Head())
}

func TestLongRangeGuardRejectsDeepReorg(t *testing.T) {
	g := NewLongRangeGuard()
	g.RecordCheckpoint(types.Checkpoint{Height: 1000, BlockHash: types.Hash{1}, StateRoot: types.Hash{2}})
	err := g.CheckReorg(900, types.Hash{9})
	require.ErrorIs(t, err, ErrReorgBeyondWeakSubjectivity)
}

func TestLongRangeGuardRejectsCheckpointDisagreement(t *testing.T) {
	g := NewLongRangeGuard()
	g.RecordCheckpoint(types.Checkpoint{Height: 100, BlockHash: types.Hash{1}, StateRoot: types.Hash{2}})
	err := g.CheckReorg(100, types.Hash{99})
	require.ErrorIs(t, err, ErrCheckpointDisagreement)
}

func TestSlashingEquivocationDeactivatesBelowMinStake(t *testing.T) {
	vs := NewValidatorSet()
	v := newStakedValidator(addr(1), 1)
	v.Stake = new(big.Int).Set(types.MinStake) // exactly at minimum
	vs.Upsert(v)
	sm := NewSlashingManager(vs)

	sm.RecordSignedHeader(addr(1), 10, types.Hash{1})
	slashed := sm.RecordSignedHeader(addr(1), 10, types.Hash{2})
	require.True(t, slashed)

	got, _ := vs.Get(addr(1))
	require.False(t, got.Active)
}

func TestRandaoMixerFinalizeEpoch(t *testing.T) {
	r := NewRandaoMixer(types.Hash{1})
	r.Contribute(types.Hash{2})
	r.Contribute(types.Hash{3})
	seed := r.FinalizeEpoch(0)
	got, ok := r.SeedForEpoch(0)
	require.True(t, ok)
	require.Equal(t, seed, got)
}
