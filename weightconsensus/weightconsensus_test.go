// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package weightconsensus

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/luxtensor/pos"
	"github.com/luxfi/luxtensor/types"
)

func addr(b byte) types.Address {
	var a types.Address
	a[19] = b
	return a
}

func committeeValidators(n int) (*pos.ValidatorSet, []types.Address) {
	vs := pos.NewValidatorSet()
	addrs := make([]types.Address, n)
	for i := 0; i < n; i++ {
		a := addr(byte(i + 1))
		addrs[i] = a
		vs.Upsert(&types.Validator{Address: a, Stake: big.NewInt(int64(100 * (i + 1))), Active: true, Rewards: new(big.Int)})
	}
	return vs, addrs
}

func TestSelectCommitteeIsDeterministic(t *testing.T) {
	_, addrs := committeeValidators(10)
	h := types.Hash{1, 2, 3}
	a := SelectCommittee(h, 7, addrs, 5)
	b := SelectCommittee(h, 7, addrs, 5)
	require.Equal(t, a, b)
	require.Len(t, a, 5)
}

func TestSelectCommitteeChangesWithSeed(t *testing.T) {
	_, addrs := committeeValidators(10)
	a := SelectCommittee(types.Hash{1}, 7, addrs, 5)
	b := SelectCommittee(types.Hash{2}, 7, addrs, 5)
	require.NotEqual(t, a, b)
}

func TestProposeEnforcesMinValidators(t *testing.T) {
	m := New(DefaultConfig())
	_, addrs := committeeValidators(2)
	_, err := m.Propose(addr(1), 1, []types.NeuronWeight{{UID: 1, Weight: 100}}, addrs, 0)
	require.ErrorIs(t, err, ErrTooFewValidators)
}

func TestProposeEnforcesCooldown(t *testing.T) {
	cfg := DefaultConfig()
	m := New(cfg)
	_, addrs := committeeValidators(5)
	_, err := m.Propose(addr(1), 1, []types.NeuronWeight{{UID: 1, Weight: 100}}, addrs, 0)
	require.NoError(t, err)
	_, err = m.Propose(addr(1), 1, []types.NeuronWeight{{UID: 1, Weight: 100}}, addrs, 1)
	require.ErrorIs(t, err, ErrCooldownActive)
}

func TestProposerCannotVoteOnOwnProposal(t *testing.T) {
	m := New(DefaultConfig())
	vs, addrs := committeeValidators(5)
	id, err := m.Propose(addrs[0], 1, []types.NeuronWeight{{UID: 1, Weight: 100}}, addrs, 0)
	require.NoError(t, err)
	err = m.Vote(id, addrs[0], vs, true, 1)
	require.ErrorIs(t, err, ErrProposerCannotVote)
}

func TestStakeWeightedApprovalReachesThreshold(t *testing.T) {
	cfg := DefaultConfig()
	m := New(cfg)
	vs, addrs := committeeValidators(5)
	id, err := m.Propose(addrs[0], 1, []types.NeuronWeight{{UID: 1, Weight: 100}}, addrs, 0)
	require.NoError(t, err)

	for _, a := range addrs[1:] {
		require.NoError(t, m.Vote(id, a, vs, true, 1))
	}

	status, err := m.Finalize(id, 1)
	require.NoError(t, err)
	require.Equal(t, types.WeightApproved, status)

	err = m.Apply(id)
	require.NoError(t, err)
	p, _ := m.Get(id)
	require.Equal(t, types.WeightApplied, p.Status)
}

func TestFinalizeRejectsBelowThreshold(t *testing.T) {
	cfg := DefaultConfig()
	m := New(cfg)
	vs, addrs := committeeValidators(5)
	id, err := m.Propose(addrs[0], 1, []types.NeuronWeight{{UID: 1, Weight: 100}}, addrs, 0)
	require.NoError(t, err)

	// only the lowest-stake voter approves; stake-weighted approval stays low
	require.NoError(t, m.Vote(id, addrs[1], vs, true, 1))
	for _, a := range addrs[2:] {
		require.NoError(t, m.Vote(id, a, vs, false, 1))
	}

	status, err := m.Finalize(id, 1)
	require.NoError(t, err)
	require.Equal(t, types.WeightRejected, status)
}

func TestVTrustUpdatesAfterFinalize(t *testing.T) {
	m := New(DefaultConfig())
	vs, addrs := committeeValidators(5)
	id, err := m.Propose(addrs[0], 1, []types.NeuronWeight{{UID: 1, Weight: 100}}, addrs, 0)
	require.NoError(t, err)
	for _, a := range addrs[1:] {
		require.NoError(t, m.Vote(id, a, vs, true, 1))
	}
	_, err = m.Finalize(id, 1)
	require.NoError(t, err)

	score := m.VTrust(addrs[1])
	require.Equal(t, uint64(1), score.Total)
	require.Equal(t, uint64(1), score.Aligned)
	require.Equal(t, 1.0, score.Score())
}

func TestDetectCollusionFlagsHighAgreementPair(t *testing.T) {
	m := New(DefaultConfig())
	vs, addrs := committeeValidators(8)
	voterA, voterB := addrs[1], addrs[2]

	for i := 0; i < MinCommonProposals; i++ {
		id, err := m.Propose(addrs[0], uint64(i), []types.NeuronWeight{{UID: uint64(i), Weight: 1}}, addrs, types.Height(i*100))
		require.NoError(t, err)
		require.NoError(t, m.Vote(id, voterA, vs, true, types.Height(i*100+1)))
		require.NoError(t, m.Vote(id, voterB, vs, true, types.Height(i*100+1)))
		for _, a := range addrs[3:] {
			require.NoError(t, m.Vote(id, a, vs, false, types.Height(i*100+1)))
		}
	}

	flagged := m.DetectCollusion()
	require.NotEmpty(t, flagged)
	found := false
	for _, f := range flagged {
		if (f.A == voterA && f.B == voterB) || (f.A == voterB && f.B == voterA) {
			found = true
			require.GreaterOrEqual(t, f.AgreementRate, 0.9)
		}
	}
	require.True(t, found)
}

func TestComputeWeightsHashDeterministic(t *testing.T) {
	w := []types.NeuronWeight{{UID: 1, Weight: 100}, {UID: 2, Weight: 200}}
	require.Equal(t, ComputeWeightsHash(w), ComputeWeightsHash(w))
}
