// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package governance

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

func testConfig() Config {
	return Config{
		MinProposalStake:        big.NewInt(1_000),
		VotingPeriodBlocks:      100,
		TimelockBlocks:          50,
		EmergencyTimelockBlocks: 25,
		QuorumBps:               3_300,
		ApprovalThresholdBps:    5_000, // simple majority, matching the grounded test config
		MaxProposalAgeBlocks:    500,
	}
}

func validators(stakes ...int64) *pos.ValidatorSet {
	vs := pos.NewValidatorSet()
	for i, s := range stakes {
		vs.Upsert(&types.Validator{Address: addr(byte(i + 1)), Stake: big.NewInt(s), Active: true, Rewards: new(big.Int)})
	}
	return vs
}

func TestCreateRejectsInsufficientStake(t *testing.T) {
	m := New(testConfig())
	_, err := m.Create(addr(1), big.NewInt(10), "t", "d", types.ProposalKind{Emergency: &types.Emergency{Description: "x"}}, big.NewInt(1000), 0)
	require.ErrorIs(t, err, ErrInsufficientStake)
}

func TestCreateCapsActiveProposals(t *testing.T) {
	m := New(testConfig())
	for i := 0; i < MaxActiveProposals; i++ {
		_, err := m.Create(addr(1), big.NewInt(2_000), "t", "d", types.ProposalKind{Emergency: &types.Emergency{}}, big.NewInt(1000), 0)
		require.NoError(t, err)
	}
	_, err := m.Create(addr(1), big.NewInt(2_000), "t", "d", types.ProposalKind{Emergency: &types.Emergency{}}, big.NewInt(1000), 0)
	require.ErrorIs(t, err, ErrTooManyActiveProposals)
}

func TestVoteRejectsNonValidator(t *testing.T) {
	m := New(testConfig())
	vs := validators(100)
	id, err := m.Create(addr(1), big.NewInt(2_000), "t", "d", types.ProposalKind{ParameterChange: &types.ParameterChange{Key: "k", Value: "v"}}, big.NewInt(1000), 0)
	require.NoError(t, err)

	err = m.Vote(id, addr(99), vs, true, 1)
	require.ErrorIs(t, err, ErrNotAValidator)
}

func TestVoteRejectsDuplicate(t *testing.T) {
	m := New(testConfig())
	vs := validators(100)
	id, err := m.Create(addr(1), big.NewInt(2_000), "t", "d", types.ProposalKind{ParameterChange: &types.ParameterChange{Key: "k", Value: "v"}}, big.NewInt(1000), 0)
	require.NoError(t, err)

	require.NoError(t, m.Vote(id, addr(1), vs, true, 1))
	err = m.Vote(id, addr(1), vs, true, 1)
	require.ErrorIs(t, err, ErrAlreadyVoted)
}

func TestVoteUsesValidatorSetStakeNotCaller(t *testing.T) {
	m := New(testConfig())
	vs := validators(100, 900)
	id, err := m.Create(addr(1), big.NewInt(2_000), "t", "d", types.ProposalKind{ParameterChange: &types.ParameterChange{Key: "k", Value: "v"}}, big.NewInt(1000), 0)
	require.NoError(t, err)

	require.NoError(t, m.Vote(id, addr(2), vs, true, 1))
	p, ok := m.Get(id)
	require.True(t, ok)
	require.Equal(t, 0, p.VotesFor.Cmp(big.NewInt(900)))
}

func TestFinalizeExpiresWithoutQuorum(t *testing.T) {
	m := New(testConfig())
	vs := validators(10)
	id, err := m.Create(addr(1), big.NewInt(2_000), "t", "d", types.ProposalKind{ParameterChange: &types.ParameterChange{Key: "k", Value: "v"}}, big.NewInt(1000), 0)
	require.NoError(t, err)
	require.NoError(t, m.Vote(id, addr(1), vs, true, 1))

	status, err := m.FinalizeVoting(id, 101)
	require.NoError(t, err)
	require.Equal(t, types.ProposalExpired, status)
}

func TestFinalizeApprovesOnMajority(t *testing.T) {
	m := New(testConfig())
	vs := validators(600, 400)
	id, err := m.Create(addr(1), big.NewInt(2_000), "t", "d", types.ProposalKind{ParameterChange: &types.ParameterChange{Key: "k", Value: "v"}}, big.NewInt(1000), 0)
	require.NoError(t, err)
	require.NoError(t, m.Vote(id, addr(1), vs, true, 1))
	require.NoError(t, m.Vote(id, addr(2), vs, false, 1))

	status, err := m.FinalizeVoting(id, 101)
	require.NoError(t, err)
	require.Equal(t, types.ProposalApproved, status)
}

func TestExecuteRespectsTimelockThenSucceeds(t *testing.T) {
	m := New(testConfig())
	vs := validators(600, 100)
	id, err := m.Create(addr(1), big.NewInt(2_000), "t", "d", types.ProposalKind{ParameterChange: &types.ParameterChange{Key: "k", Value: "v"}}, big.NewInt(1000), 0)
	require.NoError(t, err)
	require.NoError(t, m.Vote(id, addr(1), vs, true, 1))
	_, err = m.FinalizeVoting(id, 101)
	require.NoError(t, err)

	_, err = m.Execute(id, 101, types.Hash{1})
	require.ErrorIs(t, err, ErrTimelockActive)

	executed, err := m.Execute(id, 101+50, types.Hash{1})
	require.NoError(t, err)
	require.Equal(t, types.ProposalExecuted, executed.Status)
	require.NotNil(t, executed.ExecutionHash)

	_, err = m.Execute(id, 101+50, types.Hash{1})
	require.ErrorIs(t, err, ErrAlreadyExecuted)
}

func TestCancelOnlyProposerOrSupervalidator(t *testing.T) {
	m := New(testConfig())
	id, err := m.Create(addr(1), big.NewInt(2_000), "t", "d", types.ProposalKind{ParameterChange: &types.ParameterChange{Key: "k", Value: "v"}}, big.NewInt(1000), 0)
	require.NoError(t, err)

	err = m.Cancel(id, addr(9), false)
	require.ErrorIs(t, err, ErrUnauthorizedCancel)

	require.NoError(t, m.Cancel(id, addr(9), true))
	p, ok := m.Get(id)
	require.True(t, ok)
	require.Equal(t, types.ProposalCancelled, p.Status)
}

func TestCleanupFinalizedRemovesOldTerminalProposals(t *testing.T) {
	m := New(testConfig())
	id, err := m.Create(addr(1), big.NewInt(2_000), "t", "d", types.ProposalKind{ParameterChange: &types.ParameterChange{Key: "k", Value: "v"}}, big.NewInt(1000), 0)
	require.NoError(t, err)
	require.NoError(t, m.Cancel(id, addr(1), false))

	removed := m.CleanupFinalized(1_000, 100)
	require.Equal(t, 1, removed)
	_, ok := m.Get(id)
	require.False(t, ok)
}
