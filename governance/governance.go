// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package governance implements the propose-vote-timelock-execute
// lifecycle for protocol parameter changes, emission adjustments,
// slashing updates, protocol upgrades and emergency actions. The
// proposal table sits behind a single sync.RWMutex, with the write
// lock spanning each vote's duplicate check and insert to close the
// TOCTOU window.
package governance

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	log "github.com/luxfi/log"

	"github.com/luxfi/luxtensor/pos"
	"github.com/luxfi/luxtensor/types"
)

var (
	ErrProposalNotFound      = errors.New("governance: proposal not found")
	ErrInsufficientStake     = errors.New("governance: proposer does not meet minimum stake")
	ErrAlreadyVoted          = errors.New("governance: voter already voted on this proposal")
	ErrNotAValidator         = errors.New("governance: voter is not an active validator")
	ErrNotInVotingPhase      = errors.New("governance: proposal is not in voting phase")
	ErrVotingNotEnded        = errors.New("governance: voting period has not ended yet")
	ErrTimelockActive        = errors.New("governance: proposal is still in timelock")
	ErrExpired               = errors.New("governance: proposal has expired")
	ErrAlreadyExecuted       = errors.New("governance: proposal already executed")
	ErrUnauthorizedCancel    = errors.New("governance: only the proposer or a supervalidator can cancel")
	ErrTooManyActiveProposals = errors.New("governance: too many active proposals")
)

// MaxActiveProposals caps the number of simultaneously Active
// proposals to prevent governance spam.
const MaxActiveProposals = 100

// Config holds the tunable governance parameters.
type Config struct {
	MinProposalStake        *big.Int
	VotingPeriodBlocks      types.Height
	TimelockBlocks          types.Height
	EmergencyTimelockBlocks types.Height
	QuorumBps               types.BasisPoints
	ApprovalThresholdBps    types.BasisPoints
	MaxProposalAgeBlocks    types.Height
}

// defaultMinProposalStake is 0.1 token at 18 decimals.
var defaultMinProposalStake, _ = new(big.Int).SetString("100000000000000000", 10)

// DefaultConfig returns conservative out-of-the-box governance
// parameters.
func DefaultConfig() Config {
	return Config{
		MinProposalStake:        new(big.Int).Set(defaultMinProposalStake),
		VotingPeriodBlocks:      50_400,
		TimelockBlocks:          14_400,
		EmergencyTimelockBlocks: 7_200,
		QuorumBps:               3_300,
		ApprovalThresholdBps:    6_667,
		MaxProposalAgeBlocks:    201_600,
	}
}

type votedKey struct {
	voter types.Address
	id    uint64
}

// Module is the on-chain governance manager. All timing logic uses
// block height, never wall-clock time, for deterministic replay
// across nodes.
type Module struct {
	config Config

	mu        sync.RWMutex
	proposals map[uint64]*types.Proposal
	voted     map[votedKey]bool
	nextID    uint64
}

func New(config Config) *Module {
	return &Module{
		config:    config,
		proposals: make(map[uint64]*types.Proposal),
		voted:     make(map[votedKey]bool),
		nextID:    1,
	}
}

// Create submits a new proposal. proposerStake and totalEligiblePower
// are supplied by the caller from the authoritative validator set.
// proposerStake must meet or exceed MinProposalStake.
func (m *Module) Create(proposer types.Address, proposerStake *big.Int, title, description string, kind types.ProposalKind, totalEligiblePower *big.Int, currentHeight types.Height) (uint64, error) {
	if proposerStake.Cmp(m.config.MinProposalStake) < 0 {
		return 0, fmt.Errorf("%w: %s", ErrInsufficientStake, proposer.Hex())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeCountLocked() >= MaxActiveProposals {
		return 0, fmt.Errorf("%w: max %d", ErrTooManyActiveProposals, MaxActiveProposals)
	}

	id := m.nextID
	m.nextID++

	timelock := m.config.TimelockBlocks
	if kind.Emergency != nil {
		timelock = m.config.EmergencyTimelockBlocks
	}

	votingDeadline := currentHeight + m.config.VotingPeriodBlocks
	executeAfter := votingDeadline + timelock
	expiresAt := currentHeight + m.config.MaxProposalAgeBlocks

	m.proposals[id] = &types.Proposal{
		ID:                 id,
		Proposer:           proposer,
		Title:              title,
		Description:        description,
		Kind:               kind,
		Status:             types.ProposalActive,
		CreatedAt:          currentHeight,
		VotingDeadline:     votingDeadline,
		ExecuteAfter:       executeAfter,
		ExpiresAt:          expiresAt,
		VotesFor:           new(big.Int),
		VotesAgainst:       new(big.Int),
		TotalEligiblePower: new(big.Int).Set(totalEligiblePower),
	}
	return id, nil
}

// Vote casts a vote. The voter's stake is looked up from validators,
// the authoritative validator set, never accepted from the caller.
// The write lock spans the duplicate-vote check and the insert to
// close the TOCTOU window.
func (m *Module) Vote(id uint64, voter types.Address, validators *pos.ValidatorSet, approve bool, currentHeight types.Height) error {
	v, ok := validators.Get(voter)
	if !ok || !v.Active || v.Stake.Sign() == 0 {
		return fmt.Errorf("%w: %s", ErrNotAValidator, voter.Hex())
	}
	power := v.Stake

	m.mu.Lock()
	defer m.mu.Unlock()

	key := votedKey{voter: voter, id: id}
	if m.voted[key] {
		return fmt.Errorf("%w: voter=%s proposal=%d", ErrAlreadyVoted, voter.Hex(), id)
	}

	p, ok := m.proposals[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrProposalNotFound, id)
	}
	if p.Status != types.ProposalActive {
		return fmt.Errorf("%w: proposal=%d status=%s", ErrNotInVotingPhase, id, p.Status)
	}
	if currentHeight > p.VotingDeadline {
		return fmt.Errorf("%w: proposal=%d", ErrExpired, id)
	}

	if approve {
		p.VotesFor.Add(p.VotesFor, power)
	} else {
		p.VotesAgainst.Add(p.VotesAgainst, power)
	}
	p.Votes = append(p.Votes, types.Vote{Voter: voter, Power: new(big.Int).Set(power), Approve: approve, CastAt: currentHeight})

	m.voted[key] = true
	return nil
}

// FinalizeVoting transitions a proposal out of Active once its voting
// deadline has passed: first quorum, then the approval check.
func (m *Module) FinalizeVoting(id uint64, currentHeight types.Height) (types.ProposalStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.proposals[id]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrProposalNotFound, id)
	}
	if p.Status != types.ProposalActive {
		return 0, fmt.Errorf("%w: proposal=%d status=%s", ErrNotInVotingPhase, id, p.Status)
	}
	if currentHeight <= p.VotingDeadline {
		return 0, fmt.Errorf("%w: proposal=%d", ErrVotingNotEnded, id)
	}

	totalVotes := new(big.Int).Add(p.VotesFor, p.VotesAgainst)
	quorumRequired := bpsOf(p.TotalEligiblePower, m.config.QuorumBps)
	approvalRequired := bpsOf(totalVotes, m.config.ApprovalThresholdBps)

	if totalVotes.Cmp(quorumRequired) < 0 {
		p.Status = types.ProposalExpired
		log.Info("governance: proposal expired for lack of quorum", "proposal", id)
		return types.ProposalExpired, nil
	}

	if p.VotesFor.Cmp(approvalRequired) >= 0 {
		p.Status = types.ProposalApproved
		return types.ProposalApproved, nil
	}
	p.Status = types.ProposalRejected
	return types.ProposalRejected, nil
}

// bpsOf computes v*bps/10000 without float drift.
func bpsOf(v *big.Int, bps types.BasisPoints) *big.Int {
	r := new(big.Int).Mul(v, big.NewInt(int64(bps)))
	return r.Div(r, big.NewInt(10_000))
}

// Execute applies an approved, post-timelock proposal and marks it
// Executed.
func (m *Module) Execute(id uint64, currentHeight types.Height, executionHash types.Hash) (*types.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.proposals[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrProposalNotFound, id)
	}

	switch p.Status {
	case types.ProposalApproved, types.ProposalReadyToExecute:
	case types.ProposalExecuted:
		return nil, fmt.Errorf("%w: %d", ErrAlreadyExecuted, id)
	default:
		return nil, fmt.Errorf("%w: proposal=%d status=%s", ErrNotInVotingPhase, id, p.Status)
	}

	if currentHeight < p.ExecuteAfter {
		return nil, fmt.Errorf("%w: proposal=%d until=%d", ErrTimelockActive, id, p.ExecuteAfter)
	}
	if currentHeight > p.ExpiresAt {
		p.Status = types.ProposalExpired
		return nil, fmt.Errorf("%w: %d", ErrExpired, id)
	}

	p.Status = types.ProposalExecuted
	hash := executionHash
	p.ExecutionHash = &hash
	out := *p
	return &out, nil
}

// Cancel marks a proposal Cancelled; only the proposer or a
// supervalidator may do so, and never after execution.
func (m *Module) Cancel(id uint64, caller types.Address, isSupervalidator bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.proposals[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrProposalNotFound, id)
	}
	if p.Status == types.ProposalExecuted {
		return fmt.Errorf("%w: %d", ErrAlreadyExecuted, id)
	}
	if caller != p.Proposer && !isSupervalidator {
		return ErrUnauthorizedCancel
	}
	p.Status = types.ProposalCancelled
	return nil
}

// Get returns a copy of a proposal by ID.
func (m *Module) Get(id uint64) (types.Proposal, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.proposals[id]
	if !ok {
		return types.Proposal{}, false
	}
	return *p, true
}

// List returns copies of every proposal, optionally filtered by
// status.
func (m *Module) List(status *types.ProposalStatus) []types.Proposal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Proposal, 0, len(m.proposals))
	for _, p := range m.proposals {
		if status != nil && p.Status != *status {
			continue
		}
		out = append(out, *p)
	}
	return out
}

// ExpireStale transitions any non-terminal proposal past its absolute
// expiry height to Expired, returning the affected IDs.
func (m *Module) ExpireStale(currentHeight types.Height) []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []uint64
	for id, p := range m.proposals {
		if currentHeight > p.ExpiresAt && p.Status != types.ProposalExecuted && p.Status != types.ProposalCancelled && p.Status != types.ProposalExpired {
			p.Status = types.ProposalExpired
			expired = append(expired, id)
		}
	}
	return expired
}

// CleanupFinalized removes terminal-state proposals (Executed,
// Cancelled, Expired) older than retainBlocks, and their vote
// records, to bound memory growth.
func (m *Module) CleanupFinalized(currentHeight, retainBlocks types.Height) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var cutoff types.Height
	if currentHeight > retainBlocks {
		cutoff = currentHeight - retainBlocks
	}

	removed := 0
	for id, p := range m.proposals {
		terminal := p.Status == types.ProposalExecuted || p.Status == types.ProposalCancelled || p.Status == types.ProposalExpired
		if terminal && p.CreatedAt <= cutoff {
			delete(m.proposals, id)
			removed++
		}
	}
	if removed > 0 {
		for key := range m.voted {
			if _, ok := m.proposals[key.id]; !ok {
				delete(m.voted, key)
			}
		}
	}
	return removed
}

// ActiveProposalCount returns the number of proposals in the Active
// status.
func (m *Module) ActiveProposalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeCountLocked()
}

func (m *Module) activeCountLocked() int {
	n := 0
	for _, p := range m.proposals {
		if p.Status == types.ProposalActive {
			n++
		}
	}
	return n
}
