// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package weightconsensus implements deterministic committee
// selection, stake-weighted approval of subnet weight proposals,
// V-Trust scoring, and collusion detection across voting patterns.
package weightconsensus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	log "github.com/luxfi/log"

	"github.com/luxfi/luxtensor/cryptoutil"
	"github.com/luxfi/luxtensor/pos"
	"github.com/luxfi/luxtensor/types"
)

var (
	ErrProposalNotFound      = errors.New("weightconsensus: proposal not found")
	ErrNotInVotingPhase      = errors.New("weightconsensus: proposal is not pending")
	ErrAlreadyVoted          = errors.New("weightconsensus: voter already voted")
	ErrProposerCannotVote    = errors.New("weightconsensus: proposer cannot vote on own proposal")
	ErrNotAValidator         = errors.New("weightconsensus: voter is not an active validator")
	ErrCooldownActive        = errors.New("weightconsensus: proposer is within the proposal cooldown")
	ErrTooFewValidators      = errors.New("weightconsensus: fewer than min_validators registered")
)

// MinCommonProposals is the minimum number of shared proposals two
// voters must have before a correlation is meaningful.
const MinCommonProposals = 5

// Config holds the weight-consensus tunables.
type Config struct {
	MinValidators            int
	ApprovalThresholdPercent uint8 // e.g. 67
	ProposalTimeoutBlocks    types.Height
	ProposalCooldownBlocks   types.Height
	CommitteeSize            int
	MaxRecordsPerVoter       int
	CollusionAgreementRate   float64 // e.g. 0.9
	CollusionInflationFactor uint64  // e.g. 10
}

func DefaultConfig() Config {
	return Config{
		MinValidators:            5,
		ApprovalThresholdPercent: 67,
		ProposalTimeoutBlocks:    200,
		ProposalCooldownBlocks:   50,
		CommitteeSize:            21,
		MaxRecordsPerVoter:       1000,
		CollusionAgreementRate:   0.9,
		CollusionInflationFactor: 10,
	}
}

// ComputeWeightsHash hashes the (uid, weight) pairs for a proposal
// using a big-endian framing of each pair.
func ComputeWeightsHash(weights []types.NeuronWeight) types.Hash {
	buf := make([]byte, 0, len(weights)*10)
	for _, w := range weights {
		var uidBuf [8]byte
		binary.BigEndian.PutUint64(uidBuf[:], w.UID)
		var wBuf [2]byte
		binary.BigEndian.PutUint16(wBuf[:], w.Weight)
		buf = append(buf, uidBuf[:]...)
		buf = append(buf, wBuf[:]...)
	}
	return cryptoutil.Keccak256(buf)
}

// SelectCommittee deterministically draws committeeSize validators
// from the active set using seed = keccak256(blockHash || subnetUID
// LE) to drive a Fisher-Yates partial shuffle. Same inputs always
// yield the same committee on every node.
func SelectCommittee(blockHash types.Hash, subnetUID uint64, active []types.Address, committeeSize int) []types.Address {
	var uidLE [8]byte
	binary.LittleEndian.PutUint64(uidLE[:], subnetUID)
	seed := cryptoutil.Keccak256(blockHash.Bytes(), uidLE[:])

	pool := make([]types.Address, len(active))
	copy(pool, active)
	// Sort first so the shuffle is a pure function of seed + set
	// membership, not of caller-supplied slice order.
	sortAddresses(pool)

	n := len(pool)
	if committeeSize > n {
		committeeSize = n
	}
	state := seed
	for i := 0; i < committeeSize && i < n-1; i++ {
		state = cryptoutil.Keccak256(state.Bytes())
		r := new(big.Int).SetBytes(state.Bytes())
		span := big.NewInt(int64(n - i))
		j := new(big.Int).Mod(r, span).Int64() + int64(i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:committeeSize]
}

func sortAddresses(addrs []types.Address) {
	for i := 1; i < len(addrs); i++ {
		for j := i; j > 0 && addrLess(addrs[j], addrs[j-1]); j-- {
			addrs[j], addrs[j-1] = addrs[j-1], addrs[j]
		}
	}
}

func addrLess(a, b types.Address) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// VTrustScore is a voter's alignment history: aligned finalized
// proposals out of total finalized proposals they voted on (spec
// §4.8).
type VTrustScore struct {
	Aligned uint64
	Total   uint64
}

// Score returns aligned/total, or 0 if the voter has no history.
func (s VTrustScore) Score() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Aligned) / float64(s.Total)
}

type votingRecord struct {
	proposalID uint64
	approve    bool
}

// Module tracks weight proposals, V-Trust scores, and voting-pattern
// history for collusion detection.
type Module struct {
	config Config

	mu          sync.Mutex
	proposals   map[uint64]*types.WeightProposal
	nextID      uint64
	lastProposedAt map[types.Address]types.Height
	vtrust      map[types.Address]VTrustScore
	records     map[types.Address][]votingRecord
}

func New(config Config) *Module {
	return &Module{
		config:         config,
		proposals:      make(map[uint64]*types.WeightProposal),
		lastProposedAt: make(map[types.Address]types.Height),
		vtrust:         make(map[types.Address]VTrustScore),
		records:        make(map[types.Address][]votingRecord),
	}
}

// Propose creates a weight proposal, enforcing the proposer's
// per-address cooldown with an atomic check-and-update.
func (m *Module) Propose(proposer types.Address, subnetUID uint64, weights []types.NeuronWeight, eligibleVoters []types.Address, currentHeight types.Height) (uint64, error) {
	if len(eligibleVoters) < m.config.MinValidators {
		return 0, fmt.Errorf("%w: have %d need %d", ErrTooFewValidators, len(eligibleVoters), m.config.MinValidators)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if last, ok := m.lastProposedAt[proposer]; ok && currentHeight < last+m.config.ProposalCooldownBlocks {
		return 0, fmt.Errorf("%w: next allowed at %d", ErrCooldownActive, last+m.config.ProposalCooldownBlocks)
	}
	m.lastProposedAt[proposer] = currentHeight

	id := m.nextID
	m.nextID++

	// The proposer never votes on its own proposal, so it isn't part
	// of the voting pool used to decide when every eligible voter has
	// been heard from.
	voters := make([]types.Address, 0, len(eligibleVoters))
	for _, a := range eligibleVoters {
		if a != proposer {
			voters = append(voters, a)
		}
	}

	m.proposals[id] = &types.WeightProposal{
		ID:             id,
		Proposer:       proposer,
		SubnetUID:      subnetUID,
		Weights:        weights,
		WeightsHash:    ComputeWeightsHash(weights),
		ProposedAt:     currentHeight,
		ExpiresAt:      currentHeight + m.config.ProposalTimeoutBlocks,
		Status:         types.WeightPending,
		EligibleVoters: voters,
	}
	return id, nil
}

// Vote casts a committee member's vote. The proposer may never vote
// on their own proposal; stake is looked up from the validator set,
// never trusted from the caller.
func (m *Module) Vote(id uint64, voter types.Address, validators *pos.ValidatorSet, approve bool, currentHeight types.Height) error {
	v, ok := validators.Get(voter)
	if !ok || !v.Active {
		return fmt.Errorf("%w: %s", ErrNotAValidator, voter.Hex())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.proposals[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrProposalNotFound, id)
	}
	if voter == p.Proposer {
		return ErrProposerCannotVote
	}
	if p.Status != types.WeightPending {
		return fmt.Errorf("%w: proposal=%d", ErrNotInVotingPhase, id)
	}
	if currentHeight >= p.ExpiresAt {
		p.Status = types.WeightExpired
		return fmt.Errorf("%w: proposal=%d", ErrNotInVotingPhase, id)
	}
	if p.HasVoted(voter) {
		return fmt.Errorf("%w: voter=%s proposal=%d", ErrAlreadyVoted, voter.Hex(), id)
	}

	p.Votes = append(p.Votes, types.WeightVote{Voter: voter, Stake: new(big.Int).Set(v.Stake), Approve: approve})
	m.records[voter] = appendRingBuffer(m.records[voter], votingRecord{proposalID: id, approve: approve}, m.config.MaxRecordsPerVoter)
	return nil
}

func appendRingBuffer(records []votingRecord, r votingRecord, cap int) []votingRecord {
	records = append(records, r)
	if len(records) > cap {
		excess := len(records) - cap
		records = records[excess:]
	}
	return records
}

// StakeWeightedApproval returns the approval percentage (0-100)
// weighted by voter stake — the primary consensus metric.
func StakeWeightedApproval(p *types.WeightProposal) uint8 {
	total := new(big.Int)
	approve := new(big.Int)
	for _, v := range p.Votes {
		total.Add(total, v.Stake)
		if v.Approve {
			approve.Add(approve, v.Stake)
		}
	}
	if total.Sign() == 0 {
		return 0
	}
	pct := new(big.Int).Mul(approve, big.NewInt(100))
	pct.Div(pct, total)
	if pct.Cmp(big.NewInt(100)) > 0 {
		return 100
	}
	return uint8(pct.Int64())
}

// HeadCountApproval is the secondary, unweighted approval percentage.
func HeadCountApproval(p *types.WeightProposal) uint8 {
	if len(p.Votes) == 0 {
		return 0
	}
	approved := 0
	for _, v := range p.Votes {
		if v.Approve {
			approved++
		}
	}
	pct := approved * 100 / len(p.Votes)
	if pct > 100 {
		pct = 100
	}
	return uint8(pct)
}

// Finalize decides the proposal's outcome once its timeout has
// passed or every eligible voter has voted, then updates every
// voter's V-Trust score against the outcome.
func (m *Module) Finalize(id uint64, currentHeight types.Height) (types.WeightProposalStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.proposals[id]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrProposalNotFound, id)
	}
	if p.Status != types.WeightPending {
		return p.Status, nil
	}
	if currentHeight < p.ExpiresAt && len(p.Votes) < len(p.EligibleVoters) {
		return 0, fmt.Errorf("weightconsensus: proposal %d voting not concluded", id)
	}

	approved := StakeWeightedApproval(p) >= m.config.ApprovalThresholdPercent
	if currentHeight >= p.ExpiresAt && len(p.Votes) == 0 {
		p.Status = types.WeightExpired
	} else if approved {
		p.Status = types.WeightApproved
	} else {
		p.Status = types.WeightRejected
	}

	for _, v := range p.Votes {
		aligned := v.Approve == approved
		m.updateVTrustLocked(v.Voter, aligned)
	}
	log.Info("weightconsensus: proposal finalized", "id", id, "status", p.Status, "stake_weighted_pct", StakeWeightedApproval(p))
	return p.Status, nil
}

func (m *Module) updateVTrustLocked(voter types.Address, aligned bool) {
	s := m.vtrust[voter]
	s.Total++
	if aligned {
		s.Aligned++
	}
	m.vtrust[voter] = s
}

// Apply marks an Approved proposal Applied once its weights have been
// applied.
func (m *Module) Apply(id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proposals[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrProposalNotFound, id)
	}
	if p.Status != types.WeightApproved {
		return fmt.Errorf("%w: proposal=%d status=%v", ErrNotInVotingPhase, id, p.Status)
	}
	p.Status = types.WeightApplied
	return nil
}

// VTrust returns a voter's current alignment score.
func (m *Module) VTrust(voter types.Address) VTrustScore {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vtrust[voter]
}

// Get returns a copy of a proposal by ID.
func (m *Module) Get(id uint64) (types.WeightProposal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proposals[id]
	if !ok {
		return types.WeightProposal{}, false
	}
	return *p, true
}

// CorrelatedPair is a pair of voters whose agreement rate across
// shared proposals meets or exceeds the collusion threshold.
type CorrelatedPair struct {
	A, B           types.Address
	AgreementRate  float64
	CommonProposals int
}

// DetectCollusion finds voter pairs with >= MinCommonProposals shared
// proposals and an agreement rate >= config.CollusionAgreementRate. On
// each flagged pair this also applies the V-Trust penalty: inflating
// `total` by CollusionInflationFactor, which compounds across repeated
// detections since Total is cumulative.
func (m *Module) DetectCollusion() []CorrelatedPair {
	m.mu.Lock()
	defer m.mu.Unlock()

	voters := make([]types.Address, 0, len(m.records))
	for v := range m.records {
		voters = append(voters, v)
	}
	sortAddresses(voters)

	var flagged []CorrelatedPair
	for i := 0; i < len(voters); i++ {
		for j := i + 1; j < len(voters); j++ {
			a, b := voters[i], voters[j]
			mapA := toVoteMap(m.records[a])
			mapB := toVoteMap(m.records[b])

			common, agree := 0, 0
			for pid, va := range mapA {
				if vb, ok := mapB[pid]; ok {
					common++
					if va == vb {
						agree++
					}
				}
			}
			if common < MinCommonProposals {
				continue
			}
			rate := float64(agree) / float64(common)
			if rate >= m.config.CollusionAgreementRate {
				flagged = append(flagged, CorrelatedPair{A: a, B: b, AgreementRate: rate, CommonProposals: common})
				m.penalizeLocked(a)
				m.penalizeLocked(b)
			}
		}
	}
	return flagged
}

func (m *Module) penalizeLocked(voter types.Address) {
	s := m.vtrust[voter]
	s.Total *= m.config.CollusionInflationFactor
	m.vtrust[voter] = s
}

func toVoteMap(records []votingRecord) map[uint64]bool {
	out := make(map[uint64]bool, len(records))
	for _, r := range records {
		out[r.proposalID] = r.approve
	}
	return out
}
