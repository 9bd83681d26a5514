// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import "math/big"

// ProposalKind is the tagged union of governance proposal payloads.
type ProposalKind struct {
	ParameterChange    *ParameterChange
	EmissionAdjustment *EmissionAdjustment
	SlashingUpdate     *SlashingUpdate
	ProtocolUpgrade    *ProtocolUpgrade
	Emergency          *Emergency
}

type ParameterChange struct {
	Key   string
	Value string
}

type EmissionAdjustment struct {
	NewRateBps BasisPoints
}

type SlashingUpdate struct {
	Offense       string
	NewPenaltyBps BasisPoints
}

type ProtocolUpgrade struct {
	Version        uint32
	ActivationHeight Height
}

type Emergency struct {
	Description string
}

// ProposalStatus is the governance lifecycle state.
type ProposalStatus int

const (
	ProposalActive ProposalStatus = iota
	ProposalApproved
	ProposalRejected
	ProposalExpired
	ProposalReadyToExecute
	ProposalExecuted
	ProposalCancelled
)

func (s ProposalStatus) String() string {
	switch s {
	case ProposalActive:
		return "active"
	case ProposalApproved:
		return "approved"
	case ProposalRejected:
		return "rejected"
	case ProposalExpired:
		return "expired"
	case ProposalReadyToExecute:
		return "ready_to_execute"
	case ProposalExecuted:
		return "executed"
	case ProposalCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Vote is a single cast vote on a Proposal.
type Vote struct {
	Voter   Address
	Power   *big.Int
	Approve bool
	CastAt  Height
}

// Proposal is a governance proposal. All timing fields are block
// heights, not wall-clock time: governance is
// decided on-chain, deterministically, the same way block production
// is.
type Proposal struct {
	ID                 uint64
	Proposer           Address
	Title              string
	Description        string
	Kind               ProposalKind
	Status             ProposalStatus
	CreatedAt          Height
	VotingDeadline     Height
	ExecuteAfter       Height
	ExpiresAt          Height
	VotesFor           *big.Int
	VotesAgainst       *big.Int
	TotalEligiblePower *big.Int
	Votes              []Vote
	ExecutionHash      *Hash
}

// HasVoted reports whether addr already voted on this proposal.
func (p *Proposal) HasVoted(addr Address) bool {
	for _, v := range p.Votes {
		if v.Voter == addr {
			return true
		}
	}
	return false
}
