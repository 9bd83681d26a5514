// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pos

import (
	"math/big"
	"sync"

	log "github.com/luxfi/log"
	"github.com/luxfi/luxtensor/types"
)

// SlashingOffense names a penalizable validator offense.
type SlashingOffense int

const (
	OffenseEquivocation SlashingOffense = iota
	OffenseInvalidatedDisputedClaim
)

// DefaultSlashPenaltyBps is the policy percentage of stake removed per
// offense, expressed in basis points (10% default).
const DefaultSlashPenaltyBps types.BasisPoints = 1000

// signedHeader tracks one validator's signed header at a height, for
// equivocation detection.
type signedHeader struct {
	blockHash types.Hash
}

// SlashingManager detects equivocation and applies penalties for both
// offenses. The invalidated-claim offense is applied at a dispute's
// resolution deadline for the optimistic-AI offense.
type SlashingManager struct {
	mu          sync.Mutex
	validators  *ValidatorSet
	penaltyBps  types.BasisPoints
	seenHeaders map[types.Address]map[types.Height]signedHeader
}

func NewSlashingManager(vs *ValidatorSet) *SlashingManager {
	return &SlashingManager{
		validators:  vs,
		penaltyBps:  DefaultSlashPenaltyBps,
		seenHeaders: make(map[types.Address]map[types.Height]signedHeader),
	}
}

// RecordSignedHeader registers validator's signature over blockHash at
// height and slashes for equivocation if a different hash was already
// seen at the same height.
func (s *SlashingManager) RecordSignedHeader(validator types.Address, height types.Height, blockHash types.Hash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	byHeight, ok := s.seenHeaders[validator]
	if !ok {
		byHeight = make(map[types.Height]signedHeader)
		s.seenHeaders[validator] = byHeight
	}
	prev, seen := byHeight[height]
	byHeight[height] = signedHeader{blockHash: blockHash}
	if seen && prev.blockHash != blockHash {
		s.slashLocked(validator, OffenseEquivocation)
		return true
	}
	return false
}

// SlashForInvalidatedClaim penalizes validator for an optimistic-AI
// dispute that resolved against them.
func (s *SlashingManager) SlashForInvalidatedClaim(validator types.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slashLocked(validator, OffenseInvalidatedDisputedClaim)
}

// slashLocked reduces validator's stake by penaltyBps and deactivates
// it if the result falls below MinStake. Caller holds s.mu.
func (s *SlashingManager) slashLocked(validator types.Address, offense SlashingOffense) {
	v, ok := s.validators.Get(validator)
	if !ok {
		return
	}
	penalty := new(big.Int).Mul(v.Stake, big.NewInt(int64(s.penaltyBps)))
	penalty.Div(penalty, big.NewInt(int64(types.MaxBasisPoints)))
	v.Stake = new(big.Int).Sub(v.Stake, penalty)
	if v.Stake.Sign() < 0 {
		v.Stake = new(big.Int)
	}
	deactivated := false
	if v.Stake.Cmp(types.MinStake) < 0 {
		v.Active = false
		deactivated = true
	}
	log.Warn("pos: slashed validator", "validator", validator, "offense", offense, "penalty", penalty.String(), "deactivated", deactivated)
}
