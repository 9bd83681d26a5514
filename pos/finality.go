// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pos

import (
	"math/big"
	"sync"

	"github.com/luxfi/luxtensor/types"
)

// FastFinality collects per-block signatures and reports once ≥ 2/3 of
// active stake has signed. AddSignature is idempotent per
// (block_hash, signer).
type FastFinality struct {
	mu          sync.Mutex
	validators  *ValidatorSet
	signers     map[types.Hash]map[types.Address]bool
	finalized   map[types.Hash]bool
}

func NewFastFinality(vs *ValidatorSet) *FastFinality {
	return &FastFinality{
		validators: vs,
		signers:    make(map[types.Hash]map[types.Address]bool),
		finalized:  make(map[types.Hash]bool),
	}
}

// OnBlockProposed registers a newly proposed block so its producer's
// auto-signature (added separately via AddSignature) has somewhere to
// land.
func (f *FastFinality) OnBlockProposed(hash types.Hash) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.signers[hash]; !ok {
		f.signers[hash] = make(map[types.Address]bool)
	}
}

// AddSignature records signer's attestation of hash. Returns whether
// this call caused the block to cross the 2/3-stake finality
// threshold for the first time. Re-adding the same (hash, signer) pair
// is a no-op.
func (f *FastFinality) AddSignature(hash types.Hash, signer types.Address) (reachedFinality bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.signers[hash] == nil {
		f.signers[hash] = make(map[types.Address]bool)
	}
	if f.signers[hash][signer] {
		return false // idempotent: already recorded
	}
	f.signers[hash][signer] = true

	if f.finalized[hash] {
		return false
	}

	signed := new(big.Int)
	for addr := range f.signers[hash] {
		if v, ok := f.validators.Get(addr); ok {
			signed.Add(signed, v.Stake)
		}
	}
	total := f.validators.TotalActiveStake()
	if total.Sign() == 0 {
		return false
	}
	// signed/total >= 2/3  <=>  signed*3 >= total*2
	lhs := new(big.Int).Mul(signed, big.NewInt(3))
	rhs := new(big.Int).Mul(total, big.NewInt(2))
	if lhs.Cmp(rhs) >= 0 {
		f.finalized[hash] = true
		return true
	}
	return false
}

// IsFinalized reports whether hash has already reached fast finality.
func (f *FastFinality) IsFinalized(hash types.Hash) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finalized[hash]
}
