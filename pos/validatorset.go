// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package pos implements the validator set, VRF-weighted leader
// election, GHOST fork choice, fast finality, the RANDAO mixer,
// long-range protection, and slashing.
package pos

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/luxfi/luxtensor/cryptoutil"
	"github.com/luxfi/luxtensor/types"
)

var (
	ErrValidatorNotFound = errors.New("pos: validator not found")
	ErrValidatorInactive = errors.New("pos: validator not active")
)

// ValidatorSet holds the registered validator table, ordered by stake
// descending with address as the tie-break.
type ValidatorSet struct {
	mu         sync.RWMutex
	validators map[types.Address]*types.Validator
}

func NewValidatorSet() *ValidatorSet {
	return &ValidatorSet{validators: make(map[types.Address]*types.Validator)}
}

func (vs *ValidatorSet) Upsert(v *types.Validator) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	vs.validators[v.Address] = v
}

func (vs *ValidatorSet) Get(addr types.Address) (*types.Validator, bool) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	v, ok := vs.validators[addr]
	return v, ok
}

func (vs *ValidatorSet) IsActive(addr types.Address) bool {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	v, ok := vs.validators[addr]
	return ok && v.Active
}

// ordered returns active validators sorted by stake descending, ties
// broken by address ascending.
func (vs *ValidatorSet) ordered() []*types.Validator {
	out := make([]*types.Validator, 0, len(vs.validators))
	for _, v := range vs.validators {
		if v.Active {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		c := out[i].Stake.Cmp(out[j].Stake)
		if c != 0 {
			return c > 0
		}
		return lessAddress(out[i].Address, out[j].Address)
	})
	return out
}

func lessAddress(a, b types.Address) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// ActiveValidators returns every active validator, ordered by stake
// descending. Used by callers outside this package that
// need the full active set rather than a single lookup (e.g.
// blockproducer's epoch reward distribution).
func (vs *ValidatorSet) ActiveValidators() []*types.Validator {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return vs.ordered()
}

// TotalActiveStake sums the stake of every active validator.
func (vs *ValidatorSet) TotalActiveStake() *big.Int {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	sum := new(big.Int)
	for _, v := range vs.validators {
		if v.Active {
			sum.Add(sum, v.Stake)
		}
	}
	return sum
}

// SelectValidator computes slot_seed = keccak256(last_block_hash ‖
// slot_le), then makes a weight-proportional draw over active
// validators. Falls back to
// deterministic round-robin over configured peers if the set is
// empty, and to a hash-based solo slot filter if there are no peers
// either.
func (vs *ValidatorSet) SelectValidator(lastBlockHash types.Hash, slot types.Slot, fallbackPeers []types.Address, soloAddress types.Address) types.Address {
	vs.mu.RLock()
	active := vs.ordered()
	vs.mu.RUnlock()

	if len(active) == 0 {
		if len(fallbackPeers) > 0 {
			return fallbackPeers[int(slot)%len(fallbackPeers)]
		}
		if soloSlotFilter(lastBlockHash, slot) {
			return soloAddress
		}
		return types.ZeroAddress
	}

	seed := slotSeed(lastBlockHash, slot)
	total := new(big.Int)
	for _, v := range active {
		total.Add(total, v.Stake)
	}
	if total.Sign() == 0 {
		return active[0].Address
	}

	target := new(big.Int).Mod(new(big.Int).SetBytes(seed[:]), total)
	cursor := new(big.Int)
	for _, v := range active {
		cursor.Add(cursor, v.Stake)
		if target.Cmp(cursor) < 0 {
			return v.Address
		}
	}
	return active[len(active)-1].Address
}

func slotSeed(lastBlockHash types.Hash, slot types.Slot) types.Hash {
	var slotLE [8]byte
	binary.LittleEndian.PutUint64(slotLE[:], uint64(slot))
	return cryptoutil.Keccak256(lastBlockHash[:], slotLE[:])
}

// soloSlotFilter gives a solo node (no peers, no stake-weighted peers)
// a deterministic subset of slots to produce in, avoiding fork storms
// if two solo instances are briefly both live.
func soloSlotFilter(lastBlockHash types.Hash, slot types.Slot) bool {
	seed := slotSeed(lastBlockHash, slot)
	return seed[0]&1 == 0
}

// VerifyVRF checks a block's VRF proof against the producing
// validator's registered key. A registered validator with
// a configured VRF key MUST supply a valid proof; absence is allowed
// only when the validator has no VRF key configured (represented here
// by a zero public key).
func (vs *ValidatorSet) VerifyVRF(validator types.Address, epoch types.Epoch, height types.Height, previousHash types.Hash, proof *[97]byte) error {
	v, ok := vs.Get(validator)
	if !ok {
		return ErrValidatorNotFound
	}
	if v.PublicKey == ([32]byte{}) {
		return nil // no VRF key configured: absence is allowed
	}
	if proof == nil {
		return fmt.Errorf("pos: validator %s has a VRF key but block carries no proof", validator)
	}
	pub, err := cryptoutil.ParseValidatorPublicKey(v.PublicKey)
	if err != nil {
		return err
	}
	alpha := VRFAlpha(epoch, height, previousHash)
	if _, err := cryptoutil.VRFVerify(alpha, *proof, pub); err != nil {
		return fmt.Errorf("pos: vrf verification failed: %w", err)
	}
	return nil
}

// VRFAlpha builds the VRF input alpha = epoch ‖ height ‖ previous_hash,
// shared between VerifyVRF and blockproducer's VRF-proof
// attachment so producer and verifier can never disagree on the
// input.
func VRFAlpha(epoch types.Epoch, height types.Height, previousHash types.Hash) []byte {
	var epochLE, heightLE [8]byte
	binary.LittleEndian.PutUint64(epochLE[:], uint64(epoch))
	binary.LittleEndian.PutUint64(heightLE[:], uint64(height))
	out := make([]byte, 0, 8+8+len(previousHash))
	out = append(out, epochLE[:]...)
	out = append(out, heightLE[:]...)
	out = append(out, previousHash[:]...)
	return out
}
