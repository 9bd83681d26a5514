// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

import "math/big"

// Validator is a registered PoS validator.
type Validator struct {
	Address          Address
	PublicKey        [32]byte // secp256k1 VRF/consensus key, see cryptoutil.ParseValidatorPublicKey
	Stake            *big.Int
	Active           bool
	Rewards          *big.Int
	LastActiveSlot   Slot
	ActivationEpoch  Epoch
}

// MinStake is the minimum stake required to remain a validator: 1000
// tokens, 18 decimals.
var MinStake = new(big.Int).Mul(big.NewInt(1000), big.NewInt(1_000_000_000_000_000_000))

// IsEligible reports whether the validator participates in leader
// selection at the given epoch.
func (v *Validator) IsEligible(epoch Epoch) bool {
	return v.Active && epoch >= v.ActivationEpoch && v.Stake.Cmp(MinStake) >= 0
}
