// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package tokenomics implements the halving emission schedule, the
// basis-point reward distribution across miners/validators/
// infrastructure/delegators/subnet owners/DAO/community, logarithmic
// whale-damped stake weighting, the burn manager, EIP-1559 fee market,
// and the reward executor with pending/claimed reward bookkeeping.
package tokenomics

import "math/big"

// OneToken is 10^18, the base unit scale (18-decimal token).
var OneToken = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// TotalSupply is the hard cap: 21,000,000 tokens, 18 decimals.
var TotalSupply = new(big.Int).Mul(big.NewInt(21_000_000), OneToken)

// PremintedSupply is 55% of TotalSupply; EmissionPool is the
// remaining 45%.
var (
	PremintedSupply = bpsOf(TotalSupply, 5500)
	EmissionPool    = bpsOf(TotalSupply, 4500)
)

func bpsOf(v *big.Int, bps int64) *big.Int {
	out := new(big.Int).Mul(v, big.NewInt(bps))
	return out.Div(out, big.NewInt(10_000))
}

// BlockTimeSeconds is the target block interval.
const BlockTimeSeconds = 12

// BlocksPerYear = 365.25*86400/12 = 2_629_800, derived from
// BlockTimeSeconds rather than hardcoded so the two never drift apart.
const BlocksPerYear = uint64(365.25 * 86400 / BlockTimeSeconds)

// SharePrecision is the fixed-point precision used for per-participant
// share math, avoiding float drift on large token amounts: a
// fixed-point share with precision 10^12.
var SharePrecision = big.NewInt(1_000_000_000_000)

// Distribution shares in basis points; must sum to 10_000.
const (
	MinerShareBps       = 3500
	ValidatorShareBps   = 2800
	InfrastructureShareBps = 200
	DelegatorShareBps   = 1200
	SubnetOwnerShareBps = 800
	DAOShareBps         = 500
	CommunityShareBps   = 1000
)

// Lock-bonus schedule in basis points, by minimum lock days: bonuses
// of 0/10/25/50/100% at 0/30/90/180/365 days.
const (
	LockBonus30dBps  = 1000
	LockBonus90dBps  = 2500
	LockBonus180dBps = 5000
	LockBonus365dBps = 10000
)

// LockBonusBps returns the lock-bonus basis points for lockDays.
func LockBonusBps(lockDays uint32) uint32 {
	switch {
	case lockDays >= 365:
		return LockBonus365dBps
	case lockDays >= 180:
		return LockBonus180dBps
	case lockDays >= 90:
		return LockBonus90dBps
	case lockDays >= 30:
		return LockBonus30dBps
	default:
		return 0
	}
}
