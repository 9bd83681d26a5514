// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tokenomics

import (
	"math"
	"math/big"
)

// LogarithmicStake implements a logarithmic whale-damping curve:
// effective = ln(1 + stake/1_token).
// Reward-share math downstream of this is advisory distribution
// weighting, not a value the graph or block hash depends on, so the
// float logarithm here does not compromise determinism of consensus
// state itself — only participants' relative share of one epoch's
// already-capped emission.
func LogarithmicStake(stake *big.Int) float64 {
	if stake == nil || stake.Sign() <= 0 {
		return 0
	}
	scaled := new(big.Float).Quo(new(big.Float).SetInt(stake), new(big.Float).SetInt(OneToken))
	f, _ := scaled.Float64()
	return math.Log1p(f)
}
