// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tokenomics

import (
	"math/big"
	"sync"

	"github.com/luxfi/luxtensor/types"
)

// BurnManager tracks cumulative burns and enforces that burns never
// exceed TotalSupply.
type BurnManager struct {
	TxFeeBurnRateBps    types.BasisPoints
	SubnetBurnRateBps   types.BasisPoints
	SlashingBurnRateBps types.BasisPoints

	mu               sync.Mutex
	cumulativeBurned *big.Int
}

func NewBurnManager() *BurnManager {
	return &BurnManager{
		TxFeeBurnRateBps:    500,  // 5%
		SubnetBurnRateBps:   10000, // 100%: registration fees are fully burned
		SlashingBurnRateBps: 10000,
		cumulativeBurned:    new(big.Int),
	}
}

// BurnTxFee burns fee * tx_fee_burn_rate_bps / 10_000 and returns
// (burned, remaining). height is accepted for future use even though
// this implementation doesn't vary the rate by height yet.
func (b *BurnManager) BurnTxFee(fee *big.Int, height types.Height) (burned, remaining *big.Int) {
	return b.burn(fee, b.TxFeeBurnRateBps)
}

// BurnSubnetRegistration burns fee at SubnetBurnRateBps.
func (b *BurnManager) BurnSubnetRegistration(fee *big.Int) (burned, remaining *big.Int) {
	return b.burn(fee, b.SubnetBurnRateBps)
}

// BurnSlashed burns amount at SlashingBurnRateBps.
func (b *BurnManager) BurnSlashed(amount *big.Int) (burned, remaining *big.Int) {
	return b.burn(amount, b.SlashingBurnRateBps)
}

func (b *BurnManager) burn(amount *big.Int, rateBps types.BasisPoints) (burned, remaining *big.Int) {
	burned = bpsOf(amount, int64(rateBps))
	remaining = new(big.Int).Sub(amount, burned)

	b.mu.Lock()
	defer b.mu.Unlock()
	// never burn more than what's circulating: clamp so cumulative
	// burn can never exceed TotalSupply.
	newCumulative := new(big.Int).Add(b.cumulativeBurned, burned)
	if newCumulative.Cmp(TotalSupply) > 0 {
		burned = new(big.Int).Sub(TotalSupply, b.cumulativeBurned)
		remaining = new(big.Int).Sub(amount, burned)
		newCumulative = new(big.Int).Set(TotalSupply)
	}
	b.cumulativeBurned = newCumulative
	return burned, remaining
}

// CumulativeBurned returns the total ever burned.
func (b *BurnManager) CumulativeBurned() *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.cumulativeBurned)
}
