// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pos

import (
	"sync"

	"github.com/luxfi/luxtensor/cryptoutil"
	"github.com/luxfi/luxtensor/types"
)

// RandaoMixer accumulates per-block mix contributions and finalizes
// the epoch seed at epoch boundaries: each block
// contributes keccak256(prev_mix ‖ block_hash); the mixer is finalized
// at epoch boundaries to seed the next epoch's leader selection.
type RandaoMixer struct {
	mu          sync.Mutex
	currentMix  types.Hash
	finalized   map[types.Epoch]types.Hash
}

func NewRandaoMixer(genesisSeed types.Hash) *RandaoMixer {
	return &RandaoMixer{currentMix: genesisSeed, finalized: make(map[types.Epoch]types.Hash)}
}

// Contribute mixes blockHash into the running RANDAO accumulator.
func (r *RandaoMixer) Contribute(blockHash types.Hash) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentMix = cryptoutil.Keccak256(r.currentMix[:], blockHash[:])
}

// FinalizeEpoch snapshots the current mix as epoch's seed.
func (r *RandaoMixer) FinalizeEpoch(epoch types.Epoch) types.Hash {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finalized[epoch] = r.currentMix
	return r.currentMix
}

// SeedForEpoch returns the finalized seed for epoch, if known.
func (r *RandaoMixer) SeedForEpoch(epoch types.Epoch) (types.Hash, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.finalized[epoch]
	return s, ok
}
