// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package blockproducer

import (
	"sync"

	"github.com/luxfi/luxtensor/types"
)

// scoringTracker is the minimal per-validator block-production
// counter recording each block produced. No richer scoring subsystem
// (latency, uptime, disputes history) exists elsewhere in this
// module, so this stays
// internal to blockproducer rather than a top-level package — see
// DESIGN.md.
type scoringTracker struct {
	mu     sync.Mutex
	counts map[types.Address]uint64
	last   map[types.Address]types.Height
}

func newScoringTracker() *scoringTracker {
	return &scoringTracker{counts: make(map[types.Address]uint64), last: make(map[types.Address]types.Height)}
}

// RecordBlockProduced increments addr's lifetime block count and
// records the height of its most recent block.
func (s *scoringTracker) RecordBlockProduced(addr types.Address, height types.Height) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[addr]++
	s.last[addr] = height
}

// BlocksProduced returns addr's lifetime block-production count.
func (s *scoringTracker) BlocksProduced(addr types.Address) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[addr]
}

// LastProducedHeight returns the height of addr's most recent block,
// if any.
func (s *scoringTracker) LastProducedHeight(addr types.Address) (types.Height, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.last[addr]
	return h, ok
}
