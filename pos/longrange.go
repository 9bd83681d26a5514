// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pos

import (
	"errors"
	"sync"

	"github.com/luxfi/luxtensor/types"
)

// WeakSubjectivityWindow is the default reorg depth beyond which an
// incoming block is rejected outright: e.g. 32 blocks behind the last
// finalized block.
const WeakSubjectivityWindow = 32

var (
	ErrReorgBeyondWeakSubjectivity = errors.New("pos: block would reorg beyond the weak-subjectivity window")
	ErrCheckpointDisagreement      = errors.New("pos: block disagrees with a known checkpoint state root")
)

// LongRangeGuard tracks rolling checkpoints and the last finalized
// height, rejecting blocks that would force an unsafe reorg or that
// disagree with a checkpoint's recorded state root for the same
// height.
type LongRangeGuard struct {
	mu              sync.RWMutex
	checkpoints     map[types.Height]types.Checkpoint
	lastFinalized   types.Height
}

func NewLongRangeGuard() *LongRangeGuard {
	return &LongRangeGuard{checkpoints: make(map[types.Height]types.Checkpoint)}
}

// RecordCheckpoint stores cp, refreshed periodically by block
// production.
func (g *LongRangeGuard) RecordCheckpoint(cp types.Checkpoint) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checkpoints[cp.Height] = cp
	if cp.Height > g.lastFinalized {
		g.lastFinalized = cp.Height
	}
}

// CheckReorg validates an incoming block's (height, stateRoot) against
// the weak-subjectivity window and any recorded checkpoint at that
// height.
func (g *LongRangeGuard) CheckReorg(height types.Height, stateRoot types.Hash) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.lastFinalized > 0 && height+WeakSubjectivityWindow < g.lastFinalized {
		return ErrReorgBeyondWeakSubjectivity
	}
	if cp, ok := g.checkpoints[height]; ok && cp.StateRoot != stateRoot {
		return ErrCheckpointDisagreement
	}
	return nil
}

// LastFinalized returns the highest recorded checkpoint height.
func (g *LongRangeGuard) LastFinalized() types.Height {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lastFinalized
}
