// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package health tracks per-peer liveness and the node's own syncing
// state: a guarded map of per-peer status plus a staleness threshold,
// and a shared is_syncing flag that block production consults before
// producing.
package health

import (
	"sync"
	"sync/atomic"

	"github.com/luxfi/luxtensor/types"
)

// DefaultPeerTimeoutBlocks is how many blocks of silence from a peer
// before it is considered stale for liveness reporting purposes.
const DefaultPeerTimeoutBlocks = 50

// PeerStatus is a point-in-time liveness snapshot for one peer.
type PeerStatus struct {
	LastSeenHeight types.Height
	Announced      types.Height // highest height the peer has announced
	Stale          bool
}

// Monitor owns per-peer last-seen bookkeeping and the node's
// is_syncing flag, an atomic boolean whose setting suspends block
// production.
type Monitor struct {
	mu    sync.RWMutex
	peers map[types.Address]*PeerStatus

	syncing   atomic.Bool
	ourHeight atomic.Uint64
}

func New() *Monitor {
	return &Monitor{peers: make(map[types.Address]*PeerStatus)}
}

// RecordSeen updates peer's last-seen/announced height.
func (m *Monitor) RecordSeen(peer types.Address, announced types.Height) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peers[peer]
	if !ok {
		p = &PeerStatus{}
		m.peers[peer] = p
	}
	p.Announced = announced
	p.LastSeenHeight = types.Height(m.ourHeight.Load())
	p.Stale = false
}

// Disconnect drops a peer from liveness tracking entirely.
func (m *Monitor) Disconnect(peer types.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.peers, peer)
}

// UpdateOurHeight records the node's own chain height and marks any
// peer that hasn't been heard from in DefaultPeerTimeoutBlocks blocks
// as stale.
func (m *Monitor) UpdateOurHeight(h types.Height) {
	m.ourHeight.Store(uint64(h))

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.peers {
		if uint64(h)-uint64(p.LastSeenHeight) > DefaultPeerTimeoutBlocks {
			p.Stale = true
		}
	}
}

// Peer returns the recorded status for addr, if any.
func (m *Monitor) Peer(addr types.Address) (PeerStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.peers[addr]
	if !ok {
		return PeerStatus{}, false
	}
	return *p, true
}

// LivePeerCount returns the number of peers not currently marked stale.
func (m *Monitor) LivePeerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, p := range m.peers {
		if !p.Stale {
			n++
		}
	}
	return n
}

// SetSyncing toggles the shared is_syncing flag; block production
// checks this and pauses entirely while it is set by the P2P handler.
func (m *Monitor) SetSyncing(v bool) { m.syncing.Store(v) }

// IsSyncing reports the current is_syncing flag.
func (m *Monitor) IsSyncing() bool { return m.syncing.Load() }
