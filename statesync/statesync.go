// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package statesync drives pivot selection, parallel chunked
// account/storage range downloads, and domain-separated Merkle proof
// verification for snap-sync catch-up, fanning out downloads with
// `golang.org/x/sync/errgroup` instead of a manual pending-request
// queue.
package statesync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/luxfi/geth/common"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/luxtensor/cryptoutil"
	"github.com/luxfi/luxtensor/types"
)

// Phase is the snap-sync state machine.
type Phase int

const (
	PhaseSelectingPivot Phase = iota
	PhaseDownloadingState
	PhaseVerifyingState
	PhaseSwitchingToBlockSync
	PhaseComplete
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseSelectingPivot:
		return "selecting_pivot"
	case PhaseDownloadingState:
		return "downloading_state"
	case PhaseVerifyingState:
		return "verifying_state"
	case PhaseSwitchingToBlockSync:
		return "switching_to_block_sync"
	case PhaseComplete:
		return "complete"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DefaultPivotBehind is how many blocks behind HEAD the pivot sits.
const DefaultPivotBehind = 64

// DefaultChunkSize is the per-request account/slot limit; a response
// carrying more than twice the configured chunk size is rejected.
// MaxTotalAccounts and MaxTotalBytes bound the overall download.
const (
	DefaultChunkSize = 1000
	MaxTotalAccounts = 1_000_000_000
	MaxTotalBytes    = 256 << 20
)

var (
	ErrNoPivot             = errors.New("statesync: no pivot selected")
	ErrResponseTooLarge    = errors.New("statesync: response exceeds per-response account/slot cap")
	ErrTotalAccountsExceeded = errors.New("statesync: total account download limit exceeded")
	ErrTotalBytesExceeded  = errors.New("statesync: total byte download limit exceeded")
	ErrInvalidProof        = errors.New("statesync: merkle proof verification failed")
	ErrStateRootMismatch   = errors.New("statesync: recomputed state root does not match pivot")
	ErrStorageRootUnknown  = errors.New("statesync: account not yet downloaded, cannot verify storage proof")
)

// GetStateRange requests accounts within [Start, End] against
// StateRoot.
type GetStateRange struct {
	Start     types.Address
	End       types.Address
	StateRoot types.Hash
	Limit     int
}

// StateRange is the response to GetStateRange.
type StateRange struct {
	Accounts     []AccountEntry
	Proof        cryptoutil.MerkleProof
	HasMore      bool
	Continuation *types.Address
}

type AccountEntry struct {
	Address types.Address
	Account types.Account
}

// GetStorageRange requests storage slots for Address starting at
// StartSlot against StateRoot.
type GetStorageRange struct {
	Address   types.Address
	StartSlot types.Hash
	StateRoot types.Hash
	Limit     int
}

// StorageRange is the response to GetStorageRange.
type StorageRange struct {
	Slots   []StorageSlot
	Proof   cryptoutil.MerkleProof
	HasMore bool
}

type StorageSlot struct {
	Key   types.Hash
	Value types.Hash
}

// Peer is the minimal remote interface statesync needs; the concrete
// transport (libp2p, in-process test double, …) is out of scope here.
type Peer interface {
	RequestStateRange(ctx context.Context, req GetStateRange) (StateRange, error)
	RequestStorageRange(ctx context.Context, req GetStorageRange) (StorageRange, error)
}

// Config holds the snap-sync tunables.
type Config struct {
	PivotBehind      types.Height
	ParallelDownloads int
	ChunkSize        int
}

func DefaultConfig() Config {
	return Config{
		PivotBehind:       DefaultPivotBehind,
		ParallelDownloads: 4,
		ChunkSize:         DefaultChunkSize,
	}
}

// Manager drives one snap-sync run: pivot selection, parallel range
// downloads, proof verification, and final state-root comparison.
type Manager struct {
	config Config

	mu               sync.Mutex
	phase            Phase
	pivotHeight      types.Height
	pivotHash        types.Hash
	pivotStateRoot   types.Hash
	accounts         map[types.Address]types.Account
	storage          map[types.Address]map[types.Hash]types.Hash
	accountsSynced   uint64
	bytesDownloaded  uint64
}

func New(config Config) *Manager {
	return &Manager{
		config:   config,
		phase:    PhaseSelectingPivot,
		accounts: make(map[types.Address]types.Account),
		storage:  make(map[types.Address]map[types.Hash]types.Hash),
	}
}

// Phase returns the current snap-sync phase.
func (m *Manager) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// SelectPivot fixes the pivot block this run will sync to: head
// height minus the configured pivot-behind distance.
func (m *Manager) SelectPivot(headHeight types.Height, headHash, headStateRoot types.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pivot := m.config.PivotBehind
	if headHeight < pivot {
		pivot = headHeight
	}
	m.pivotHeight = headHeight - pivot
	m.pivotHash = headHash
	m.pivotStateRoot = headStateRoot
	m.phase = PhaseDownloadingState
}

// PivotHeight returns the selected pivot height, or (0, false) if
// none has been selected yet.
func (m *Manager) PivotHeight() (types.Height, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseSelectingPivot {
		return 0, false
	}
	return m.pivotHeight, true
}

// initialRequests divides the 20-byte address space into
// ParallelDownloads equal slices.
func (m *Manager) initialRequests(stateRoot types.Hash) []GetStateRange {
	n := m.config.ParallelDownloads
	if n < 1 {
		n = 1
	}
	reqs := make([]GetStateRange, n)
	for i := 0; i < n; i++ {
		start := addressAtFraction(i, n)
		var end types.Address
		if i == n-1 {
			end = types.Address{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
		} else {
			end = addressAtFraction(i+1, n)
		}
		reqs[i] = GetStateRange{Start: start, End: end, StateRoot: stateRoot, Limit: m.config.ChunkSize}
	}
	return reqs
}

func addressAtFraction(i, n int) types.Address {
	var a types.Address
	if n <= 1 {
		return a
	}
	// Place the cut point at i/n of the 160-bit address space using
	// the first 4 bytes for resolution; ample precision for any
	// realistic parallel_downloads count.
	frac := uint64(i) << 32 / uint64(n)
	a[0] = byte(frac >> 24)
	a[1] = byte(frac >> 16)
	a[2] = byte(frac >> 8)
	a[3] = byte(frac)
	return a
}

// Run fans out the initial range requests across peer (one logical
// peer interface; the caller may itself load-balance across physical
// connections), verifies every response's Merkle proof, and blocks
// until every chunk (including the follow-on continuations and
// storage ranges) has been downloaded or an error occurs.
func (m *Manager) Run(ctx context.Context, peer Peer) error {
	m.mu.Lock()
	if m.phase != PhaseDownloadingState {
		m.mu.Unlock()
		return fmt.Errorf("%w", ErrNoPivot)
	}
	stateRoot := m.pivotStateRoot
	reqs := m.initialRequests(stateRoot)
	m.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, req := range reqs {
		req := req
		g.Go(func() error { return m.downloadAccountChain(ctx, peer, req) })
	}
	if err := g.Wait(); err != nil {
		m.mu.Lock()
		m.phase = PhaseFailed
		m.mu.Unlock()
		return err
	}

	g2, ctx2 := errgroup.WithContext(ctx)
	m.mu.Lock()
	addrs := make([]types.Address, 0, len(m.accounts))
	for a := range m.accounts {
		addrs = append(addrs, a)
	}
	m.mu.Unlock()
	for _, addr := range addrs {
		addr := addr
		g2.Go(func() error { return m.downloadStorageChain(ctx2, peer, addr, stateRoot) })
	}
	if err := g2.Wait(); err != nil {
		m.mu.Lock()
		m.phase = PhaseFailed
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.phase = PhaseVerifyingState
	m.mu.Unlock()
	return nil
}

func (m *Manager) downloadAccountChain(ctx context.Context, peer Peer, req GetStateRange) error {
	for {
		resp, err := peer.RequestStateRange(ctx, req)
		if err != nil {
			return err
		}
		if err := m.onStateRange(req.StateRoot, resp); err != nil {
			return err
		}
		if !resp.HasMore || resp.Continuation == nil {
			return nil
		}
		req.Start = *resp.Continuation
	}
}

func (m *Manager) downloadStorageChain(ctx context.Context, peer Peer, addr types.Address, stateRoot types.Hash) error {
	req := GetStorageRange{Address: addr, StateRoot: stateRoot, Limit: m.config.ChunkSize}
	for {
		resp, err := peer.RequestStorageRange(ctx, req)
		if err != nil {
			return err
		}
		if err := m.onStorageRange(addr, resp); err != nil {
			return err
		}
		if !resp.HasMore || len(resp.Slots) == 0 {
			return nil
		}
		req.StartSlot = resp.Slots[len(resp.Slots)-1].Key
	}
}

// onStateRange validates and absorbs one account-range response (spec
// §4.10, grounded on StateSyncManager::on_state_range).
func (m *Manager) onStateRange(stateRoot types.Hash, resp StateRange) error {
	if len(resp.Accounts) > 2*m.config.ChunkSize {
		return fmt.Errorf("%w: %d accounts", ErrResponseTooLarge, len(resp.Accounts))
	}
	if err := verifyAccountProof(stateRoot, resp); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.accountsSynced > MaxTotalAccounts {
		return fmt.Errorf("%w", ErrTotalAccountsExceeded)
	}
	for _, e := range resp.Accounts {
		m.accounts[e.Address] = e.Account
	}
	m.accountsSynced += uint64(len(resp.Accounts))
	m.bytesDownloaded += estimateAccountBytes(resp.Accounts)
	if m.bytesDownloaded > MaxTotalBytes {
		return fmt.Errorf("%w", ErrTotalBytesExceeded)
	}
	return nil
}

func verifyAccountProof(stateRoot types.Hash, resp StateRange) error {
	for _, e := range resp.Accounts {
		leaf := accountLeafHash(e.Address, e.Account)
		if !cryptoutil.VerifyDomainSeparatedProof(leaf, resp.Proof, stateRoot) {
			return fmt.Errorf("%w: account %s", ErrInvalidProof, e.Address.Hex())
		}
	}
	return nil
}

func accountLeafHash(addr types.Address, acc types.Account) common.Hash {
	var data []byte
	data = append(data, addr.Bytes()...)
	data = append(data, fixedWidthBytes(acc.Balance, 32)...)
	var nonce [8]byte
	for i := 0; i < 8; i++ {
		nonce[i] = byte(acc.Nonce >> (8 * i))
	}
	data = append(data, nonce[:]...)
	data = append(data, acc.StorageRoot.Bytes()...)
	data = append(data, acc.CodeHash.Bytes()...)
	return cryptoutil.DomainSeparatedLeafHash(data)
}

// fixedWidthBytes right-aligns v's big-endian bytes into an n-byte
// buffer, matching the fixed-width account leaf encoding every node
// must reproduce identically.
func fixedWidthBytes(v interface{ Bytes() []byte }, n int) []byte {
	b := v.Bytes()
	out := make([]byte, n)
	copy(out[n-len(b):], b)
	return out
}

func (m *Manager) onStorageRange(addr types.Address, resp StorageRange) error {
	if len(resp.Slots) > 2*m.config.ChunkSize {
		return fmt.Errorf("%w: %d slots", ErrResponseTooLarge, len(resp.Slots))
	}

	m.mu.Lock()
	acc, ok := m.accounts[addr]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrStorageRootUnknown, addr.Hex())
	}

	for _, s := range resp.Slots {
		leaf := cryptoutil.DomainSeparatedLeafHash(append(append([]byte{}, s.Key.Bytes()...), s.Value.Bytes()...))
		if !cryptoutil.VerifyDomainSeparatedProof(leaf, resp.Proof, acc.StorageRoot) {
			return fmt.Errorf("%w: account %s", ErrInvalidProof, addr.Hex())
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	slots, ok := m.storage[addr]
	if !ok {
		slots = make(map[types.Hash]types.Hash)
		m.storage[addr] = slots
	}
	for _, s := range resp.Slots {
		slots[s.Key] = s.Value
	}
	m.bytesDownloaded += uint64(len(resp.Slots)) * 64
	return nil
}

func estimateAccountBytes(accounts []AccountEntry) uint64 {
	return uint64(len(accounts)) * 128
}

// Finalize recomputes the state root from every downloaded account
// and requires equality with the pivot's state root.
func (m *Manager) Finalize() (types.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.phase = PhaseVerifyingState
	root := m.calculateStateRootLocked()
	if root != m.pivotStateRoot {
		m.phase = PhaseFailed
		return root, fmt.Errorf("%w: expected %s got %s", ErrStateRootMismatch, m.pivotStateRoot.Hex(), root.Hex())
	}
	m.phase = PhaseSwitchingToBlockSync
	return root, nil
}

// Complete marks the run finished after block-sync has caught up the
// remaining blocks past the pivot.
func (m *Manager) Complete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phase = PhaseComplete
}

func (m *Manager) calculateStateRootLocked() types.Hash {
	addrs := make([]types.Address, 0, len(m.accounts))
	for a := range m.accounts {
		addrs = append(addrs, a)
	}
	if len(addrs) == 0 {
		return types.Hash{}
	}
	sort.Slice(addrs, func(i, j int) bool {
		return lessAddress(addrs[i], addrs[j])
	})
	leaves := make([]common.Hash, len(addrs))
	for i, a := range addrs {
		leaves[i] = accountLeafHash(a, m.accounts[a])
	}
	root, _ := cryptoutil.BuildDomainSeparatedTree(leaves)
	return root
}

func lessAddress(a, b types.Address) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// Accounts returns a snapshot of every downloaded account.
func (m *Manager) Accounts() map[types.Address]types.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[types.Address]types.Account, len(m.accounts))
	for k, v := range m.accounts {
		out[k] = v
	}
	return out
}

// Progress returns (accountsSynced, bytesDownloaded) for telemetry.
func (m *Manager) Progress() (uint64, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accountsSynced, m.bytesDownloaded
}
