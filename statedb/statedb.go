// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package statedb implements the in-memory account/contract/storage
// snapshot at the chain tip, with the snapshot/merge contract
// transaction execution relies on.
package statedb

import (
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/luxfi/luxtensor/cryptoutil"
	"github.com/luxfi/luxtensor/storage"
	"github.com/luxfi/luxtensor/types"
)

// storageKey joins an address and a storage slot into one map key.
type storageKey struct {
	addr types.Address
	slot types.Hash
}

// DB is the live account/code/storage view at the chain tip. Callers
// never hold its lock across an EVM call: transaction execution runs
// against a throwaway Snapshot taken under a short read lock, and only
// the post-execution merge takes a short write lock; state_db is only
// ever held inside these scoped blocks.
type DB struct {
	mu       sync.RWMutex
	accounts map[types.Address]*types.Account
	storageM map[storageKey]types.Hash
	code     *fastcache.Cache // codeHash -> bytecode

	rootCache map[types.Height]types.Hash // merkle-root-by-height cache
}

// New returns an empty state DB with a 64 MiB code cache.
func New() *DB {
	return &DB{
		accounts:  make(map[types.Address]*types.Account),
		storageM:  make(map[storageKey]types.Hash),
		code:      fastcache.New(64 << 20),
		rootCache: make(map[types.Height]types.Hash),
	}
}

func (db *DB) GetAccount(addr types.Address) (*types.Account, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	a, ok := db.accounts[addr]
	return a, ok
}

func (db *DB) SetAccount(addr types.Address, acc *types.Account) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.accounts[addr] = acc
}

func (db *DB) GetCode(codeHash types.Hash) ([]byte, bool) {
	if codeHash == types.EmptyCodeHash {
		return nil, true
	}
	if c, ok := db.code.HasGet(nil, codeHash[:]); ok {
		return c, true
	}
	return nil, false
}

func (db *DB) SetCode(code []byte) types.Hash {
	hash := cryptoutil.Keccak256(code)
	db.code.Set(hash[:], code)
	return hash
}

func (db *DB) GetStorage(addr types.Address, key types.Hash) (types.Hash, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	v, ok := db.storageM[storageKey{addr, key}]
	return v, ok
}

func (db *DB) SetStorage(addr types.Address, key, value types.Hash) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.storageM[storageKey{addr, key}] = value
}

// Snapshot is the throwaway, copy-on-write-free account view
// transaction execution runs against. It is NOT concurrency-safe on
// its own — each block-production attempt owns exactly one Snapshot.
type Snapshot struct {
	accounts map[types.Address]*types.Account
	storageM map[storageKey]types.Hash
}

// SnapshotAccounts takes a snapshot of the current account and storage
// maps under a read lock only.
func (db *DB) SnapshotAccounts() *Snapshot {
	db.mu.RLock()
	defer db.mu.RUnlock()
	s := &Snapshot{
		accounts: make(map[types.Address]*types.Account, len(db.accounts)),
		storageM: make(map[storageKey]types.Hash, len(db.storageM)),
	}
	for addr, acc := range db.accounts {
		cp := *acc
		cp.Balance = new(big.Int).Set(acc.Balance)
		s.accounts[addr] = &cp
	}
	for k, v := range db.storageM {
		s.storageM[k] = v
	}
	return s
}

func (s *Snapshot) GetAccount(addr types.Address) (*types.Account, bool) {
	a, ok := s.accounts[addr]
	return a, ok
}

func (s *Snapshot) SetAccount(addr types.Address, acc *types.Account) {
	s.accounts[addr] = acc
}

func (s *Snapshot) GetStorage(addr types.Address, key types.Hash) (types.Hash, bool) {
	v, ok := s.storageM[storageKey{addr, key}]
	return v, ok
}

func (s *Snapshot) SetStorage(addr types.Address, key, value types.Hash) {
	s.storageM[storageKey{addr, key}] = value
}

// MergeAccounts merges a post-execution snapshot back into the live
// DB under a short write lock.
func (db *DB) MergeAccounts(s *Snapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for addr, acc := range s.accounts {
		db.accounts[addr] = acc
	}
	for k, v := range s.storageM {
		db.storageM[k] = v
	}
}

// Commit computes the state root (Merkle tree over accounts sorted by
// address) and caches it by height.
func (db *DB) Commit(height types.Height) types.Hash {
	db.mu.RLock()
	addrs := make([]types.Address, 0, len(db.accounts))
	for addr := range db.accounts {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return bytesLess(addrs[i][:], addrs[j][:]) })
	leaves := make([]types.Hash, len(addrs))
	for i, addr := range addrs {
		leaves[i] = db.accounts[addr].Leaf(addr)
	}
	db.mu.RUnlock()

	root := cryptoutil.MerkleRoot(leaves)
	db.mu.Lock()
	db.rootCache[height] = root
	db.mu.Unlock()
	return root
}

// RootAt returns the cached state root for height, if known.
func (db *DB) RootAt(height types.Height) (types.Hash, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	r, ok := db.rootCache[height]
	return r, ok
}

// FlushToDB writes every account's inline contract code to the
// contracts column family and strips it from memory, making it
// lazy-loadable again by code hash. Balances, nonces and storage
// slots are not written to the durable store.
func (db *DB) FlushToDB(store *storage.Store) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for addr, acc := range db.accounts {
		if len(acc.Code) > 0 {
			hash := db.SetCode(acc.Code)
			acc.CodeHash = hash
			if err := store.Put(storage.CFContracts, addr[:], acc.Code); err != nil {
				return fmt.Errorf("statedb: persist contract %s: %w", addr, err)
			}
			acc.Code = nil // strip inline bytecode, re-hydrate lazily from storage
		}
	}
	return nil
}

func bytesLess(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
