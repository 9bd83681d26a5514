// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package storage implements a typed, column-family-keyed key-value
// store over pebble, with a write-atomic store_block batch and
// scheduled pruning/checkpointing.
//
// This package gives the rest of the core a typed interface backed by
// pebble (see DESIGN.md) rather than a RocksDB binding.
package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
	"github.com/cockroachdb/pebble"
	log "github.com/luxfi/log"
	"github.com/luxfi/luxtensor/types"
)

// ColumnFamily names the logical key spaces this package manages.
// pebble has no native column families, so each CF is a key prefix.
type ColumnFamily byte

const (
	CFBlocks ColumnFamily = iota
	CFHeaders
	CFTransactions
	CFHeightToHash
	CFTxToBlock
	CFMetadata
	CFReceipts
	CFContracts
	CFStakes
	CFSubnets
	CFNeurons
	CFWeights
	CFValidators
	CFCheckpoints
)

var ErrGenesisProtected = errors.New("storage: pruning may not remove genesis")

// metaBestHeightKey is the metadata key holding the big-endian u64
// best height.
var metaBestHeightKey = []byte("best_height")

func cfKey(cf ColumnFamily, key []byte) []byte {
	out := make([]byte, 1+len(key))
	out[0] = byte(cf)
	copy(out[1:], key)
	return out
}

// HeightKey encodes a block height as an 8-byte big-endian key, the
// layout used for height_to_hash.
func HeightKey(h types.Height) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(h))
	return b[:]
}

// Store is the column-family KV store.
type Store struct {
	db *pebble.DB

	bestHeight      atomic.Uint64
	bestHeightKnown atomic.Bool

	heightCache *lru.Cache // height -> hash, avoids a disk read on the common path
	mu          sync.Mutex // guards multi-step pruning/checkpoint scheduling
}

// Open opens (or creates) a pebble database at dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", dir, err)
	}
	cache, _ := lru.New(4096)
	s := &Store{db: db, heightCache: cache}
	if v, ok, err := s.get(CFMetadata, metaBestHeightKey); err == nil && ok {
		s.bestHeight.Store(binary.BigEndian.Uint64(v))
		s.bestHeightKnown.Store(true)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) get(cf ColumnFamily, key []byte) ([]byte, bool, error) {
	v, closer, err := s.db.Get(cfKey(cf, key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	out := append([]byte(nil), v...)
	closer.Close()
	return out, true, nil
}

// Get reads a single value from cf.
func (s *Store) Get(cf ColumnFamily, key []byte) ([]byte, bool, error) {
	return s.get(cf, key)
}

// Put writes a single value to cf.
func (s *Store) Put(cf ColumnFamily, key, value []byte) error {
	return s.db.Set(cfKey(cf, key), value, pebble.Sync)
}

// Delete removes a single key from cf.
func (s *Store) Delete(cf ColumnFamily, key []byte) error {
	return s.db.Delete(cfKey(cf, key), pebble.Sync)
}

// IteratePrefix calls fn for every key in cf with the given prefix,
// stopping early if fn returns false.
func (s *Store) IteratePrefix(cf ColumnFamily, prefix []byte, fn func(key, value []byte) bool) error {
	lower := cfKey(cf, prefix)
	upper := append([]byte(nil), lower...)
	upper = incrementBytes(upper)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return err
	}
	defer it.Close()
	for it.First(); it.Valid(); it.Next() {
		k := it.Key()[1:] // strip CF prefix byte
		if !fn(append([]byte(nil), k...), append([]byte(nil), it.Value()...)) {
			break
		}
	}
	return it.Error()
}

// DeleteColumn removes every key in cf (column-scoped delete, spec
// §4.1).
func (s *Store) DeleteColumn(cf ColumnFamily) error {
	lower := []byte{byte(cf)}
	upper := incrementBytes(append([]byte(nil), lower...))
	return s.db.DeleteRange(lower, upper, pebble.Sync)
}

func incrementBytes(b []byte) []byte {
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return b[:i+1]
		}
	}
	return append(b, 0xff) // all-0xff prefix: extend so range remains valid
}

// Batch accumulates puts/deletes for one atomic write.
type Batch struct {
	b *pebble.Batch
}

func (s *Store) NewBatch() *Batch { return &Batch{b: s.db.NewBatch()} }

func (bt *Batch) Put(cf ColumnFamily, key, value []byte) { bt.b.Set(cfKey(cf, key), value, nil) }
func (bt *Batch) Delete(cf ColumnFamily, key []byte)      { bt.b.Delete(cfKey(cf, key), nil) }

func (s *Store) CommitBatch(bt *Batch) error {
	return bt.b.Commit(pebble.Sync)
}

// FetchMaxBestHeight is the fetch_max update the P2P handler uses
// after persisting a block it didn't produce itself.
func (s *Store) FetchMaxBestHeight(h types.Height) {
	for {
		cur := s.bestHeight.Load()
		if uint64(h) <= cur && s.bestHeightKnown.Load() {
			return
		}
		if s.bestHeight.CompareAndSwap(cur, uint64(h)) {
			s.bestHeightKnown.Store(true)
			return
		}
	}
}

// BestHeight returns the in-memory best-height cache value and whether
// it has ever been set (false only on a fresh, empty chain).
func (s *Store) BestHeight() (types.Height, bool) {
	return types.Height(s.bestHeight.Load()), s.bestHeightKnown.Load()
}

// StoreBlock performs the write-atomic batch this package requires:
// blocks[hash], headers[hash], height_to_hash[h], tx_to_block[txh] for
// every tx, and metadata[best_height], all in one pebble batch so a
// crash mid-write leaves either all or none visible.
func (s *Store) StoreBlock(block *types.Block, encodedBlock, encodedHeader []byte, txHashes []types.Hash) error {
	hash, err := block.Hash()
	if err != nil {
		return fmt.Errorf("storage: hash block: %w", err)
	}
	bt := s.NewBatch()
	bt.Put(CFBlocks, hash[:], encodedBlock)
	bt.Put(CFHeaders, hash[:], encodedHeader)
	bt.Put(CFHeightToHash, HeightKey(block.Header.Height), hash[:])
	for _, txh := range txHashes {
		bt.Put(CFTxToBlock, txh[:], hash[:])
	}
	var bh [8]byte
	binary.BigEndian.PutUint64(bh[:], uint64(block.Header.Height))
	bt.Put(CFMetadata, metaBestHeightKey, bh[:])

	if err := s.CommitBatch(bt); err != nil {
		return fmt.Errorf("storage: store_block: %w", err)
	}
	s.bestHeight.Store(uint64(block.Header.Height))
	s.bestHeightKnown.Store(true)
	if s.heightCache != nil {
		s.heightCache.Add(block.Header.Height, hash)
	}
	return nil
}

// HashAtHeight looks up a block hash by height, consulting the LRU
// cache before disk.
func (s *Store) HashAtHeight(h types.Height) (types.Hash, bool, error) {
	if s.heightCache != nil {
		if v, ok := s.heightCache.Get(h); ok {
			return v.(types.Hash), true, nil
		}
	}
	v, ok, err := s.get(CFHeightToHash, HeightKey(h))
	if err != nil || !ok {
		return types.Hash{}, ok, err
	}
	var hash types.Hash
	copy(hash[:], v)
	if s.heightCache != nil {
		s.heightCache.Add(h, hash)
	}
	return hash, true, nil
}

// PruneBlocksBefore removes blocks/headers strictly below keepFrom,
// except genesis (height 0), which is never prunable.
func (s *Store) PruneBlocksBefore(keepFrom types.Height) error {
	if keepFrom == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for h := types.Height(1); h < keepFrom; h++ {
		hash, ok, err := s.HashAtHeight(h)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		bt := s.NewBatch()
		bt.Delete(CFBlocks, hash[:])
		bt.Delete(CFHeaders, hash[:])
		if err := s.CommitBatch(bt); err != nil {
			return err
		}
	}
	return nil
}

// PruneReceiptsBefore removes receipts older than KEEP_RECEIPTS_BLOCKS,
// called on a PRUNING_INTERVAL schedule by the owning component.
func (s *Store) PruneReceiptsBefore(keepFrom types.Height) error {
	if keepFrom == 0 {
		return nil
	}
	for h := types.Height(1); h < keepFrom; h++ {
		hash, ok, err := s.HashAtHeight(h)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := s.Delete(CFReceipts, hash[:]); err != nil {
			return err
		}
	}
	return nil
}

// SaveCheckpoint persists a {height, block_hash, state_root} snapshot.
func (s *Store) SaveCheckpoint(cp types.Checkpoint, encoded []byte) error {
	log.Info("storage: saving checkpoint", "height", cp.Height, "hash", cp.BlockHash)
	return s.Put(CFCheckpoints, HeightKey(cp.Height), encoded)
}

const (
	// CheckpointInterval is the default height stride between
	// checkpoints.
	CheckpointInterval types.Height = 4096
	// KeepReceiptsBlocks is the default receipt-retention window.
	KeepReceiptsBlocks types.Height = 90_000
	// PruningInterval is the default height stride between scheduled
	// pruning runs.
	PruningInterval types.Height = 1024
)
