// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package types

// Snapshot is a snap-sync pivot descriptor.
type Snapshot struct {
	BlockNumber   Height
	BlockHash     Hash
	StateRoot     Hash
	AccountCount  uint64
	StorageCount  uint64
}

// Checkpoint is the durable {height, block_hash, state_root} record
// persisted every CHECKPOINT_INTERVAL blocks and used by long-range
// protection to refuse disagreeing reorgs.
type Checkpoint struct {
	Height    Height
	BlockHash Hash
	StateRoot Hash
}
