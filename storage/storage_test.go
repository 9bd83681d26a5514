// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package storage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/luxtensor/types"
)

func openTestStore(t *testing.T) *Store {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func testBlock(height types.Height, previous types.Hash) *types.Block {
	return &types.Block{
		Header: &types.Header{
			Version:      1,
			Height:       height,
			PreviousHash: previous,
			GasLimit:     8_000_000,
		},
	}
}

func TestPutGetDeleteRoundTrip(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Put(CFMetadata, []byte("k"), []byte("v")))
	v, ok, err := s.Get(CFMetadata, []byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)

	require.NoError(t, s.Delete(CFMetadata, []byte("k")))
	_, ok, err = s.Get(CFMetadata, []byte("k"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetMissingKeyReturnsNotFoundNoError(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.Get(CFBlocks, []byte("nope"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestColumnFamiliesDoNotCollide(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Put(CFBlocks, []byte("x"), []byte("blocks-value")))
	require.NoError(t, s.Put(CFHeaders, []byte("x"), []byte("headers-value")))

	v, ok, err := s.Get(CFBlocks, []byte("x"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("blocks-value"), v)

	v, ok, err = s.Get(CFHeaders, []byte("x"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("headers-value"), v)
}

func TestIteratePrefixVisitsOnlyMatchingKeysInOrder(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Put(CFContracts, []byte("aa"), []byte("1")))
	require.NoError(t, s.Put(CFContracts, []byte("ab"), []byte("2")))
	require.NoError(t, s.Put(CFContracts, []byte("ba"), []byte("3")))

	var got []string
	require.NoError(t, s.IteratePrefix(CFContracts, []byte("a"), func(key, value []byte) bool {
		got = append(got, string(key))
		return true
	}))
	require.Equal(t, []string{"aa", "ab"}, got)
}

func TestIteratePrefixStopsEarly(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Put(CFContracts, []byte("a1"), []byte("1")))
	require.NoError(t, s.Put(CFContracts, []byte("a2"), []byte("2")))

	count := 0
	require.NoError(t, s.IteratePrefix(CFContracts, []byte("a"), func(key, value []byte) bool {
		count++
		return false
	}))
	require.Equal(t, 1, count)
}

func TestDeleteColumnRemovesOnlyThatColumn(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Put(CFWeights, []byte("k"), []byte("v")))
	require.NoError(t, s.Put(CFNeurons, []byte("k"), []byte("v")))

	require.NoError(t, s.DeleteColumn(CFWeights))

	_, ok, err := s.Get(CFWeights, []byte("k"))
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = s.Get(CFNeurons, []byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestStoreBlockPersistsBlockHeaderHeightIndexAndBestHeight(t *testing.T) {
	s := openTestStore(t)
	block := testBlock(1, types.Hash{})
	hash, err := block.Hash()
	require.NoError(t, err)

	encodedBlock, err := block.Header.Encode()
	require.NoError(t, err)
	encodedHeader, err := block.Header.Encode()
	require.NoError(t, err)

	require.NoError(t, s.StoreBlock(block, encodedBlock, encodedHeader, nil))

	v, ok, err := s.Get(CFBlocks, hash[:])
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, encodedBlock, v)

	gotHash, ok, err := s.HashAtHeight(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, hash, gotHash)

	best, known := s.BestHeight()
	require.True(t, known)
	require.Equal(t, types.Height(1), best)
}

func TestStoreBlockIndexesTransactionToBlock(t *testing.T) {
	s := openTestStore(t)
	block := testBlock(1, types.Hash{})
	txHash := types.Hash{0xaa}

	encoded, err := block.Header.Encode()
	require.NoError(t, err)
	require.NoError(t, s.StoreBlock(block, encoded, encoded, []types.Hash{txHash}))

	hash, err := block.Hash()
	require.NoError(t, err)

	v, ok, err := s.Get(CFTxToBlock, txHash[:])
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, hash[:], v)
}

func TestHashAtHeightUnknownReturnsFalse(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.HashAtHeight(99)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFetchMaxBestHeightOnlyIncreases(t *testing.T) {
	s := openTestStore(t)
	s.FetchMaxBestHeight(10)
	best, known := s.BestHeight()
	require.True(t, known)
	require.Equal(t, types.Height(10), best)

	s.FetchMaxBestHeight(5)
	best, _ = s.BestHeight()
	require.Equal(t, types.Height(10), best)

	s.FetchMaxBestHeight(20)
	best, _ = s.BestHeight()
	require.Equal(t, types.Height(20), best)
}

func TestPruneBlocksBeforeKeepsGenesisAndAboveCutoff(t *testing.T) {
	s := openTestStore(t)
	var previous types.Hash
	hashes := make([]types.Hash, 5)
	for h := types.Height(0); h < 5; h++ {
		block := testBlock(h, previous)
		encoded, err := block.Header.Encode()
		require.NoError(t, err)
		require.NoError(t, s.StoreBlock(block, encoded, encoded, nil))
		hash, err := block.Hash()
		require.NoError(t, err)
		hashes[h] = hash
		previous = hash
	}

	require.NoError(t, s.PruneBlocksBefore(3))

	// Genesis (height 0) survives unconditionally.
	_, ok, err := s.Get(CFBlocks, hashes[0][:])
	require.NoError(t, err)
	require.True(t, ok)

	// Heights 1 and 2 are pruned.
	_, ok, err = s.Get(CFBlocks, hashes[1][:])
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = s.Get(CFBlocks, hashes[2][:])
	require.NoError(t, err)
	require.False(t, ok)

	// Height 3 and above survive.
	_, ok, err = s.Get(CFBlocks, hashes[3][:])
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPruneBlocksBeforeZeroIsNoop(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.PruneBlocksBefore(0))
}

func TestPruneReceiptsBeforeRemovesOldReceiptsOnly(t *testing.T) {
	s := openTestStore(t)
	var previous types.Hash
	hashes := make([]types.Hash, 3)
	for h := types.Height(0); h < 3; h++ {
		block := testBlock(h, previous)
		encoded, err := block.Header.Encode()
		require.NoError(t, err)
		require.NoError(t, s.StoreBlock(block, encoded, encoded, nil))
		hash, err := block.Hash()
		require.NoError(t, err)
		hashes[h] = hash
		require.NoError(t, s.Put(CFReceipts, hash[:], []byte("receipt")))
		previous = hash
	}

	require.NoError(t, s.PruneReceiptsBefore(2))

	_, ok, err := s.Get(CFReceipts, hashes[1][:])
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = s.Get(CFReceipts, hashes[2][:])
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSaveCheckpointPersistsEncodedBytes(t *testing.T) {
	s := openTestStore(t)
	cp := types.Checkpoint{Height: 4096, BlockHash: types.Hash{0x01}, StateRoot: types.Hash{0x02}}
	encoded := []byte("checkpoint-payload")

	require.NoError(t, s.SaveCheckpoint(cp, encoded))

	v, ok, err := s.Get(CFCheckpoints, HeightKey(cp.Height))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, encoded, v)
}

func TestReopenRecoversBestHeight(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	block := testBlock(7, types.Hash{})
	encoded, err := block.Header.Encode()
	require.NoError(t, err)
	require.NoError(t, s.StoreBlock(block, encoded, encoded, nil))
	require.NoError(t, s.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	best, known := reopened.BestHeight()
	require.True(t, known)
	require.Equal(t, types.Height(7), best)
}

func TestBatchCommitIsAtomicAcrossColumns(t *testing.T) {
	s := openTestStore(t)
	bt := s.NewBatch()
	bt.Put(CFBlocks, []byte("a"), []byte("1"))
	bt.Put(CFHeaders, []byte("a"), []byte("2"))
	bt.Delete(CFBlocks, []byte("missing"))
	require.NoError(t, s.CommitBatch(bt))

	v, ok, err := s.Get(CFBlocks, []byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)

	v, ok, err = s.Get(CFHeaders, []byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("2"), v)
}
