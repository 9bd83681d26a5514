// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package statesync

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/luxtensor/cryptoutil"
	"github.com/luxfi/luxtensor/types"
)

func addr(b byte) types.Address {
	var a types.Address
	a[19] = b
	return a
}

// fakePeer serves one fixed account set and an empty storage set,
// proving the range in a single response (has_more = false).
type fakePeer struct {
	accounts []AccountEntry
	root     types.Hash
	tamper   bool
}

func newFakePeer(accounts []AccountEntry) *fakePeer {
	return &fakePeer{accounts: accounts}
}

func (p *fakePeer) RequestStateRange(ctx context.Context, req GetStateRange) (StateRange, error) {
	leaves := make([]common.Hash, len(p.accounts))
	for i, e := range p.accounts {
		leaves[i] = accountLeafHash(e.Address, e.Account)
	}
	root, proofs := cryptoutil.BuildDomainSeparatedTree(leaves)
	p.root = root

	var proof cryptoutil.MerkleProof
	if len(proofs) > 0 {
		proof = proofs[0]
	}
	if p.tamper {
		if len(proof.Siblings) > 0 {
			proof.Siblings[0][0] ^= 0xff
		} else {
			// A single-leaf tree has no sibling to corrupt; forge one.
			proof.Siblings = []common.Hash{{0xff}}
			proof.LeftAt = []bool{false}
		}
	}
	return StateRange{Accounts: p.accounts, Proof: proof, HasMore: false}, nil
}

func (p *fakePeer) RequestStorageRange(ctx context.Context, req GetStorageRange) (StorageRange, error) {
	return StorageRange{Slots: nil, HasMore: false}, nil
}

func TestSelectPivotClampsWhenBehindShort(t *testing.T) {
	m := New(DefaultConfig())
	m.SelectPivot(10, types.Hash{1}, types.Hash{2})
	h, ok := m.PivotHeight()
	require.True(t, ok)
	require.Equal(t, types.Height(0), h)
}

func TestSelectPivotUsesDefaultBehind(t *testing.T) {
	m := New(DefaultConfig())
	m.SelectPivot(1000, types.Hash{1}, types.Hash{2})
	h, ok := m.PivotHeight()
	require.True(t, ok)
	require.Equal(t, types.Height(1000-DefaultPivotBehind), h)
}

func TestRunAndFinalizeSucceedsWithValidProof(t *testing.T) {
	accounts := []AccountEntry{
		{Address: addr(1), Account: types.Account{Balance: big.NewInt(100), Nonce: 1, StorageRoot: types.Hash{}, CodeHash: types.EmptyCodeHash}},
	}
	peer := newFakePeer(accounts)
	// Compute the root once up front so SelectPivot can be told the
	// correct pivot state root to verify against.
	resp, err := peer.RequestStateRange(context.Background(), GetStateRange{})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Accounts)

	m := New(Config{PivotBehind: 0, ParallelDownloads: 1, ChunkSize: 10})
	m.SelectPivot(0, types.Hash{}, peer.root)

	require.NoError(t, m.Run(context.Background(), peer))
	root, err := m.Finalize()
	require.NoError(t, err)
	require.Equal(t, peer.root, root)
}

func TestRunRejectsTamperedProof(t *testing.T) {
	accounts := []AccountEntry{
		{Address: addr(1), Account: types.Account{Balance: big.NewInt(100), Nonce: 1, CodeHash: types.EmptyCodeHash}},
	}
	peer := newFakePeer(accounts)
	resp, err := peer.RequestStateRange(context.Background(), GetStateRange{})
	require.NoError(t, err)
	_ = resp
	peer.tamper = true

	m := New(Config{PivotBehind: 0, ParallelDownloads: 1, ChunkSize: 10})
	m.SelectPivot(0, types.Hash{}, peer.root)

	err = m.Run(context.Background(), peer)
	require.ErrorIs(t, err, ErrInvalidProof)
}

func TestFinalizeDetectsWrongPivotRoot(t *testing.T) {
	accounts := []AccountEntry{
		{Address: addr(1), Account: types.Account{Balance: big.NewInt(100), Nonce: 1, CodeHash: types.EmptyCodeHash}},
	}
	peer := newFakePeer(accounts)
	_, err := peer.RequestStateRange(context.Background(), GetStateRange{})
	require.NoError(t, err)

	m := New(Config{PivotBehind: 0, ParallelDownloads: 1, ChunkSize: 10})
	m.SelectPivot(0, types.Hash{}, peer.root)

	require.NoError(t, m.Run(context.Background(), peer))
	// Re-pivot onto a different state root: the downloaded accounts no
	// longer hash to the pivot's root.
	m.SelectPivot(0, types.Hash{}, types.Hash{0xde, 0xad})
	_, err = m.Finalize()
	require.ErrorIs(t, err, ErrStateRootMismatch)
}
