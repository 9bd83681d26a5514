// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pos

import (
	"math/big"
	"sync"

	"github.com/luxfi/luxtensor/types"
)

// blockNode is one entry in the fork-choice block tree.
type blockNode struct {
	hash       types.Hash
	parent     types.Hash
	height     types.Height
	children   []types.Hash
	attestWeight *big.Int // stake-weighted attestations directly on this block
}

// ForkChoice implements the GHOST rule: subtree weight is the sum of
// stake-weighted attestations over a block's descendants;
// the head is chosen by heaviest subtree, tie-broken by lowest height
// then lowest hash. A previously-known ancestor of greater weight can
// always be reverted to, since fast finality below is the only
// non-revertible guarantee.
type ForkChoice struct {
	mu    sync.RWMutex
	nodes map[types.Hash]*blockNode
	root  types.Hash // finalized/genesis root, never revertible past
	head  types.Hash
}

func NewForkChoice(genesisHash types.Hash) *ForkChoice {
	fc := &ForkChoice{nodes: make(map[types.Hash]*blockNode)}
	fc.nodes[genesisHash] = &blockNode{hash: genesisHash, attestWeight: new(big.Int)}
	fc.root = genesisHash
	fc.head = genesisHash
	return fc
}

// AddBlock registers a new block in the tree under parent.
func (fc *ForkChoice) AddBlock(hash, parent types.Hash, height types.Height) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if _, exists := fc.nodes[hash]; exists {
		return
	}
	fc.nodes[hash] = &blockNode{hash: hash, parent: parent, height: height, attestWeight: new(big.Int)}
	if p, ok := fc.nodes[parent]; ok {
		p.children = append(p.children, hash)
	}
}

// AddAttestation adds weight of stake to hash's own attestation
// weight. Block producers auto-sign on proposal, and explicit
// attestations accumulate the same way.
func (fc *ForkChoice) AddAttestation(hash types.Hash, weight *big.Int) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	n, ok := fc.nodes[hash]
	if !ok {
		return
	}
	n.attestWeight.Add(n.attestWeight, weight)
}

// subtreeWeight recursively sums a node's own attestation weight plus
// every descendant's. Caller holds fc.mu.
func (fc *ForkChoice) subtreeWeight(hash types.Hash) *big.Int {
	n := fc.nodes[hash]
	sum := new(big.Int).Set(n.attestWeight)
	for _, c := range n.children {
		sum.Add(sum, fc.subtreeWeight(c))
	}
	return sum
}

// Head recomputes the canonical head by walking from root, at each
// step following the child with the heaviest subtree (ties broken by
// lowest height, then lowest hash).
func (fc *ForkChoice) Head() types.Hash {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	cur := fc.root
	for {
		n := fc.nodes[cur]
		if len(n.children) == 0 {
			break
		}
		best := n.children[0]
		bestWeight := fc.subtreeWeight(best)
		for _, c := range n.children[1:] {
			w := fc.subtreeWeight(c)
			if isHeavierChild(w, bestWeight, fc.nodes[c], fc.nodes[best]) {
				best, bestWeight = c, w
			}
		}
		cur = best
	}
	fc.head = cur
	return cur
}

func isHeavierChild(w, bestWeight *big.Int, candidate, best *blockNode) bool {
	switch w.Cmp(bestWeight) {
	case 1:
		return true
	case -1:
		return false
	}
	if candidate.height != best.height {
		return candidate.height < best.height
	}
	return lessHash(candidate.hash, best.hash)
}

func lessHash(a, b types.Hash) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// SetRoot advances the never-revertible root, e.g. once fast finality
// confirms a block. Fork choice is always updated after fast finality
// in the lock ordering so the two never disagree on the root.
func (fc *ForkChoice) SetRoot(hash types.Hash) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if _, ok := fc.nodes[hash]; ok {
		fc.root = hash
	}
}
