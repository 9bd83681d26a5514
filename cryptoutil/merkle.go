// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cryptoutil

import "github.com/luxfi/geth/common"

// domain-separation prefixes for the state-sync Merkle tree: 0x00 for
// leaves, 0x01 for internal nodes, preventing a second-preimage attack
// where an internal node is replayed as a leaf.
const (
	leafPrefix     byte = 0x00
	internalPrefix byte = 0x01
)

// MerkleRoot computes a binary Merkle root over leaves using plain
// (non-domain-separated) keccak256 pair hashing — used for
// txs_root/receipts_root, where the tree is rebuilt from scratch every
// block and no inclusion proof crosses the wire. Returns the zero hash
// for an empty input.
func MerkleRoot(leaves []common.Hash) common.Hash {
	if len(leaves) == 0 {
		return common.Hash{}
	}
	level := append([]common.Hash(nil), leaves...)
	for len(level) > 1 {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, Keccak256(level[i][:], level[i+1][:]))
			} else {
				next = append(next, Keccak256(level[i][:], level[i][:]))
			}
		}
		level = next
	}
	return level[0]
}

// DomainSeparatedLeafHash and DomainSeparatedInternalHash implement the
// state-sync Merkle scheme: every leaf and internal node hash is
// prefixed with a domain tag before hashing, so a malicious
// prover cannot graft an internal node's hash in as a leaf (or vice
// versa) and still produce a colliding root.
func DomainSeparatedLeafHash(data []byte) common.Hash {
	return Keccak256([]byte{leafPrefix}, data)
}

func DomainSeparatedInternalHash(left, right common.Hash) common.Hash {
	return Keccak256([]byte{internalPrefix}, left[:], right[:])
}

// MerkleProof is an inclusion proof for one leaf in a domain-separated
// Merkle tree: the sibling hash at each level from the leaf upward,
// and whether that sibling is the left or right child.
type MerkleProof struct {
	Siblings []common.Hash
	// LeftAt[i] is true if the sibling at level i is the LEFT child
	// (i.e. the proven node is the right child at that level).
	LeftAt []bool
}

// BuildDomainSeparatedTree builds a full domain-separated Merkle tree
// over pre-hashed leaves and returns (root, proof-for-each-leaf). Used
// by the state-sync verifier's test/reference implementation and by
// any component constructing a range response server-side.
func BuildDomainSeparatedTree(leafHashes []common.Hash) (common.Hash, []MerkleProof) {
	n := len(leafHashes)
	if n == 0 {
		return common.Hash{}, nil
	}
	levels := [][]common.Hash{append([]common.Hash(nil), leafHashes...)}
	for len(levels[len(levels)-1]) > 1 {
		cur := levels[len(levels)-1]
		next := make([]common.Hash, 0, (len(cur)+1)/2)
		for i := 0; i < len(cur); i += 2 {
			if i+1 < len(cur) {
				next = append(next, DomainSeparatedInternalHash(cur[i], cur[i+1]))
			} else {
				next = append(next, DomainSeparatedInternalHash(cur[i], cur[i]))
			}
		}
		levels = append(levels, next)
	}
	root := levels[len(levels)-1][0]

	proofs := make([]MerkleProof, n)
	for leaf := 0; leaf < n; leaf++ {
		idx := leaf
		var p MerkleProof
		for lvl := 0; lvl < len(levels)-1; lvl++ {
			cur := levels[lvl]
			siblingIdx := idx ^ 1
			var sibling common.Hash
			leftSibling := idx%2 == 1
			if siblingIdx < len(cur) {
				sibling = cur[siblingIdx]
			} else {
				sibling = cur[idx] // duplicated odd node
			}
			p.Siblings = append(p.Siblings, sibling)
			p.LeftAt = append(p.LeftAt, leftSibling)
			idx /= 2
		}
		proofs[leaf] = p
	}
	return root, proofs
}

// VerifyDomainSeparatedProof recomputes the root from leafHash and
// proof and reports whether it matches root.
func VerifyDomainSeparatedProof(leafHash common.Hash, proof MerkleProof, root common.Hash) bool {
	cur := leafHash
	for i, sibling := range proof.Siblings {
		if proof.LeftAt[i] {
			cur = DomainSeparatedInternalHash(sibling, cur)
		} else {
			cur = DomainSeparatedInternalHash(cur, sibling)
		}
	}
	return cur == root
}
