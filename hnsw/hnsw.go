// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package hnsw implements a deterministic, fixed-point hierarchical
// navigable small-world index. Level assignment draws only from a
// caller-supplied deterministic RNG seeded from block artifacts —
// never wall-clock or OS randomness — so that two nodes replaying the
// same block transactions in the same order build byte-identical
// graphs.
package hnsw

import (
	"errors"
	"math"
	"sort"

	"github.com/luxfi/luxtensor/fixedpoint"
)

const (
	M             = 16
	M0            = 32
	EfConstruction = 200
	EfSearch      = 64
	MaxLayer      = 16
	MaxCapacity   = 5_000_000
)

// ml = 1/ln(M), the level-assignment scale factor.
var ml = 1 / math.Log(float64(M))

var (
	ErrCapacityExceeded = errors.New("hnsw: index at MAX_CAPACITY")
	ErrDimensionMismatch = errors.New("hnsw: vector dimension mismatch")
	ErrNodeNotFound      = errors.New("hnsw: node id not found")
)

// DeterministicRNG is the seeded source of randomness level assignment
// draws from. Callers seed it from consensus artifacts (typically
// keccak256(tx_hash ‖ block_hash)) — never from time.Now or
// crypto/rand.
type DeterministicRNG interface {
	// Float64 returns a value in [0, 1).
	Float64() float64
}

// Node is one HNSW graph node. Neighbors is indexed by layer;
// Neighbors[l] holds the neighbor IDs at layer l. IDs are
// monotonically assigned and never reused; Deleted is a tombstone
// flag, never a removal — nodes are never moved or renumbered.
type Node struct {
	ID        uint64
	Vector    []fixedpoint.I64F32
	Level     int
	Neighbors [][]uint64
	Deleted   bool
}

// Index is the full HNSW graph, owned entirely by this package.
type Index struct {
	dimension int
	nodes     map[uint64]*Node
	nextID    uint64
	entryID   uint64
	hasEntry  bool
	maxLevel  int
}

// New returns an empty index for vectors of the given dimension.
func New(dimension int) *Index {
	return &Index{dimension: dimension, nodes: make(map[uint64]*Node)}
}

func (idx *Index) Len() int { return len(idx.nodes) }

func (idx *Index) distance(a, b []fixedpoint.I64F32) fixedpoint.I64F32 {
	return fixedpoint.SquaredEuclidean(a, b)
}

// assignLevel draws a level from the geometric distribution used by
// HNSW: level = floor(-ln(U) * ml), capped at MaxLayer.
func assignLevel(rng DeterministicRNG) int {
	u := rng.Float64()
	if u <= 0 {
		u = 1e-12 // avoid ln(0); vanishingly unlikely with a real RNG, but keeps the draw total
	}
	lvl := int(math.Floor(-math.Log(u) * ml))
	if lvl > MaxLayer {
		lvl = MaxLayer
	}
	return lvl
}

// Insert adds vector to the graph using rng for level assignment.
// Callers MUST insert in block transaction order for determinism.
func (idx *Index) Insert(vector []fixedpoint.I64F32, rng DeterministicRNG) (*Node, error) {
	if len(vector) != idx.dimension {
		return nil, ErrDimensionMismatch
	}
	if len(idx.nodes) >= MaxCapacity {
		return nil, ErrCapacityExceeded
	}

	level := assignLevel(rng)
	node := &Node{
		ID:        idx.nextID,
		Vector:    vector,
		Level:     level,
		Neighbors: make([][]uint64, level+1),
	}
	idx.nextID++
	idx.nodes[node.ID] = node

	if !idx.hasEntry {
		idx.entryID = node.ID
		idx.hasEntry = true
		idx.maxLevel = level
		return node, nil
	}

	entry := idx.entryID
	curMax := idx.maxLevel

	// Phase 1: greedy descent from top layer down to node_level+1.
	cur := entry
	curDist := idx.distance(vector, idx.nodes[entry].Vector)
	for l := curMax; l > level; l-- {
		cur, curDist = idx.greedyClosest(cur, curDist, vector, l)
	}

	// Phase 2: beam search + connect at each layer from
	// min(node_level, curMax) down to 0.
	candidates := []uint64{cur}
	for l := minInt(level, curMax); l >= 0; l-- {
		found := idx.searchLayer(vector, candidates, EfConstruction, l)
		capAtLayer := M
		if l == 0 {
			capAtLayer = M0
		}
		neighbors := idx.selectNeighbors(vector, found, capAtLayer)
		node.Neighbors[l] = neighbors

		for _, nbID := range neighbors {
			nb := idx.nodes[nbID]
			nb.Neighbors[l] = append(nb.Neighbors[l], node.ID)
			nbCap := M
			if l == 0 {
				nbCap = M0
			}
			if len(nb.Neighbors[l]) > nbCap {
				idx.pruneNeighbor(nb, l, node.ID, nbCap)
			}
		}
		candidates = found
	}

	if level > idx.maxLevel {
		idx.maxLevel = level
		idx.entryID = node.ID
	}
	return node, nil
}

// pruneNeighbor trims nb's neighbor list at layer l back to cap-1
// nearest (by distance to nb) plus freshID, always retaining the fresh
// link.
func (idx *Index) pruneNeighbor(nb *Node, l int, freshID uint64, cap int) {
	ids := nb.Neighbors[l]
	type scored struct {
		id   uint64
		dist fixedpoint.I64F32
	}
	scoredList := make([]scored, 0, len(ids))
	for _, id := range ids {
		if id == freshID {
			continue
		}
		scoredList = append(scoredList, scored{id, idx.distance(nb.Vector, idx.nodes[id].Vector)})
	}
	sort.Slice(scoredList, func(i, j int) bool { return scoredList[i].dist.Cmp(scoredList[j].dist) < 0 })
	keep := cap - 1
	if keep > len(scoredList) {
		keep = len(scoredList)
	}
	out := make([]uint64, 0, cap)
	out = append(out, freshID)
	for i := 0; i < keep; i++ {
		out = append(out, scoredList[i].id)
	}
	nb.Neighbors[l] = out
}

func (idx *Index) greedyClosest(cur uint64, curDist fixedpoint.I64F32, target []fixedpoint.I64F32, layer int) (uint64, fixedpoint.I64F32) {
	improved := true
	for improved {
		improved = false
		node := idx.nodes[cur]
		if layer >= len(node.Neighbors) {
			continue
		}
		for _, nbID := range node.Neighbors[layer] {
			d := idx.distance(target, idx.nodes[nbID].Vector)
			if d.Cmp(curDist) < 0 {
				cur, curDist = nbID, d
				improved = true
			}
		}
	}
	return cur, curDist
}

// searchLayer runs a beam search with width ef at layer, starting from
// entryPoints, and returns up to ef candidate IDs sorted by distance
// (closest first). Tombstoned nodes still serve as routing hops.
func (idx *Index) searchLayer(target []fixedpoint.I64F32, entryPoints []uint64, ef, layer int) []uint64 {
	visited := make(map[uint64]bool)
	type cand struct {
		id   uint64
		dist fixedpoint.I64F32
	}
	var candidates []cand
	for _, id := range entryPoints {
		if visited[id] {
			continue
		}
		visited[id] = true
		candidates = append(candidates, cand{id, idx.distance(target, idx.nodes[id].Vector)})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist.Cmp(candidates[j].dist) < 0 })

	result := append([]cand(nil), candidates...)
	frontier := append([]cand(nil), candidates...)

	for len(frontier) > 0 {
		// pop the closest unprocessed frontier candidate
		c := frontier[0]
		frontier = frontier[1:]

		worst := result[len(result)-1].dist
		if len(result) >= ef && c.dist.Cmp(worst) > 0 {
			break
		}
		node := idx.nodes[c.id]
		if layer >= len(node.Neighbors) {
			continue
		}
		for _, nbID := range node.Neighbors[layer] {
			if visited[nbID] {
				continue
			}
			visited[nbID] = true
			d := idx.distance(target, idx.nodes[nbID].Vector)
			nc := cand{nbID, d}
			worstNow := result[len(result)-1].dist
			if len(result) < ef || d.Cmp(worstNow) < 0 {
				result = insertSorted(result, nc)
				if len(result) > ef {
					result = result[:ef]
				}
				frontier = insertSorted(frontier, nc)
			}
		}
	}

	out := make([]uint64, len(result))
	for i, c := range result {
		out[i] = c.id
	}
	return out
}

func insertSorted(list []struct {
	id   uint64
	dist fixedpoint.I64F32
}, c struct {
	id   uint64
	dist fixedpoint.I64F32
}) []struct {
	id   uint64
	dist fixedpoint.I64F32
} {
	i := sort.Search(len(list), func(i int) bool { return list[i].dist.Cmp(c.dist) >= 0 })
	list = append(list, c)
	copy(list[i+1:], list[i:])
	list[i] = c
	return list
}

// selectNeighbors picks the capAt nearest candidates to target.
func (idx *Index) selectNeighbors(target []fixedpoint.I64F32, candidates []uint64, capAt int) []uint64 {
	type scored struct {
		id   uint64
		dist fixedpoint.I64F32
	}
	scoredList := make([]scored, len(candidates))
	for i, id := range candidates {
		scoredList[i] = scored{id, idx.distance(target, idx.nodes[id].Vector)}
	}
	sort.Slice(scoredList, func(i, j int) bool { return scoredList[i].dist.Cmp(scoredList[j].dist) < 0 })
	if capAt > len(scoredList) {
		capAt = len(scoredList)
	}
	out := make([]uint64, capAt)
	for i := 0; i < capAt; i++ {
		out[i] = scoredList[i].id
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// SearchResult is one ranked neighbor returned by Search.
type SearchResult struct {
	ID       uint64
	Distance fixedpoint.I64F32
}

// Search returns the k nearest non-tombstoned nodes to target: greedy
// descent to layer 1, then a layer-0 beam search with
// ef = max(k, ef_search).
func (idx *Index) Search(target []fixedpoint.I64F32, k int) ([]SearchResult, error) {
	if !idx.hasEntry {
		return nil, nil
	}
	if len(target) != idx.dimension {
		return nil, ErrDimensionMismatch
	}
	cur := idx.entryID
	curDist := idx.distance(target, idx.nodes[cur].Vector)
	for l := idx.maxLevel; l >= 1; l-- {
		cur, curDist = idx.greedyClosest(cur, curDist, target, l)
	}

	ef := k
	if EfSearch > ef {
		ef = EfSearch
	}
	found := idx.searchLayer(target, []uint64{cur}, ef, 0)

	out := make([]SearchResult, 0, k)
	for _, id := range found {
		if idx.nodes[id].Deleted {
			continue
		}
		out = append(out, SearchResult{ID: id, Distance: idx.distance(target, idx.nodes[id].Vector)})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// MarkDeleted soft-deletes id. Idempotent: deleting an already-deleted
// node is a no-op. If id was the entry point, the highest-level
// non-deleted node (lowest ID as tie-break) becomes the new entry
// point.
func (idx *Index) MarkDeleted(id uint64) error {
	node, ok := idx.nodes[id]
	if !ok {
		return ErrNodeNotFound
	}
	if node.Deleted {
		return nil
	}
	node.Deleted = true

	if id == idx.entryID {
		var best *Node
		for _, n := range idx.nodes {
			if n.Deleted {
				continue
			}
			if best == nil || n.Level > best.Level || (n.Level == best.Level && n.ID < best.ID) {
				best = n
			}
		}
		if best != nil {
			idx.entryID = best.ID
			idx.maxLevel = best.Level
		}
	}
	return nil
}

func (idx *Index) Node(id uint64) (*Node, bool) {
	n, ok := idx.nodes[id]
	return n, ok
}
