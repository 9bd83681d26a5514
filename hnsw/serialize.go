// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hnsw

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/luxfi/luxtensor/fixedpoint"
)

const (
	// MaxGraphSizeBytes caps deserialization input.
	MaxGraphSizeBytes = 256 << 20
	// MaxGraphNodes caps the node count a deserialized graph may claim.
	MaxGraphNodes = 10_000_000
)

var (
	ErrGraphTooLarge      = errors.New("hnsw: serialized graph exceeds MAX_GRAPH_SIZE")
	ErrTooManyNodes       = errors.New("hnsw: serialized graph exceeds the node count limit")
	ErrCorruptGraph       = errors.New("hnsw: truncated or malformed serialization")
	ErrEntryOutOfRange    = errors.New("hnsw: entry_id out of range")
	ErrNeighborOutOfRange = errors.New("hnsw: neighbor id out of range")
)

// Serialize writes the little-endian custom framing: header (dimension
// u32, M u32, ef_search u32, count u64, max_layer
// u32, entry_id u64, has_entry u8) followed by per-node (id u64,
// node_max_layer u32, vector D×f32, per-layer (neighbor_count u32,
// neighbor ids u64...)).
func (idx *Index) Serialize() []byte {
	var buf []byte
	buf = appendU32(buf, uint32(idx.dimension))
	buf = appendU32(buf, uint32(M))
	buf = appendU32(buf, uint32(EfSearch))
	buf = appendU64(buf, uint64(len(idx.nodes)))
	buf = appendU32(buf, uint32(idx.maxLevel))
	buf = appendU64(buf, idx.entryID)
	if idx.hasEntry {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}

	ids := make([]uint64, 0, len(idx.nodes))
	for id := range idx.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		n := idx.nodes[id]
		buf = appendU64(buf, n.ID)
		buf = appendU32(buf, uint32(n.Level))
		for _, v := range n.Vector {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], math.Float32bits(float32(v.Float64())))
			buf = append(buf, b[:]...)
		}
		for l := 0; l <= n.Level; l++ {
			neighbors := n.Neighbors[l]
			buf = appendU32(buf, uint32(len(neighbors)))
			for _, nb := range neighbors {
				buf = appendU64(buf, nb)
			}
		}
	}
	return buf
}

// Deserialize parses the framing Serialize writes, rejecting oversized
// or structurally invalid input.
func Deserialize(data []byte) (*Index, error) {
	if len(data) > MaxGraphSizeBytes {
		return nil, ErrGraphTooLarge
	}
	r := &reader{data: data}

	dimension, err := r.u32()
	if err != nil {
		return nil, err
	}
	if _, err := r.u32(); err != nil { // M, informational only
		return nil, err
	}
	if _, err := r.u32(); err != nil { // ef_search, informational only
		return nil, err
	}
	count, err := r.u64()
	if err != nil {
		return nil, err
	}
	if count > MaxGraphNodes {
		return nil, ErrTooManyNodes
	}
	maxLayer, err := r.u32()
	if err != nil {
		return nil, err
	}
	entryID, err := r.u64()
	if err != nil {
		return nil, err
	}
	hasEntryByte, err := r.u8()
	if err != nil {
		return nil, err
	}

	idx := &Index{
		dimension: int(dimension),
		nodes:     make(map[uint64]*Node, count),
		maxLevel:  int(maxLayer),
		entryID:   entryID,
		hasEntry:  hasEntryByte != 0,
	}

	var maxID uint64
	for i := uint64(0); i < count; i++ {
		id, err := r.u64()
		if err != nil {
			return nil, err
		}
		if id > maxID {
			maxID = id
		}
		level, err := r.u32()
		if err != nil {
			return nil, err
		}
		vector := make([]fixedpoint.I64F32, dimension)
		for d := uint32(0); d < dimension; d++ {
			f, err := r.f32()
			if err != nil {
				return nil, err
			}
			vector[d] = f
		}
		neighbors := make([][]uint64, level+1)
		for l := uint32(0); l <= level; l++ {
			ncount, err := r.u32()
			if err != nil {
				return nil, err
			}
			ids := make([]uint64, ncount)
			for j := uint32(0); j < ncount; j++ {
				nid, err := r.u64()
				if err != nil {
					return nil, err
				}
				ids[j] = nid
			}
			neighbors[l] = ids
		}
		idx.nodes[id] = &Node{ID: id, Level: int(level), Vector: vector, Neighbors: neighbors}
	}
	if idx.nextID <= maxID {
		idx.nextID = maxID + 1
	}

	if idx.hasEntry {
		if _, ok := idx.nodes[idx.entryID]; !ok {
			return nil, ErrEntryOutOfRange
		}
	}
	for _, n := range idx.nodes {
		for _, layer := range n.Neighbors {
			for _, nb := range layer {
				if _, ok := idx.nodes[nb]; !ok {
					return nil, fmt.Errorf("%w: node %d -> %d", ErrNeighborOutOfRange, n.ID, nb)
				}
			}
		}
	}
	return idx, nil
}

func appendU32(b []byte, v uint32) []byte {
	var t [4]byte
	binary.LittleEndian.PutUint32(t[:], v)
	return append(b, t[:]...)
}

func appendU64(b []byte, v uint64) []byte {
	var t [8]byte
	binary.LittleEndian.PutUint64(t[:], v)
	return append(b, t[:]...)
}

type reader struct {
	data []byte
	pos  int
}

func (r *reader) u8() (uint8, error) {
	if r.pos+1 > len(r.data) {
		return 0, ErrCorruptGraph
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, ErrCorruptGraph
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	if r.pos+8 > len(r.data) {
		return 0, ErrCorruptGraph
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *reader) f32() (fixedpoint.I64F32, error) {
	if r.pos+4 > len(r.data) {
		return 0, ErrCorruptGraph
	}
	bits := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return fixedpoint.FromFloat64(float64(math.Float32frombits(bits))), nil
}
