// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hnsw

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/luxfi/luxtensor/cryptoutil"
	"github.com/luxfi/luxtensor/types"
)

// RootHash computes root_hash = keccak256(concat(id_le ‖
// vector_le_bytes for id in sorted(nodes))), the value consensus uses
// to agree on index state across nodes.
func (idx *Index) RootHash() types.Hash {
	ids := make([]uint64, 0, len(idx.nodes))
	for id := range idx.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var buf []byte
	for _, id := range ids {
		n := idx.nodes[id]
		var idBuf [8]byte
		binary.LittleEndian.PutUint64(idBuf[:], id)
		buf = append(buf, idBuf[:]...)
		for _, v := range n.Vector {
			var vBuf [4]byte
			binary.LittleEndian.PutUint32(vBuf[:], math.Float32bits(float32(v.Float64())))
			buf = append(buf, vBuf[:]...)
		}
	}
	return cryptoutil.Keccak256(buf)
}
