// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hnsw

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/luxtensor/fixedpoint"
)

// fixedRNG is a deterministic RNG stand-in for tests: it replays a
// fixed sequence of draws, cycling if exhausted.
type fixedRNG struct {
	draws []float64
	i     int
}

func (r *fixedRNG) Float64() float64 {
	v := r.draws[r.i%len(r.draws)]
	r.i++
	return v
}

func vec(xs ...float64) []fixedpoint.I64F32 {
	out := make([]fixedpoint.I64F32, len(xs))
	for i, x := range xs {
		out[i] = fixedpoint.FromFloat64(x)
	}
	return out
}

func TestInsertAndSearchFindsNearest(t *testing.T) {
	idx := New(2)
	rng := &fixedRNG{draws: []float64{0.9, 0.8, 0.7, 0.6, 0.5}}

	nearest, err := idx.Insert(vec(0, 0), rng)
	require.NoError(t, err)
	_, err = idx.Insert(vec(10, 10), rng)
	require.NoError(t, err)
	_, err = idx.Insert(vec(0.1, 0.1), rng)
	require.NoError(t, err)

	results, err := idx.Search(vec(0, 0), 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, nearest.ID, results[0].ID)
}

func TestDeterministicReplayProducesIdenticalGraph(t *testing.T) {
	build := func() *Index {
		idx := New(2)
		rng := &fixedRNG{draws: []float64{0.5, 0.3, 0.9, 0.1, 0.7, 0.2}}
		for i := 0; i < 20; i++ {
			_, err := idx.Insert(vec(float64(i), float64(i)*2), rng)
			require.NoError(t, err)
		}
		return idx
	}

	a := build()
	b := build()
	require.Equal(t, a.RootHash(), b.RootHash())
}

func TestSerializeRoundTrip(t *testing.T) {
	idx := New(3)
	rng := &fixedRNG{draws: []float64{0.5, 0.4, 0.6, 0.2}}
	for i := 0; i < 10; i++ {
		_, err := idx.Insert(vec(float64(i), float64(i), float64(i)), rng)
		require.NoError(t, err)
	}

	data := idx.Serialize()
	require.LessOrEqual(t, len(data), MaxGraphSizeBytes)

	restored, err := Deserialize(data)
	require.NoError(t, err)
	require.Equal(t, idx.Len(), restored.Len())
	require.Equal(t, idx.RootHash(), restored.RootHash())
}

func TestDeserializeRejectsTruncatedInput(t *testing.T) {
	_, err := Deserialize([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrCorruptGraph)
}

func TestMarkDeletedIsIdempotentAndReassignsEntry(t *testing.T) {
	idx := New(2)
	rng := &fixedRNG{draws: []float64{0.5, 0.3, 0.9}}
	n1, err := idx.Insert(vec(0, 0), rng)
	require.NoError(t, err)
	_, err = idx.Insert(vec(5, 5), rng)
	require.NoError(t, err)

	require.NoError(t, idx.MarkDeleted(n1.ID))
	require.NoError(t, idx.MarkDeleted(n1.ID)) // idempotent

	results, err := idx.Search(vec(0, 0), 2)
	require.NoError(t, err)
	for _, r := range results {
		require.NotEqual(t, n1.ID, r.ID)
	}
}

func TestInsertRejectsDimensionMismatch(t *testing.T) {
	idx := New(2)
	rng := &fixedRNG{draws: []float64{0.5}}
	_, err := idx.Insert(vec(1, 2, 3), rng)
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestClassifyReturnsClosestLabel(t *testing.T) {
	labels := []string{"a", "b"}
	vectors := [][]fixedpoint.I64F32{vec(0, 0), vec(100, 100)}
	label, confidence, err := Classify(vec(1, 1), labels, vectors)
	require.NoError(t, err)
	require.Equal(t, "a", label)
	require.Greater(t, confidence, 0.0)
}

func TestSimilarityCheck(t *testing.T) {
	similar, conf := SimilarityCheck(vec(0, 0), vec(0.01, 0.01), fixedpoint.FromFloat64(1))
	require.True(t, similar)
	require.Greater(t, conf, 0.0)

	notSimilar, _ := SimilarityCheck(vec(0, 0), vec(100, 100), fixedpoint.FromFloat64(1))
	require.False(t, notSimilar)
}
