// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hnsw

import (
	"errors"
	"math"

	"github.com/luxfi/luxtensor/fixedpoint"
)

var ErrNoLabels = errors.New("hnsw: classify requires at least one label")

// Classify implements the classify(query, labels[]) AI primitive: for
// each labeled vector, compute the squared-Euclidean
// distance to query and return the closest label with confidence
// e^{-sqrt(dist)}. The exponential/sqrt step is IEEE-754 float math —
// the one place this package crosses into floats — because the
// precompile's return value is advisory scoring, not a value the
// insert/search graph structure itself depends on.
func Classify(query []fixedpoint.I64F32, labels []string, vectors [][]fixedpoint.I64F32) (string, float64, error) {
	if len(labels) == 0 || len(labels) != len(vectors) {
		return "", 0, ErrNoLabels
	}
	bestLabel := labels[0]
	bestDist := fixedpoint.SquaredEuclidean(query, vectors[0])
	for i := 1; i < len(labels); i++ {
		d := fixedpoint.SquaredEuclidean(query, vectors[i])
		if d.Cmp(bestDist) < 0 {
			bestDist = d
			bestLabel = labels[i]
		}
	}
	confidence := math.Exp(-math.Sqrt(bestDist.Float64()))
	return bestLabel, confidence, nil
}

// AnomalyScoreK is the fixed neighbor count the anomaly_score
// primitive averages over.
const AnomalyScoreK = 5

// AnomalyScore implements anomaly_score(query): the mean distance to
// the k=5 nearest indexed points. A higher score means query sits
// further from the indexed distribution.
func (idx *Index) AnomalyScore(query []fixedpoint.I64F32) (float64, error) {
	results, err := idx.Search(query, AnomalyScoreK)
	if err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, nil
	}
	var sum float64
	for _, r := range results {
		sum += r.Distance.Float64()
	}
	return sum / float64(len(results)), nil
}

// SimilarityCheck implements similarity_check(a, b, threshold): returns
// whether a and b are similar at the given threshold along with a
// confidence score e^{-sqrt(dist)/2}.
func SimilarityCheck(a, b []fixedpoint.I64F32, threshold fixedpoint.I64F32) (bool, float64) {
	dist := fixedpoint.SquaredEuclidean(a, b)
	confidence := math.Exp(-math.Sqrt(dist.Float64()) / 2)
	return dist.Cmp(threshold) <= 0, confidence
}
