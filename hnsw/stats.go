// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hnsw

import "gonum.org/v1/gonum/stat"

// Stats summarizes the distance distribution of a node's neighborhood
// for dashboards and operator tooling. It is never consulted by
// insert/search/delete and carries no consensus weight — the one spot
// in this package where float statistics are appropriate, since
// everything consensus-facing stays in fixed point.
type Stats struct {
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// LayerZeroDistanceStats reports distance statistics over every edge
// at layer 0, useful for operators gauging graph health.
func (idx *Index) LayerZeroDistanceStats() Stats {
	var distances []float64
	for _, n := range idx.nodes {
		if len(n.Neighbors) == 0 {
			continue
		}
		for _, nb := range n.Neighbors[0] {
			other, ok := idx.nodes[nb]
			if !ok {
				continue
			}
			distances = append(distances, idx.distance(n.Vector, other.Vector).Float64())
		}
	}
	if len(distances) == 0 {
		return Stats{}
	}
	mean, std := stat.MeanStdDev(distances, nil)
	minV, maxV := distances[0], distances[0]
	for _, d := range distances {
		if d < minV {
			minV = d
		}
		if d > maxV {
			maxV = d
		}
	}
	return Stats{Mean: mean, StdDev: std, Min: minV, Max: maxV}
}
