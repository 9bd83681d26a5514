// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistersAndUpdates(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.MempoolSize.Set(42)
	m.ActiveValidatorCount.Set(7)
	m.EmissionIssued.Add(8)
	m.BlocksProduced.Inc()

	families, err := registry.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)

	var sawMempool, sawBlocks bool
	for _, f := range families {
		switch f.GetName() {
		case "luxtensor_mempool_size":
			sawMempool = true
			require.Equal(t, float64(42), f.GetMetric()[0].GetGauge().GetValue())
		case "luxtensor_blockproducer_blocks_produced_total":
			sawBlocks = true
			require.Equal(t, float64(1), f.GetMetric()[0].GetCounter().GetValue())
		}
	}
	require.True(t, sawMempool)
	require.True(t, sawBlocks)
}

func TestGathererConvertsToMetricMetricFamily(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.HNSWNodeCount.Set(128)

	g := NewGatherer(registry)
	families, err := g.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.Name == "luxtensor_hnsw_node_count" {
			found = true
			require.Len(t, f.Metrics, 1)
			require.Equal(t, float64(128), f.Metrics[0].Value.Value)
		}
	}
	require.True(t, found)
}
