// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package telemetry owns the node's Prometheus metric surface: mempool
// size, HNSW node count, emission issued, active validator count,
// fast-finality signature ratio, and state-sync progress. Metrics are
// registered directly against `github.com/prometheus/client_golang`
// rather than through a legacy go-metrics compatibility shim, since
// this module never carries a legacy metrics registry to bridge.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the node's full metric surface, registered once at
// startup and updated by the packages that own each measurement.
type Metrics struct {
	MempoolSize                prometheus.Gauge
	HNSWNodeCount               prometheus.Gauge
	EmissionIssued              prometheus.Counter
	ActiveValidatorCount        prometheus.Gauge
	FastFinalitySignatureRatio  prometheus.Gauge
	StateSyncProgress           prometheus.Gauge
	BlocksProduced              prometheus.Counter
	TransactionsExecuted        prometheus.Counter
	SlashingEvents              prometheus.Counter
}

// NewMetrics builds and registers the full metric surface against
// registry. Tests pass a fresh prometheus.NewRegistry() to avoid
// cross-test collisions.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		MempoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "luxtensor", Subsystem: "mempool", Name: "size",
			Help: "Number of pending transactions in the mempool.",
		}),
		HNSWNodeCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "luxtensor", Subsystem: "hnsw", Name: "node_count",
			Help: "Number of nodes in the HNSW weight graph.",
		}),
		EmissionIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "luxtensor", Subsystem: "tokenomics", Name: "emission_issued_total",
			Help: "Cumulative token emission minted across all blocks.",
		}),
		ActiveValidatorCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "luxtensor", Subsystem: "pos", Name: "active_validator_count",
			Help: "Number of active validators in the current set.",
		}),
		FastFinalitySignatureRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "luxtensor", Subsystem: "pos", Name: "fast_finality_signature_ratio",
			Help: "Fraction of active stake that has signed the current finality candidate.",
		}),
		StateSyncProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "luxtensor", Subsystem: "statesync", Name: "progress_ratio",
			Help: "Fraction of the snap-sync pivot's account ranges downloaded so far.",
		}),
		BlocksProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "luxtensor", Subsystem: "blockproducer", Name: "blocks_produced_total",
			Help: "Cumulative number of blocks this node has produced.",
		}),
		TransactionsExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "luxtensor", Subsystem: "blockproducer", Name: "transactions_executed_total",
			Help: "Cumulative number of transactions included in a produced block.",
		}),
		SlashingEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "luxtensor", Subsystem: "pos", Name: "slashing_events_total",
			Help: "Cumulative number of slashing events applied to any validator.",
		}),
	}
	registry.MustRegister(
		m.MempoolSize, m.HNSWNodeCount, m.EmissionIssued, m.ActiveValidatorCount,
		m.FastFinalitySignatureRatio, m.StateSyncProgress, m.BlocksProduced,
		m.TransactionsExecuted, m.SlashingEvents,
	)
	return m
}
