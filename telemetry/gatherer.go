// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package telemetry

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/luxfi/metric"
)

// Gatherer adapts a *prometheus.Registry into metric.Gatherer, the
// node-health/metrics-reporting interface a compatibility bridge would
// otherwise implement against a legacy go-metrics registry. This
// module never carries such a legacy registry (its metrics are native
// client_golang from the start), so the source format here is
// dto.MetricFamily converted directly into
// metric.MetricFamily/Metric/MetricValue.
type Gatherer struct {
	registry *prometheus.Registry
}

var _ metric.Gatherer = (*Gatherer)(nil)

// NewGatherer wraps registry for luxd-style node health reporting.
func NewGatherer(registry *prometheus.Registry) *Gatherer {
	return &Gatherer{registry: registry}
}

var errMetricTypeNotSupported = errors.New("telemetry: metric type not supported by the luxd gatherer bridge")

// Gather converts every family currently registered into
// metric.MetricFamily, skipping families beyond the counter/gauge/
// summary shapes the node's metric surface (see NewMetrics) ever
// produces.
func (g *Gatherer) Gather() ([]*metric.MetricFamily, error) {
	dtoFamilies, err := g.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("telemetry: gather: %w", err)
	}

	out := make([]*metric.MetricFamily, 0, len(dtoFamilies))
	for _, f := range dtoFamilies {
		mf, err := convertFamily(f)
		if err != nil {
			if errors.Is(err, errMetricTypeNotSupported) {
				continue
			}
			return nil, err
		}
		out = append(out, mf)
	}
	return out, nil
}

func convertFamily(f *dto.MetricFamily) (*metric.MetricFamily, error) {
	name := f.GetName()
	metrics := make([]metric.Metric, 0, len(f.GetMetric()))

	switch f.GetType() {
	case dto.MetricType_COUNTER:
		for _, m := range f.GetMetric() {
			metrics = append(metrics, metric.Metric{Value: metric.MetricValue{Value: m.GetCounter().GetValue()}})
		}
		return &metric.MetricFamily{Name: name, Type: metric.MetricTypeCounter, Metrics: metrics}, nil

	case dto.MetricType_GAUGE:
		for _, m := range f.GetMetric() {
			metrics = append(metrics, metric.Metric{Value: metric.MetricValue{Value: m.GetGauge().GetValue()}})
		}
		return &metric.MetricFamily{Name: name, Type: metric.MetricTypeGauge, Metrics: metrics}, nil

	case dto.MetricType_SUMMARY:
		for _, m := range f.GetMetric() {
			s := m.GetSummary()
			quantiles := make([]metric.Quantile, 0, len(s.GetQuantile()))
			for _, q := range s.GetQuantile() {
				quantiles = append(quantiles, metric.Quantile{Quantile: q.GetQuantile(), Value: q.GetValue()})
			}
			metrics = append(metrics, metric.Metric{Value: metric.MetricValue{
				SampleCount: s.GetSampleCount(),
				SampleSum:   s.GetSampleSum(),
				Quantiles:   quantiles,
			}})
		}
		return &metric.MetricFamily{Name: name, Type: metric.MetricTypeSummary, Metrics: metrics}, nil

	default:
		return nil, fmt.Errorf("%w: %q is a %s", errMetricTypeNotSupported, name, f.GetType())
	}
}
