// Copyright (C) 2025, MarketForge Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metric

import (
	metrics "github.com/luxfi/metric"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all engine metrics using luxfi/metric
type Metrics struct {
	metricsInstance metrics.Metrics

	// View ledger metrics
	ViewsRecorded metrics.Counter
	ViewsDeduped  metrics.Counter
	ViewsExpired  metrics.Counter

	// Qualification metrics
	ViewsQualified metrics.Counter
	ViewsRejected  metrics.Counter

	// Billing metrics
	ChargesApplied  metrics.Counter
	ChargesUnbilled metrics.Counter
	TopUps          metrics.Counter
	InvariantErrors metrics.Counter

	// Ranking metrics
	RankRecomputes metrics.Counter
	BidUpdates     metrics.Counter

	// Gate metrics
	GateLockouts metrics.Counter
	GateGranted  metrics.Counter
	GateRejected metrics.Counter

	// Performance metrics
	RecordDuration  metrics.Histogram
	QualifyDuration metrics.Histogram
	ChargeDuration  metrics.Histogram
}

// NewMetrics creates a new metrics instance using luxfi/metric
func NewMetrics() (*Metrics, error) {
	factory := metrics.NewPrometheusFactory()
	metricsInstance := factory.New("cpv")

	m := &Metrics{
		metricsInstance: metricsInstance,
	}

	m.ViewsRecorded = metricsInstance.NewCounter("views_recorded_total", "Total raw views recorded")
	m.ViewsDeduped = metricsInstance.NewCounter("views_deduped_total", "Total views collapsed into an existing record")
	m.ViewsExpired = metricsInstance.NewCounter("views_expired_total", "Total stale raw views expired by the sweep")

	m.ViewsQualified = metricsInstance.NewCounter("views_qualified_total", "Total views that passed engagement thresholds")
	m.ViewsRejected = metricsInstance.NewCounter("views_rejected_total", "Total views that failed engagement thresholds")

	m.ChargesApplied = metricsInstance.NewCounter("charges_applied_total", "Total successful view charges")
	m.ChargesUnbilled = metricsInstance.NewCounter("charges_unbilled_total", "Total qualified views left unbilled for insufficient credit")
	m.TopUps = metricsInstance.NewCounter("topups_total", "Total vendor credit top-ups")
	m.InvariantErrors = metricsInstance.NewCounter("invariant_errors_total", "Total rejected operations due to ledger invariant violations")

	m.RankRecomputes = metricsInstance.NewCounter("rank_recomputes_total", "Total placement signal recomputations")
	m.BidUpdates = metricsInstance.NewCounter("bid_updates_total", "Total bid updates received from the bidding feed")

	m.GateLockouts = metricsInstance.NewCounter("gate_lockouts_total", "Total lockouts issued by the attempt limiter")
	m.GateGranted = metricsInstance.NewCounter("gate_granted_total", "Total successful investor verifications")
	m.GateRejected = metricsInstance.NewCounter("gate_rejected_total", "Total rejected investor verifications")

	m.RecordDuration = metricsInstance.NewHistogram(
		"record_view_duration_seconds",
		"Time to record a raw view",
		prometheus.DefBuckets,
	)

	m.QualifyDuration = metricsInstance.NewHistogram(
		"qualify_duration_seconds",
		"Time to qualify a view including any charge",
		prometheus.DefBuckets,
	)

	m.ChargeDuration = metricsInstance.NewHistogram(
		"charge_duration_seconds",
		"Time to apply a charge against a vendor account",
		prometheus.DefBuckets,
	)

	return m, nil
}

// GetGatherer returns the prometheus gatherer for metrics export
func (m *Metrics) GetGatherer() prometheus.Gatherer {
	if registry := m.metricsInstance.Registry(); registry != nil {
		return registry
	}
	return prometheus.DefaultGatherer
}

// GetRegisterer returns the prometheus registerer
func (m *Metrics) GetRegisterer() prometheus.Registerer {
	if registry := m.metricsInstance.Registry(); registry != nil {
		return registry
	}
	return prometheus.DefaultRegisterer
}
