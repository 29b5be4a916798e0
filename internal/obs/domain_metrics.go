package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// BillEvaluationsTotal counts bill evaluation outcomes.
	BillEvaluationsTotal *prometheus.CounterVec
	// BillEvaluationDuration records end-to-end bill evaluation latency in milliseconds.
	BillEvaluationDuration prometheus.Histogram
	// BillLinesEvaluated counts evaluated bill lines by outcome.
	BillLinesEvaluated *prometheus.CounterVec
	// SchemesApplied counts applied winning schemes by mechanic kind.
	SchemesApplied *prometheus.CounterVec
	// SnapshotRefreshTotal counts catalog snapshot refresh outcomes.
	SnapshotRefreshTotal *prometheus.CounterVec
	// SnapshotSchemesLoaded reports the number of valid schemes in the active snapshot.
	SnapshotSchemesLoaded prometheus.Gauge
	// SnapshotInvalidSchemes reports the number of malformed schemes excluded from the active snapshot.
	SnapshotInvalidSchemes prometheus.Gauge
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		BillEvaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bill_evaluations_total",
			Help:      "Count of bill evaluation requests by result.",
		}, []string{"result"})
		BillEvaluationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bill_evaluation_duration_ms",
			Help:      "Latency of bill evaluations in milliseconds.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		})
		BillLinesEvaluated = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bill_lines_evaluated_total",
			Help:      "Count of evaluated bill lines by outcome.",
		}, []string{"outcome"})
		SchemesApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schemes_applied_total",
			Help:      "Count of winning schemes applied to bill lines by mechanic kind.",
		}, []string{"kind"})
		SnapshotRefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_refresh_total",
			Help:      "Count of catalog snapshot refresh outcomes.",
		}, []string{"result"})
		SnapshotSchemesLoaded = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_schemes_loaded",
			Help:      "Number of valid schemes in the active snapshot.",
		})
		SnapshotInvalidSchemes = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_invalid_schemes",
			Help:      "Number of malformed schemes excluded from the active snapshot.",
		})

		mustRegisterCollector(reg, BillEvaluationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				BillEvaluationsTotal = v
			}
		})
		mustRegisterCollector(reg, BillEvaluationDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				BillEvaluationDuration = v
			}
		})
		mustRegisterCollector(reg, BillLinesEvaluated, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				BillLinesEvaluated = v
			}
		})
		mustRegisterCollector(reg, SchemesApplied, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SchemesApplied = v
			}
		})
		mustRegisterCollector(reg, SnapshotRefreshTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SnapshotRefreshTotal = v
			}
		})
		mustRegisterCollector(reg, SnapshotSchemesLoaded, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Gauge); ok {
				SnapshotSchemesLoaded = v
			}
		})
		mustRegisterCollector(reg, SnapshotInvalidSchemes, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Gauge); ok {
				SnapshotInvalidSchemes = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
