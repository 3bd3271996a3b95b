// FILE: metrics.go
// Package main – Prometheus metrics for the funding-arbitrage engine,
// generalized from the teacher's metrics.go (package-level collectors
// registered in init(), served at /metrics via promhttp). Collectors
// implements engine.Metrics so the LifecycleEngine can push
// observations without importing prometheus itself.
package main

import "github.com/prometheus/client_golang/prometheus"

var (
	mtxTickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fundingarb_tick_duration_seconds",
		Help:    "Duration of one LifecycleEngine tick.",
		Buckets: prometheus.DefBuckets,
	})

	mtxOpportunitiesScanned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fundingarb_opportunities_scanned_total",
		Help: "Candidate tokens evaluated by the opportunity scan.",
	})

	mtxOpportunitiesSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fundingarb_opportunities_skipped_total",
		Help: "Candidate opportunities skipped, by reason.",
	}, []string{"reason"})

	mtxArbitragesOpened = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fundingarb_arbitrages_opened_total",
		Help: "Arbitrages entered (PENDING).",
	})

	mtxArbitragesClosed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fundingarb_arbitrages_closed_total",
		Help: "Arbitrages closed, by close reason.",
	}, []string{"reason"})

	mtxActiveCount  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "fundingarb_arbitrages_active", Help: "Currently ACTIVE arbitrages."})
	mtxPendingCount = prometheus.NewGauge(prometheus.GaugeOpts{Name: "fundingarb_arbitrages_pending", Help: "Currently PENDING arbitrages."})
	mtxClosingCount = prometheus.NewGauge(prometheus.GaugeOpts{Name: "fundingarb_arbitrages_closing", Help: "Currently CLOSING arbitrages."})

	mtxEdge = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fundingarb_total_edge_quote",
		Help:    "Computed total_edge of evaluated candidates, in quote currency.",
		Buckets: []float64{-50, -10, -1, 0, 1, 5, 10, 25, 50, 100, 250},
	})

	mtxRateLimiterUtilization = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fundingarb_rate_limiter_utilization",
		Help: "Token-bucket utilization (1 - tokens/capacity), by venue and channel class.",
	}, []string{"venue", "class"})

	mtxReadiness = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fundingarb_trading_readiness",
		Help: "1 if CanTrade() currently permits trading, else 0.",
	})

	mtxReconcileDiscrepancies = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fundingarb_reconcile_discrepancies_total",
		Help: "Discrepancies found by the reconciler, by kind and severity.",
	}, []string{"kind", "severity"})
)

func init() {
	prometheus.MustRegister(
		mtxTickDuration,
		mtxOpportunitiesScanned, mtxOpportunitiesSkipped,
		mtxArbitragesOpened, mtxArbitragesClosed,
		mtxActiveCount, mtxPendingCount, mtxClosingCount,
		mtxEdge,
		mtxRateLimiterUtilization,
		mtxReadiness,
		mtxReconcileDiscrepancies,
	)
}

// Collectors implements engine.Metrics (internal/engine/deps.go).
type Collectors struct{}

func (Collectors) ObserveTick(durationSeconds float64)   { mtxTickDuration.Observe(durationSeconds) }
func (Collectors) IncOpportunityScanned()                { mtxOpportunitiesScanned.Inc() }
func (Collectors) IncOpportunitySkipped(reason string)   { mtxOpportunitiesSkipped.WithLabelValues(reason).Inc() }
func (Collectors) IncArbitrageOpened()                   { mtxArbitragesOpened.Inc() }
func (Collectors) IncArbitrageClosed(reason string)      { mtxArbitragesClosed.WithLabelValues(reason).Inc() }
func (Collectors) SetActiveCount(n int)                  { mtxActiveCount.Set(float64(n)) }
func (Collectors) SetPendingCount(n int)                 { mtxPendingCount.Set(float64(n)) }
func (Collectors) SetClosingCount(n int)                 { mtxClosingCount.Set(float64(n)) }
func (Collectors) ObserveEdge(totalEdge float64)         { mtxEdge.Observe(totalEdge) }

func setReadinessMetric(ready bool) {
	if ready {
		mtxReadiness.Set(1)
	} else {
		mtxReadiness.Set(0)
	}
}

func setRateLimiterUtilization(venue, class string, util float64) {
	mtxRateLimiterUtilization.WithLabelValues(venue, class).Set(util)
}

func incReconcileDiscrepancy(kind, severity string) {
	mtxReconcileDiscrepancies.WithLabelValues(kind, severity).Inc()
}
