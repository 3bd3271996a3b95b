// FILE: internal/engine/deps.go
// Deps is the explicit context object spec.md §9 calls for in place of
// the source's module-level singletons: "LifecycleEngine owns an
// immutable Deps struct containing references (or handles) to each
// subsystem; tests instantiate a fresh Deps." Grounded on the teacher's
// NewTrader(cfg, broker, model) constructor-injection pattern
// (trader.go), generalized from one broker to the full subsystem set.
package engine

import (
	"github.com/riskforge/fundingarb/internal/alert"
	"github.com/riskforge/fundingarb/internal/breaker"
	"github.com/riskforge/fundingarb/internal/margin"
	"github.com/riskforge/fundingarb/internal/money"
	"github.com/riskforge/fundingarb/internal/ratelimit"
	"github.com/riskforge/fundingarb/internal/reconcile"
	"github.com/riskforge/fundingarb/internal/reliability"
	"github.com/riskforge/fundingarb/internal/risk"
	"github.com/riskforge/fundingarb/internal/settlement"
	"github.com/riskforge/fundingarb/internal/venue"
)

// Metrics is the narrow subset of MetricsSink (spec.md §6) the engine
// pushes into directly; the full Prometheus collector set lives in the
// top-level metrics.go, matching the teacher's package-level-collector
// convention.
type Metrics interface {
	ObserveTick(durationSeconds float64)
	IncOpportunityScanned()
	IncOpportunitySkipped(reason string)
	IncArbitrageOpened()
	IncArbitrageClosed(reason string)
	SetActiveCount(n int)
	SetPendingCount(n int)
	SetClosingCount(n int)
	ObserveEdge(totalEdge float64)
}

// Deps bundles every subsystem the LifecycleEngine consults or drives.
// It is constructed once in main.go and never mutated after
// construction — only the subsystems' own internal state changes.
type Deps struct {
	Venues map[venue.Id]venue.Venue

	Gate        *reliability.Gate
	Breakers    *breaker.Registry
	RateLimiter *ratelimit.Limiter
	Scheduler   *settlement.Scheduler
	RiskMgr     *risk.Manager
	MarginMon   *margin.Monitor
	Reconciler  *reconcile.Reconciler

	Alerts  alert.Sink
	Metrics Metrics

	// MarginHealth receives the worst margin health observed per cycle
	// (spec.md §4.4's readiness margin check); nil is a valid no-op.
	MarginHealth *margin.HealthTracker

	Config Config
}

// Config holds the tick loop's tunables (spec.md §6's configuration
// table). All monetary/rate fields are money.Decimal per spec.md §3.
type Config struct {
	MinFundingRateDiff money.Decimal
	MinEdgeRequired    money.Decimal

	ProfitabilityToTakeProfit money.Decimal // fraction of notional (spec.md §9 bugfix)
	FundingRateDiffStopLoss   money.Decimal

	MaxNotionalPerExchange money.Decimal
	MaxTotalNotional       money.Decimal
	MaxLeverage            money.Decimal
	MaxHedgeGapPct         money.Decimal
	MaxConcentrationPct    money.Decimal

	MaxPositionsPerConnector int // 0 = unlimited

	MaxSlippagePct               money.Decimal
	MinOrderBookDepthMultiplier  money.Decimal
	CheckOrderBookDepthEnabled   bool

	MinTimeToNextFundingSeconds int64

	PendingValidationTimeoutSeconds int64
	PendingValidationMaxAttempts    int
	CloseValidationTimeoutSeconds   int64
	MinPositionHoldTimeMinutes      int64

	MaxPositionImbalancePct money.Decimal

	EmergencyCloseOnImbalance    bool
	AutoLeverageReduction        bool
	AutoPositionReconciliation   bool
	EmergencyStopOnCriticalIssues bool

	DemoMode                 bool
	DemoAccountBalanceQuote  money.Decimal
	DemoFillDelaySeconds     int64
	DemoCloseDelaySeconds    int64

	StatsIntervalSeconds int64

	FundingPeriodHours money.Decimal
	SettlementBufferBps int64

	MarginCheckIntervalSeconds             int64
	PartialCloseFractionOnLeverageRefusal  money.Decimal

	ReconcileIntervalSeconds int64
}
