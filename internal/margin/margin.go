// FILE: internal/margin/margin.go
// Package margin implements C8 (spec.md §4.8): per-account and
// per-position margin health classification, safe-leverage calculation
// from tiered margin rates, and the recommended-action chain by health
// level. No teacher file covers margin tiers; grounded on
// kasyap1234-delta-go/go/pkg/risk/manager.go's regime-based multiplier
// lookup pattern (a small ordered-rule table keyed by an enum), adapted
// to spec.md's tiered-notional rate lookup and distance-to-liquidation
// formulas.
package margin

import (
	"sync"

	"github.com/riskforge/fundingarb/internal/money"
	"github.com/riskforge/fundingarb/internal/venue"
)

// Health classifies an account or position's margin_ratio per spec.md §3.
type Health string

const (
	HealthHealthy        Health = "HEALTHY"
	HealthWarning        Health = "WARNING"
	HealthDanger         Health = "DANGER"
	HealthCritical       Health = "CRITICAL"
	HealthLiquidationRisk Health = "LIQUIDATION_RISK"
)

// ClassifyMarginRatio implements spec.md §3's derived margin_health
// thresholds: HEALTHY >=2.0, WARNING >=1.5, DANGER >=1.1,
// CRITICAL >=1.0, LIQUIDATION_RISK <1.0.
func ClassifyMarginRatio(ratio money.Decimal) Health {
	switch {
	case ratio.GreaterThanOrEqual(money.FromFloat(2.0)):
		return HealthHealthy
	case ratio.GreaterThanOrEqual(money.FromFloat(1.5)):
		return HealthWarning
	case ratio.GreaterThanOrEqual(money.FromFloat(1.1)):
		return HealthDanger
	case ratio.GreaterThanOrEqual(money.FromFloat(1.0)):
		return HealthCritical
	default:
		return HealthLiquidationRisk
	}
}

// Info is the account-level MarginInfo of spec.md §3.
type Info struct {
	TotalEquity     money.Decimal
	UsedMargin      money.Decimal
	FreeMargin      money.Decimal
	MaintenanceMargin money.Decimal
	InitialMarginReq money.Decimal
	LiquidationPrice *money.Decimal
}

// MarginRatio computes equity/used, or (zero, false) if used is zero
// (spec.md §9's missing-data rule: treat as unavailable, never crash).
func (i Info) MarginRatio() (money.Decimal, bool) {
	return money.SafeDiv(i.TotalEquity, i.UsedMargin)
}

// Tier is one (notional_ceiling, init_rate, maint_rate) row of a
// venue/symbol tiered margin schedule.
type Tier struct {
	NotionalCeiling money.Decimal
	InitRate        money.Decimal
	MaintRate       money.Decimal
}

// DefaultInitRate/DefaultMaintRate are the conservative fallbacks
// spec.md §9 names for venues/symbols with no tier table: "default
// margin rate 10%/5%, default leverage 3".
var (
	DefaultInitRate  = money.FromFloat(0.10)
	DefaultMaintRate = money.FromFloat(0.05)
	DefaultMaxLeverage = money.FromFloat(3)
)

// TierTable maps (venue, symbol) to an ascending-by-ceiling tier list.
type TierTable map[string][]Tier

func tierKey(v venue.Id, symbol string) string { return string(v) + "|" + symbol }

// Lookup implements spec.md §4.8's tier lookup: first (tier_notional,
// rate) with notional <= tier_notional; else the highest tier; else
// flat defaults.
func (t TierTable) Lookup(v venue.Id, symbol string, notional money.Decimal) (initRate, maintRate money.Decimal) {
	tiers, ok := t[tierKey(v, symbol)]
	if !ok || len(tiers) == 0 {
		return DefaultInitRate, DefaultMaintRate
	}
	for _, tier := range tiers {
		if notional.LessThanOrEqual(tier.NotionalCeiling) {
			return tier.InitRate, tier.MaintRate
		}
	}
	last := tiers[len(tiers)-1]
	return last.InitRate, last.MaintRate
}

// CalculateSafeLeverage implements spec.md §4.8:
//
//	(init_rate, maint_rate) = TieredMarginRates(venue, symbol, notional)
//	safe = 1 / (maint_rate * (1 + safety_buffer))
//	return min(safe, exchange_max_leverage, max_allowed_leverage)
func CalculateSafeLeverage(tiers TierTable, v venue.Id, symbol string, notional, safetyBuffer, exchangeMaxLeverage, maxAllowedLeverage money.Decimal) money.Decimal {
	_, maintRate := tiers.Lookup(v, symbol, notional)
	denom := maintRate.Mul(money.One.Add(safetyBuffer))
	safe, ok := money.SafeDiv(money.One, denom)
	if !ok {
		safe = DefaultMaxLeverage
	}
	result := money.Min(safe, exchangeMaxLeverage)
	result = money.Min(result, maxAllowedLeverage)
	return result
}

// DistanceToLiquidationPct implements spec.md §4.8's per-position
// formula; returns (value, false) if mark or liq price is missing.
func DistanceToLiquidationPct(side venue.Side, mark money.Decimal, liq *money.Decimal) (money.Decimal, bool) {
	if liq == nil || mark.IsZero() {
		return money.Zero, false
	}
	var pct money.Decimal
	if side == venue.SideLong {
		d, ok := money.SafeDiv(mark.Sub(*liq), mark)
		if !ok {
			return money.Zero, false
		}
		pct = d
	} else {
		d, ok := money.SafeDiv(liq.Sub(mark), mark)
		if !ok {
			return money.Zero, false
		}
		pct = d
	}
	return pct.Mul(money.Hundred), true
}

// Action is a recommended remediation the MarginMonitor triggers.
type Action string

const (
	ActionMonitor         Action = "MONITOR"
	ActionReduceLeverage  Action = "REDUCE_LEVERAGE"
	ActionClosePositions  Action = "CLOSE_POSITIONS"
	ActionAddMargin       Action = "ADD_MARGIN"
	ActionEmergencyExit   Action = "EMERGENCY_EXIT"
)

// RecommendedActions implements spec.md §4.8's health->actions table,
// in priority order.
func RecommendedActions(h Health) []Action {
	switch h {
	case HealthLiquidationRisk:
		return []Action{ActionEmergencyExit, ActionAddMargin}
	case HealthCritical:
		return []Action{ActionClosePositions, ActionAddMargin}
	case HealthDanger:
		return []Action{ActionReduceLeverage, ActionClosePositions}
	case HealthWarning:
		return []Action{ActionReduceLeverage, ActionMonitor}
	default:
		return []Action{ActionMonitor}
	}
}

// ADLRisk classifies auto-deleveraging exposure (spec.md §4.8):
// prefer an explicit venue indicator (5=imminent,4=high,3=medium, else
// low); absent that, estimate from leverage.
type ADLRisk string

const (
	ADLImminent ADLRisk = "IMMINENT"
	ADLHigh     ADLRisk = "HIGH"
	ADLMedium   ADLRisk = "MEDIUM"
	ADLLow      ADLRisk = "LOW"
)

func ClassifyADL(indicator *int, leverage money.Decimal) ADLRisk {
	if indicator != nil {
		switch *indicator {
		case 5:
			return ADLImminent
		case 4:
			return ADLHigh
		case 3:
			return ADLMedium
		default:
			return ADLLow
		}
	}
	switch {
	case leverage.GreaterThanOrEqual(money.FromFloat(20)):
		return ADLHigh
	case leverage.GreaterThanOrEqual(money.FromFloat(10)):
		return ADLMedium
	default:
		return ADLLow
	}
}

// PositionMarginInfo is the per-position record the MarginMonitor
// watches (spec.md §3's Position, margin fields only).
type PositionMarginInfo struct {
	Venue           venue.Id
	Pair            venue.Pair
	Side            venue.Side
	Notional        money.Decimal
	Leverage        money.Decimal
	MarkPrice       money.Decimal
	LiquidationPrice *money.Decimal
	ADLIndicator    *int
}

// ActionHandler is invoked once per required action per monitoring
// cycle; auto_reduce_enabled gates whether REDUCE_LEVERAGE actually
// executes (callers check this before invoking a leverage change).
type ActionHandler func(pos PositionMarginInfo, action Action)

// Monitor is C8: runs the per-cycle health classification and fires
// registered callbacks for each required action.
type Monitor struct {
	Tiers             TierTable
	SafetyBuffer      money.Decimal
	AutoReduceEnabled bool
	handlers          []ActionHandler
}

func NewMonitor(tiers TierTable, safetyBuffer money.Decimal, autoReduce bool) *Monitor {
	return &Monitor{Tiers: tiers, SafetyBuffer: safetyBuffer, AutoReduceEnabled: autoReduce}
}

func (m *Monitor) RegisterActionHandler(h ActionHandler) { m.handlers = append(m.handlers, h) }

// CheckAccount classifies account-level margin health.
func (m *Monitor) CheckAccount(info Info) Health {
	ratio, ok := info.MarginRatio()
	if !ok {
		return HealthHealthy // unavailable: conservative no-op per spec.md §9
	}
	return ClassifyMarginRatio(ratio)
}

// CheckPosition classifies one position and fires action handlers for
// every recommended action at its current health level.
func (m *Monitor) CheckPosition(pos PositionMarginInfo, accountRatio money.Decimal) Health {
	health := ClassifyMarginRatio(accountRatio)
	for _, action := range RecommendedActions(health) {
		for _, h := range m.handlers {
			h(pos, action)
		}
	}
	return health
}

// HealthTracker lets TradingReadiness (C1) ask "what's the worst margin
// health right now" without importing this package directly (spec.md §9
// names exactly this cyclic-reference risk). The engine's margin-check
// step reports the worst health observed per cycle; the readiness loop
// reads it back through a closure over Worst.
type HealthTracker struct {
	mu     sync.Mutex
	worst  Health
	reason string
}

func NewHealthTracker() *HealthTracker {
	return &HealthTracker{worst: HealthHealthy}
}

// Report records one health observation, keeping whichever is worse of
// it and what prior Report calls recorded — callers reset it once per
// cycle via Reset before re-scanning.
func (h *HealthTracker) Report(health Health, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if healthRank(health) > healthRank(h.worst) {
		h.worst = health
		h.reason = reason
	}
}

// Reset clears the tracked worst health at the start of a new cycle.
func (h *HealthTracker) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.worst = HealthHealthy
	h.reason = ""
}

// Worst returns the worst health observed since the last Reset.
func (h *HealthTracker) Worst() (Health, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.worst, h.reason
}

func healthRank(h Health) int {
	switch h {
	case HealthLiquidationRisk:
		return 4
	case HealthCritical:
		return 3
	case HealthDanger:
		return 2
	case HealthWarning:
		return 1
	default:
		return 0
	}
}
