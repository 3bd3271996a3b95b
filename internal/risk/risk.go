// FILE: internal/risk/risk.go
// Package risk implements C7 (spec.md §4.7): notional/concentration/
// leverage limits, expected-position tracking, hedge-gap detection and
// liquidity risk. Grounded on
// kasyap1234-delta-go/go/pkg/risk/manager.go's CanTrade()/limit-checking
// shape (mutex-protected state, warning-threshold pattern), generalized
// from single-account drawdown tracking to spec.md's per-venue /
// per-subaccount / per-pair limit table.
package risk

import (
	"sync"

	"github.com/riskforge/fundingarb/internal/money"
	"github.com/riskforge/fundingarb/internal/venue"
)

// Level is the coarse risk classification CheckPositionLimits returns.
type Level string

const (
	LevelLow      Level = "LOW"
	LevelMedium   Level = "MEDIUM"
	LevelHigh     Level = "HIGH"
	LevelCritical Level = "CRITICAL"
)

// RiskMultiplier maps a Level to the exposure-proportional sizing
// multiplier spec.md §4.7 specifies.
func RiskMultiplier(l Level) money.Decimal {
	switch l {
	case LevelLow:
		return money.One
	case LevelMedium:
		return money.FromFloat(0.7)
	case LevelHigh:
		return money.FromFloat(0.3)
	default:
		return money.Zero
	}
}

// Limits holds the hard caps and their warning thresholds (each a
// fraction of the max, per spec.md §4.7).
type Limits struct {
	NotionalPerVenue      money.Decimal
	NotionalPerSubaccount money.Decimal
	TotalNotional         money.Decimal
	MaxLeverage           money.Decimal
	MaxHedgeGapPct        money.Decimal
	MaxConcentrationPct   money.Decimal
	WarningThreshold      money.Decimal // fraction in (0,1)
}

// PositionInfo is the expected-position record the RiskManager tracks.
type PositionInfo struct {
	Id        string
	Venue     venue.Id
	Subaccount string
	Pair      venue.Pair
	Side      venue.Side
	Notional  money.Decimal
	Leverage  money.Decimal
}

// LiquidityMetrics caches observed book depth for a (venue, pair).
type LiquidityMetrics struct {
	BidDepth1Pct money.Decimal
	AskDepth1Pct money.Decimal
}

// Manager is C7.
type Manager struct {
	mu sync.RWMutex

	limits Limits

	positions      map[string]PositionInfo            // expected positions
	hedgePairs     map[venue.Pair][]string             // pair -> position ids
	liquidityCache map[string]LiquidityMetrics          // key: venue|pair

	byVenueNotional      map[venue.Id]money.Decimal
	bySubaccountNotional map[string]money.Decimal
	totalNotional        money.Decimal
}

func NewManager(limits Limits) *Manager {
	return &Manager{
		limits:               limits,
		positions:            make(map[string]PositionInfo),
		hedgePairs:           make(map[venue.Pair][]string),
		liquidityCache:       make(map[string]LiquidityMetrics),
		byVenueNotional:      make(map[venue.Id]money.Decimal),
		bySubaccountNotional: make(map[string]money.Decimal),
	}
}

func liqKey(v venue.Id, p venue.Pair) string { return string(v) + "|" + p.String() }

// UpdateLiquidity records the latest observed depth metrics.
func (m *Manager) UpdateLiquidity(v venue.Id, p venue.Pair, lm LiquidityMetrics) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.liquidityCache[liqKey(v, p)] = lm
}

// RecordPosition inserts/updates an expected position and its venue/
// subaccount/total notional rollups, and its hedge-pair grouping.
func (m *Manager) RecordPosition(p PositionInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.positions[p.Id]; ok {
		m.byVenueNotional[old.Venue] = m.byVenueNotional[old.Venue].Sub(old.Notional)
		m.bySubaccountNotional[old.Subaccount] = m.bySubaccountNotional[old.Subaccount].Sub(old.Notional)
		m.totalNotional = m.totalNotional.Sub(old.Notional)
	}
	m.positions[p.Id] = p
	m.byVenueNotional[p.Venue] = m.byVenueNotional[p.Venue].Add(p.Notional)
	m.bySubaccountNotional[p.Subaccount] = m.bySubaccountNotional[p.Subaccount].Add(p.Notional)
	m.totalNotional = m.totalNotional.Add(p.Notional)
	m.hedgePairs[p.Pair] = appendUnique(m.hedgePairs[p.Pair], p.Id)
}

// RemovePosition drops an expected position (on CLOSED transition).
func (m *Manager) RemovePosition(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[id]
	if !ok {
		return
	}
	delete(m.positions, id)
	m.byVenueNotional[p.Venue] = m.byVenueNotional[p.Venue].Sub(p.Notional)
	m.bySubaccountNotional[p.Subaccount] = m.bySubaccountNotional[p.Subaccount].Sub(p.Notional)
	m.totalNotional = m.totalNotional.Sub(p.Notional)
	ids := m.hedgePairs[p.Pair]
	for i, v := range ids {
		if v == id {
			m.hedgePairs[p.Pair] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
}

func appendUnique(s []string, v string) []string {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}

// CheckPositionLimits implements spec.md §4.7's exact algorithm.
func (m *Manager) CheckPositionLimits(v venue.Id, subaccount string, pair venue.Pair, proposedNotional, proposedLeverage money.Decimal) (allow bool, messages []string, level Level) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	warnings := 0
	check := func(current, max money.Decimal, label string) {
		if max.IsZero() {
			return
		}
		projected := current.Add(proposedNotional)
		if projected.GreaterThan(max) {
			allow = false
			messages = append(messages, label+": hard limit breach")
			level = LevelCritical
			return
		}
		warnThresh := max.Mul(m.limits.WarningThreshold)
		if projected.GreaterThan(warnThresh) {
			warnings++
			messages = append(messages, label+": crossing warning threshold")
		}
	}

	allow = true
	check(m.byVenueNotional[v], m.limits.NotionalPerVenue, "notional_per_venue")
	check(m.bySubaccountNotional[subaccount], m.limits.NotionalPerSubaccount, "notional_per_subaccount")
	check(m.totalNotional, m.limits.TotalNotional, "total_notional")

	if !m.limits.MaxLeverage.IsZero() && proposedLeverage.GreaterThan(m.limits.MaxLeverage) {
		allow = false
		messages = append(messages, "max_leverage: hard limit breach")
		level = LevelCritical
	}

	if level != LevelCritical {
		switch {
		case warnings >= 3:
			level = LevelHigh
		case warnings >= 1:
			level = LevelMedium
		default:
			level = LevelLow
		}
	}
	return allow, messages, level
}

// CheckLiquidityRisk implements spec.md §4.7: reject if notional >
// 0.8*avail or impact = notional/avail > 0.5.
func (m *Manager) CheckLiquidityRisk(v venue.Id, pair venue.Pair, notional money.Decimal) (allow bool, msg string, impact money.Decimal) {
	m.mu.RLock()
	lm, ok := m.liquidityCache[liqKey(v, pair)]
	m.mu.RUnlock()
	if !ok {
		return false, "no liquidity data", money.Zero
	}
	avail := money.Min(lm.BidDepth1Pct, lm.AskDepth1Pct)
	if avail.IsZero() {
		return false, "zero available depth", money.Zero
	}
	impact, _ = money.SafeDiv(notional, avail)
	threshold8 := avail.Mul(money.FromFloat(0.8))
	if notional.GreaterThan(threshold8) {
		return false, "notional exceeds 80% of available depth", impact
	}
	if impact.GreaterThan(money.FromFloat(0.5)) {
		return false, "impact exceeds 50%", impact
	}
	return true, "", impact
}

// HedgeGap is one (long, short) venue pairing's computed gap for a pair.
type HedgeGap struct {
	Pair               venue.Pair
	LongVenue, ShortVenue venue.Id
	GapAmount          money.Decimal
	GapPct             money.Decimal
	Violation          bool
}

// ComputeHedgeGaps implements spec.md §4.7: for each pair, group
// positions by (venue, side); for every (long-venue, short-venue) pair
// with different venues, compute gap_amount and gap_pct.
func (m *Manager) ComputeHedgeGaps() []HedgeGap {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var gaps []HedgeGap
	for pair, ids := range m.hedgePairs {
		var longs, shorts []PositionInfo
		for _, id := range ids {
			p := m.positions[id]
			if p.Side == venue.SideLong {
				longs = append(longs, p)
			} else {
				shorts = append(shorts, p)
			}
		}
		for _, l := range longs {
			for _, s := range shorts {
				if l.Venue == s.Venue {
					continue
				}
				gapAmount := money.Abs(l.Notional.Sub(s.Notional))
				maxNotional := money.Max(l.Notional, s.Notional)
				gapPct, ok := money.SafeDiv(gapAmount, maxNotional)
				if !ok {
					continue
				}
				gaps = append(gaps, HedgeGap{
					Pair: pair, LongVenue: l.Venue, ShortVenue: s.Venue,
					GapAmount: gapAmount, GapPct: gapPct,
					Violation: gapPct.GreaterThan(m.limits.MaxHedgeGapPct),
				})
			}
		}
	}
	return gaps
}
