// FILE: internal/engine/margin_manage.go
// Drives MarginMonitor (C8) and Reconciler (C9) from the tick loop.
// Neither subsystem schedules its own work (spec.md §4.8/§4.9 describe
// them as pure classification/diffing engines); the engine is the only
// actor goroutine, so both run as gated steps inside tick, following the
// same now-minus-lastRun cadence maybeEmitStats already uses.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/riskforge/fundingarb/internal/alert"
	"github.com/riskforge/fundingarb/internal/margin"
	"github.com/riskforge/fundingarb/internal/money"
	"github.com/riskforge/fundingarb/internal/reconcile"
	"github.com/riskforge/fundingarb/internal/venue"
)

// marginActionItem is one queued (position, action) pair recorded by
// queueMarginAction, drained and executed by marginManagement.
type marginActionItem struct {
	pos    margin.PositionMarginInfo
	action margin.Action
}

type marginLeg struct {
	token    string
	venueId  venue.Id
	pair     venue.Pair
	side     venue.Side
	notional money.Decimal
	leverage money.Decimal
}

type marginKey struct {
	venueId venue.Id
	asset   string
}

// marginManagement implements C8's monitoring loop (spec.md §4.8): per
// venue+asset, build account MarginInfo from tracked legs and live
// balances, classify account and per-position health, report the
// cycle's worst health to MarginHealth, then drain and execute whatever
// actions CheckPosition queued via queueMarginAction.
func (e *Engine) marginManagement(ctx context.Context, now time.Time) {
	if e.deps.MarginMon == nil {
		return
	}
	interval := time.Duration(e.deps.Config.MarginCheckIntervalSeconds) * time.Second
	if interval <= 0 || now.Sub(e.lastMarginCheck) < interval {
		return
	}
	e.lastMarginCheck = now

	if e.deps.MarginHealth != nil {
		e.deps.MarginHealth.Reset()
	}

	e.mu.RLock()
	var legs []marginLeg
	for token, a := range e.arbitrages {
		if a.State != StateActive {
			continue
		}
		legs = append(legs, marginLeg{token, a.LongVenue, a.Pair, venue.SideLong, a.NotionalQuote, a.Leverage})
		legs = append(legs, marginLeg{token, a.ShortVenue, a.Pair, venue.SideShort, a.NotionalQuote, a.Leverage})
	}
	e.mu.RUnlock()

	usedByKey := make(map[marginKey]money.Decimal)
	for _, l := range legs {
		perLeg, ok := money.SafeDiv(l.notional, l.leverage)
		if !ok {
			continue
		}
		key := marginKey{l.venueId, l.pair.Quote}
		usedByKey[key] = usedByKey[key].Add(perLeg)
	}

	ratioByKey := make(map[marginKey]money.Decimal)
	for key, used := range usedByKey {
		v, ok := e.deps.Venues[key.venueId]
		if !ok {
			continue
		}
		equity, err := v.GetBalance(ctx, key.asset)
		if err != nil {
			continue
		}
		info := margin.Info{TotalEquity: equity, UsedMargin: used}
		ratio, ok := info.MarginRatio()
		if !ok {
			continue
		}
		ratioByKey[key] = ratio
		health := e.deps.MarginMon.CheckAccount(info)
		if e.deps.MarginHealth != nil {
			e.deps.MarginHealth.Report(health, "account:"+string(key.venueId)+":"+key.asset)
		}
	}

	for _, l := range legs {
		key := marginKey{l.venueId, l.pair.Quote}
		ratio, ok := ratioByKey[key]
		if !ok {
			continue
		}
		v, ok := e.deps.Venues[l.venueId]
		if !ok {
			continue
		}
		pos := margin.PositionMarginInfo{
			Venue:    l.venueId,
			Pair:     l.pair,
			Side:     l.side,
			Notional: l.notional,
			Leverage: l.leverage,
		}
		if report, found := v.GetPosition(ctx, l.pair, l.side); found {
			pos.MarkPrice = report.MarkPrice
			pos.LiquidationPrice = report.LiquidationPrice
			pos.ADLIndicator = report.ADLIndicator
		}

		health := e.deps.MarginMon.CheckPosition(pos, ratio)
		if e.deps.MarginHealth != nil {
			e.deps.MarginHealth.Report(health, "position:"+l.token)
		}

		if adl := margin.ClassifyADL(pos.ADLIndicator, l.leverage); adl == margin.ADLHigh || adl == margin.ADLImminent {
			e.emitAlertLocked(alert.SeverityHigh, "ADL risk "+string(adl), l.token)
		}
	}

	e.mu.Lock()
	queue := e.marginActionQueue
	e.marginActionQueue = nil
	e.mu.Unlock()

	for _, item := range queue {
		e.applyMarginAction(ctx, now, item)
	}
}

// applyMarginAction executes one queued margin action with a live ctx.
// REDUCE_LEVERAGE calls SetLeverage down to the tier-derived safe
// leverage; a venue refusing the change (ErrUnsupportedLeverage) falls
// back to a partial reduce-only close sized by
// PartialCloseFractionOnLeverageRefusal (spec.md §4.8's auto-reduce
// path, extended per the maintainer's review to always make forward
// progress on a refusal instead of silently doing nothing).
func (e *Engine) applyMarginAction(ctx context.Context, now time.Time, item marginActionItem) {
	pos := item.pos
	v, ok := e.deps.Venues[pos.Venue]
	if !ok {
		return
	}

	switch item.action {
	case margin.ActionMonitor:
		return

	case margin.ActionReduceLeverage:
		if !e.deps.Config.AutoLeverageReduction {
			return
		}
		safe := margin.CalculateSafeLeverage(
			e.deps.MarginMon.Tiers, pos.Venue, pos.Pair.String(), pos.Notional,
			e.deps.MarginMon.SafetyBuffer, e.deps.Config.MaxLeverage, e.deps.Config.MaxLeverage,
		)
		err := v.SetLeverage(ctx, pos.Pair, safe)
		if err == nil {
			e.emitAlertLocked(alert.SeverityMedium, "leverage reduced", pos.Pair.Base)
			return
		}
		var unsupported venue.ErrUnsupportedLeverage
		if !errors.As(err, &unsupported) {
			e.deps.Breakers.ErrorSeries.RecordFailure(now)
			return
		}
		fraction := e.deps.Config.PartialCloseFractionOnLeverageRefusal
		closeAmount := pos.Notional.Mul(fraction)
		if closeAmount.LessThanOrEqual(money.Zero) {
			return
		}
		if _, err := v.PlaceOrder(ctx, pos.Pair, pos.Side.Opposite(), venue.OrderMarket, closeAmount, nil, true); err != nil {
			e.deps.Breakers.ErrorSeries.RecordFailure(now)
			return
		}
		e.emitAlertLocked(alert.SeverityHigh, "leverage reduction refused, partial close executed", pos.Pair.Base)

	case margin.ActionClosePositions, margin.ActionEmergencyExit:
		e.closeArbitragesOnVenueLocked(now, pos.Venue, pos.Pair, item.action)

	case margin.ActionAddMargin:
		e.emitAlertLocked(alert.SeverityHigh, "add margin required", pos.Pair.Base)
	}
}

// closeArbitragesOnVenueLocked marks every live Arbitrage using the
// given venue+pair leg as CLOSING; the ordinary closingConfirmation step
// then drives the rest of the shutdown. Both CLOSE_POSITIONS and
// EMERGENCY_EXIT resolve to the same engine-level action: this function
// places no order itself, it only marks the Arbitrage CLOSING.
func (e *Engine) closeArbitragesOnVenueLocked(now time.Time, vid venue.Id, pair venue.Pair, action margin.Action) {
	e.mu.Lock()
	defer e.mu.Unlock()
	reason := "margin: close positions"
	if action == margin.ActionEmergencyExit {
		reason = "margin: EMERGENCY_EXIT"
	}
	for token, a := range e.arbitrages {
		if a.Pair != pair || a.State == StateClosing || a.State == StateClosed {
			continue
		}
		if a.LongVenue != vid && a.ShortVenue != vid {
			continue
		}
		a.Close(reason, now)
		e.emitAlertLocked(alert.SeverityCritical, reason, token)
	}
}

// reconcileManagement implements C9's periodic loop (spec.md §4.9):
// diff the live Arbitrage table's filled notional (PositionTracker)
// against each venue's real reported position, and diff each venue
// balance against its own last-observed reading (the engine keeps no
// independent balance ledger, so drift between cycles is the signal).
// A kill-switch trip on Reconciler.EmergencyStop feeds straight into the
// breaker registry so CanTrade halts opportunity scanning immediately.
func (e *Engine) reconcileManagement(ctx context.Context, now time.Time) {
	if e.deps.Reconciler == nil || !e.deps.Config.AutoPositionReconciliation {
		return
	}
	interval := time.Duration(e.deps.Config.ReconcileIntervalSeconds) * time.Second
	if interval <= 0 || now.Sub(e.lastReconcile) < interval {
		return
	}
	e.lastReconcile = now

	e.mu.RLock()
	var legs []marginLeg
	for token, a := range e.arbitrages {
		if a.State != StateActive {
			continue
		}
		legs = append(legs, marginLeg{token, a.LongVenue, a.Pair, venue.SideLong, a.FilledNotional.Long, a.Leverage})
		legs = append(legs, marginLeg{token, a.ShortVenue, a.Pair, venue.SideShort, a.FilledNotional.Short, a.Leverage})
	}
	e.mu.RUnlock()

	expectedPositions := make(map[reconcile.PositionKey]reconcile.PositionSnapshot, len(legs))
	actualPositions := make(map[reconcile.PositionKey]reconcile.PositionSnapshot, len(legs))
	assetsByVenue := make(map[venue.Id]map[string]struct{})

	for _, l := range legs {
		key := reconcile.PositionKey{Venue: l.venueId, Pair: l.pair, Side: l.side}
		expectedPositions[key] = reconcile.PositionSnapshot{Notional: l.notional}

		if assetsByVenue[l.venueId] == nil {
			assetsByVenue[l.venueId] = make(map[string]struct{})
		}
		assetsByVenue[l.venueId][l.pair.Quote] = struct{}{}

		v, ok := e.deps.Venues[l.venueId]
		if !ok {
			continue
		}
		if report, found := v.GetPosition(ctx, l.pair, l.side); found {
			actualPositions[key] = reconcile.PositionSnapshot{Notional: report.Notional}
		}
	}

	expectedBalances := make(map[reconcile.BalanceKey]reconcile.BalanceSnapshot)
	actualBalances := make(map[reconcile.BalanceKey]reconcile.BalanceSnapshot)
	for vid, assets := range assetsByVenue {
		v, ok := e.deps.Venues[vid]
		if !ok {
			continue
		}
		for asset := range assets {
			actual, err := v.GetBalance(ctx, asset)
			if err != nil {
				continue
			}
			key := reconcile.BalanceKey{Venue: vid, Asset: asset}
			expected, seen := e.lastBalances[key]
			if !seen {
				expected = actual
			}
			expectedBalances[key] = reconcile.BalanceSnapshot{Amount: expected}
			actualBalances[key] = reconcile.BalanceSnapshot{Amount: actual}
			e.lastBalances[key] = actual
		}
	}

	discrepancies := e.deps.Reconciler.Run(now, expectedPositions, actualPositions, expectedBalances, actualBalances)
	for _, d := range discrepancies {
		if d.Severity == reconcile.SeverityCritical {
			e.emitAlertLocked(alert.SeverityCritical, "reconcile: "+string(d.Kind), reconcileToken(d))
		}
	}

	if e.deps.Reconciler.EmergencyStop() && e.deps.Breakers != nil {
		e.deps.Breakers.ActivateKillSwitch()
		e.emitAlertLocked(alert.SeverityCritical, "reconcile: emergency stop activated", "")
	}
}

func reconcileToken(d reconcile.Discrepancy) string {
	if d.PositionKey != nil {
		return d.PositionKey.Pair.Base
	}
	if d.BalanceKey != nil {
		return string(d.BalanceKey.Venue) + ":" + d.BalanceKey.Asset
	}
	return ""
}
