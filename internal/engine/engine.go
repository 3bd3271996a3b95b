// FILE: internal/engine/engine.go
// Package engine implements C10, the LifecycleEngine (spec.md §4.10):
// the pipeline that scans, evaluates, enters, validates, monitors,
// closes and confirms arbitrages on an outer tick. Grounded on
// other_examples/a536875c_..._arbitrage-selector.go's scan/evaluate
// shape and on the teacher's single-actor "apply" mutation pattern
// (trader.go's apply(fn func(*Trader))), generalized from one
// mutex-guarded struct to the full tick algorithm spec.md §4.10
// specifies.
package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/riskforge/fundingarb/internal/alert"
	"github.com/riskforge/fundingarb/internal/edge"
	"github.com/riskforge/fundingarb/internal/margin"
	"github.com/riskforge/fundingarb/internal/money"
	"github.com/riskforge/fundingarb/internal/ratelimit"
	"github.com/riskforge/fundingarb/internal/reconcile"
	"github.com/riskforge/fundingarb/internal/risk"
	"github.com/riskforge/fundingarb/internal/venue"
)

// Engine is C10. All mutation of the live Arbitrage table happens on
// the single actor goroutine running Run; external event deliveries
// (fills, funding, connection status) are serialized through eventCh
// and applied between ticks, per spec.md §5.
type Engine struct {
	deps Deps

	mu         sync.RWMutex // guards arbitrages/archive for safe snapshot reads by other goroutines (metrics, health)
	arbitrages map[string]*Arbitrage // token -> live Arbitrage
	archive    map[string][]*Arbitrage

	fundingCache map[venue.Id]map[venue.Pair]venue.FundingInfo

	// trackedPairs is the operator-registered universe of pairs to scan
	// for opportunities, independent of any currently-live Arbitrage.
	trackedPairs map[venue.Pair]struct{}

	eventCh chan venue.Event

	lastStats       time.Time
	lastMarginCheck time.Time
	lastReconcile   time.Time

	// marginActionQueue buffers actions MarginMon's registered handler
	// appends mid-classification; the margin-check step drains and
	// executes them with a live ctx afterward (ActionHandler itself
	// carries no context for I/O, per spec.md §4.8's callback shape).
	marginActionQueue []marginActionItem

	// lastBalances is each (venue, asset)'s balance as observed at the
	// end of the previous reconciliation cycle — reconcileManagement has
	// no independent ledger, so it uses this as the "expected" balance
	// to detect unexpected drift (withdrawal, liquidation, unaccounted
	// funding) between cycles.
	lastBalances map[reconcile.BalanceKey]money.Decimal
}

// New constructs an Engine with a fresh live table (spec.md §9: "tests
// instantiate a fresh Deps").
func New(deps Deps) *Engine {
	e := &Engine{
		deps:         deps,
		arbitrages:   make(map[string]*Arbitrage),
		archive:      make(map[string][]*Arbitrage),
		fundingCache: make(map[venue.Id]map[venue.Pair]venue.FundingInfo),
		trackedPairs: make(map[venue.Pair]struct{}),
		eventCh:      make(chan venue.Event, 1024),
		lastBalances: make(map[reconcile.BalanceKey]money.Decimal),
	}
	if deps.MarginMon != nil {
		deps.MarginMon.RegisterActionHandler(e.queueMarginAction)
	}
	return e
}

// queueMarginAction is the margin.ActionHandler registered against
// MarginMon: ActionHandler carries no context, so it only records the
// action; marginManagement drains and executes the queue with a live
// ctx right after the classification pass that produced it.
func (e *Engine) queueMarginAction(pos margin.PositionMarginInfo, action margin.Action) {
	e.mu.Lock()
	e.marginActionQueue = append(e.marginActionQueue, marginActionItem{pos: pos, action: action})
	e.mu.Unlock()
}

// SeedTrackedPair registers a pair for funding-rate tracking and
// opportunity scanning even before any Arbitrage exists for it.
func (e *Engine) SeedTrackedPair(p venue.Pair) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trackedPairs[p] = struct{}{}
}

// Snapshot returns a read-only copy of live Arbitrages, safe for
// concurrent readers (health endpoints, tests) — position tables are
// "owned by the actor; readers obtain copies (snapshots), never
// references" per spec.md §5.
func (e *Engine) Snapshot() []Arbitrage {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Arbitrage, 0, len(e.arbitrages))
	for _, a := range e.arbitrages {
		out = append(out, *a)
	}
	return out
}

// PushEvent enqueues an external event (fill, funding payment, order
// status, connection status) for application between ticks.
func (e *Engine) PushEvent(ev venue.Event) {
	select {
	case e.eventCh <- ev:
	default:
		log.Printf("engine: event channel full, dropping event kind=%s", ev.Kind)
	}
}

// Run drives the outer tick loop until ctx is cancelled. On
// cancellation every active Arbitrage transitions to CLOSING with
// reason "strategy stopping" (spec.md §5's shutdown rule) before Run
// returns.
func (e *Engine) Run(ctx context.Context, tickInterval time.Duration) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return
		case ev := <-e.eventCh:
			e.applyEvent(ev)
		case now := <-ticker.C:
			e.tick(ctx, now)
		}
	}
}

func (e *Engine) shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now().UTC()
	for _, a := range e.arbitrages {
		if a.State != StateClosed {
			a.Close("strategy stopping", now)
		}
	}
}

// tick runs the single cooperative turn described by spec.md §4.10, in
// order. The whole turn sees a consistent snapshot of the live table
// (no concurrent mutation, since this runs only on the actor goroutine
// inside Run).
func (e *Engine) tick(ctx context.Context, now time.Time) {
	start := time.Now()
	e.updateFundingRates(ctx)
	e.maybeEmitStats(now)
	e.pendingValidation(now)
	e.closingConfirmation(ctx, now)
	e.activeManagement(ctx, now)
	e.marginManagement(ctx, now)
	e.reconcileManagement(ctx, now)
	canTrade, reason := e.deps.Gate.CanTrade(now)
	if canTrade {
		e.opportunityScan(ctx, now)
	} else if e.deps.Metrics != nil {
		e.deps.Metrics.IncOpportunitySkipped(reason)
	}
	if e.deps.Metrics != nil {
		e.deps.Metrics.ObserveTick(time.Since(start).Seconds())
		e.reportCounts()
	}
}

func (e *Engine) reportCounts() {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var pending, active, closing int
	for _, a := range e.arbitrages {
		switch a.State {
		case StatePending:
			pending++
		case StateActive:
			active++
		case StateClosing:
			closing++
		}
	}
	e.deps.Metrics.SetPendingCount(pending)
	e.deps.Metrics.SetActiveCount(active)
	e.deps.Metrics.SetClosingCount(closing)
}

func (e *Engine) maybeEmitStats(now time.Time) {
	interval := time.Duration(e.deps.Config.StatsIntervalSeconds) * time.Second
	if interval <= 0 || now.Sub(e.lastStats) < interval {
		return
	}
	e.lastStats = now
	e.mu.RLock()
	n := len(e.arbitrages)
	e.mu.RUnlock()
	log.Printf("engine stats: live_arbitrages=%d", n)
}

// updateFundingRates implements step 1: for each venue x tracked pair,
// call Venue.GetFundingInfo and cache the latest reading; failures
// count toward the ErrorSeries breaker (spec.md §4.10 step 1).
func (e *Engine) updateFundingRates(ctx context.Context) {
	e.mu.RLock()
	pairs := make(map[venue.Pair]struct{}, len(e.trackedPairs)+len(e.arbitrages))
	for p := range e.trackedPairs {
		pairs[p] = struct{}{}
	}
	for _, a := range e.arbitrages {
		pairs[a.Pair] = struct{}{}
	}
	e.mu.RUnlock()

	now := time.Now()
	for vid, v := range e.deps.Venues {
		for pair := range pairs {
			if !e.deps.RateLimiter.Acquire(ctx, ratelimit.VenueId(vid), ratelimit.ChannelFunding, 1, false, 2*time.Second) {
				continue
			}
			fi, err := v.GetFundingInfo(ctx, pair)
			if err != nil {
				e.deps.Breakers.ErrorSeries.RecordFailure(now)
				continue
			}
			if !fi.Valid() {
				continue
			}
			e.deps.Breakers.ErrorSeries.RecordSuccess(now)
			e.mu.Lock()
			if e.fundingCache[vid] == nil {
				e.fundingCache[vid] = make(map[venue.Pair]venue.FundingInfo)
			}
			e.fundingCache[vid][pair] = fi // latest reading supersedes prior (spec.md §5)
			e.mu.Unlock()
		}
	}
}

// pendingValidation implements step 3 of spec.md §4.10.
func (e *Engine) pendingValidation(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cfg := e.deps.Config
	for token, a := range e.arbitrages {
		if a.State != StatePending {
			continue
		}
		if now.Sub(a.EntryTime) > time.Duration(cfg.PendingValidationTimeoutSeconds)*time.Second {
			a.Close("pending timeout", now)
			e.emitAlertLocked(alert.SeverityCritical, "pending timeout", token)
			continue
		}
		imbalance, ok := a.ImbalancePct()
		if !ok {
			a.ValidationAttempts++
			a.LastValidationError = "not filled yet"
		} else if imbalance.LessThanOrEqual(cfg.MaxPositionImbalancePct) {
			a.transitionTo(StateActive)
			e.emitAlertLocked(alert.SeverityInfo, "PositionOpened", token)
			continue
		} else {
			a.ValidationAttempts++
			a.LastValidationError = "imbalance exceeds threshold"
		}
		if a.ValidationAttempts >= cfg.PendingValidationMaxAttempts {
			a.Close("validation failed", now)
			e.emitAlertLocked(alert.SeverityCritical, "validation failed", token)
		}
	}
}

// closingConfirmation implements step 4.
func (e *Engine) closingConfirmation(ctx context.Context, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cfg := e.deps.Config
	for token, a := range e.arbitrages {
		if a.State != StateClosing {
			continue
		}
		if a.closingLegsConfirmed {
			a.ExecutorsPnl = a.ExecutorsPnl.Add(a.FundingPaymentsPnl())
			a.transitionTo(StateClosed)
			e.archiveLocked(token, a)
			e.emitAlertLocked(alert.SeverityInfo, "PositionClosed", token)
			e.deps.RiskMgr.RemovePosition(token)
			delete(e.arbitrages, token)
			continue
		}
		if a.CloseTime == nil {
			continue
		}
		if now.Sub(*a.CloseTime) > time.Duration(cfg.CloseValidationTimeoutSeconds)*time.Second {
			if a.LastCloseAlertTs == nil || now.Sub(*a.LastCloseAlertTs) > time.Duration(cfg.CloseValidationTimeoutSeconds)*time.Second {
				e.reissueStopLocked(ctx, a)
				e.emitAlertLocked(alert.SeverityHigh, "CloseTimeout", token)
				ts := now
				a.LastCloseAlertTs = &ts
			}
		}
	}
}

func (e *Engine) reissueStopLocked(ctx context.Context, a *Arbitrage) {
	if longV, ok := e.deps.Venues[a.LongVenue]; ok {
		_ = longV.CancelOrder(ctx, a.Pair, a.Legs.Long)
	}
	if shortV, ok := e.deps.Venues[a.ShortVenue]; ok {
		_ = shortV.CancelOrder(ctx, a.Pair, a.Legs.Short)
	}
}

func (e *Engine) archiveLocked(token string, a *Arbitrage) {
	cp := *a
	e.archive[token] = append(e.archive[token], &cp)
	if len(e.archive[token]) > archiveLimit {
		e.archive[token] = e.archive[token][len(e.archive[token])-archiveLimit:]
	}
}

// activeManagement implements step 5: hedge-gap emergency check,
// take-profit, and funding-deterioration stop-loss.
func (e *Engine) activeManagement(ctx context.Context, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cfg := e.deps.Config
	for token, a := range e.arbitrages {
		if a.State != StateActive {
			continue
		}

		if imbalance, ok := a.ImbalancePct(); ok && imbalance.GreaterThan(cfg.MaxHedgeGapPct) {
			e.deps.Breakers.RecordHedgeDeviationFailure(now)
			if cfg.EmergencyCloseOnImbalance {
				a.Close("EMERGENCY: hedge imbalance", now)
				e.emitAlertLocked(alert.SeverityCritical, "EMERGENCY: hedge imbalance", token)
				continue
			}
		}

		fundingPnl := a.FundingPaymentsPnl()
		combined := a.ExecutorsPnl.Add(fundingPnl)
		threshold := cfg.ProfitabilityToTakeProfit.Mul(a.NotionalQuote)
		if combined.GreaterThan(threshold) {
			a.Close("take profit", now)
			e.emitAlertLocked(alert.SeverityInfo, "take profit", token)
			continue
		}

		longFi, okL := e.fundingCache[a.LongVenue][a.Pair]
		shortFi, okS := e.fundingCache[a.ShortVenue][a.Pair]
		if !okL || !okS {
			continue // missing data: skip the funding-based stop, never force-close on it (spec.md §4.10 step 5)
		}
		fundingDiff := shortFi.Rate.Sub(longFi.Rate)
		if a.Side == venue.SideShort {
			fundingDiff = fundingDiff.Neg()
		}
		annualized := fundingDiff.Mul(money.SecondsPerDay)
		if annualized.LessThan(cfg.FundingRateDiffStopLoss) {
			a.Close("funding deterioration stop loss", now)
			e.emitAlertLocked(alert.SeverityMedium, "funding deterioration stop loss", token)
		}
	}
}

func (e *Engine) emitAlertLocked(sev alert.Severity, title, token string) {
	if e.deps.Alerts == nil {
		return
	}
	e.deps.Alerts.Emit(alert.Alert{
		Severity: sev,
		Title:    title,
		Message:  "token=" + token,
		Time:     time.Now().UTC(),
	})
}

// opportunityScan implements step 6: skip tokens already live, skip
// venues at their connector position cap, rank candidates by
// GetMostProfitableCombination, then run the ordered gates.
func (e *Engine) opportunityScan(ctx context.Context, now time.Time) {
	e.mu.RLock()
	busyVenues := e.venuesAtConnectorCapLocked()
	liveTokens := make(map[string]struct{}, len(e.arbitrages))
	for token := range e.arbitrages {
		liveTokens[token] = struct{}{}
	}
	scanned := make(map[venue.Pair]struct{}, len(e.trackedPairs))
	for pair := range e.trackedPairs {
		scanned[pair] = struct{}{}
	}
	e.mu.RUnlock()

	for pair := range scanned {
		token := pair.Base
		if _, live := liveTokens[token]; live {
			continue
		}
		e.evaluateToken(ctx, now, token, pair, busyVenues)
	}
}

func (e *Engine) venuesAtConnectorCapLocked() map[venue.Id]bool {
	busy := make(map[venue.Id]bool)
	cap := e.deps.Config.MaxPositionsPerConnector
	if cap <= 0 {
		return busy
	}
	counts := make(map[venue.Id]int)
	for _, a := range e.arbitrages {
		if a.State == StateClosed {
			continue
		}
		counts[a.LongVenue]++
		counts[a.ShortVenue]++
	}
	for v, c := range counts {
		if c >= cap {
			busy[v] = true
		}
	}
	return busy
}

func (e *Engine) evaluateToken(ctx context.Context, now time.Time, token string, pair venue.Pair, busyVenues map[venue.Id]bool) {
	if e.deps.Metrics != nil {
		e.deps.Metrics.IncOpportunityScanned()
	}
	e.mu.RLock()
	report := edge.FundingReport{}
	for vid, pairs := range e.fundingCache {
		if busyVenues[vid] {
			continue
		}
		if fi, ok := pairs[pair]; ok {
			report[vid] = fi
		}
	}
	e.mu.RUnlock()
	if len(report) < 2 {
		return
	}
	combo, found := edge.GetMostProfitableCombination(report)
	if !found || money.Abs(combo.LongRate.Sub(combo.ShortRate)).LessThan(e.deps.Config.MinFundingRateDiff) {
		e.skip("below_min_funding_rate_diff")
		return
	}

	notional := e.sizeNotional(combo)
	if notional.LessThanOrEqual(money.Zero) {
		e.skip("zero_or_negative_notional")
		return
	}

	if !e.validateSufficientBalance(ctx, combo, notional) {
		e.skip("insufficient_balance")
		return
	}

	venues := []venue.Id{combo.LongVenue, combo.ShortVenue}
	if !e.deps.Scheduler.ShouldOpen(venues, now, time.Duration(e.deps.Config.MinPositionHoldTimeMinutes)*time.Minute) {
		e.skip("settlement_not_safe")
		return
	}

	decomposition, ok := edge.Calculate(edge.Inputs{
		LongVenue: combo.LongVenue, ShortVenue: combo.ShortVenue, Pair: pair,
		LongRate: combo.LongRate, ShortRate: combo.ShortRate, Notional: notional,
		Fees:                e.feesTable(ctx, combo, notional),
		BorrowRates:         map[string]money.Decimal{},
		Slippage:            map[venue.Id]money.Decimal{},
		LevLong:             money.One,
		LevShort:            money.One,
		FundingPeriodHours:  e.deps.Config.FundingPeriodHours,
		SettlementBufferBps: e.deps.Config.SettlementBufferBps,
		MinEdgeRequired:     e.deps.Config.MinEdgeRequired,
	})
	if !ok || !decomposition.IsProfitable {
		e.skip("edge_not_profitable")
		return
	}
	if e.deps.Metrics != nil {
		f, _ := decomposition.TotalEdge.Float64()
		e.deps.Metrics.ObserveEdge(f)
	}

	if !e.checkSlippage(ctx, combo, notional) {
		e.skip("slippage_exceeded")
		return
	}
	if e.deps.Config.CheckOrderBookDepthEnabled && !e.checkOrderBookDepth(ctx, combo, notional) {
		e.skip("insufficient_depth")
		return
	}

	e.openArbitrage(ctx, now, token, pair, combo, notional)
}

func (e *Engine) skip(reason string) {
	if e.deps.Metrics != nil {
		e.deps.Metrics.IncOpportunitySkipped(reason)
	}
}

// sizeNotional applies risk-gated sizing per spec.md §4.7's
// exposure-proportional scaling: the configured per-trade ceiling,
// scaled down by the risk level CheckPositionLimits assigns.
func (e *Engine) sizeNotional(combo edge.Combination) money.Decimal {
	base := money.Min(e.deps.Config.MaxNotionalPerExchange, e.deps.Config.MaxTotalNotional)
	if base.IsZero() {
		return money.Zero
	}
	_, _, level := e.deps.RiskMgr.CheckPositionLimits(combo.LongVenue, "default", combo.Pair, base, e.deps.Config.MaxLeverage)
	return base.Mul(risk.RiskMultiplier(level))
}

func (e *Engine) validateSufficientBalance(ctx context.Context, combo edge.Combination, notional money.Decimal) bool {
	requiredMargin, ok := money.SafeDiv(notional, e.deps.Config.MaxLeverage)
	if !ok {
		return false
	}
	requiredMargin = requiredMargin.Mul(money.FromFloat(1.10))
	_, quote := edge.SplitAsset(combo.Pair.String())
	for _, vid := range []venue.Id{combo.LongVenue, combo.ShortVenue} {
		v, ok := e.deps.Venues[vid]
		if !ok {
			return false
		}
		bal, err := v.GetBalance(ctx, quote)
		if err != nil || bal.LessThan(requiredMargin) {
			return false
		}
	}
	return true
}

func (e *Engine) checkSlippage(ctx context.Context, combo edge.Combination, notional money.Decimal) bool {
	for _, vid := range []venue.Id{combo.LongVenue, combo.ShortVenue} {
		v, ok := e.deps.Venues[vid]
		if !ok {
			return false
		}
		expected, ok := v.GetMidPrice(ctx, combo.Pair)
		if !ok {
			return false
		}
		actual, ok := v.GetPriceForQuoteVolume(ctx, combo.Pair, notional, true)
		if !ok {
			return false
		}
		diffPct, ok := money.SafeDiv(money.Abs(actual.Sub(expected)), expected)
		if !ok || diffPct.GreaterThan(e.deps.Config.MaxSlippagePct) {
			return false
		}
	}
	return true
}

func (e *Engine) checkOrderBookDepth(ctx context.Context, combo edge.Combination, notional money.Decimal) bool {
	minRequired := notional.Mul(e.deps.Config.MinOrderBookDepthMultiplier)
	for _, vid := range []venue.Id{combo.LongVenue, combo.ShortVenue} {
		v, ok := e.deps.Venues[vid]
		if !ok {
			return false
		}
		ob, err := v.GetOrderBook(ctx, combo.Pair)
		if err != nil {
			return false
		}
		depth, ok := ob.DepthToVolume(true, 20)
		if !ok || depth.LessThan(minRequired) {
			return false
		}
	}
	return true
}

func (e *Engine) feesTable(ctx context.Context, combo edge.Combination, notional money.Decimal) edge.FeesTable {
	table := edge.FeesTable{}
	for _, vid := range []venue.Id{combo.LongVenue, combo.ShortVenue} {
		v, ok := e.deps.Venues[vid]
		if !ok {
			continue
		}
		fee, err := v.GetFee(ctx, combo.Pair, venue.SideLong, venue.FeeActionOpen, notional, combo.LongRate, false)
		if err == nil {
			table[vid] = fee
		}
	}
	return table
}

func (e *Engine) openArbitrage(ctx context.Context, now time.Time, token string, pair venue.Pair, combo edge.Combination, notional money.Decimal) {
	longV, okL := e.deps.Venues[combo.LongVenue]
	shortV, okS := e.deps.Venues[combo.ShortVenue]
	if !okL || !okS {
		return
	}

	longID, err := longV.PlaceOrder(ctx, pair, venue.SideLong, venue.OrderMarket, notional, nil, false)
	if err != nil {
		e.deps.Breakers.ErrorSeries.RecordFailure(now)
		return
	}
	shortID, err := shortV.PlaceOrder(ctx, pair, venue.SideShort, venue.OrderMarket, notional, nil, false)
	if err != nil {
		e.deps.Breakers.ErrorSeries.RecordFailure(now)
		_ = longV.CancelOrder(ctx, pair, longID)
		return
	}

	a := &Arbitrage{
		Token:         token,
		Pair:          pair,
		LongVenue:     combo.LongVenue,
		ShortVenue:    combo.ShortVenue,
		Side:          venue.SideLong,
		NotionalQuote: notional,
		Leverage:      e.deps.Config.MaxLeverage,
		State:         StatePending,
		EntryTime:     now,
		Legs:          Legs{Long: longID, Short: shortID},
		Demo:          e.deps.Config.DemoMode,
	}
	e.mu.Lock()
	e.arbitrages[token] = a
	e.mu.Unlock()

	e.deps.RiskMgr.RecordPosition(risk.PositionInfo{
		Id: token, Venue: combo.LongVenue, Subaccount: "default",
		Pair: pair, Side: venue.SideLong, Notional: notional, Leverage: e.deps.Config.MaxLeverage,
	})
	if e.deps.Metrics != nil {
		e.deps.Metrics.IncArbitrageOpened()
	}
}

// applyEvent applies one external event to the relevant Arbitrage
// between ticks, per spec.md §5's serialization rule.
func (e *Engine) applyEvent(ev venue.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch ev.Kind {
	case venue.EventFill:
		e.applyFillLocked(ev.Fill)
	case venue.EventFundingPayment:
		e.applyFundingLocked(ev.Funding)
	case venue.EventOrderStatus:
		e.applyOrderStatusLocked(ev.OrderStat)
	}
}

func (e *Engine) applyFillLocked(f *venue.Fill) {
	if f == nil {
		return
	}
	for _, a := range e.arbitrages {
		switch f.OrderId {
		case a.Legs.Long:
			a.FilledNotional.Long = a.FilledNotional.Long.Add(f.QuoteValue)
			a.ExecutorsPnl = a.ExecutorsPnl.Sub(f.FeeQuote)
		case a.Legs.Short:
			a.FilledNotional.Short = a.FilledNotional.Short.Add(f.QuoteValue)
			a.ExecutorsPnl = a.ExecutorsPnl.Sub(f.FeeQuote)
		}
	}
}

func (e *Engine) applyFundingLocked(fp *venue.FundingPayment) {
	if fp == nil {
		return
	}
	for _, a := range e.arbitrages {
		if a.Pair == fp.Pair {
			a.AppendFundingPayment(FundingPayment{Amount: fp.Amount, Time: fp.Time})
		}
	}
}

func (e *Engine) applyOrderStatusLocked(os *venue.OrderStatus) {
	if os == nil {
		return
	}
	for _, a := range e.arbitrages {
		if a.State != StateClosing {
			continue
		}
		if a.Legs.Long == os.OrderId || a.Legs.Short == os.OrderId {
			if os.Status == venue.OrderCancelled || os.Status == venue.OrderFilled {
				a.closingLegsConfirmed = true
			}
		}
	}
}
