package engine

import (
	"context"
	"testing"
	"time"

	"github.com/riskforge/fundingarb/internal/alert"
	"github.com/riskforge/fundingarb/internal/breaker"
	"github.com/riskforge/fundingarb/internal/margin"
	"github.com/riskforge/fundingarb/internal/money"
	"github.com/riskforge/fundingarb/internal/ratelimit"
	"github.com/riskforge/fundingarb/internal/reconcile"
	"github.com/riskforge/fundingarb/internal/reliability"
	"github.com/riskforge/fundingarb/internal/risk"
	"github.com/riskforge/fundingarb/internal/settlement"
	"github.com/riskforge/fundingarb/internal/timesync"
	"github.com/riskforge/fundingarb/internal/venue"
)

type alwaysOKQuerier struct{}

func (alwaysOKQuerier) Query(ctx context.Context, server string) (time.Time, error) {
	return time.Now(), nil
}

type fakeMetrics struct {
	skipped map[string]int
	opened  int
	closed  map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{skipped: map[string]int{}, closed: map[string]int{}}
}

func (m *fakeMetrics) ObserveTick(float64)               {}
func (m *fakeMetrics) IncOpportunityScanned()             {}
func (m *fakeMetrics) IncOpportunitySkipped(reason string) { m.skipped[reason]++ }
func (m *fakeMetrics) IncArbitrageOpened()                { m.opened++ }
func (m *fakeMetrics) IncArbitrageClosed(reason string)   { m.closed[reason]++ }
func (m *fakeMetrics) SetActiveCount(int)                 {}
func (m *fakeMetrics) SetPendingCount(int)                {}
func (m *fakeMetrics) SetClosingCount(int)                {}
func (m *fakeMetrics) ObserveEdge(float64)                {}

// testDeps builds a Deps with real subsystems wired to permissive
// defaults (gate open, no limits bound) so tick-stage tests exercise
// only the behavior under test.
func testDeps(t *testing.T, venues map[venue.Id]venue.Venue) Deps {
	t.Helper()
	ts := timesync.NewMonitor([]string{"a"}, alwaysOKQuerier{}, time.Minute, 500, 3)
	breakers := breaker.NewRegistry(
		breaker.Config{WindowSeconds: 300, FailureThreshold: 50, SuccessThreshold: 1, TimeoutSeconds: 30},
		breaker.Config{WindowSeconds: 300, FailureThreshold: 50, SuccessThreshold: 1, TimeoutSeconds: 30},
		breaker.Config{WindowSeconds: 300, FailureThreshold: 50, SuccessThreshold: 1, TimeoutSeconds: 30},
	)
	readiness := reliability.NewTradingReadiness(nil, nil)
	limiter := ratelimit.NewLimiter(ratelimit.DefaultTunables(), nil)
	gate := reliability.NewGate(ts, breakers, readiness, limiter)
	scheduler := settlement.NewScheduler(map[venue.Id]settlement.Calendar{})
	riskMgr := risk.NewManager(risk.Limits{
		NotionalPerVenue:      money.FromFloat(1_000_000),
		NotionalPerSubaccount: money.FromFloat(1_000_000),
		TotalNotional:         money.FromFloat(1_000_000),
		MaxLeverage:           money.FromFloat(10),
		MaxHedgeGapPct:        money.FromFloat(0.1),
		MaxConcentrationPct:   money.FromFloat(0.5),
		WarningThreshold:      money.FromFloat(0.8),
	})
	marginMon := margin.NewMonitor(margin.TierTable{}, money.FromFloat(0.10), false)
	reconciler := reconcile.NewReconciler(false, money.FromFloat(0.10), nil)

	return Deps{
		Venues:      venues,
		Gate:        gate,
		Breakers:    breakers,
		RateLimiter: limiter,
		Scheduler:   scheduler,
		RiskMgr:     riskMgr,
		MarginMon:   marginMon,
		Reconciler:  reconciler,
		Alerts:      alert.LogSink{},
		Metrics:     newFakeMetrics(),
		Config: Config{
			MinFundingRateDiff:              money.FromFloat(0.00001),
			MinEdgeRequired:                 money.FromFloat(0.0001),
			ProfitabilityToTakeProfit:       money.FromFloat(0.01),
			FundingRateDiffStopLoss:         money.FromFloat(-1),
			MaxNotionalPerExchange:          money.FromFloat(10000),
			MaxTotalNotional:                money.FromFloat(10000),
			MaxLeverage:                     money.FromFloat(5),
			MaxHedgeGapPct:                  money.FromFloat(0.1),
			MaxConcentrationPct:             money.FromFloat(0.5),
			MaxSlippagePct:                  money.FromFloat(0.05),
			MinOrderBookDepthMultiplier:     money.FromFloat(1),
			CheckOrderBookDepthEnabled:      false,
			PendingValidationTimeoutSeconds: 60,
			PendingValidationMaxAttempts:    3,
			CloseValidationTimeoutSeconds:   30,
			MinPositionHoldTimeMinutes:      0,
			MaxPositionImbalancePct:         money.FromFloat(0.05),
			EmergencyCloseOnImbalance:       true,
			FundingPeriodHours:              money.FromFloat(8),
			SettlementBufferBps:             5,
			StatsIntervalSeconds:            0,
		},
	}
}

func pair() venue.Pair { return venue.Pair{Base: "BTC", Quote: "USDT"} }

func TestPendingValidationClosesOnTimeout(t *testing.T) {
	e := New(testDeps(t, nil))
	now := time.Now()
	e.arbitrages["BTC"] = &Arbitrage{
		Token: "BTC", Pair: pair(), State: StatePending,
		EntryTime: now.Add(-2 * time.Minute),
	}
	e.pendingValidation(now)
	a := e.arbitrages["BTC"]
	if a.State != StateClosing {
		t.Fatalf("state = %s, want CLOSING after pending timeout", a.State)
	}
	if a.CloseReason != "pending timeout" {
		t.Errorf("close reason = %q", a.CloseReason)
	}
}

func TestPendingValidationActivatesOnBalancedFill(t *testing.T) {
	e := New(testDeps(t, nil))
	now := time.Now()
	e.arbitrages["BTC"] = &Arbitrage{
		Token: "BTC", Pair: pair(), State: StatePending, EntryTime: now,
		FilledNotional: FilledNotional{Long: money.FromFloat(1000), Short: money.FromFloat(1000)},
	}
	e.pendingValidation(now)
	if e.arbitrages["BTC"].State != StateActive {
		t.Fatalf("state = %s, want ACTIVE on balanced fill", e.arbitrages["BTC"].State)
	}
}

func TestPendingValidationExhaustsAttemptsOnImbalance(t *testing.T) {
	e := New(testDeps(t, nil))
	now := time.Now()
	a := &Arbitrage{
		Token: "BTC", Pair: pair(), State: StatePending, EntryTime: now,
		FilledNotional: FilledNotional{Long: money.FromFloat(1000), Short: money.FromFloat(100)},
	}
	e.arbitrages["BTC"] = a
	cfg := e.deps.Config
	for i := 0; i < cfg.PendingValidationMaxAttempts; i++ {
		e.pendingValidation(now)
	}
	if a.State != StateClosing {
		t.Fatalf("state = %s, want CLOSING after exhausting validation attempts", a.State)
	}
	if a.CloseReason != "validation failed" {
		t.Errorf("close reason = %q", a.CloseReason)
	}
}

func TestClosingConfirmationArchivesOnConfirmedLegs(t *testing.T) {
	e := New(testDeps(t, nil))
	now := time.Now()
	e.arbitrages["BTC"] = &Arbitrage{
		Token: "BTC", Pair: pair(), State: StateClosing,
		closingLegsConfirmed: true,
		FundingPayments:      []FundingPayment{{Amount: money.FromFloat(5)}},
	}
	e.closingConfirmation(context.Background(), now)
	if _, live := e.arbitrages["BTC"]; live {
		t.Fatal("confirmed closing arbitrage must be removed from the live table")
	}
	if len(e.archive["BTC"]) != 1 {
		t.Fatalf("expected one archived record, got %d", len(e.archive["BTC"]))
	}
	if !e.archive["BTC"][0].ExecutorsPnl.Equal(money.FromFloat(5)) {
		t.Errorf("archived ExecutorsPnl = %s, want accrued funding pnl folded in", e.archive["BTC"][0].ExecutorsPnl)
	}
}

func TestClosingConfirmationReissuesStopOnTimeout(t *testing.T) {
	longV, shortV := newFakeVenue("binance"), newFakeVenue("bybit")
	e := New(testDeps(t, map[venue.Id]venue.Venue{"binance": longV, "bybit": shortV}))
	old := time.Now().Add(-time.Hour)
	e.arbitrages["BTC"] = &Arbitrage{
		Token: "BTC", Pair: pair(), State: StateClosing,
		LongVenue: "binance", ShortVenue: "bybit",
		CloseTime: &old,
	}
	e.closingConfirmation(context.Background(), time.Now())
	a := e.arbitrages["BTC"]
	if a.LastCloseAlertTs == nil {
		t.Fatal("expected LastCloseAlertTs to be set after a timed-out close reissues a stop")
	}
}

func TestActiveManagementEmergencyClosesOnHedgeGap(t *testing.T) {
	e := New(testDeps(t, nil))
	now := time.Now()
	e.arbitrages["BTC"] = &Arbitrage{
		Token: "BTC", Pair: pair(), State: StateActive,
		FilledNotional: FilledNotional{Long: money.FromFloat(1000), Short: money.FromFloat(500)},
	}
	e.activeManagement(context.Background(), now)
	a := e.arbitrages["BTC"]
	if a.State != StateClosing {
		t.Fatalf("state = %s, want CLOSING on emergency hedge imbalance", a.State)
	}
	if a.CloseReason != "EMERGENCY: hedge imbalance" {
		t.Errorf("close reason = %q", a.CloseReason)
	}
}

func TestActiveManagementTakesProfit(t *testing.T) {
	e := New(testDeps(t, nil))
	now := time.Now()
	e.arbitrages["BTC"] = &Arbitrage{
		Token: "BTC", Pair: pair(), State: StateActive,
		NotionalQuote:  money.FromFloat(1000),
		FilledNotional: FilledNotional{Long: money.FromFloat(1000), Short: money.FromFloat(1000)},
		ExecutorsPnl:   money.FromFloat(50), // 5% of notional > 1% take-profit threshold
	}
	e.activeManagement(context.Background(), now)
	a := e.arbitrages["BTC"]
	if a.State != StateClosing || a.CloseReason != "take profit" {
		t.Fatalf("state=%s reason=%q, want CLOSING/take profit", a.State, a.CloseReason)
	}
}

func TestActiveManagementSkipsFundingStopWithoutFreshData(t *testing.T) {
	e := New(testDeps(t, nil))
	now := time.Now()
	e.arbitrages["BTC"] = &Arbitrage{
		Token: "BTC", Pair: pair(), State: StateActive,
		FilledNotional: FilledNotional{Long: money.FromFloat(1000), Short: money.FromFloat(1000)},
	}
	e.activeManagement(context.Background(), now)
	if e.arbitrages["BTC"].State != StateActive {
		t.Fatal("with no funding cache for either leg, the funding stop-loss must never fire")
	}
}

func TestActiveManagementFundingStopLossFires(t *testing.T) {
	e := New(testDeps(t, nil))
	now := time.Now()
	e.arbitrages["BTC"] = &Arbitrage{
		Token: "BTC", Pair: pair(), State: StateActive, Side: venue.SideLong,
		LongVenue: "binance", ShortVenue: "bybit",
		FilledNotional: FilledNotional{Long: money.FromFloat(1000), Short: money.FromFloat(1000)},
	}
	e.fundingCache["binance"] = map[venue.Pair]venue.FundingInfo{pair(): {Rate: money.FromFloat(0.001)}}
	e.fundingCache["bybit"] = map[venue.Pair]venue.FundingInfo{pair(): {Rate: money.FromFloat(-0.001)}}
	e.activeManagement(context.Background(), now)
	a := e.arbitrages["BTC"]
	if a.State != StateClosing || a.CloseReason != "funding deterioration stop loss" {
		t.Fatalf("state=%s reason=%q, want CLOSING/funding deterioration stop loss", a.State, a.CloseReason)
	}
}

// TestEvaluateTokenOpensArbitrageOnProfitableSpread exercises the full
// evaluate pipeline (balance, settlement, edge, slippage gates) end to
// end. GetMostProfitableCombination always orients the lower-funding
// venue long and the higher-funding venue short, so this spread opens
// deterministically rather than only on whichever map-iteration order
// happens to come up.
func TestEvaluateTokenOpensArbitrageOnProfitableSpread(t *testing.T) {
	longV, shortV := newFakeVenue("binance"), newFakeVenue("bybit")
	longV.balances["USDT"] = money.FromFloat(100000)
	shortV.balances["USDT"] = money.FromFloat(100000)
	deps := testDeps(t, map[venue.Id]venue.Venue{"binance": longV, "bybit": shortV})
	e := New(deps)
	e.fundingCache["binance"] = map[venue.Pair]venue.FundingInfo{pair(): {Venue: "binance", Pair: pair(), Rate: money.FromFloat(0.001), IntervalSeconds: 3600}}
	e.fundingCache["bybit"] = map[venue.Pair]venue.FundingInfo{pair(): {Venue: "bybit", Pair: pair(), Rate: money.FromFloat(-0.002), IntervalSeconds: 3600}}

	e.evaluateToken(context.Background(), time.Now(), "BTC", pair(), map[venue.Id]bool{})

	fm := e.deps.Metrics.(*fakeMetrics)
	a, opened := e.arbitrages["BTC"]
	if !opened {
		t.Fatalf("expected arbitrage to open, got skips=%v", fm.skipped)
	}
	if a.State != StatePending {
		t.Fatalf("state = %s, want PENDING", a.State)
	}
	if a.LongVenue != "bybit" || a.ShortVenue != "binance" {
		t.Fatalf("long/short = %s/%s, want bybit/binance (lower-funding venue long)", a.LongVenue, a.ShortVenue)
	}
	if a.Legs.Long == "" || a.Legs.Short == "" {
		t.Fatal("expected both legs to carry a placed order id")
	}
}

func TestEvaluateTokenSkipsWhenBalanceInsufficient(t *testing.T) {
	longV, shortV := newFakeVenue("binance"), newFakeVenue("bybit")
	// no balances seeded: requires margin check fails
	deps := testDeps(t, map[venue.Id]venue.Venue{"binance": longV, "bybit": shortV})
	e := New(deps)
	e.fundingCache["binance"] = map[venue.Pair]venue.FundingInfo{pair(): {Venue: "binance", Pair: pair(), Rate: money.FromFloat(0.001), IntervalSeconds: 3600}}
	e.fundingCache["bybit"] = map[venue.Pair]venue.FundingInfo{pair(): {Venue: "bybit", Pair: pair(), Rate: money.FromFloat(-0.002), IntervalSeconds: 3600}}

	e.evaluateToken(context.Background(), time.Now(), "BTC", pair(), map[venue.Id]bool{})

	if _, ok := e.arbitrages["BTC"]; ok {
		t.Fatal("insufficient balance must not open an arbitrage")
	}
	fm := e.deps.Metrics.(*fakeMetrics)
	if fm.skipped["insufficient_balance"] == 0 {
		t.Error("expected the insufficient_balance skip reason to be recorded")
	}
}

func TestEvaluateTokenSkipsBelowMinFundingDiff(t *testing.T) {
	longV, shortV := newFakeVenue("binance"), newFakeVenue("bybit")
	longV.balances["USDT"] = money.FromFloat(100000)
	shortV.balances["USDT"] = money.FromFloat(100000)
	deps := testDeps(t, map[venue.Id]venue.Venue{"binance": longV, "bybit": shortV})
	e := New(deps)
	e.fundingCache["binance"] = map[venue.Pair]venue.FundingInfo{pair(): {Venue: "binance", Pair: pair(), Rate: money.FromFloat(0.0001), IntervalSeconds: 3600}}
	e.fundingCache["bybit"] = map[venue.Pair]venue.FundingInfo{pair(): {Venue: "bybit", Pair: pair(), Rate: money.FromFloat(0.0001000001), IntervalSeconds: 3600}}

	e.evaluateToken(context.Background(), time.Now(), "BTC", pair(), map[venue.Id]bool{})

	if _, ok := e.arbitrages["BTC"]; ok {
		t.Fatal("a below-threshold funding diff must not open an arbitrage")
	}
}

func TestApplyEventFill(t *testing.T) {
	e := New(testDeps(t, nil))
	e.arbitrages["BTC"] = &Arbitrage{Token: "BTC", Legs: Legs{Long: "L1", Short: "S1"}}
	e.applyEvent(venue.Event{Kind: venue.EventFill, Fill: &venue.Fill{OrderId: "L1", QuoteValue: money.FromFloat(500), FeeQuote: money.FromFloat(1)}})
	a := e.arbitrages["BTC"]
	if !a.FilledNotional.Long.Equal(money.FromFloat(500)) {
		t.Errorf("FilledNotional.Long = %s, want 500", a.FilledNotional.Long)
	}
	if !a.ExecutorsPnl.Equal(money.FromFloat(-1)) {
		t.Errorf("ExecutorsPnl = %s, want -1 (fee deducted)", a.ExecutorsPnl)
	}
}

func TestApplyEventFundingPayment(t *testing.T) {
	e := New(testDeps(t, nil))
	e.arbitrages["BTC"] = &Arbitrage{Token: "BTC", Pair: pair()}
	e.applyEvent(venue.Event{Kind: venue.EventFundingPayment, Funding: &venue.FundingPayment{Pair: pair(), Amount: money.FromFloat(2.5), Time: time.Now()}})
	if got := e.arbitrages["BTC"].FundingPaymentsPnl(); !got.Equal(money.FromFloat(2.5)) {
		t.Errorf("FundingPaymentsPnl = %s, want 2.5", got)
	}
}

func TestApplyEventOrderStatusConfirmsClosingLeg(t *testing.T) {
	e := New(testDeps(t, nil))
	e.arbitrages["BTC"] = &Arbitrage{Token: "BTC", State: StateClosing, Legs: Legs{Long: "L1", Short: "S1"}}
	e.applyEvent(venue.Event{Kind: venue.EventOrderStatus, OrderStat: &venue.OrderStatus{OrderId: "L1", Status: venue.OrderFilled}})
	if !e.arbitrages["BTC"].closingLegsConfirmed {
		t.Fatal("a terminal status on one leg while CLOSING must mark closingLegsConfirmed")
	}
}

func TestApplyEventOrderStatusIgnoredOutsideClosing(t *testing.T) {
	e := New(testDeps(t, nil))
	e.arbitrages["BTC"] = &Arbitrage{Token: "BTC", State: StateActive, Legs: Legs{Long: "L1", Short: "S1"}}
	e.applyEvent(venue.Event{Kind: venue.EventOrderStatus, OrderStat: &venue.OrderStatus{OrderId: "L1", Status: venue.OrderFilled}})
	if e.arbitrages["BTC"].closingLegsConfirmed {
		t.Fatal("order status events must only confirm closing while the arbitrage is CLOSING")
	}
}

func TestShutdownClosesAllLiveArbitrages(t *testing.T) {
	e := New(testDeps(t, nil))
	e.arbitrages["BTC"] = &Arbitrage{Token: "BTC", State: StateActive}
	e.arbitrages["ETH"] = &Arbitrage{Token: "ETH", State: StatePending}
	e.shutdown()
	for token, a := range e.arbitrages {
		if a.State != StateClosing {
			t.Errorf("%s: state = %s, want CLOSING after shutdown", token, a.State)
		}
		if a.CloseReason != "strategy stopping" {
			t.Errorf("%s: close reason = %q", token, a.CloseReason)
		}
	}
}

func TestOpportunityScanSkipsTokensAlreadyLive(t *testing.T) {
	longV, shortV := newFakeVenue("binance"), newFakeVenue("bybit")
	longV.balances["USDT"] = money.FromFloat(100000)
	shortV.balances["USDT"] = money.FromFloat(100000)
	deps := testDeps(t, map[venue.Id]venue.Venue{"binance": longV, "bybit": shortV})
	e := New(deps)
	e.SeedTrackedPair(pair())
	e.arbitrages["BTC"] = &Arbitrage{Token: "BTC", Pair: pair(), State: StateActive}
	e.fundingCache["binance"] = map[venue.Pair]venue.FundingInfo{pair(): {Venue: "binance", Pair: pair(), Rate: money.FromFloat(0.01), IntervalSeconds: 3600}}
	e.fundingCache["bybit"] = map[venue.Pair]venue.FundingInfo{pair(): {Venue: "bybit", Pair: pair(), Rate: money.FromFloat(-0.01), IntervalSeconds: 3600}}

	e.opportunityScan(context.Background(), time.Now())

	fm := e.deps.Metrics.(*fakeMetrics)
	if fm.opened != 0 {
		t.Fatal("a token with a live arbitrage must never be re-evaluated by the scan")
	}
}
