// FILE: internal/edge/edge.go
// Package edge implements C6 (spec.md §4.6): decomposing a candidate
// arbitrage into funding, fees, borrow, slippage and settlement-buffer
// components, and selecting the most profitable venue-pair combination.
// The asset-splitting and quote-consistency rules are grounded on the
// teacher's broker_paper.go parseProductSymbols (generalized into
// venue.ParseProductSymbols) extended with spec.md §4.6's documented
// quote-suffix fallback list. The worker-pool scan shape is grounded on
// other_examples/a536875c_..._arbitrage-selector.go's UniverseSelector,
// though its scoring heuristic is replaced by spec.md §4.6's exact
// deterministic formula (that file's heuristic scoring is NOT a
// normative part of this spec).
package edge

import (
	"strings"

	"github.com/riskforge/fundingarb/internal/money"
	"github.com/riskforge/fundingarb/internal/venue"
)

// FeesTable, BorrowRates, SlippageTable are simple lookup maps supplied
// by the caller (typically populated from venue.GetFee / a borrow-rate
// feed / historical slippage observations).
type FeesTable map[venue.Id]money.Decimal   // taker rate per venue
type BorrowRates map[string]money.Decimal   // per asset symbol
type SlippageTable map[venue.Id]money.Decimal

// quoteSuffixes4, quoteSuffixes3 are the documented fallback lists for
// asset-splitting when a pair has no "-" delimiter (spec.md §4.6).
var quoteSuffixes4 = []string{"USDT", "USDC", "BUSD", "TUSD"}
var quoteSuffixes3 = []string{"USD", "EUR", "BTC", "ETH"}

// SplitAsset implements spec.md §4.6's asset-splitting rule: "−" as
// delimiter if present, else longest-matching 4-char quote suffix,
// then 3-char, else fallback (whole symbol as base, empty quote).
func SplitAsset(pair string) (base, quote string) {
	if strings.Contains(pair, "-") {
		return venue.ParseProductSymbols(pair)
	}
	for _, suf := range quoteSuffixes4 {
		if strings.HasSuffix(pair, suf) && len(pair) > len(suf) {
			return pair[:len(pair)-len(suf)], suf
		}
	}
	for _, suf := range quoteSuffixes3 {
		if strings.HasSuffix(pair, suf) && len(pair) > len(suf) {
			return pair[:len(pair)-len(suf)], suf
		}
	}
	return pair, ""
}

// Decomposition is the immutable EdgeDecomposition value of spec.md §3.
type Decomposition struct {
	Pair       venue.Pair
	LongVenue  venue.Id
	ShortVenue venue.Id

	FundingDiff        money.Decimal
	ExpectedFundingPnl money.Decimal

	FeesTotal        money.Decimal
	FeesPerLegSide   map[string]money.Decimal

	BorrowTotal      money.Decimal
	BorrowPerAsset   map[string]money.Decimal

	SlippageTotal    money.Decimal
	SlippagePerVenue map[venue.Id]money.Decimal

	SettlementBuffer money.Decimal

	Notional      money.Decimal
	LeverageLong  money.Decimal
	LeverageShort money.Decimal

	TotalEdge       money.Decimal
	MinEdgeRequired money.Decimal
	IsProfitable    bool

	HedgeGapRisk        money.Decimal
	LiquidityRiskScore  money.Decimal
}

// Inputs bundles a candidate combination's parameters (spec.md §4.6).
type Inputs struct {
	LongVenue, ShortVenue venue.Id
	Pair                  venue.Pair
	LongRate, ShortRate   money.Decimal
	Notional              money.Decimal
	Fees                  FeesTable
	BorrowRates           BorrowRates
	Slippage              SlippageTable
	LevLong, LevShort     money.Decimal
	FundingPeriodHours    money.Decimal
	SettlementBufferBps   int64
	MinEdgeRequired       money.Decimal
}

// Calculate implements spec.md §4.6's exact formula. Returns
// (Decomposition, ok); ok=false only on a structural input error
// (e.g. zero notional), never a panic — per spec.md §9's missing-data
// rule.
func Calculate(in Inputs) (Decomposition, bool) {
	if in.Notional.IsZero() || in.Notional.IsNegative() {
		return Decomposition{}, false
	}

	fundingDiff := in.ShortRate.Sub(in.LongRate)
	expectedFundingPnl := fundingDiff.Mul(in.Notional)

	takerLong := in.Fees[in.LongVenue]
	takerShort := in.Fees[in.ShortVenue]
	feesPerLegSide := map[string]money.Decimal{
		string(in.LongVenue) + ":open":   takerLong.Mul(in.Notional),
		string(in.LongVenue) + ":close":  takerLong.Mul(in.Notional),
		string(in.ShortVenue) + ":open":  takerShort.Mul(in.Notional),
		string(in.ShortVenue) + ":close": takerShort.Mul(in.Notional),
	}
	feesTotal := money.Zero
	for _, f := range feesPerLegSide {
		feesTotal = feesTotal.Add(f)
	}

	base, _ := SplitAsset(in.Pair.String())

	borrowPerAsset := map[string]money.Decimal{}
	borrowTotal := money.Zero
	computeBorrow := func(leverage money.Decimal, asset string) {
		if leverage.LessThanOrEqual(money.One) {
			return
		}
		rate, ok := in.BorrowRates[asset]
		if !ok {
			return
		}
		levRatio, ok2 := money.SafeDiv(leverage.Sub(money.One), leverage)
		if !ok2 {
			return
		}
		periodFrac, _ := money.SafeDiv(in.FundingPeriodHours, money.NewFromInt(24))
		amt := levRatio.Mul(in.Notional).Mul(rate).Mul(periodFrac)
		borrowPerAsset[asset] = borrowPerAsset[asset].Add(amt)
		borrowTotal = borrowTotal.Add(amt)
	}
	computeBorrow(in.LevLong, base)
	computeBorrow(in.LevShort, base)

	slippagePerVenue := map[venue.Id]money.Decimal{
		in.LongVenue:  in.Slippage[in.LongVenue].Mul(in.Notional),
		in.ShortVenue: in.Slippage[in.ShortVenue].Mul(in.Notional),
	}
	slippageTotal := slippagePerVenue[in.LongVenue].Add(slippagePerVenue[in.ShortVenue])

	settlementBuffer := money.BPS(in.SettlementBufferBps).Mul(in.Notional)

	totalEdge := expectedFundingPnl.
		Sub(feesTotal).
		Sub(borrowTotal).
		Sub(slippageTotal).
		Sub(settlementBuffer)

	return Decomposition{
		Pair:               in.Pair,
		LongVenue:          in.LongVenue,
		ShortVenue:         in.ShortVenue,
		FundingDiff:        fundingDiff,
		ExpectedFundingPnl: expectedFundingPnl,
		FeesTotal:          feesTotal,
		FeesPerLegSide:     feesPerLegSide,
		BorrowTotal:        borrowTotal,
		BorrowPerAsset:     borrowPerAsset,
		SlippageTotal:      slippageTotal,
		SlippagePerVenue:   slippagePerVenue,
		SettlementBuffer:   settlementBuffer,
		Notional:           in.Notional,
		LeverageLong:       in.LevLong,
		LeverageShort:      in.LevShort,
		TotalEdge:          totalEdge,
		MinEdgeRequired:    in.MinEdgeRequired,
		IsProfitable:       totalEdge.GreaterThanOrEqual(in.MinEdgeRequired),
	}, true
}

// Combination is one candidate (long, short) venue pairing with its
// preliminary rank (spec.md §4.6: |rate_a - rate_b| * seconds_per_day).
type Combination struct {
	LongVenue, ShortVenue venue.Id
	Pair                  venue.Pair
	LongRate, ShortRate   money.Decimal
	PreliminaryRank       money.Decimal
}

// FundingReport is funding info for one token across a set of venues,
// keyed by venue id. Only venues with matching quote currency are ever
// paired (spec.md §4.6's quote-currency-consistency rule).
type FundingReport map[venue.Id]venue.FundingInfo

// GetMostProfitableCombination iterates every unordered venue pair once,
// computes the preliminary rank, and returns the top combination —
// skipping any pair whose quote currencies differ (spec.md §4.6). Each
// candidate is oriented with the lower-funding venue long and the
// higher-funding venue short (ShortRate >= LongRate), since spec.md §1
// requires funding_diff = short_rate - long_rate to be positive for a
// pair to be profitable; evaluating each pair once in its one profitable
// orientation also makes the rank-tie comparison deterministic instead
// of depending on map iteration order.
func GetMostProfitableCombination(report FundingReport) (Combination, bool) {
	var venues []venue.Id
	for v := range report {
		venues = append(venues, v)
	}
	var best Combination
	found := false
	for i, a := range venues {
		for _, b := range venues[i+1:] {
			fa, fb := report[a], report[b]
			_, quoteA := SplitAsset(fa.Pair.String())
			_, quoteB := SplitAsset(fb.Pair.String())
			if quoteA != quoteB {
				continue // quote-currency mismatch: skip (spec.md S4 scenario)
			}
			longId, shortId, longFi, shortFi := a, b, fa, fb
			if shortFi.Rate.LessThan(longFi.Rate) {
				longId, shortId, longFi, shortFi = b, a, fb, fa
			}
			rank := money.Abs(fb.Rate.Sub(fa.Rate)).Mul(money.SecondsPerDay)
			if !found || rank.GreaterThan(best.PreliminaryRank) {
				best = Combination{
					LongVenue: longId, ShortVenue: shortId, Pair: longFi.Pair,
					LongRate: longFi.Rate, ShortRate: shortFi.Rate, PreliminaryRank: rank,
				}
				found = true
			}
		}
	}
	return best, found
}
