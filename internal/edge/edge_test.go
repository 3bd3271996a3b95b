package edge

import (
	"testing"

	"github.com/riskforge/fundingarb/internal/money"
	"github.com/riskforge/fundingarb/internal/venue"
)

func TestSplitAssetDelimited(t *testing.T) {
	base, quote := SplitAsset("BTC-USDT")
	if base != "BTC" || quote != "USDT" {
		t.Fatalf("SplitAsset(BTC-USDT) = %q/%q", base, quote)
	}
}

func TestSplitAssetSuffixFallback(t *testing.T) {
	base, quote := SplitAsset("ETHUSDT")
	if base != "ETH" || quote != "USDT" {
		t.Fatalf("SplitAsset(ETHUSDT) = %q/%q, want ETH/USDT", base, quote)
	}
	base3, quote3 := SplitAsset("BTCUSD")
	if base3 != "BTC" || quote3 != "USD" {
		t.Fatalf("SplitAsset(BTCUSD) = %q/%q, want BTC/USD", base3, quote3)
	}
}

func TestSplitAssetNoMatch(t *testing.T) {
	base, quote := SplitAsset("XYZ")
	if base != "XYZ" || quote != "" {
		t.Fatalf("SplitAsset(XYZ) = %q/%q, want XYZ/\"\"", base, quote)
	}
}

func TestCalculateRejectsZeroNotional(t *testing.T) {
	_, ok := Calculate(Inputs{Notional: money.Zero})
	if ok {
		t.Fatal("Calculate must reject zero notional")
	}
}

func TestCalculateProfitable(t *testing.T) {
	in := Inputs{
		LongVenue: "binance", ShortVenue: "bybit",
		Pair:     venue.Pair{Base: "BTC", Quote: "USDT"},
		LongRate: money.FromFloat(0.0001), ShortRate: money.FromFloat(0.0050),
		Notional: money.FromFloat(10000),
		Fees: FeesTable{
			"binance": money.BPS(5),
			"bybit":   money.BPS(5),
		},
		BorrowRates:         BorrowRates{},
		Slippage:            SlippageTable{"binance": money.BPS(1), "bybit": money.BPS(1)},
		LevLong:             money.One,
		LevShort:            money.One,
		FundingPeriodHours:  money.FromFloat(8),
		SettlementBufferBps: 2,
		MinEdgeRequired:     money.FromFloat(1),
	}
	d, ok := Calculate(in)
	if !ok {
		t.Fatal("Calculate should succeed for valid inputs")
	}
	if !d.FundingDiff.Equal(money.FromFloat(0.0049)) {
		t.Errorf("FundingDiff = %s, want 0.0049", d.FundingDiff.String())
	}
	if !d.IsProfitable {
		t.Errorf("expected profitable edge, got total_edge=%s", d.TotalEdge.String())
	}
}

func TestGetMostProfitableCombinationSkipsQuoteMismatch(t *testing.T) {
	report := FundingReport{
		"binance": {Pair: venue.Pair{Base: "BTC", Quote: "USDT"}, Rate: money.FromFloat(0.0001)},
		"okx":     {Pair: venue.Pair{Base: "BTC", Quote: "USD"}, Rate: money.FromFloat(0.0050)},
	}
	_, found := GetMostProfitableCombination(report)
	if found {
		t.Fatal("combinations across mismatched quote currencies must be skipped")
	}
}

func TestGetMostProfitableCombinationPicksWidestSpread(t *testing.T) {
	report := FundingReport{
		"binance": {Pair: venue.Pair{Base: "BTC", Quote: "USDT"}, Rate: money.FromFloat(0.0001)},
		"bybit":   {Pair: venue.Pair{Base: "BTC", Quote: "USDT"}, Rate: money.FromFloat(0.0002)},
		"okx":     {Pair: venue.Pair{Base: "BTC", Quote: "USDT"}, Rate: money.FromFloat(0.0050)},
	}
	combo, found := GetMostProfitableCombination(report)
	if !found {
		t.Fatal("expected a combination")
	}
	if combo.LongVenue != "binance" || combo.ShortVenue != "okx" {
		t.Errorf("widest spread should be long binance (lowest rate) / short okx (highest rate), got %+v", combo)
	}
}

// TestGetMostProfitableCombinationOrientsLongBelowShort asserts the
// fix for the review-flagged nondeterminism: for any pair the venue
// with the lower rate is always assigned long and the higher always
// short, regardless of which key Go's map iteration visits first.
func TestGetMostProfitableCombinationOrientsLongBelowShort(t *testing.T) {
	report := FundingReport{
		"binance": {Pair: venue.Pair{Base: "BTC", Quote: "USDT"}, Rate: money.FromFloat(0.0010)},
		"bybit":   {Pair: venue.Pair{Base: "BTC", Quote: "USDT"}, Rate: money.FromFloat(-0.0020)},
	}
	for i := 0; i < 20; i++ {
		combo, found := GetMostProfitableCombination(report)
		if !found {
			t.Fatal("expected a combination")
		}
		if combo.LongVenue != "bybit" || combo.ShortVenue != "binance" {
			t.Fatalf("iteration %d: long/short = %s/%s, want bybit/binance (lower rate long)", i, combo.LongVenue, combo.ShortVenue)
		}
		if !combo.ShortRate.GreaterThanOrEqual(combo.LongRate) {
			t.Fatalf("iteration %d: ShortRate %s must be >= LongRate %s", i, combo.ShortRate, combo.LongRate)
		}
	}
}
