package margin

import (
	"testing"

	"github.com/riskforge/fundingarb/internal/money"
	"github.com/riskforge/fundingarb/internal/venue"
)

func TestClassifyMarginRatio(t *testing.T) {
	cases := []struct {
		ratio float64
		want  Health
	}{
		{2.5, HealthHealthy},
		{1.6, HealthWarning},
		{1.2, HealthDanger},
		{1.05, HealthCritical},
		{0.9, HealthLiquidationRisk},
	}
	for _, c := range cases {
		if got := ClassifyMarginRatio(money.FromFloat(c.ratio)); got != c.want {
			t.Errorf("ClassifyMarginRatio(%v) = %s, want %s", c.ratio, got, c.want)
		}
	}
}

func TestTierTableLookupDefaults(t *testing.T) {
	tiers := TierTable{}
	init, maint := tiers.Lookup("binance", "BTC-USDT", money.FromFloat(1000))
	if !init.Equal(DefaultInitRate) || !maint.Equal(DefaultMaintRate) {
		t.Fatalf("empty tier table should fall back to defaults, got %s/%s", init, maint)
	}
}

func TestTierTableLookupCeiling(t *testing.T) {
	tiers := TierTable{
		"binance|BTC-USDT": {
			{NotionalCeiling: money.FromFloat(1000), InitRate: money.FromFloat(0.01), MaintRate: money.FromFloat(0.005)},
			{NotionalCeiling: money.FromFloat(10000), InitRate: money.FromFloat(0.02), MaintRate: money.FromFloat(0.01)},
		},
	}
	init, maint := tiers.Lookup("binance", "BTC-USDT", money.FromFloat(500))
	if !init.Equal(money.FromFloat(0.01)) || !maint.Equal(money.FromFloat(0.005)) {
		t.Errorf("notional within first tier ceiling should use first tier, got %s/%s", init, maint)
	}
	init2, maint2 := tiers.Lookup("binance", "BTC-USDT", money.FromFloat(50000))
	if !init2.Equal(money.FromFloat(0.02)) || !maint2.Equal(money.FromFloat(0.01)) {
		t.Errorf("notional above all ceilings should use the last tier, got %s/%s", init2, maint2)
	}
}

func TestCalculateSafeLeverage(t *testing.T) {
	tiers := TierTable{
		"binance|BTC-USDT": {{NotionalCeiling: money.FromFloat(100000), InitRate: money.FromFloat(0.1), MaintRate: money.FromFloat(0.05)}},
	}
	lev := CalculateSafeLeverage(tiers, "binance", "BTC-USDT", money.FromFloat(1000), money.FromFloat(0.1), money.FromFloat(100), money.FromFloat(3))
	if !lev.Equal(money.FromFloat(3)) {
		t.Errorf("CalculateSafeLeverage should clamp to maxAllowedLeverage=3, got %s", lev.String())
	}
}

func TestDistanceToLiquidationPctLong(t *testing.T) {
	liq := money.FromFloat(90)
	pct, ok := DistanceToLiquidationPct(venue.SideLong, money.FromFloat(100), &liq)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if !pct.Equal(money.FromFloat(10)) {
		t.Errorf("distance = %s, want 10", pct.String())
	}
}

func TestDistanceToLiquidationPctMissingData(t *testing.T) {
	_, ok := DistanceToLiquidationPct(venue.SideLong, money.FromFloat(100), nil)
	if ok {
		t.Fatal("missing liquidation price should report ok=false, not panic")
	}
}

func TestRecommendedActionsEmergency(t *testing.T) {
	actions := RecommendedActions(HealthLiquidationRisk)
	if len(actions) == 0 || actions[0] != ActionEmergencyExit {
		t.Errorf("LIQUIDATION_RISK should lead with EMERGENCY_EXIT, got %v", actions)
	}
}

func TestClassifyADLFromIndicator(t *testing.T) {
	ind := 5
	if got := ClassifyADL(&ind, money.Zero); got != ADLImminent {
		t.Errorf("indicator=5 should classify IMMINENT, got %s", got)
	}
}

func TestClassifyADLFromLeverage(t *testing.T) {
	if got := ClassifyADL(nil, money.FromFloat(25)); got != ADLHigh {
		t.Errorf("leverage=25 with no indicator should classify HIGH, got %s", got)
	}
}
