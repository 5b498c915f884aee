package journal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestAnalytics_VerticalCallCreditSpread(t *testing.T) {
	a := NewAnalytics()
	exp := time.Now().Add(45 * 24 * time.Hour)

	trade := Trade{
		Underlying:   "SPY",
		StrategyType: StrategyVerticalCall,
		OpeningCost:  decimal.NewFromFloat(-150), // credit of 150 received
		Legs: []TradeLeg{
			leg(OptionCall, "460", exp, "-1"),
			leg(OptionCall, "465", exp, "1"),
		},
	}

	a.Compute(&trade, AnalyticsInputs{UnderlyingPrice: decimal.NewFromInt(455), Now: time.Now()})

	if trade.MaxProfit == nil || !trade.MaxProfit.Equal(decimal.NewFromInt(150)) {
		t.Errorf("MaxProfit = %v, want 150", trade.MaxProfit)
	}
	wantRisk := decimal.NewFromInt(500).Sub(decimal.NewFromInt(150)) // width*100 - credit
	if trade.MaxRisk == nil || !trade.MaxRisk.Equal(wantRisk) {
		t.Errorf("MaxRisk = %v, want %s", trade.MaxRisk, wantRisk)
	}
	if len(trade.Breakevens) != 1 {
		t.Fatalf("Breakevens = %v, want exactly 1", trade.Breakevens)
	}
}

func TestAnalytics_IronCondorCollateral(t *testing.T) {
	a := NewAnalytics()
	exp := time.Now().Add(30 * 24 * time.Hour)

	trade := Trade{
		Underlying:   "SPY",
		StrategyType: StrategyIronCondor,
		OpeningCost:  decimal.NewFromFloat(-200),
		Legs: []TradeLeg{
			leg(OptionPut, "420", exp, "1"),
			leg(OptionPut, "430", exp, "-1"),
			leg(OptionCall, "460", exp, "-1"),
			leg(OptionCall, "470", exp, "1"),
		},
	}

	a.Compute(&trade, AnalyticsInputs{UnderlyingPrice: decimal.NewFromInt(445), Now: time.Now()})

	if trade.Collateral == nil {
		t.Fatal("expected Collateral to be set for an iron condor")
	}
	wantColl := decimal.NewFromInt(1000) // width(10)*100 * 100% margin
	if !trade.Collateral.Equal(wantColl) {
		t.Errorf("Collateral = %s, want %s", trade.Collateral, wantColl)
	}
}

func TestAnalytics_DTENearestExpiration(t *testing.T) {
	a := NewAnalytics()
	now := time.Now()
	nearExp := now.Add(10 * 24 * time.Hour)
	farExp := now.Add(40 * 24 * time.Hour)

	trade := Trade{
		Underlying:   "SPY",
		StrategyType: StrategyCalendarCall,
		Legs: []TradeLeg{
			leg(OptionCall, "450", nearExp, "-1"),
			leg(OptionCall, "450", farExp, "1"),
		},
	}
	a.Compute(&trade, AnalyticsInputs{UnderlyingPrice: decimal.NewFromInt(450), Now: now})

	if trade.DTE < 9 || trade.DTE > 10 {
		t.Errorf("DTE = %d, want ~10 (nearest expiration)", trade.DTE)
	}
}

func TestAnalytics_MarksPartialOnUnknownStrategy(t *testing.T) {
	a := NewAnalytics()
	trade := Trade{Underlying: "SPY", StrategyType: StrategyCustom, Legs: []TradeLeg{
		leg(OptionCall, "450", time.Now().Add(time.Hour), "1"),
		leg(OptionCall, "460", time.Now().Add(time.Hour), "1"),
		leg(OptionCall, "470", time.Now().Add(time.Hour), "-2"),
	}}
	a.Compute(&trade, AnalyticsInputs{UnderlyingPrice: decimal.NewFromInt(455), Now: time.Now()})
	if !trade.AnalyticsPartial {
		t.Error("expected AnalyticsPartial for a CUSTOM strategy")
	}
}
