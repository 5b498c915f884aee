package journal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func leg(ot OptionType, strike string, exp time.Time, qty string) TradeLeg {
	return TradeLeg{
		OptionType: ot,
		Strike:     decimal.RequireFromString(strike),
		Expiration: exp,
		Quantity:   decimal.RequireFromString(qty),
	}
}

func TestClassify_SingleAndStock(t *testing.T) {
	exp := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)

	stock := Trade{Legs: []TradeLeg{leg(OptionNone, "0", time.Time{}, "100")}}
	if got := Classify(stock, ClassifyContext{}); got != StrategyStock {
		t.Errorf("Classify(stock, ClassifyContext{}) = %s, want STOCK", got)
	}

	single := Trade{Legs: []TradeLeg{leg(OptionCall, "450", exp, "-1")}}
	if got := Classify(single, ClassifyContext{}); got != StrategySingle {
		t.Errorf("Classify(single, ClassifyContext{}) = %s, want SINGLE", got)
	}
}

func TestClassify_VerticalCall(t *testing.T) {
	exp := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	trade := Trade{Legs: []TradeLeg{
		leg(OptionCall, "450", exp, "1"),
		leg(OptionCall, "460", exp, "-1"),
	}}
	if got := Classify(trade, ClassifyContext{}); got != StrategyVerticalCall {
		t.Errorf("Classify(vertical call) = %s, want VERTICAL_CALL", got)
	}
}

func TestClassify_Straddle(t *testing.T) {
	exp := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	trade := Trade{Legs: []TradeLeg{
		leg(OptionCall, "450", exp, "-1"),
		leg(OptionPut, "450", exp, "-1"),
	}}
	if got := Classify(trade, ClassifyContext{}); got != StrategyStraddle {
		t.Errorf("Classify(straddle, ClassifyContext{}) = %s, want STRADDLE", got)
	}
}

func TestClassify_Strangle(t *testing.T) {
	exp := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	trade := Trade{Legs: []TradeLeg{
		leg(OptionCall, "460", exp, "-1"),
		leg(OptionPut, "440", exp, "-1"),
	}}
	if got := Classify(trade, ClassifyContext{}); got != StrategyStrangle {
		t.Errorf("Classify(strangle, ClassifyContext{}) = %s, want STRANGLE", got)
	}
}

func TestClassify_IronCondor(t *testing.T) {
	exp := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	trade := Trade{Legs: []TradeLeg{
		leg(OptionPut, "420", exp, "1"),
		leg(OptionPut, "430", exp, "-1"),
		leg(OptionCall, "460", exp, "-1"),
		leg(OptionCall, "470", exp, "1"),
	}}
	if got := Classify(trade, ClassifyContext{}); got != StrategyIronCondor {
		t.Errorf("Classify(iron condor) = %s, want IRON_CONDOR", got)
	}
}

func TestClassify_IronButterfly(t *testing.T) {
	exp := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	trade := Trade{Legs: []TradeLeg{
		leg(OptionPut, "430", exp, "1"),
		leg(OptionPut, "450", exp, "-1"),
		leg(OptionCall, "450", exp, "-1"),
		leg(OptionCall, "470", exp, "1"),
	}}
	if got := Classify(trade, ClassifyContext{}); got != StrategyIronButterfly {
		t.Errorf("Classify(iron butterfly) = %s, want IRON_BUTTERFLY", got)
	}
}

func TestClassify_CoveredCall(t *testing.T) {
	exp := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	trade := Trade{Legs: []TradeLeg{
		leg(OptionNone, "0", time.Time{}, "100"),
		leg(OptionCall, "460", exp, "-1"),
	}}
	if got := Classify(trade, ClassifyContext{}); got != StrategyCoveredCall {
		t.Errorf("Classify(covered call) = %s, want COVERED_CALL", got)
	}
}

func TestClassify_PMCC_ByDelta(t *testing.T) {
	nearExp := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	farExp := time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC)

	longCall := leg(OptionCall, "350", farExp, "1")
	longCall.Delta = 0.82
	trade := Trade{Legs: []TradeLeg{
		longCall,
		leg(OptionCall, "460", nearExp, "-1"),
	}}
	if got := Classify(trade, ClassifyContext{}); got != StrategyPMCC {
		t.Errorf("Classify(pmcc by delta) = %s, want PMCC", got)
	}
}

func TestClassify_PMCC_ByStrikeSpotRatioWhenNoGreeksYet(t *testing.T) {
	nearExp := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	farExp := time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC)

	trade := Trade{Legs: []TradeLeg{
		leg(OptionCall, "300", farExp, "1"), // 300 <= 0.7 * 450
		leg(OptionCall, "460", nearExp, "-1"),
	}}
	ctx := ClassifyContext{UnderlyingPrice: decimal.RequireFromString("450.00")}
	if got := Classify(trade, ctx); got != StrategyPMCC {
		t.Errorf("Classify(pmcc by strike/spot) = %s, want PMCC", got)
	}
}

func TestClassify_DiagonalFallsToCustomWithoutDeepITMEvidence(t *testing.T) {
	nearExp := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	farExp := time.Date(2026, 9, 18, 0, 0, 0, 0, time.UTC)

	trade := Trade{Legs: []TradeLeg{
		leg(OptionCall, "440", farExp, "1"), // no delta, no spot price yet
		leg(OptionCall, "460", nearExp, "-1"),
	}}
	if got := Classify(trade, ClassifyContext{}); got != StrategyCustom {
		t.Errorf("Classify(diagonal, no evidence) = %s, want CUSTOM", got)
	}
}

func TestClassify_IgnoresFlatLegs(t *testing.T) {
	exp := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	trade := Trade{Legs: []TradeLeg{
		leg(OptionCall, "450", exp, "0"), // closed, should be ignored
		leg(OptionPut, "440", exp, "-1"),
	}}
	if got := Classify(trade, ClassifyContext{}); got != StrategySingle {
		t.Errorf("Classify() = %s, want SINGLE once the flat leg is excluded", got)
	}
}
