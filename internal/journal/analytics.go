package journal

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// AnalyticsInputs bundles the externally sourced values the analytics kernel
// needs but cannot derive from the trade itself: a spot price and a
// risk-free rate. Per-leg implied volatility is read from TradeLeg.IV, not
// from here. A provider outage degrades analytics rather than blocking it —
// Core marks the trade AnalyticsPartial and the kernel fills in whatever it
// can.
type AnalyticsInputs struct {
	UnderlyingPrice decimal.Decimal
	RiskFreeRate    float64 // annualized, e.g. 0.05
	Now             time.Time
}

// Analytics computes the derived, read-only fields on a Trade: breakevens,
// max profit/risk, net Greeks, days to expiration, collateral, and
// probability of profit. It never alters Legs or the realized-P&L fields
// that the ledger and grouper own.
type Analytics struct {
	Margin map[string]MarginSettings // underlying -> settings; falls back to DefaultMarginSettings
}

// NewAnalytics returns an Analytics kernel with no overridden margin settings.
func NewAnalytics() *Analytics {
	return &Analytics{Margin: make(map[string]MarginSettings)}
}

// Compute fills in t's derived fields in place from in and the trade's legs.
func (a *Analytics) Compute(t *Trade, in AnalyticsInputs) {
	legs := openLegs(t.Legs)
	t.DTE = nearestDTE(legs, in.Now)
	t.NetDelta, t.NetTheta, t.NetGamma, t.NetVega = netGreeks(legs)

	switch t.StrategyType {
	case StrategyStock:
		a.computeStock(t, legs, in)
	case StrategySingle:
		a.computeSingle(t, legs, in)
	case StrategyVerticalCall, StrategyVerticalPut:
		a.computeVertical(t, legs)
	case StrategyStraddle, StrategyStrangle:
		a.computeStraddleStrangle(t, legs)
	case StrategyIronCondor, StrategyIronButterfly:
		a.computeIron(t, legs)
	case StrategyCoveredCall, StrategyPMCC:
		a.computeCoveredCall(t, legs, in)
	default:
		t.AnalyticsPartial = true
	}

	if len(legs) > 0 && !in.UnderlyingPrice.IsZero() {
		t.ProbabilityOfProfit = a.probabilityOfProfit(t, legs, in)
	}
}

func nearestDTE(legs []TradeLeg, now time.Time) int {
	var nearest time.Time
	for _, l := range legs {
		if l.Expiration.IsZero() {
			continue
		}
		if nearest.IsZero() || l.Expiration.Before(nearest) {
			nearest = l.Expiration
		}
	}
	if nearest.IsZero() {
		return 0
	}
	days := int(nearest.Sub(now).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

func netGreeks(legs []TradeLeg) (delta, theta, gamma, vega *float64) {
	if len(legs) == 0 {
		return nil, nil, nil, nil
	}
	var d, t, g, v float64
	for _, l := range legs {
		qty, _ := l.Quantity.Float64()
		d += l.Delta * qty
		t += l.Theta * qty
		g += l.Gamma * qty
		v += l.Vega * qty
	}
	return &d, &t, &g, &v
}

func (a *Analytics) marginFor(underlying string) MarginSettings {
	if m, ok := a.Margin[underlying]; ok {
		return m
	}
	return DefaultMarginSettings(underlying)
}

func (a *Analytics) computeStock(t *Trade, legs []TradeLeg, in AnalyticsInputs) {
	t.MaxRisk = nil // unbounded/defined by position size; left unset deliberately
	t.MaxProfit = nil
}

func (a *Analytics) computeSingle(t *Trade, legs []TradeLeg, in AnalyticsInputs) {
	leg := legs[0]
	credit := t.OpeningCost.Neg() // positive if a credit was received opening
	if leg.Quantity.IsPositive() {
		// Long option: risk is capped at premium paid, profit unbounded (call)
		// or capped at strike*multiplier (put), net of the debit.
		risk := t.OpeningCost
		t.MaxRisk = &risk
		if leg.OptionType == OptionPut {
			maxProfit := leg.Strike.Mul(decimal.NewFromInt(100)).Sub(t.OpeningCost)
			t.MaxProfit = &maxProfit
		} else {
			t.MaxProfit = nil
		}
		be := strikeAdjustedBreakeven(leg, t.OpeningCost.Div(leg.Quantity.Abs()).Div(decimal.NewFromInt(100)))
		t.Breakevens = []decimal.Decimal{be}
	} else {
		// Short option: max profit is the credit received, risk is uncapped
		// (call) or capped at strike*multiplier net of credit (put).
		t.MaxProfit = &credit
		if leg.OptionType == OptionPut {
			risk := leg.Strike.Mul(decimal.NewFromInt(100)).Sub(credit)
			t.MaxRisk = &risk
		} else {
			t.MaxRisk = nil
		}
		be := strikeAdjustedBreakeven(leg, credit.Div(leg.Quantity.Abs()).Div(decimal.NewFromInt(100)))
		t.Breakevens = []decimal.Decimal{be}
	}

	m := a.marginFor(t.Underlying)
	if leg.Quantity.IsNegative() {
		pct := m.NakedCallPct
		if leg.OptionType == OptionPut {
			pct = m.NakedPutPct
		}
		coll := leg.Strike.Mul(decimal.NewFromInt(100)).Mul(pct).Div(decimal.NewFromInt(100))
		t.Collateral = &coll
	}
}

// strikeAdjustedBreakeven returns strike+premium for a call, strike-premium
// for a put, the standard single-leg breakeven formula.
func strikeAdjustedBreakeven(leg TradeLeg, premiumPerShare decimal.Decimal) decimal.Decimal {
	if leg.OptionType == OptionCall {
		return leg.Strike.Add(premiumPerShare.Abs())
	}
	return leg.Strike.Sub(premiumPerShare.Abs())
}

func (a *Analytics) computeVertical(t *Trade, legs []TradeLeg) {
	if len(legs) != 2 {
		t.AnalyticsPartial = true
		return
	}
	lo, hi := legs[0], legs[1]
	if lo.Strike.GreaterThan(hi.Strike) {
		lo, hi = hi, lo
	}
	width := hi.Strike.Sub(lo.Strike).Mul(decimal.NewFromInt(100))
	netCredit := t.OpeningCost.Neg() // positive = credit spread, negative = debit spread

	if netCredit.IsPositive() {
		profit := netCredit
		risk := width.Sub(netCredit)
		t.MaxProfit = &profit
		t.MaxRisk = &risk
	} else {
		debit := netCredit.Neg()
		profit := width.Sub(debit)
		t.MaxProfit = &profit
		t.MaxRisk = &debit
	}

	perShare := netCredit.Div(decimal.NewFromInt(100)).Abs()
	var be decimal.Decimal
	if t.StrategyType == StrategyVerticalCall {
		if netCredit.IsPositive() {
			be = lo.Strike.Add(perShare)
		} else {
			be = lo.Strike.Add(perShare)
		}
	} else {
		if netCredit.IsPositive() {
			be = hi.Strike.Sub(perShare)
		} else {
			be = hi.Strike.Sub(perShare)
		}
	}
	t.Breakevens = []decimal.Decimal{be}

	m := a.marginFor(t.Underlying)
	coll := width.Mul(m.SpreadPct).Div(decimal.NewFromInt(100))
	t.Collateral = &coll
}

func (a *Analytics) computeStraddleStrangle(t *Trade, legs []TradeLeg) {
	if len(legs) != 2 {
		t.AnalyticsPartial = true
		return
	}
	var put, call TradeLeg
	for _, l := range legs {
		if l.OptionType == OptionPut {
			put = l
		} else {
			call = l
		}
	}
	netCredit := t.OpeningCost.Neg()
	perShare := netCredit.Div(decimal.NewFromInt(100)).Abs()

	if legs[0].Quantity.IsNegative() {
		// short straddle/strangle: credit received is max profit, risk uncapped
		profit := netCredit
		t.MaxProfit = &profit
		t.MaxRisk = nil
		t.Breakevens = []decimal.Decimal{put.Strike.Sub(perShare), call.Strike.Add(perShare)}
	} else {
		debit := netCredit.Neg()
		t.MaxRisk = &debit
		t.MaxProfit = nil
		t.Breakevens = []decimal.Decimal{put.Strike.Sub(perShare), call.Strike.Add(perShare)}
	}

	if legs[0].Quantity.IsNegative() {
		m := a.marginFor(t.Underlying)
		wider := put.Strike
		if call.Strike.GreaterThan(wider) {
			wider = call.Strike
		}
		coll := wider.Mul(decimal.NewFromInt(100)).Mul(m.NakedPutPct).Div(decimal.NewFromInt(100))
		t.Collateral = &coll
	}
}

func (a *Analytics) computeIron(t *Trade, legs []TradeLeg) {
	if len(legs) != 4 {
		t.AnalyticsPartial = true
		return
	}
	var puts, calls []TradeLeg
	for _, l := range legs {
		if l.OptionType == OptionPut {
			puts = append(puts, l)
		} else {
			calls = append(calls, l)
		}
	}
	if len(puts) != 2 || len(calls) != 2 {
		t.AnalyticsPartial = true
		return
	}
	if puts[0].Strike.GreaterThan(puts[1].Strike) {
		puts[0], puts[1] = puts[1], puts[0]
	}
	if calls[0].Strike.GreaterThan(calls[1].Strike) {
		calls[0], calls[1] = calls[1], calls[0]
	}
	putWidth := puts[1].Strike.Sub(puts[0].Strike).Mul(decimal.NewFromInt(100))
	callWidth := calls[1].Strike.Sub(calls[0].Strike).Mul(decimal.NewFromInt(100))
	width := putWidth
	if callWidth.GreaterThan(width) {
		width = callWidth
	}

	netCredit := t.OpeningCost.Neg()
	profit := netCredit
	risk := width.Sub(netCredit)
	t.MaxProfit = &profit
	t.MaxRisk = &risk

	perShare := netCredit.Div(decimal.NewFromInt(100))
	t.Breakevens = []decimal.Decimal{
		puts[1].Strike.Sub(perShare),
		calls[0].Strike.Add(perShare),
	}

	m := a.marginFor(t.Underlying)
	coll := width.Mul(m.IronCondorPct).Div(decimal.NewFromInt(100))
	t.Collateral = &coll
}

func (a *Analytics) computeCoveredCall(t *Trade, legs []TradeLeg, in AnalyticsInputs) {
	var stock, short TradeLeg
	hasStock := false
	for _, l := range legs {
		if l.OptionType == OptionNone {
			stock = l
			hasStock = true
		} else if l.Quantity.IsNegative() {
			short = l
		}
	}
	if !hasStock && t.StrategyType == StrategyCoveredCall {
		t.AnalyticsPartial = true
		return
	}
	if t.StrategyType == StrategyPMCC {
		// Diagonal: only collateral is set, as a spread (defined risk); max
		// profit, max risk and breakevens are not computed for a PMCC.
		m := a.marginFor(t.Underlying)
		width := short.Strike.Mul(decimal.NewFromInt(100))
		coll := width.Mul(m.SpreadPct).Div(decimal.NewFromInt(100))
		t.Collateral = &coll
		return
	}

	_ = stock // stock leg confirms the covered-call shape; no further use here
	t.MaxProfit = nil // depends on stock cost basis, left to the caller's P&L view
	t.MaxRisk = nil
	t.Breakevens = []decimal.Decimal{short.Strike}
}

// probabilityOfProfit estimates P(profit at expiration) under a
// lognormal-underlying assumption via the Black-Scholes risk-neutral
// distribution, using the trade's nearest breakeven and DTE. It is
// necessarily approximate for multi-leg structures with two breakevens: in
// that case it estimates P(inside channel) for a credit structure or P(outside
// channel) for a debit structure.
func (a *Analytics) probabilityOfProfit(t *Trade, legs []TradeLeg, in AnalyticsInputs) *float64 {
	if len(t.Breakevens) == 0 || t.DTE <= 0 {
		return nil
	}
	sigma := impliedVolFromLegs(legs)
	if sigma <= 0 {
		return nil
	}
	T := float64(t.DTE) / 365.0
	S, _ := in.UnderlyingPrice.Float64()

	isCredit := t.OpeningCost.IsNegative()

	if len(t.Breakevens) == 1 {
		K, _ := t.Breakevens[0].Float64()
		pAbove := normalCDF(logMoneyness(S, K, in.RiskFreeRate, sigma, T))
		// Profit above breakeven for a long call / short put structure,
		// below for the mirror image; credits profit on the side nearer spot.
		if isCredit {
			if K >= S {
				p := 1 - pAbove
				return &p
			}
			return &pAbove
		}
		if K >= S {
			return &pAbove
		}
		p := 1 - pAbove
		return &p
	}

	lowK, _ := t.Breakevens[0].Float64()
	highK, _ := t.Breakevens[1].Float64()
	pBelowLow := 1 - normalCDF(logMoneyness(S, lowK, in.RiskFreeRate, sigma, T))
	pBelowHigh := 1 - normalCDF(logMoneyness(S, highK, in.RiskFreeRate, sigma, T))
	pInside := pBelowHigh - pBelowLow

	if isCredit {
		return &pInside
	}
	pOutside := 1 - pInside
	return &pOutside
}

func impliedVolFromLegs(legs []TradeLeg) float64 {
	var sum float64
	var n int
	for _, l := range legs {
		if l.IV > 0 {
			sum += l.IV
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// logMoneyness returns d2 from the Black-Scholes formula: the standardized
// distance between spot and strike under the risk-neutral measure.
func logMoneyness(S, K, r, sigma, T float64) float64 {
	if S <= 0 || K <= 0 || sigma <= 0 || T <= 0 {
		return 0
	}
	d1 := (math.Log(S/K) + (r+0.5*sigma*sigma)*T) / (sigma * math.Sqrt(T))
	return d1 - sigma*math.Sqrt(T)
}

// normalCDF is the standard normal cumulative distribution function.
func normalCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}
