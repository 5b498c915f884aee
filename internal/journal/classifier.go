package journal

import (
	"sort"

	"github.com/shopspring/decimal"
)

// classifyRule is one entry in the classifier's ordered cascade: the first
// rule whose predicate matches a trade's (sorted) leg signature wins.
type classifyRule struct {
	name  string
	match func(legs []TradeLeg, ctx ClassifyContext) bool
	tag   StrategyType
}

// ClassifyContext carries the market data the cascade needs but a bare leg
// set doesn't: the deep-ITM test PMCC requires falls back to a strike/spot
// ratio when Greeks aren't available yet, so UnderlyingPrice may be the
// zero value on a first pass taken before a quote has been fetched.
type ClassifyContext struct {
	UnderlyingPrice decimal.Decimal
}

// deepITMDeltaThreshold and deepITMStrikeRatio are spec.md §4.4's PMCC test:
// a long call counts as deep-in-the-money if its delta is at least 0.7, or
// (when Greeks haven't been fetched yet) its strike sits at or below 0.7x
// the underlying's spot price.
const (
	deepITMDeltaThreshold = 0.7
	deepITMStrikeRatio    = 0.7
)

// Classify assigns a StrategyType to a Trade based on its current leg set.
// It never mutates the trade; callers assign the result to Trade.StrategyType.
// Called once right after grouping (ctx typically zero-valued, since no
// quote has been fetched yet) and again after the analytics kernel fetches
// Greeks and spot price, when PMCC's deep-ITM test can actually evaluate.
func Classify(t Trade, ctx ClassifyContext) StrategyType {
	legs := openLegs(t.Legs)
	if len(legs) == 0 {
		return StrategyCustom
	}
	sortLegs(legs)

	for _, rule := range classifyCascade {
		if rule.match(legs, ctx) {
			return rule.tag
		}
	}
	return StrategyCustom
}

// isDeepITMCall reports whether a long call leg qualifies as deep
// in-the-money for PMCC purposes: delta at or above 0.7 when Greeks have
// been fetched (nonzero delta), else strike at or below 0.7x spot when a
// quote is available. With neither input populated, it can't be confirmed.
func isDeepITMCall(leg TradeLeg, ctx ClassifyContext) bool {
	if leg.Delta != 0 {
		return leg.Delta >= deepITMDeltaThreshold
	}
	if !ctx.UnderlyingPrice.IsZero() {
		threshold := ctx.UnderlyingPrice.Mul(decimal.NewFromFloat(deepITMStrikeRatio))
		return leg.Strike.LessThanOrEqual(threshold)
	}
	return false
}

// openLegs filters out legs whose quantity has gone flat; a closed leg no
// longer contributes to the structure's classification.
func openLegs(legs []TradeLeg) []TradeLeg {
	out := make([]TradeLeg, 0, len(legs))
	for _, l := range legs {
		if !l.Quantity.IsZero() {
			out = append(out, l)
		}
	}
	return out
}

func sortLegs(legs []TradeLeg) {
	sort.Slice(legs, func(i, j int) bool {
		if !legs[i].Expiration.Equal(legs[j].Expiration) {
			return legs[i].Expiration.Before(legs[j].Expiration)
		}
		if !legs[i].Strike.Equal(legs[j].Strike) {
			return legs[i].Strike.LessThan(legs[j].Strike)
		}
		return legs[i].OptionType < legs[j].OptionType
	})
}

var classifyCascade = []classifyRule{
	{
		name: "stock",
		match: func(legs []TradeLeg, ctx ClassifyContext) bool {
			return len(legs) == 1 && legs[0].OptionType == OptionNone
		},
		tag: StrategyStock,
	},
	{
		name: "single",
		match: func(legs []TradeLeg, ctx ClassifyContext) bool {
			return len(legs) == 1 && legs[0].OptionType != OptionNone
		},
		tag: StrategySingle,
	},
	{
		name: "covered_call",
		match: func(legs []TradeLeg, ctx ClassifyContext) bool {
			if len(legs) != 2 {
				return false
			}
			stock, call, ok := splitStockAndOption(legs)
			return ok && call.OptionType == OptionCall && call.Quantity.IsNegative() && stock.Quantity.IsPositive()
		},
		tag: StrategyCoveredCall,
	},
	{
		name: "pmcc",
		match: func(legs []TradeLeg, ctx ClassifyContext) bool {
			if len(legs) != 2 {
				return false
			}
			a, b := legs[0], legs[1]
			if a.OptionType != OptionCall || b.OptionType != OptionCall {
				return false
			}
			long, short := a, b
			if long.Expiration.Before(short.Expiration) {
				long, short = short, long
			}
			return long.Quantity.IsPositive() && short.Quantity.IsNegative() &&
				long.Expiration.After(short.Expiration) && long.Strike.LessThan(short.Strike) &&
				isDeepITMCall(long, ctx)
		},
		tag: StrategyPMCC,
	},
	{
		name: "straddle",
		match: func(legs []TradeLeg, ctx ClassifyContext) bool {
			return len(legs) == 2 && legs[0].OptionType != legs[1].OptionType &&
				legs[0].Strike.Equal(legs[1].Strike) && legs[0].Expiration.Equal(legs[1].Expiration)
		},
		tag: StrategyStraddle,
	},
	{
		name: "strangle",
		match: func(legs []TradeLeg, ctx ClassifyContext) bool {
			return len(legs) == 2 && legs[0].OptionType != legs[1].OptionType &&
				!legs[0].Strike.Equal(legs[1].Strike) && legs[0].Expiration.Equal(legs[1].Expiration)
		},
		tag: StrategyStrangle,
	},
	{
		name: "calendar_call",
		match: func(legs []TradeLeg, ctx ClassifyContext) bool {
			return len(legs) == 2 && legs[0].OptionType == OptionCall && legs[1].OptionType == OptionCall &&
				legs[0].Strike.Equal(legs[1].Strike) && !legs[0].Expiration.Equal(legs[1].Expiration)
		},
		tag: StrategyCalendarCall,
	},
	{
		name: "calendar_put",
		match: func(legs []TradeLeg, ctx ClassifyContext) bool {
			return len(legs) == 2 && legs[0].OptionType == OptionPut && legs[1].OptionType == OptionPut &&
				legs[0].Strike.Equal(legs[1].Strike) && !legs[0].Expiration.Equal(legs[1].Expiration)
		},
		tag: StrategyCalendarPut,
	},
	{
		name: "vertical_call",
		match: func(legs []TradeLeg, ctx ClassifyContext) bool {
			return len(legs) == 2 && legs[0].OptionType == OptionCall && legs[1].OptionType == OptionCall &&
				!legs[0].Strike.Equal(legs[1].Strike) && legs[0].Expiration.Equal(legs[1].Expiration)
		},
		tag: StrategyVerticalCall,
	},
	{
		name: "vertical_put",
		match: func(legs []TradeLeg, ctx ClassifyContext) bool {
			return len(legs) == 2 && legs[0].OptionType == OptionPut && legs[1].OptionType == OptionPut &&
				!legs[0].Strike.Equal(legs[1].Strike) && legs[0].Expiration.Equal(legs[1].Expiration)
		},
		tag: StrategyVerticalPut,
	},
	{
		name: "iron_butterfly",
		match: func(legs []TradeLeg, ctx ClassifyContext) bool {
			puts, calls, ok := splitFourLegIronShape(legs)
			if !ok {
				return false
			}
			return puts[1].Strike.Equal(calls[0].Strike)
		},
		tag: StrategyIronButterfly,
	},
	{
		name: "iron_condor",
		match: func(legs []TradeLeg, ctx ClassifyContext) bool {
			_, _, ok := splitFourLegIronShape(legs)
			return ok
		},
		tag: StrategyIronCondor,
	},
}

func splitStockAndOption(legs []TradeLeg) (stock, option TradeLeg, ok bool) {
	if legs[0].OptionType == OptionNone && legs[1].OptionType != OptionNone {
		return legs[0], legs[1], true
	}
	if legs[1].OptionType == OptionNone && legs[0].OptionType != OptionNone {
		return legs[1], legs[0], true
	}
	return TradeLeg{}, TradeLeg{}, false
}

// splitFourLegIronShape recognizes a four-leg, single-expiration structure
// with a long put below a short put, and a short call below a long call
// (the classic iron condor/butterfly risk profile). legs must already be
// sorted by (expiration, strike, option type).
func splitFourLegIronShape(legs []TradeLeg) (puts, calls []TradeLeg, ok bool) {
	if len(legs) != 4 {
		return nil, nil, false
	}
	exp := legs[0].Expiration
	for _, l := range legs {
		if !l.Expiration.Equal(exp) {
			return nil, nil, false
		}
	}
	for _, l := range legs {
		if l.OptionType == OptionPut {
			puts = append(puts, l)
		} else if l.OptionType == OptionCall {
			calls = append(calls, l)
		}
	}
	if len(puts) != 2 || len(calls) != 2 {
		return nil, nil, false
	}
	sort.Slice(puts, func(i, j int) bool { return puts[i].Strike.LessThan(puts[j].Strike) })
	sort.Slice(calls, func(i, j int) bool { return calls[i].Strike.LessThan(calls[j].Strike) })
	if !(puts[0].Quantity.IsPositive() && puts[1].Quantity.IsNegative()) {
		return nil, nil, false
	}
	if !(calls[0].Quantity.IsNegative() && calls[1].Quantity.IsPositive()) {
		return nil, nil, false
	}
	if !puts[1].Strike.LessThanOrEqual(calls[0].Strike) {
		return nil, nil, false
	}
	return puts, calls, true
}
