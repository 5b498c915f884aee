package journal

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// IntegrityChecker runs the split-detection heuristics: for one underlying's
// full execution history it compares the raw (pre-split) net stock position
// against the split-adjusted net position and flags two conditions that
// suggest an unregistered or misapplied StockSplit — an adjusted position far
// larger than the symbol's own historical lot size, and an option strike
// implausible against the most recent adjusted stock close. Every finding is
// advisory: ScanUnderlying never mutates ledger or trade state, it only
// reports.
type IntegrityChecker struct {
	// LotSizeMultiple is how many multiples of the 95th-percentile historical
	// |quantity| the adjusted net position must exceed to be flagged.
	LotSizeMultiple decimal.Decimal
	// StrikeMultiple is how many multiples of the most recent adjusted close
	// an option strike must exceed to be flagged implausible.
	StrikeMultiple decimal.Decimal
}

// NewIntegrityChecker returns a checker configured with spec.md §4.7's
// default thresholds: 10x historical lot size, 10x recent close.
func NewIntegrityChecker() *IntegrityChecker {
	return &IntegrityChecker{
		LotSizeMultiple: decimal.NewFromInt(10),
		StrikeMultiple:  decimal.NewFromInt(10),
	}
}

// ScanUnderlying runs both heuristics over one underlying's executions,
// newest-last order not required, and returns every advisory finding.
func (c *IntegrityChecker) ScanUnderlying(underlying string, execs []Execution) []*SplitAmbiguityError {
	var findings []*SplitAmbiguityError

	if f := c.checkLotSizeAnomaly(underlying, execs); f != nil {
		findings = append(findings, f)
	}
	findings = append(findings, c.checkStrikePlausibility(underlying, execs)...)

	return findings
}

// checkLotSizeAnomaly compares the adjusted net stock position against the
// 95th-percentile historical |quantity| seen for this underlying's stock
// fills. A split applied once instead of compounding (or not applied at all)
// shows up as a position many multiples larger than every individual fill
// that built it.
func (c *IntegrityChecker) checkLotSizeAnomaly(underlying string, execs []Execution) *SplitAmbiguityError {
	var magnitudes []decimal.Decimal
	adjNet := decimal.Zero
	rawNet := decimal.Zero

	for _, e := range execs {
		if e.SecurityType != SecurityStock {
			continue
		}
		adjNet = adjNet.Add(e.SignedDelta())
		magnitudes = append(magnitudes, e.Quantity)

		raw := rawQuantity(e)
		if e.Side == SideSold {
			raw = raw.Neg()
		}
		rawNet = rawNet.Add(raw)
	}

	if len(magnitudes) == 0 {
		return nil
	}

	p95 := percentile(magnitudes, 0.95)
	if p95.IsZero() {
		return nil
	}

	threshold := p95.Mul(c.LotSizeMultiple)
	if adjNet.Abs().LessThanOrEqual(threshold) {
		return nil
	}

	return &SplitAmbiguityError{
		Symbol: underlying,
		Reason: fmt.Sprintf(
			"adjusted net position %s exceeds %sx the historical p95 lot size %s (raw net ignoring registered splits is %s)",
			adjNet.String(), c.LotSizeMultiple.String(), p95.String(), rawNet.String(),
		),
	}
}

// checkStrikePlausibility flags any option strike far above the underlying's
// most recent adjusted stock close — the signature of a strike quoted
// against a pre-split share price being carried forward unadjusted.
func (c *IntegrityChecker) checkStrikePlausibility(underlying string, execs []Execution) []*SplitAmbiguityError {
	var findings []*SplitAmbiguityError

	var recentClose decimal.Decimal
	var recentAt time.Time
	haveClose := false
	for _, e := range execs {
		if e.SecurityType != SecurityStock {
			continue
		}
		if !haveClose || e.ExecutionTime.After(recentAt) {
			recentClose = e.Price
			recentAt = e.ExecutionTime
			haveClose = true
		}
	}
	if !haveClose || recentClose.IsZero() {
		return nil
	}

	threshold := recentClose.Mul(c.StrikeMultiple)
	for _, e := range execs {
		if e.SecurityType != SecurityOption {
			continue
		}
		if e.Strike.GreaterThan(threshold) {
			findings = append(findings, &SplitAmbiguityError{
				Symbol: underlying,
				Reason: fmt.Sprintf(
					"strike %s on exec %s is implausible against most recent adjusted close %s",
					e.Strike.String(), e.ExecID, recentClose.String(),
				),
			})
		}
	}
	return findings
}

// rawQuantity reverses every split adjustment normalize.go already applied
// to an execution, recovering the face-value quantity as originally reported
// by the broker.
func rawQuantity(e Execution) decimal.Decimal {
	q := e.Quantity
	for _, s := range e.SplitsApplied {
		if s.RatioFrom == 0 || s.RatioTo == 0 {
			continue
		}
		factor := decimal.NewFromInt(int64(s.RatioTo)).Div(decimal.NewFromInt(int64(s.RatioFrom)))
		q = q.Div(factor)
	}
	return q
}

// percentile returns the value at rank p (0..1] in values using the standard
// nearest-rank method (rank = ceil(p * n)). values is not mutated.
func percentile(values []decimal.Decimal, p float64) decimal.Decimal {
	sorted := make([]decimal.Decimal, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	rank := int(math.Ceil(p * float64(len(sorted))))
	idx := rank - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
