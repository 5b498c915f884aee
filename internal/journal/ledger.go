package journal

import (
	"github.com/shopspring/decimal"
)

// LedgerEffect is one state transition the ledger applied for a single
// execution. A cross-zero fill produces exactly two: a close of the prior
// position and an open of the new one in the opposite direction.
type LedgerEffect struct {
	Entry       LedgerEntry
	Opened      bool
	Closed      bool
	RealizedPnL decimal.Decimal
}

// Ledger is the per-(underlying, leg_key) position state machine. It holds
// no broker or network dependency: given an ordered stream of executions it
// produces a deterministic ledger history, realizing P&L against a weighted
// average cost per leg (not FIFO lots), one leg at a time rather than across
// a whole portfolio.
type Ledger struct {
	entries map[string]*LedgerEntry // key: underlying + "/" + leg_key
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]*LedgerEntry)}
}

// LoadEntries seeds the ledger from persisted state, e.g. on process start.
func (l *Ledger) LoadEntries(entries []LedgerEntry) {
	for i := range entries {
		e := entries[i]
		l.entries[entryKey(e.Underlying, e.LegKey)] = &e
	}
}

// Entries returns a snapshot of every entry currently tracked, open or closed.
func (l *Ledger) Entries() []LedgerEntry {
	out := make([]LedgerEntry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, *e)
	}
	return out
}

// EntryFor returns the current entry for a (underlying, leg_key), if any.
func (l *Ledger) EntryFor(underlying, legKey string) (LedgerEntry, bool) {
	e, ok := l.entries[entryKey(underlying, legKey)]
	if !ok {
		return LedgerEntry{}, false
	}
	return *e, true
}

func entryKey(underlying, legKey string) string {
	return underlying + "/" + legKey
}

// Apply folds one execution into the ledger, returning the effect(s) it
// produced. Five transitions are possible:
//
//  1. Open: no existing entry (or a flat one) — create a new OPEN entry.
//  2. Add: existing entry same direction as the fill — weighted-average the
//     cost basis, quantity grows.
//  3. Partial close: existing entry opposite direction, |fill| < |position| —
//     realize proportional P&L, quantity shrinks without flipping sign.
//  4. Full close: |fill| == |position| — realize P&L, mark CLOSED.
//  5. Cross-zero: |fill| > |position| — realize P&L on the portion that
//     closes the old position, then open a new position in the opposite
//     direction sized to the remainder, from the same execution. This is the
//     only case that yields two LedgerEffects for one execution.
func (l *Ledger) Apply(exec Execution) ([]LedgerEffect, error) {
	legKey := exec.LegKey()
	key := entryKey(exec.Underlying, legKey)
	delta := exec.SignedDelta()
	m := decimal.NewFromInt(int64(exec.Multiplier))

	existing, hasExisting := l.entries[key]
	if !hasExisting || existing.IsFlat() {
		entry := LedgerEntry{
			Underlying: exec.Underlying,
			LegKey:     legKey,
			Quantity:   delta,
			AvgCost:    exec.Price,
			TotalCost:  exec.Price.Mul(delta.Abs()).Mul(m),
			Status:     StatusOpen,
			OpenedAt:   exec.ExecutionTime,
		}
		l.entries[key] = &entry
		return []LedgerEffect{{Entry: entry, Opened: true}}, nil
	}

	sameDirection := (existing.Quantity.IsPositive() && delta.IsPositive()) ||
		(existing.Quantity.IsNegative() && delta.IsNegative())

	if sameDirection {
		newQty := existing.Quantity.Add(delta)
		newTotalCost := existing.TotalCost.Add(exec.Price.Mul(delta.Abs()).Mul(m))
		existing.Quantity = newQty
		existing.TotalCost = newTotalCost
		existing.AvgCost = newTotalCost.Div(newQty.Abs().Mul(m))
		return []LedgerEffect{{Entry: *existing}}, nil
	}

	// Opposite direction: closing, possibly crossing zero.
	closingQty := decimal.Min(delta.Abs(), existing.Quantity.Abs())
	realized := realizedPnL(existing.Quantity, existing.AvgCost, exec.Price, closingQty, m)

	remainingExisting := existing.Quantity.Abs().Sub(closingQty)
	fillRemainder := delta.Abs().Sub(closingQty)

	if remainingExisting.IsZero() && fillRemainder.IsZero() {
		// Case 4: full close.
		existing.Quantity = decimal.Zero
		existing.RealizedPnL = existing.RealizedPnL.Add(realized)
		existing.Status = StatusClosed
		now := exec.ExecutionTime
		existing.ClosedAt = &now
		return []LedgerEffect{{Entry: *existing, Closed: true, RealizedPnL: realized}}, nil
	}

	if fillRemainder.IsZero() {
		// Case 3: partial close, same direction retained.
		sign := decimal.NewFromInt(1)
		if existing.Quantity.IsNegative() {
			sign = decimal.NewFromInt(-1)
		}
		existing.Quantity = remainingExisting.Mul(sign)
		existing.TotalCost = existing.AvgCost.Mul(remainingExisting).Mul(m)
		existing.RealizedPnL = existing.RealizedPnL.Add(realized)
		return []LedgerEffect{{Entry: *existing, RealizedPnL: realized}}, nil
	}

	// Case 5: cross-zero. Close out the existing position entirely, then
	// open a new one in the fill's direction sized to the remainder.
	existing.Quantity = decimal.Zero
	existing.RealizedPnL = existing.RealizedPnL.Add(realized)
	existing.Status = StatusClosed
	closedAt := exec.ExecutionTime
	existing.ClosedAt = &closedAt
	closeEffect := LedgerEffect{Entry: *existing, Closed: true, RealizedPnL: realized}

	newSign := decimal.NewFromInt(1)
	if delta.IsNegative() {
		newSign = decimal.NewFromInt(-1)
	}
	newQty := fillRemainder.Mul(newSign)
	newEntry := LedgerEntry{
		Underlying: exec.Underlying,
		LegKey:     legKey,
		Quantity:   newQty,
		AvgCost:    exec.Price,
		TotalCost:  exec.Price.Mul(fillRemainder).Mul(m),
		Status:     StatusOpen,
		OpenedAt:   exec.ExecutionTime,
	}
	l.entries[key] = &newEntry
	openEffect := LedgerEffect{Entry: newEntry, Opened: true}

	return []LedgerEffect{closeEffect, openEffect}, nil
}

// realizedPnL computes the P&L realized by closing closingQty units out of a
// position of size existingQty at existingAvgCost, against the fill's
// price, scaled by the contract multiplier. Sign convention: a long position
// realizes (fillPrice - avgCost) * closingQty * m; a short position realizes
// (avgCost - fillPrice) * closingQty * m.
func realizedPnL(existingQty, existingAvgCost, fillPrice, closingQty, multiplier decimal.Decimal) decimal.Decimal {
	diff := fillPrice.Sub(existingAvgCost)
	if existingQty.IsNegative() {
		diff = diff.Neg()
	}
	return diff.Mul(closingQty).Mul(multiplier)
}
