package journal

import (
	"sort"
	"time"
)

// defaultOpenWindow is W_open: how long after a trade's most recent opening
// fill another opening fill on the same underlying is still folded into the same
// trade rather than starting a new one.
const defaultOpenWindow = 5 * time.Minute

// TradeGrouper reconstructs multi-leg Trades from the stream of ledger
// effects produced by applying executions one at a time. It holds no
// persistence dependency; Core is responsible for loading/saving the Trade
// set it produces.
type TradeGrouper struct {
	OpenWindow time.Duration

	trades     map[int64]*Trade
	nextID     int64
	legOwner   map[string]int64   // entryKey(underlying, legKey) -> trade ID currently holding that leg
	lastOpenAt map[int64]time.Time // trade ID -> time of its most recent opening fill
}

// NewTradeGrouper returns a grouper using the default open window.
func NewTradeGrouper() *TradeGrouper {
	return &TradeGrouper{
		OpenWindow: defaultOpenWindow,
		trades:     make(map[int64]*Trade),
		legOwner:   make(map[string]int64),
		lastOpenAt: make(map[int64]time.Time),
	}
}

// LoadTrades seeds the grouper from persisted trades, re-deriving leg
// ownership for any trade still open.
func (g *TradeGrouper) LoadTrades(trades []Trade) {
	var maxID int64
	for i := range trades {
		t := trades[i]
		g.trades[t.ID] = &t
		if t.ID > maxID {
			maxID = t.ID
		}
		if t.Status == StatusOpen {
			for _, leg := range t.Legs {
				g.legOwner[entryKey(t.Underlying, leg.LegKey)] = t.ID
			}
			g.lastOpenAt[t.ID] = t.OpenedAt
		}
	}
	g.nextID = maxID + 1
}

// Trades returns a snapshot of every trade currently tracked.
func (g *TradeGrouper) Trades() []Trade {
	out := make([]Trade, 0, len(g.trades))
	for _, t := range g.trades {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Group folds one execution and the ledger effect(s) it produced into the
// trade set, creating or extending Trades as needed. It returns every Trade
// touched by this call (one, or two for a cross-zero fill that closes one
// trade's leg and opens another's).
func (g *TradeGrouper) Group(exec Execution, effects []LedgerEffect) []*Trade {
	var touched []*Trade
	for _, eff := range effects {
		t := g.applyEffect(exec, eff)
		touched = append(touched, t)
	}
	return touched
}

func (g *TradeGrouper) applyEffect(exec Execution, eff LedgerEffect) *Trade {
	key := entryKey(eff.Entry.Underlying, eff.Entry.LegKey)

	if eff.Opened {
		tradeID, ok := g.legOwner[key]
		var trade *Trade
		if ok && g.withinOpenWindow(tradeID, exec.ExecutionTime) {
			trade = g.trades[tradeID]
		}
		if trade == nil {
			for id := range g.lastOpenAt {
				cand := g.trades[id]
				if cand == nil || cand.Underlying != exec.Underlying || cand.Status != StatusOpen {
					continue
				}
				if g.withinOpenWindow(id, exec.ExecutionTime) && (trade == nil || id > trade.ID) {
					trade = cand
				}
			}
		}
		if trade == nil {
			trade = g.newTrade(exec.Underlying, exec.ExecutionTime)
		}
		g.legOwner[key] = trade.ID
		g.lastOpenAt[trade.ID] = exec.ExecutionTime
		g.mergeLeg(trade, eff.Entry, exec)
		trade.NumExecutions++
		trade.TotalCommission = trade.TotalCommission.Add(exec.Commission)
		trade.OpeningCost = trade.OpeningCost.Add(exec.NetAmount)
		return trade
	}

	tradeID, ok := g.legOwner[key]
	if !ok {
		// A close with no known owner (e.g. replay from a partial history):
		// start a synthetic trade so the fill is never silently dropped.
		trade := g.newTrade(exec.Underlying, exec.ExecutionTime)
		g.legOwner[key] = trade.ID
		tradeID = trade.ID
	}
	trade := g.trades[tradeID]
	trade.NumExecutions++
	trade.TotalCommission = trade.TotalCommission.Add(exec.Commission)
	trade.RealizedPnL = trade.RealizedPnL.Add(eff.RealizedPnL)

	if eff.Closed {
		delete(g.legOwner, key)
		if g.tradeFullyClosed(trade) {
			trade.Status = StatusClosed
			closedAt := exec.ExecutionTime
			trade.ClosedAt = &closedAt
			delete(g.lastOpenAt, trade.ID)
		}
	} else {
		g.mergeLeg(trade, eff.Entry, exec)
	}
	return trade
}

func (g *TradeGrouper) withinOpenWindow(tradeID int64, at time.Time) bool {
	last, ok := g.lastOpenAt[tradeID]
	if !ok {
		return false
	}
	return at.Sub(last) <= g.OpenWindow
}

func (g *TradeGrouper) newTrade(underlying string, openedAt time.Time) *Trade {
	id := g.nextID
	g.nextID++
	t := &Trade{
		ID:         id,
		Underlying: underlying,
		Status:     StatusOpen,
		OpenedAt:   openedAt,
	}
	g.trades[id] = t
	return t
}

// mergeLeg updates or inserts the TradeLeg matching the ledger entry's key.
func (g *TradeGrouper) mergeLeg(t *Trade, entry LedgerEntry, exec Execution) {
	for i := range t.Legs {
		if t.Legs[i].LegKey == entry.LegKey {
			t.Legs[i].Quantity = entry.Quantity
			return
		}
	}
	leg := TradeLeg{
		OptionType: exec.OptionType,
		Strike:     exec.Strike,
		Expiration: exec.Expiration,
		LegKey:     entry.LegKey,
		Quantity:   entry.Quantity,
	}
	t.Legs = append(t.Legs, leg)
	t.NumLegs = len(t.Legs)
}

// tradeFullyClosed reports whether every leg this trade ever opened now has
// no owning entry left in legOwner, i.e. the trade has nothing open.
func (g *TradeGrouper) tradeFullyClosed(t *Trade) bool {
	for _, leg := range t.Legs {
		if _, stillOpen := g.legOwner[entryKey(t.Underlying, leg.LegKey)]; stillOpen {
			return false
		}
	}
	return true
}

// ReprocessAll discards all derived trade state and regroups the given
// executions from scratch, in execution-time order. It is used after a
// correction that changes ledger outcomes retroactively, e.g. registering a
// stock split for a symbol with history already ingested.
func (g *TradeGrouper) ReprocessAll(ledger *Ledger, execs []Execution) ([]*Trade, error) {
	g.trades = make(map[int64]*Trade)
	g.legOwner = make(map[string]int64)
	g.lastOpenAt = make(map[int64]time.Time)
	g.nextID = 1

	fresh := NewLedger()
	ordered := make([]Execution, len(execs))
	copy(ordered, execs)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ExecutionTime.Before(ordered[j].ExecutionTime) })

	var allTouched []*Trade
	for _, exec := range ordered {
		effects, err := fresh.Apply(exec)
		if err != nil {
			return nil, err
		}
		allTouched = append(allTouched, g.Group(exec, effects)...)
	}
	*ledger = *fresh
	return g.Trades2Ptrs(), nil
}

// Trades2Ptrs returns pointers to every tracked trade, for callers that need
// to mutate in place (e.g. the analytics kernel).
func (g *TradeGrouper) Trades2Ptrs() []*Trade {
	out := make([]*Trade, 0, len(g.trades))
	for _, t := range g.trades {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
