package journal

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// SplitCalendar maps (symbol, date) to split ratios and supplies the
// adjustment factors the ledger needs to keep arithmetic consistent across
// corporate actions. It is read-mostly and safe for concurrent use; each
// mutation re-sorts the affected symbol's split list in application order.
type SplitCalendar struct {
	mu      sync.RWMutex
	splits  map[string][]StockSplit // symbol -> splits sorted by (date asc, id asc)
	nextID  int64
}

// NewSplitCalendar returns an empty calendar.
func NewSplitCalendar() *SplitCalendar {
	return &SplitCalendar{splits: make(map[string][]StockSplit)}
}

// LoadSplits replaces the calendar's contents, e.g. on startup from the DB.
func (c *SplitCalendar) LoadSplits(splits []StockSplit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.splits = make(map[string][]StockSplit)
	var maxID int64
	for _, s := range splits {
		c.splits[s.Symbol] = append(c.splits[s.Symbol], s)
		if s.ID > maxID {
			maxID = s.ID
		}
	}
	for sym := range c.splits {
		sortSplits(c.splits[sym])
	}
	c.nextID = maxID + 1
}

func sortSplits(s []StockSplit) {
	sort.Slice(s, func(i, j int) bool {
		if !s[i].SplitDate.Equal(s[j].SplitDate) {
			return s[i].SplitDate.Before(s[j].SplitDate)
		}
		return s[i].ID < s[j].ID
	})
}

// RegisterSplit adds a new split to the calendar. It invalidates no external
// cache by itself — callers that hold a snapshot of adjusted executions must
// re-run normalization/reprocessing after registering a split.
func (c *SplitCalendar) RegisterSplit(symbol string, date time.Time, ratioFrom, ratioTo int) StockSplit {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := StockSplit{
		ID:        c.nextID,
		Symbol:    symbol,
		SplitDate: date.UTC(),
		RatioFrom: ratioFrom,
		RatioTo:   ratioTo,
	}
	c.nextID++
	c.splits[symbol] = append(c.splits[symbol], s)
	sortSplits(c.splits[symbol])
	return s
}

// SplitsFor returns the splits registered for a symbol, in application
// order (split_date asc, id asc).
func (c *SplitCalendar) SplitsFor(symbol string) []StockSplit {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]StockSplit, len(c.splits[symbol]))
	copy(out, c.splits[symbol])
	return out
}

// Adjust applies every split strictly after executionTime, multiplicatively
// in deterministic (split_date asc, id asc) order, returning the adjusted
// quantity and price plus the list of splits applied. Quantity and price are
// rounded to 4 decimals using banker's rounding, preserving qty*price modulo
// that rounding.
func (c *SplitCalendar) Adjust(symbol string, executionTime time.Time, qty, price decimal.Decimal) (decimal.Decimal, decimal.Decimal, []AppliedSplit) {
	c.mu.RLock()
	splits := c.splits[symbol]
	c.mu.RUnlock()

	adjQty := qty
	adjPrice := price
	var applied []AppliedSplit

	for _, s := range splits {
		if !s.SplitDate.After(executionTime) {
			continue
		}
		adjQty = adjQty.Mul(s.AdjustmentFactor())
		adjPrice = adjPrice.Mul(s.PriceFactor())
		applied = append(applied, AppliedSplit{
			SplitID:   s.ID,
			SplitDate: s.SplitDate,
			RatioFrom: s.RatioFrom,
			RatioTo:   s.RatioTo,
		})
	}

	adjQty = adjQty.RoundBank(4)
	adjPrice = adjPrice.RoundBank(4)
	return adjQty, adjPrice, applied
}
