package journal

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/traderid/optjournal/internal/logger"
)

// maxConcurrentUnderlyings bounds how many underlyings Core processes in
// parallel during a sync. Executions within a single underlying are always
// applied in strict execution-time order on one goroutine, since the ledger
// and grouper are stateful per (underlying, leg_key); the semaphore below
// only bounds the fan-out across distinct underlyings.
const maxConcurrentUnderlyings = 8

// QuoteSource supplies the spot price and implied vols the analytics kernel
// needs. Implementations live in internal/marketdata; Core depends only on
// this interface so the journal package stays free of any HTTP client.
type QuoteSource interface {
	Spot(ctx context.Context, underlying string) (AnalyticsInputs, error)
	LegGreeks(ctx context.Context, underlying string, legs []TradeLeg, at time.Time) ([]TradeLeg, error)
}

// RateSource supplies the risk-free rate used in probability-of-profit.
type RateSource interface {
	RiskFreeRate(ctx context.Context) (float64, error)
}

// Core is the process-lifetime object binding every journal component
// together: the split calendar, normalizer, ledger, grouper, classifier,
// analytics kernel, roll detector, and integrity checker. It owns no
// persistence or transport directly — Store and the provider interfaces are
// injected so Core itself stays testable without a database or network.
type Core struct {
	mu sync.Mutex

	Splits     *SplitCalendar
	Normalizer *Normalizer
	Ledger     *Ledger
	Grouper    *TradeGrouper
	Analytics  *Analytics
	Rolls      *RollDetector
	Integrity  *IntegrityChecker

	Quotes QuoteSource
	Rates  RateSource

	scanSem chan struct{}

	executions []Execution // full in-memory history, ordered by ingestion
}

// NewCore wires up a Core with a fresh ledger and grouper and the given
// provider adapters. Either provider may be nil, in which case analytics
// runs in degraded (AnalyticsPartial) mode.
func NewCore(quotes QuoteSource, rates RateSource) *Core {
	splits := NewSplitCalendar()
	return &Core{
		Splits:     splits,
		Normalizer: NewNormalizer(splits),
		Ledger:     NewLedger(),
		Grouper:    NewTradeGrouper(),
		Analytics:  NewAnalytics(),
		Rolls:      NewRollDetector(),
		Integrity:  NewIntegrityChecker(),
		Quotes:     quotes,
		Rates:      rates,
		scanSem:    make(chan struct{}, maxConcurrentUnderlyings),
	}
}

// SyncFills ingests a batch of raw broker fills: normalizing, applying each
// to the ledger, grouping into trades, classifying, and running analytics.
// Fills are partitioned by underlying and each partition is processed on its
// own goroutine, bounded by scanSem, exactly as the teacher's scanner caps
// concurrent per-item work; within a partition, processing is strictly
// sequential since ledger state is order-dependent.
func (c *Core) SyncFills(ctx context.Context, raws []RawFill) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	byUnderlying := make(map[string][]RawFill)
	for _, r := range raws {
		byUnderlying[r.Underlying] = append(byUnderlying[r.Underlying], r)
	}

	var wg sync.WaitGroup
	var statsMu sync.Mutex
	total := Stats{Fetched: len(raws)}

	for underlying, fills := range byUnderlying {
		underlying, fills := underlying, fills
		wg.Add(1)
		c.scanSem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-c.scanSem }()

			s := c.syncOnePartition(ctx, underlying, fills)

			statsMu.Lock()
			total.New += s.New
			total.Existing += s.Existing
			total.Errors += s.Errors
			statsMu.Unlock()
		}()
	}
	wg.Wait()

	if total.Errors > 0 {
		total.Message = "completed with errors"
	} else {
		total.Message = "ok"
	}
	return total
}

func (c *Core) syncOnePartition(ctx context.Context, underlying string, fills []RawFill) Stats {
	var s Stats

	sort.Slice(fills, func(i, j int) bool { return fills[i].ExecutionTime.Before(fills[j].ExecutionTime) })

	var openedTrades, closedTrades []*Trade

	for _, raw := range fills {
		exec, err := c.Normalizer.Normalize(raw)
		if err != nil {
			logger.Warn("LEDGER", err.Error())
			s.Errors++
			continue
		}

		effects, err := c.Ledger.Apply(exec)
		if err != nil {
			logger.Error("LEDGER", err.Error())
			s.Errors++
			continue
		}

		touched := c.Grouper.Group(exec, effects)
		for i, t := range touched {
			eff := effects[i]
			// No quote has been fetched yet at this point in the pipeline, so
			// a PMCC candidate can't be confirmed here; runAnalytics
			// reclassifies every trade once Greeks and spot are available.
			t.StrategyType = Classify(*t, ClassifyContext{})
			if eff.Opened {
				openedTrades = append(openedTrades, t)
			}
			if eff.Closed {
				closedTrades = append(closedTrades, t)
			}
		}

		c.executions = append(c.executions, exec)
		s.New++
	}

	c.linkRolls(underlying, closedTrades, openedTrades)
	c.runAnalytics(ctx, underlying, openedTrades)

	return s
}

func (c *Core) linkRolls(underlying string, closed, opened []*Trade) {
	openedCandidates := make([]Candidate, 0, len(opened))
	for _, t := range opened {
		openedCandidates = append(openedCandidates, Candidate{Trade: t, OpenedAt: t.OpenedAt})
	}
	for _, t := range closed {
		if t.ClosedAt == nil {
			continue
		}
		cand := Candidate{Trade: t, ClosedAt: *t.ClosedAt}
		if match := c.Rolls.Detect(cand, openedCandidates); match != nil {
			if err := Link(t, match.Trade); err != nil {
				logger.Warn("ROLLS", err.Error())
			}
		}
	}
}

func (c *Core) runAnalytics(ctx context.Context, underlying string, trades []*Trade) {
	if c.Quotes == nil {
		for _, t := range trades {
			t.AnalyticsPartial = true
		}
		return
	}

	inputs, err := c.Quotes.Spot(ctx, underlying)
	if err != nil {
		logger.Warn("ANALYTICS", (&ProviderError{Provider: "marketdata", Err: err}).Error())
		for _, t := range trades {
			t.AnalyticsPartial = true
		}
		return
	}

	ratesOK := false
	if c.Rates != nil {
		rate, err := c.Rates.RiskFreeRate(ctx)
		if err != nil {
			logger.Warn("ANALYTICS", (&ProviderError{Provider: "rates", Err: err}).Error())
		} else {
			inputs.RiskFreeRate = rate
			ratesOK = true
		}
	}
	inputs.Now = time.Now()

	for _, t := range trades {
		if !ratesOK {
			t.AnalyticsPartial = true
		}
		legs, err := c.Quotes.LegGreeks(ctx, underlying, t.Legs, inputs.Now)
		if err != nil {
			t.AnalyticsPartial = true
		} else {
			t.Legs = legs
		}
		// Greeks and spot are both available now, so PMCC's deep-ITM test
		// can actually evaluate; reclassify before computing derived fields
		// since Compute dispatches on StrategyType.
		t.StrategyType = Classify(*t, ClassifyContext{UnderlyingPrice: inputs.UnderlyingPrice})
		c.Analytics.Compute(t, inputs)
	}
}

// Trades returns every trade Core currently tracks.
func (c *Core) Trades() []Trade {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Grouper.Trades()
}

// Executions returns the full in-memory execution history, ordered by
// ingestion.
func (c *Core) Executions() []Execution {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Execution, len(c.executions))
	copy(out, c.executions)
	return out
}

// RegisterSplit adds a split to the calendar and reprocesses all history for
// that symbol, since a split changes cost-basis arithmetic retroactively.
func (c *Core) RegisterSplit(symbol string, date time.Time, ratioFrom, ratioTo int) (StockSplit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	split := c.Splits.RegisterSplit(symbol, date, ratioFrom, ratioTo)

	affected := make([]Execution, 0)
	for _, e := range c.executions {
		if e.Underlying == symbol {
			affected = append(affected, e)
		}
	}
	if len(affected) == 0 {
		return split, nil
	}

	reNorm := make([]Execution, 0, len(affected))
	for _, e := range affected {
		raw := RawFill{
			ExecID: e.ExecID, OrderID: e.OrderID, PermID: e.PermID,
			Underlying: e.Underlying, SecurityType: string(e.SecurityType), Right: string(e.OptionType),
			Strike: e.Strike, Expiration: e.Expiration, Multiplier: e.Multiplier,
			Side: string(e.Side), Quantity: e.Quantity, Price: e.Price, Commission: e.Commission,
			ExecutionTime: e.ExecutionTime, AccountID: e.AccountID, Exchange: e.Exchange, Currency: e.Currency,
			OpenCloseIndicator: string(e.OpenCloseIndicator),
		}
		fresh, err := c.Normalizer.Normalize(raw)
		if err != nil {
			return split, err
		}
		reNorm = append(reNorm, fresh)
	}

	if _, err := c.Grouper.ReprocessAll(c.Ledger, reNorm); err != nil {
		return split, err
	}

	for i, e := range c.executions {
		if e.Underlying != symbol {
			continue
		}
		for _, r := range reNorm {
			if r.ExecID == e.ExecID {
				c.executions[i] = r
				break
			}
		}
	}

	return split, nil
}
