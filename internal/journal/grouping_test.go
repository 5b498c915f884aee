package journal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func optExec(id string, side Side, ot OptionType, strike string, exp time.Time, at time.Time) Execution {
	return Execution{
		ExecID:        id,
		Underlying:    "SPY",
		SecurityType:  SecurityOption,
		OptionType:    ot,
		Strike:        decimal.RequireFromString(strike),
		Expiration:    exp,
		Side:          side,
		Quantity:      decimal.NewFromInt(1),
		Price:         decimal.NewFromFloat(2.0),
		ExecutionTime: at,
		Multiplier:    100,
	}
}

func TestTradeGrouper_SingleLegTrade(t *testing.T) {
	l := NewLedger()
	g := NewTradeGrouper()
	exp := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	base := time.Now()

	exec := optExec("e1", SideSold, OptionCall, "450", exp, base)
	effects, err := l.Apply(exec)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	touched := g.Group(exec, effects)
	if len(touched) != 1 {
		t.Fatalf("expected 1 touched trade, got %d", len(touched))
	}
	trade := touched[0]
	if trade.NumLegs != 1 || len(trade.Legs) != 1 {
		t.Errorf("expected single leg trade, got %+v", trade)
	}
	if trade.Status != StatusOpen {
		t.Errorf("Status = %s, want OPEN", trade.Status)
	}
}

func TestTradeGrouper_MultiLegWithinOpenWindow(t *testing.T) {
	l := NewLedger()
	g := NewTradeGrouper()
	exp := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	base := time.Now()

	e1 := optExec("e1", SideSold, OptionPut, "440", exp, base)
	eff1, _ := l.Apply(e1)
	t1 := g.Group(e1, eff1)

	e2 := optExec("e2", SideBought, OptionPut, "430", exp, base.Add(30*time.Second))
	eff2, _ := l.Apply(e2)
	t2 := g.Group(e2, eff2)

	if t1[0].ID != t2[0].ID {
		t.Errorf("expected both legs folded into the same trade within the open window, got %d and %d", t1[0].ID, t2[0].ID)
	}
	if len(g.trades[t1[0].ID].Legs) != 2 {
		t.Errorf("expected 2 legs on the combined trade, got %d", len(g.trades[t1[0].ID].Legs))
	}
}

func TestTradeGrouper_NewTradeOutsideOpenWindow(t *testing.T) {
	l := NewLedger()
	g := NewTradeGrouper()
	g.OpenWindow = time.Minute
	exp := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	base := time.Now()

	e1 := optExec("e1", SideSold, OptionPut, "440", exp, base)
	eff1, _ := l.Apply(e1)
	t1 := g.Group(e1, eff1)

	e2 := optExec("e2", SideSold, OptionCall, "460", exp, base.Add(time.Hour))
	eff2, _ := l.Apply(e2)
	t2 := g.Group(e2, eff2)

	if t1[0].ID == t2[0].ID {
		t.Errorf("expected a distinct trade once the open window has elapsed")
	}
}

func TestTradeGrouper_CloseCompletesTrade(t *testing.T) {
	l := NewLedger()
	g := NewTradeGrouper()
	exp := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	base := time.Now()

	open := optExec("e1", SideSold, OptionCall, "450", exp, base)
	eff1, _ := l.Apply(open)
	touched := g.Group(open, eff1)
	tradeID := touched[0].ID

	close := optExec("e2", SideBought, OptionCall, "450", exp, base.Add(time.Hour))
	eff2, _ := l.Apply(close)
	closedTouched := g.Group(close, eff2)

	if closedTouched[0].ID != tradeID {
		t.Fatalf("close should attribute to the trade that opened the leg")
	}
	if closedTouched[0].Status != StatusClosed {
		t.Errorf("Status = %s, want CLOSED", closedTouched[0].Status)
	}
}
