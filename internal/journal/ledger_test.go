package journal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func stockExec(side Side, qty, price string, at time.Time) Execution {
	return Execution{
		ExecID:        "e-" + string(side) + "-" + qty,
		Underlying:    "AAPL",
		SecurityType:  SecurityStock,
		Side:          side,
		Quantity:      decimal.RequireFromString(qty),
		Price:         decimal.RequireFromString(price),
		ExecutionTime: at,
		Multiplier:    1,
	}
}

func optionLegExec(side Side, qty, price string, at time.Time) Execution {
	return Execution{
		ExecID:        "e-" + string(side) + "-" + qty,
		Underlying:    "AAPL",
		SecurityType:  SecurityOption,
		OptionType:    OptionCall,
		Strike:        decimal.RequireFromString("190.00"),
		Side:          side,
		Quantity:      decimal.RequireFromString(qty),
		Price:         decimal.RequireFromString(price),
		ExecutionTime: at,
		Multiplier:    100,
	}
}

func TestLedger_Open(t *testing.T) {
	l := NewLedger()
	exec := stockExec(SideBought, "100", "190.00", time.Now())

	effects, err := l.Apply(exec)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(effects) != 1 || !effects[0].Opened {
		t.Fatalf("expected single Opened effect, got %+v", effects)
	}
	entry, ok := l.EntryFor("AAPL", "STK")
	if !ok || entry.Status != StatusOpen {
		t.Fatalf("entry not open: %+v", entry)
	}
	if !entry.Quantity.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Quantity = %s, want 100", entry.Quantity)
	}
}

func TestLedger_AddSameDirection(t *testing.T) {
	l := NewLedger()
	base := time.Now()
	l.Apply(stockExec(SideBought, "100", "190.00", base))
	effects, err := l.Apply(stockExec(SideBought, "50", "200.00", base.Add(time.Minute)))
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if effects[0].Opened || effects[0].Closed {
		t.Errorf("expected neither Opened nor Closed on an add, got %+v", effects[0])
	}
	entry, _ := l.EntryFor("AAPL", "STK")
	if !entry.Quantity.Equal(decimal.NewFromInt(150)) {
		t.Errorf("Quantity = %s, want 150", entry.Quantity)
	}
	wantAvg := decimal.RequireFromString("193.3333333333333333")
	if entry.AvgCost.Sub(wantAvg).Abs().GreaterThan(decimal.RequireFromString("0.0001")) {
		t.Errorf("AvgCost = %s, want ~193.33", entry.AvgCost)
	}
}

func TestLedger_PartialClose(t *testing.T) {
	l := NewLedger()
	base := time.Now()
	l.Apply(stockExec(SideBought, "100", "190.00", base))
	effects, err := l.Apply(stockExec(SideSold, "40", "200.00", base.Add(time.Minute)))
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	eff := effects[0]
	if eff.Opened || eff.Closed {
		t.Errorf("partial close should be neither Opened nor Closed, got %+v", eff)
	}
	wantPnL := decimal.RequireFromString("400.00") // (200-190)*40
	if !eff.RealizedPnL.Equal(wantPnL) {
		t.Errorf("RealizedPnL = %s, want %s", eff.RealizedPnL, wantPnL)
	}
	entry, _ := l.EntryFor("AAPL", "STK")
	if !entry.Quantity.Equal(decimal.NewFromInt(60)) {
		t.Errorf("Quantity = %s, want 60", entry.Quantity)
	}
	if entry.Status != StatusOpen {
		t.Errorf("Status = %s, want OPEN", entry.Status)
	}
}

func TestLedger_FullClose(t *testing.T) {
	l := NewLedger()
	base := time.Now()
	l.Apply(stockExec(SideBought, "100", "190.00", base))
	effects, err := l.Apply(stockExec(SideSold, "100", "210.00", base.Add(time.Minute)))
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	eff := effects[0]
	if !eff.Closed {
		t.Errorf("expected Closed effect, got %+v", eff)
	}
	wantPnL := decimal.RequireFromString("2000.00")
	if !eff.RealizedPnL.Equal(wantPnL) {
		t.Errorf("RealizedPnL = %s, want %s", eff.RealizedPnL, wantPnL)
	}
	entry, _ := l.EntryFor("AAPL", "STK")
	if entry.Status != StatusClosed || !entry.IsFlat() {
		t.Errorf("entry not closed/flat: %+v", entry)
	}
}

func TestLedger_CrossZeroProducesTwoEffects(t *testing.T) {
	l := NewLedger()
	base := time.Now()
	l.Apply(stockExec(SideBought, "100", "190.00", base))
	effects, err := l.Apply(stockExec(SideSold, "150", "200.00", base.Add(time.Minute)))
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(effects) != 2 {
		t.Fatalf("expected exactly 2 effects for cross-zero fill, got %d", len(effects))
	}
	if !effects[0].Closed {
		t.Errorf("effects[0] should be the close, got %+v", effects[0])
	}
	if !effects[1].Opened {
		t.Errorf("effects[1] should be the new open, got %+v", effects[1])
	}
	entry, _ := l.EntryFor("AAPL", "STK")
	if !entry.Quantity.Equal(decimal.NewFromInt(-50)) {
		t.Errorf("Quantity = %s, want -50 (new short position)", entry.Quantity)
	}
	if entry.Status != StatusOpen {
		t.Errorf("Status = %s, want OPEN for the reopened short", entry.Status)
	}
}

// TestLedger_OptionMultiplierScalesCostAndPnL pins spec.md §4.2's ·m terms:
// avg_cost stays a per-contract price, but total_cost and realized P&L are
// scaled by the 100-share option multiplier.
func TestLedger_OptionMultiplierScalesCostAndPnL(t *testing.T) {
	l := NewLedger()
	base := time.Now()

	opened, err := l.Apply(optionLegExec(SideBought, "2", "3.00", base))
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	entry := opened[0].Entry
	if !entry.AvgCost.Equal(decimal.RequireFromString("3.00")) {
		t.Errorf("AvgCost = %s, want 3.00 (per-contract, unscaled)", entry.AvgCost)
	}
	wantTotalCost := decimal.RequireFromString("600.00") // 3.00 * 2 * 100
	if !entry.TotalCost.Equal(wantTotalCost) {
		t.Errorf("TotalCost = %s, want %s", entry.TotalCost, wantTotalCost)
	}

	closed, err := l.Apply(optionLegExec(SideSold, "2", "5.00", base.Add(time.Minute)))
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	eff := closed[0]
	if !eff.Closed {
		t.Fatalf("expected a Closed effect, got %+v", eff)
	}
	wantPnL := decimal.RequireFromString("400.00") // (5.00-3.00) * 2 * 100
	if !eff.RealizedPnL.Equal(wantPnL) {
		t.Errorf("RealizedPnL = %s, want %s", eff.RealizedPnL, wantPnL)
	}
}

// TestLedger_OptionMultiplierScalesPartialClose confirms the same scaling
// applies to a partial close that keeps the position open.
func TestLedger_OptionMultiplierScalesPartialClose(t *testing.T) {
	l := NewLedger()
	base := time.Now()
	open := optionLegExec(SideBought, "4", "2.00", base)
	l.Apply(open)
	effects, err := l.Apply(optionLegExec(SideSold, "1", "2.50", base.Add(time.Minute)))
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	eff := effects[0]
	wantPnL := decimal.RequireFromString("50.00") // (2.50-2.00) * 1 * 100
	if !eff.RealizedPnL.Equal(wantPnL) {
		t.Errorf("RealizedPnL = %s, want %s", eff.RealizedPnL, wantPnL)
	}
	entry, _ := l.EntryFor("AAPL", open.LegKey())
	wantTotalCost := decimal.RequireFromString("600.00") // 2.00 * 3 remaining * 100
	if !entry.TotalCost.Equal(wantTotalCost) {
		t.Errorf("TotalCost = %s, want %s", entry.TotalCost, wantTotalCost)
	}
}
