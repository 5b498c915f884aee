package journal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNormalizer_OptionFill(t *testing.T) {
	n := NewNormalizer(NewSplitCalendar())
	raw := RawFill{
		ExecID:        "E1",
		Underlying:    "spy",
		SecurityType:  "opt",
		Right:         "c",
		Strike:        decimal.NewFromFloat(450),
		Expiration:    time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
		Side:          "sld",
		Quantity:      decimal.NewFromInt(1),
		Price:         decimal.NewFromFloat(2.5),
		Commission:    decimal.NewFromFloat(0.65),
		ExecutionTime: time.Date(2026, 1, 5, 14, 30, 0, 0, time.UTC),
	}

	exec, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if exec.Underlying != "SPY" {
		t.Errorf("Underlying = %q, want SPY", exec.Underlying)
	}
	if exec.OptionType != OptionCall {
		t.Errorf("OptionType = %q, want C", exec.OptionType)
	}
	if exec.Multiplier != 100 {
		t.Errorf("Multiplier = %d, want 100", exec.Multiplier)
	}
	if exec.Currency != "USD" {
		t.Errorf("Currency = %q, want USD default", exec.Currency)
	}
	// SLD 1 contract @ 2.50 * 100 multiplier = +250 net amount (credit).
	if !exec.NetAmount.Equal(decimal.NewFromInt(250)) {
		t.Errorf("NetAmount = %s, want 250", exec.NetAmount)
	}
}

func TestNormalizer_MissingRightRejected(t *testing.T) {
	n := NewNormalizer(NewSplitCalendar())
	raw := RawFill{
		ExecID:        "E2",
		Underlying:    "SPY",
		SecurityType:  "OPT",
		Strike:        decimal.NewFromFloat(450),
		Expiration:    time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC),
		Side:          "BOT",
		Quantity:      decimal.NewFromInt(1),
		Price:         decimal.NewFromFloat(2.5),
		ExecutionTime: time.Now(),
	}

	_, err := n.Normalize(raw)
	var normErr *NormalizationError
	if err == nil {
		t.Fatal("expected NormalizationError, got nil")
	}
	if !asNormalizationError(err, &normErr) {
		t.Fatalf("expected *NormalizationError, got %T", err)
	}
}

func asNormalizationError(err error, target **NormalizationError) bool {
	ne, ok := err.(*NormalizationError)
	if ok {
		*target = ne
	}
	return ok
}

func TestNormalizer_StockFillDefaultsMultiplierOne(t *testing.T) {
	n := NewNormalizer(NewSplitCalendar())
	raw := RawFill{
		ExecID:        "E3",
		Underlying:    "AAPL",
		SecurityType:  "STK",
		Side:          "BOT",
		Quantity:      decimal.NewFromInt(100),
		Price:         decimal.NewFromFloat(190),
		ExecutionTime: time.Now(),
	}
	exec, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if exec.Multiplier != 1 {
		t.Errorf("Multiplier = %d, want 1 for stock", exec.Multiplier)
	}
	if exec.LegKey() != "STK" {
		t.Errorf("LegKey() = %q, want STK", exec.LegKey())
	}
}
