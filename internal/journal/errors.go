package journal

import "fmt"

// IntegrityError means applying an execution would drive a ledger row to a
// state inconsistent with its history. Ledger.Apply does not return it: a
// fill larger than the open position crosses zero instead, and ingestion is
// not halted.
type IntegrityError struct {
	Underlying string
	LegKey     string
	Reason     string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity error on %s/%s: %s", e.Underlying, e.LegKey, e.Reason)
}

// NormalizationError means an incoming execution was unparseable or missing
// a required field. The execution is dropped; the caller's Stats.Errors
// counter is incremented.
type NormalizationError struct {
	ExecID string
	Field  string
	Reason string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalization error on exec %s (field %s): %s", e.ExecID, e.Field, e.Reason)
}

// SplitAmbiguityError is advisory: an execution spans a suspected split
// boundary with no registered StockSplit entry. Ingestion proceeds.
type SplitAmbiguityError struct {
	Symbol string
	Reason string
}

func (e *SplitAmbiguityError) Error() string {
	return fmt.Sprintf("split ambiguity for %s: %s", e.Symbol, e.Reason)
}

// ProviderError means an outbound market-data or risk-free-rate call
// failed. The affected trades are marked AnalyticsPartial: a failed spot
// quote skips analytics for them, a failed Greeks lookup computes with the
// legs' existing Greeks, and a failed rate lookup computes with a zero
// risk-free rate. Core does not fall back to an earlier fetched value.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error (%s): %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// RollLinkConflict means linking two trades would create a cycle in a roll
// chain. The link is rejected.
type RollLinkConflict struct {
	FromTradeID int64
	ToTradeID   int64
}

func (e *RollLinkConflict) Error() string {
	return fmt.Sprintf("roll link conflict: trade %d -> %d would create a cycle", e.FromTradeID, e.ToTradeID)
}
