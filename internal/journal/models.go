// Package journal implements the execution-to-trade reconstruction engine:
// the position ledger, trade grouping, strategy classification, analytics,
// roll detection, and integrity checks for an options trading journal.
package journal

import (
	"time"

	"github.com/shopspring/decimal"
)

// SecurityType distinguishes the two instrument kinds the ledger tracks.
type SecurityType string

const (
	SecurityOption SecurityType = "OPT"
	SecurityStock  SecurityType = "STK"
)

// OptionType is the right of an option leg. Empty for stock legs.
type OptionType string

const (
	OptionCall OptionType = "C"
	OptionPut  OptionType = "P"
	OptionNone OptionType = ""
)

// Side is the fill direction reported by the broker.
type Side string

const (
	SideBought Side = "BOT"
	SideSold   Side = "SLD"
)

// OpenClose tags whether an execution opened or closed (part of) a position.
type OpenClose string

const (
	TagOpen    OpenClose = "O"
	TagClose   OpenClose = "C"
	TagUnknown OpenClose = ""
)

// PositionStatus is the lifecycle state of a LedgerEntry or Trade.
type PositionStatus string

const (
	StatusOpen   PositionStatus = "OPEN"
	StatusClosed PositionStatus = "CLOSED"
)

// StrategyType is the classifier's output tag for a Trade's leg signature.
type StrategyType string

const (
	StrategyStock        StrategyType = "STOCK"
	StrategySingle       StrategyType = "SINGLE"
	StrategyVerticalCall StrategyType = "VERTICAL_CALL"
	StrategyVerticalPut  StrategyType = "VERTICAL_PUT"
	StrategyCalendarCall StrategyType = "CALENDAR_CALL"
	StrategyCalendarPut  StrategyType = "CALENDAR_PUT"
	StrategyStraddle     StrategyType = "STRADDLE"
	StrategyStrangle     StrategyType = "STRANGLE"
	StrategyIronCondor   StrategyType = "IRON_CONDOR"
	StrategyIronButterfly StrategyType = "IRON_BUTTERFLY"
	StrategyPMCC         StrategyType = "PMCC"
	StrategyCoveredCall  StrategyType = "COVERED_CALL"
	StrategyCustom       StrategyType = "CUSTOM"
)

// Execution is one immutable, normalized broker fill. Quantity is always
// positive; Side and the sign convention on NetAmount carry direction.
type Execution struct {
	ID     int64
	ExecID string
	OrderID int64
	PermID  int64

	Underlying   string
	SecurityType SecurityType
	OptionType   OptionType
	Strike       decimal.Decimal
	Expiration   time.Time // zero value when SecurityType == STK
	Multiplier   int

	Side       Side
	Quantity   decimal.Decimal // always >= 0, 4dp
	Price      decimal.Decimal // 4dp
	Commission decimal.Decimal
	NetAmount  decimal.Decimal // signed: negative for BOT, positive for SLD; excludes commission

	ExecutionTime time.Time // UTC
	AccountID     string
	Exchange      string
	Currency      string

	OpenCloseIndicator OpenClose // broker-supplied hint, optional
	DerivedOpenClose   OpenClose // Normalize sets TagUnknown; the ledger does not assign it

	TradeID *int64

	IsAssignment       bool
	AssignedFromTradeID *int64

	SplitsApplied []AppliedSplit
}

// AppliedSplit records one split adjustment applied to an execution.
type AppliedSplit struct {
	SplitID   int64
	SplitDate time.Time
	RatioFrom int
	RatioTo   int
}

// LegKey returns the canonical leg identity string for this execution:
// "YYYYMMDD_strike_{C|P}" for options, the literal "STK" for stock.
func (e Execution) LegKey() string {
	if e.SecurityType == SecurityStock {
		return "STK"
	}
	return legKey(e.Expiration, e.Strike, e.OptionType)
}

func legKey(expiration time.Time, strike decimal.Decimal, ot OptionType) string {
	return expiration.UTC().Format("20060102") + "_" + strike.StringFixed(2) + "_" + string(ot)
}

// SignedDelta returns the signed quantity delta this execution applies to a
// ledger position: positive for BOT, negative for SLD.
func (e Execution) SignedDelta() decimal.Decimal {
	if e.Side == SideBought {
		return e.Quantity
	}
	return e.Quantity.Neg()
}

// LedgerEntry is the running state for one (underlying, leg_key), either
// currently open or retained for history after closing.
type LedgerEntry struct {
	ID         int64
	Underlying string
	LegKey     string

	Quantity    decimal.Decimal // signed
	AvgCost     decimal.Decimal // per unit, positive
	TotalCost   decimal.Decimal
	RealizedPnL decimal.Decimal

	Status   PositionStatus
	OpenedAt time.Time
	ClosedAt *time.Time

	TradeID *int64
}

// IsFlat reports whether the entry's quantity is exactly zero.
func (l LedgerEntry) IsFlat() bool {
	return l.Quantity.IsZero()
}

// TradeLeg is one distinct instrument within a Trade's final leg set.
type TradeLeg struct {
	OptionType OptionType // "" for stock
	Strike     decimal.Decimal
	Expiration time.Time
	LegKey     string
	Quantity   decimal.Decimal // signed, net opening quantity

	Delta float64
	Gamma float64
	Theta float64
	Vega  float64
	Rho   float64
	IV    float64
}

// Trade is a logical multi-leg position reconstructed from executions.
type Trade struct {
	ID           int64
	Underlying   string
	StrategyType StrategyType
	Status       PositionStatus
	OpenedAt     time.Time
	ClosedAt     *time.Time
	NumLegs      int
	NumExecutions int

	OpeningCost        decimal.Decimal
	RealizedPnL        decimal.Decimal
	TotalCommission    decimal.Decimal
	WashSaleAdjustment decimal.Decimal

	RollChainID        *string
	RolledFromTradeID  *int64
	RolledToTradeID    *int64
	IsRoll             bool
	IsAssignment       bool
	AssignedFromTradeID *int64

	Tags []string
	Note string

	Legs []TradeLeg

	MaxProfit       *decimal.Decimal
	MaxRisk         *decimal.Decimal
	Breakevens      []decimal.Decimal
	NetDelta        *float64
	NetTheta        *float64
	NetGamma        *float64
	NetVega         *float64
	DTE             int
	ProbabilityOfProfit *float64
	Collateral      *decimal.Decimal

	AnalyticsPartial bool
}

// StockSplit maps a symbol+date to the ratio that splits shares on that date.
type StockSplit struct {
	ID          int64
	Symbol      string
	SplitDate   time.Time
	RatioFrom   int
	RatioTo     int
	Description string
}

// AdjustmentFactor is the quantity multiplier applied to pre-split executions.
func (s StockSplit) AdjustmentFactor() decimal.Decimal {
	return decimal.NewFromInt(int64(s.RatioTo)).Div(decimal.NewFromInt(int64(s.RatioFrom)))
}

// PriceFactor is the price multiplier applied to pre-split executions.
func (s StockSplit) PriceFactor() decimal.Decimal {
	return decimal.NewFromInt(int64(s.RatioFrom)).Div(decimal.NewFromInt(int64(s.RatioTo)))
}

// IsReverse reports whether this split reduces share count (e.g. 4:1).
func (s StockSplit) IsReverse() bool {
	return s.RatioFrom > s.RatioTo
}

// MarginSettings holds per-underlying collateral percentages.
type MarginSettings struct {
	ID                int64
	Underlying        string
	NakedPutPct       decimal.Decimal
	NakedCallPct      decimal.Decimal
	SpreadPct         decimal.Decimal
	IronCondorPct     decimal.Decimal
	Notes             string
}

// DefaultMarginSettings returns the spec default of 20/20/100/100.
func DefaultMarginSettings(underlying string) MarginSettings {
	return MarginSettings{
		Underlying:    underlying,
		NakedPutPct:   decimal.NewFromInt(20),
		NakedCallPct:  decimal.NewFromInt(20),
		SpreadPct:     decimal.NewFromInt(100),
		IronCondorPct: decimal.NewFromInt(100),
	}
}

// Tag is a user-defined label that can be attached to trades.
type Tag struct {
	ID   int64
	Name string
}

// Stats is the result summary Core.SyncFills returns; Core's other
// operations do not return it.
type Stats struct {
	Fetched  int
	New      int
	Existing int
	Errors   int
	Message  string
}
