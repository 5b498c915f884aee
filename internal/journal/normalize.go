package journal

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RawFill is the shape a broker adapter hands to the normalizer: as close to
// the wire format as practical, before split adjustment or sign conventions
// are applied.
type RawFill struct {
	ExecID  string
	OrderID int64
	PermID  int64

	Underlying   string
	SecurityType string // "OPT" or "STK"
	Right        string // "C", "P", or "" for stock
	Strike       decimal.Decimal
	Expiration   time.Time
	Multiplier   int

	Side       string // "BOT" or "SLD"
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Commission decimal.Decimal

	ExecutionTime time.Time
	AccountID     string
	Exchange      string
	Currency      string

	OpenCloseIndicator string // broker hint, may be empty
}

// Normalizer turns RawFills into canonical Executions: validating required
// fields, applying sign conventions, and running split adjustment.
type Normalizer struct {
	Splits *SplitCalendar
}

// NewNormalizer builds a Normalizer bound to the given split calendar.
func NewNormalizer(splits *SplitCalendar) *Normalizer {
	return &Normalizer{Splits: splits}
}

// Normalize validates and converts one RawFill into an Execution. A
// NormalizationError is returned for any fill that cannot be made canonical;
// callers should drop the fill and count it as an ingestion error rather
// than halt the batch.
func (n *Normalizer) Normalize(raw RawFill) (Execution, error) {
	if raw.ExecID == "" {
		return Execution{}, &NormalizationError{ExecID: raw.ExecID, Field: "exec_id", Reason: "missing"}
	}
	if raw.Underlying == "" {
		return Execution{}, &NormalizationError{ExecID: raw.ExecID, Field: "underlying", Reason: "missing"}
	}

	secType := SecurityType(strings.ToUpper(raw.SecurityType))
	if secType != SecurityOption && secType != SecurityStock {
		return Execution{}, &NormalizationError{ExecID: raw.ExecID, Field: "security_type", Reason: "unrecognized value " + raw.SecurityType}
	}

	var optType OptionType
	if secType == SecurityOption {
		switch strings.ToUpper(raw.Right) {
		case "C":
			optType = OptionCall
		case "P":
			optType = OptionPut
		default:
			return Execution{}, &NormalizationError{ExecID: raw.ExecID, Field: "right", Reason: "option execution missing call/put indicator"}
		}
		if raw.Expiration.IsZero() {
			return Execution{}, &NormalizationError{ExecID: raw.ExecID, Field: "expiration", Reason: "missing for option execution"}
		}
		if raw.Strike.IsZero() {
			return Execution{}, &NormalizationError{ExecID: raw.ExecID, Field: "strike", Reason: "missing or zero for option execution"}
		}
	}

	side := Side(strings.ToUpper(raw.Side))
	if side != SideBought && side != SideSold {
		return Execution{}, &NormalizationError{ExecID: raw.ExecID, Field: "side", Reason: "unrecognized value " + raw.Side}
	}

	if raw.Quantity.IsZero() || raw.Quantity.IsNegative() {
		return Execution{}, &NormalizationError{ExecID: raw.ExecID, Field: "quantity", Reason: "must be positive"}
	}

	if raw.ExecutionTime.IsZero() {
		return Execution{}, &NormalizationError{ExecID: raw.ExecID, Field: "execution_time", Reason: "missing"}
	}

	multiplier := raw.Multiplier
	if multiplier == 0 {
		if secType == SecurityOption {
			multiplier = 100
		} else {
			multiplier = 1
		}
	}

	currency := raw.Currency
	if currency == "" {
		currency = "USD"
	}

	qty, price, applied := n.Splits.Adjust(raw.Underlying, raw.ExecutionTime, raw.Quantity, raw.Price)

	netAmount := qty.Mul(price).Mul(decimal.NewFromInt(int64(multiplier)))
	if side == SideBought {
		netAmount = netAmount.Neg()
	}

	oc := OpenClose(strings.ToUpper(raw.OpenCloseIndicator))
	if oc != TagOpen && oc != TagClose {
		oc = TagUnknown
	}

	return Execution{
		ExecID:             raw.ExecID,
		OrderID:            raw.OrderID,
		PermID:             raw.PermID,
		Underlying:         strings.ToUpper(raw.Underlying),
		SecurityType:       secType,
		OptionType:         optType,
		Strike:             raw.Strike,
		Expiration:         raw.Expiration.UTC(),
		Multiplier:         multiplier,
		Side:               side,
		Quantity:           qty,
		Price:              price,
		Commission:         raw.Commission,
		NetAmount:          netAmount,
		ExecutionTime:      raw.ExecutionTime.UTC(),
		AccountID:          raw.AccountID,
		Exchange:           raw.Exchange,
		Currency:           currency,
		OpenCloseIndicator: oc,
		DerivedOpenClose:   TagUnknown,
		SplitsApplied:      applied,
	}, nil
}
