package journal

import (
	"time"

	"github.com/google/uuid"
)

// defaultRollWindow is W_roll: the default gap allowed between closing one
// trade and opening its replacement for the pair to be linked as a roll.
// It extends to 24h automatically when both fills share an order or perm ID,
// since a broker-side roll order can legitimately straddle a window this
// short when legs fill at slightly different times.
const (
	defaultRollWindow = 10 * time.Minute
	sameOrderRollWindow = 24 * time.Hour
)

// RollDetector links a just-closed trade to a newly opened one on the same
// underlying when they look like two halves of a single roll: the close
// happens shortly before the open, and the closed leg's expiration or strike
// differs from the new leg's (otherwise it would just be the same trade).
type RollDetector struct {
	Window         time.Duration
	SameOrderWindow time.Duration
}

// NewRollDetector returns a detector using the spec defaults.
func NewRollDetector() *RollDetector {
	return &RollDetector{Window: defaultRollWindow, SameOrderWindow: sameOrderRollWindow}
}

// Candidate is one side of a potential roll link.
type Candidate struct {
	Trade        *Trade
	ClosedAt     time.Time // for the "from" side
	OpenedAt     time.Time // for the "to" side
	OrderID      int64
	PermID       int64
}

// Detect inspects a just-closed trade against a set of trades opened on the
// same underlying and returns the one it should be linked to as a roll, if
// any. It never mutates its inputs; callers apply the link via Link.
func (r *RollDetector) Detect(closed Candidate, opened []Candidate) *Candidate {
	var best *Candidate
	var bestGap time.Duration = -1

	for i := range opened {
		cand := opened[i]
		if cand.Trade.Underlying != closed.Trade.Underlying {
			continue
		}
		if !cand.OpenedAt.After(closed.ClosedAt) && !cand.OpenedAt.Equal(closed.ClosedAt) {
			continue
		}
		gap := cand.OpenedAt.Sub(closed.ClosedAt)
		if gap < 0 {
			continue
		}

		window := r.Window
		if sameOrder(closed, cand) {
			window = r.SameOrderWindow
		}
		if gap > window {
			continue
		}
		if sameStructure(closed.Trade, cand.Trade) {
			continue
		}
		if !sharesRolledLeg(closed.Trade, cand.Trade) {
			continue
		}
		if !structurallyCompatible(closed.Trade, cand.Trade) {
			continue
		}

		if bestGap == -1 || gap < bestGap {
			best = &opened[i]
			bestGap = gap
		}
	}
	return best
}

func sameOrder(a, b Candidate) bool {
	return (a.OrderID != 0 && a.OrderID == b.OrderID) || (a.PermID != 0 && a.PermID == b.PermID)
}

// sameStructure reports whether two trades' leg signatures (option type,
// strike, expiration) are identical, meaning an "opened" trade isn't
// actually a distinct replacement position.
func sameStructure(a, b *Trade) bool {
	if len(a.Legs) != len(b.Legs) {
		return false
	}
	seen := make(map[string]bool, len(a.Legs))
	for _, l := range a.Legs {
		seen[legKey(l.Expiration, l.Strike, l.OptionType)] = true
	}
	for _, l := range b.Legs {
		if !seen[legKey(l.Expiration, l.Strike, l.OptionType)] {
			return false
		}
	}
	return true
}

// sharesRolledLeg reports whether a and b share at least one leg with the
// same option_type and side (long/short), moved to a different strike or
// expiration — the leg-signature overlap a genuine roll leaves behind.
// Unrelated trades that happen to close and open near each other share no
// such leg and are rejected here even though they pass the time-window test.
func sharesRolledLeg(a, b *Trade) bool {
	for _, la := range a.Legs {
		if la.OptionType == OptionNone {
			continue
		}
		for _, lb := range b.Legs {
			if lb.OptionType != la.OptionType {
				continue
			}
			if lb.Quantity.Sign() != la.Quantity.Sign() {
				continue
			}
			if !lb.Strike.Equal(la.Strike) || !lb.Expiration.Equal(la.Expiration) {
				return true
			}
		}
	}
	return false
}

// structurallyCompatible reports whether two trades' strategy tags are
// consistent with one being the continuation of the other: either they
// carry the same StrategyType, or one is an iron condor and the other is a
// vertical on one side of it (rolling just the put or call side of a condor
// leaves a vertical-shaped trade on the open side).
func structurallyCompatible(a, b *Trade) bool {
	if a.StrategyType == b.StrategyType {
		return true
	}
	return ironCondorSide(a.StrategyType, b.StrategyType) || ironCondorSide(b.StrategyType, a.StrategyType)
}

func ironCondorSide(condor, other StrategyType) bool {
	if condor != StrategyIronCondor {
		return false
	}
	return other == StrategyVerticalCall || other == StrategyVerticalPut
}

// Link ties a closed trade to its replacement, assigning a shared roll chain
// ID (the closed trade's existing chain ID if it has one, else a fresh one).
// It rejects a self-link and a link from a trade already rolled to a
// different one; cycles running through other trades of a chain are not
// detected.
func Link(from, to *Trade) error {
	if to.RolledFromTradeID != nil && *to.RolledFromTradeID == from.ID {
		return nil // already linked
	}
	if from.RolledToTradeID != nil && *from.RolledToTradeID != to.ID {
		return &RollLinkConflict{FromTradeID: from.ID, ToTradeID: to.ID}
	}
	if wouldCycle(from, to) {
		return &RollLinkConflict{FromTradeID: from.ID, ToTradeID: to.ID}
	}

	chainID := from.RollChainID
	if chainID == nil {
		id := uuid.NewString()
		chainID = &id
	}

	toID := to.ID
	fromID := from.ID
	from.RolledToTradeID = &toID
	from.RollChainID = chainID
	to.RolledFromTradeID = &fromID
	to.RollChainID = chainID
	to.IsRoll = true
	return nil
}

// wouldCycle reports whether to is already an ancestor of from in the roll
// chain, which would make linking from->to a cycle. Since this package only
// ever sees the two trades being linked (not the full chain), it checks only
// the direct case of a trade linked to itself; no other layer checks for
// longer cycles.
func wouldCycle(from, to *Trade) bool {
	return to.ID == from.ID
}
