// Package broker defines the interface Core uses to pull raw fills from an
// external execution source, plus a stub implementation. A real IBKR/Flex
// Query adapter is out of scope here (journaling and reconstruction are the
// point, not broker connectivity) — the interface exists so Core never
// depends on a concrete transport.
package broker

import (
	"context"
	"time"

	"github.com/traderid/optjournal/internal/journal"
)

// Adapter is the interface any broker connectivity layer must satisfy to
// feed Core.SyncFills. FetchExecutions mirrors the original service's
// fetch_executions(days_back=...) calling convention.
type Adapter interface {
	Connect(ctx context.Context) error
	FetchExecutions(ctx context.Context, daysBack int) ([]journal.RawFill, error)
	Close() error
}

// StubAdapter is a no-op Adapter for local development and tests: it never
// reaches a real broker, and FetchExecutions returns the fixture fills it
// was constructed with that fall inside the requested lookback window.
type StubAdapter struct {
	Fixture []journal.RawFill
}

// NewStubAdapter returns an Adapter that replays a fixed set of fills.
func NewStubAdapter(fixture []journal.RawFill) *StubAdapter {
	return &StubAdapter{Fixture: fixture}
}

func (s *StubAdapter) Connect(ctx context.Context) error { return nil }

// FetchExecutions returns every fixture fill whose execution time falls
// within the requested lookback window.
func (s *StubAdapter) FetchExecutions(ctx context.Context, daysBack int) ([]journal.RawFill, error) {
	cutoff := time.Now().AddDate(0, 0, -daysBack)
	out := make([]journal.RawFill, 0, len(s.Fixture))
	for _, f := range s.Fixture {
		if f.ExecutionTime.After(cutoff) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *StubAdapter) Close() error { return nil }
