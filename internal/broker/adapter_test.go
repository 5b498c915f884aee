package broker

import (
	"context"
	"testing"
	"time"

	"github.com/traderid/optjournal/internal/journal"
)

func TestStubAdapter_FetchExecutionsFiltersByLookback(t *testing.T) {
	now := time.Now()
	fixture := []journal.RawFill{
		{ExecID: "old", ExecutionTime: now.AddDate(0, 0, -40)},
		{ExecID: "recent", ExecutionTime: now.AddDate(0, 0, -2)},
	}
	a := NewStubAdapter(fixture)

	fills, err := a.FetchExecutions(context.Background(), 30)
	if err != nil {
		t.Fatalf("FetchExecutions() error = %v", err)
	}
	if len(fills) != 1 || fills[0].ExecID != "recent" {
		t.Errorf("FetchExecutions() = %+v, want only the recent fill", fills)
	}
}
