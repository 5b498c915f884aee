package db

import (
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/traderid/optjournal/internal/journal"

	_ "modernc.org/sqlite"
)

// openTestDB opens an in-memory SQLite DB and runs migrations (for testing only).
func openTestDB(t *testing.T) *DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", ":memory:?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	d := &DB{sql: sqlDB}
	if err := d.migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return d
}

func TestMigrate_CreatesExpectedTables(t *testing.T) {
	d := openTestDB(t)
	defer d.Close()

	for _, table := range []string{
		"executions", "trades", "position_ledger", "stock_splits",
		"margin_settings", "trade_leg_greeks", "tags", "trade_tags",
	} {
		exists, err := d.tableExists(table)
		if err != nil {
			t.Fatalf("tableExists(%s): %v", table, err)
		}
		if !exists {
			t.Errorf("expected table %s to exist after migration", table)
		}
	}
}

func TestMigrate_IsIdempotent(t *testing.T) {
	d := openTestDB(t)
	defer d.Close()
	if err := d.migrate(); err != nil {
		t.Fatalf("re-running migrate() failed: %v", err)
	}
}

func TestStore_SaveAndListExecutions(t *testing.T) {
	d := openTestDB(t)
	defer d.Close()
	s := NewStore(d)

	exec := journal.Execution{
		ExecID:        "E1",
		Underlying:    "AAPL",
		SecurityType:  journal.SecurityStock,
		Side:          journal.SideBought,
		Quantity:      decimal.NewFromInt(100),
		Price:         decimal.NewFromInt(190),
		NetAmount:     decimal.NewFromInt(-19000),
		ExecutionTime: time.Now(),
		Currency:      "USD",
	}

	if err := s.SaveExecution(exec); err != nil {
		t.Fatalf("SaveExecution() error = %v", err)
	}

	got, err := s.ListExecutionsByUnderlying("AAPL")
	if err != nil {
		t.Fatalf("ListExecutionsByUnderlying() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 execution, got %d", len(got))
	}
	if got[0].ExecID != "E1" {
		t.Errorf("ExecID = %q, want E1", got[0].ExecID)
	}
}

func TestStore_MarginSettingsDefaultsWhenUnset(t *testing.T) {
	d := openTestDB(t)
	defer d.Close()
	s := NewStore(d)

	m, err := s.MarginSettingsFor("TSLA")
	if err != nil {
		t.Fatalf("MarginSettingsFor() error = %v", err)
	}
	if !m.NakedPutPct.Equal(decimal.NewFromInt(20)) {
		t.Errorf("NakedPutPct = %s, want default 20", m.NakedPutPct)
	}
}

func TestStore_TagTradeRoundTrip(t *testing.T) {
	d := openTestDB(t)
	defer d.Close()
	s := NewStore(d)

	trade := &journal.Trade{Underlying: "AAPL", Status: journal.StatusOpen, OpenedAt: time.Now()}
	if err := s.SaveTrade(trade); err != nil {
		t.Fatalf("SaveTrade() error = %v", err)
	}
	if err := s.TagTrade(trade.ID, "earnings-play"); err != nil {
		t.Fatalf("TagTrade() error = %v", err)
	}
	tags, err := s.TagsForTrade(trade.ID)
	if err != nil {
		t.Fatalf("TagsForTrade() error = %v", err)
	}
	if len(tags) != 1 || tags[0] != "earnings-play" {
		t.Errorf("tags = %v, want [earnings-play]", tags)
	}
}
