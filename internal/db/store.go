package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/traderid/optjournal/internal/journal"
)

// Store persists the journal domain types. It contains no business logic of
// its own — Core owns the ledger/grouping semantics; Store only round-trips
// the resulting structs to SQLite, the same separation the teacher's
// trade_state.go keeps between state-machine callers and plain upsert SQL.
type Store struct {
	db *DB
}

// NewStore wraps an open DB for journal persistence.
func NewStore(d *DB) *Store {
	return &Store{db: d}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

// SaveExecution inserts or updates one normalized execution, keyed on its
// broker-assigned exec_id.
func (s *Store) SaveExecution(e journal.Execution) error {
	var expiration sql.NullString
	if !e.Expiration.IsZero() {
		expiration = sql.NullString{String: e.Expiration.UTC().Format(time.RFC3339), Valid: true}
	}
	var tradeID sql.NullInt64
	if e.TradeID != nil {
		tradeID = sql.NullInt64{Int64: *e.TradeID, Valid: true}
	}

	_, err := s.db.sql.Exec(`
		INSERT INTO executions (
			exec_id, order_id, perm_id, underlying, security_type, option_type, strike,
			expiration, multiplier, side, quantity, price, commission, net_amount,
			execution_time, account_id, exchange, currency,
			open_close_indicator, derived_open_close, trade_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(exec_id) DO UPDATE SET
			derived_open_close = excluded.derived_open_close,
			trade_id = excluded.trade_id,
			quantity = excluded.quantity,
			price = excluded.price
	`,
		e.ExecID, e.OrderID, e.PermID, e.Underlying, string(e.SecurityType), string(e.OptionType), e.Strike.String(),
		expiration, e.Multiplier, string(e.Side), e.Quantity.String(), e.Price.String(), e.Commission.String(), e.NetAmount.String(),
		e.ExecutionTime.UTC().Format(time.RFC3339), e.AccountID, e.Exchange, e.Currency,
		string(e.OpenCloseIndicator), string(e.DerivedOpenClose), tradeID,
	)
	return err
}

// ListExecutionsByUnderlying returns every execution recorded for a symbol,
// ordered by execution time.
func (s *Store) ListExecutionsByUnderlying(underlying string) ([]journal.Execution, error) {
	rows, err := s.db.sql.Query(`
		SELECT exec_id, order_id, perm_id, underlying, security_type, option_type, strike,
		       expiration, multiplier, side, quantity, price, commission, net_amount,
		       execution_time, account_id, exchange, currency,
		       open_close_indicator, derived_open_close, trade_id
		  FROM executions
		 WHERE underlying = ?
		 ORDER BY execution_time ASC
	`, underlying)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []journal.Execution
	for rows.Next() {
		var e journal.Execution
		var secType, optType, side, oc, doc string
		var strike, qty, price, comm, net string
		var expiration sql.NullString
		var execTime string
		var tradeID sql.NullInt64

		if err := rows.Scan(
			&e.ExecID, &e.OrderID, &e.PermID, &e.Underlying, &secType, &optType, &strike,
			&expiration, &e.Multiplier, &side, &qty, &price, &comm, &net,
			&execTime, &e.AccountID, &e.Exchange, &e.Currency,
			&oc, &doc, &tradeID,
		); err != nil {
			return nil, err
		}

		e.SecurityType = journal.SecurityType(secType)
		e.OptionType = journal.OptionType(optType)
		e.Side = journal.Side(side)
		e.OpenCloseIndicator = journal.OpenClose(oc)
		e.DerivedOpenClose = journal.OpenClose(doc)
		e.Strike = dec(strike)
		e.Quantity = dec(qty)
		e.Price = dec(price)
		e.Commission = dec(comm)
		e.NetAmount = dec(net)
		if expiration.Valid {
			if t, err := time.Parse(time.RFC3339, expiration.String); err == nil {
				e.Expiration = t
			}
		}
		if t, err := time.Parse(time.RFC3339, execTime); err == nil {
			e.ExecutionTime = t
		}
		if tradeID.Valid {
			id := tradeID.Int64
			e.TradeID = &id
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListAllExecutions returns every normalized execution across all
// underlyings, ordered by execution time — the full history reprocess needs
// to rebuild the ledger and trade grouping from scratch.
func (s *Store) ListAllExecutions() ([]journal.Execution, error) {
	rows, err := s.db.sql.Query(`
		SELECT exec_id, order_id, perm_id, underlying, security_type, option_type, strike,
		       expiration, multiplier, side, quantity, price, commission, net_amount,
		       execution_time, account_id, exchange, currency,
		       open_close_indicator, derived_open_close, trade_id
		  FROM executions
		 ORDER BY execution_time ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []journal.Execution
	for rows.Next() {
		var e journal.Execution
		var secType, optType, side, oc, doc string
		var strike, qty, price, comm, net string
		var expiration sql.NullString
		var execTime string
		var tradeID sql.NullInt64

		if err := rows.Scan(
			&e.ExecID, &e.OrderID, &e.PermID, &e.Underlying, &secType, &optType, &strike,
			&expiration, &e.Multiplier, &side, &qty, &price, &comm, &net,
			&execTime, &e.AccountID, &e.Exchange, &e.Currency,
			&oc, &doc, &tradeID,
		); err != nil {
			return nil, err
		}

		e.SecurityType = journal.SecurityType(secType)
		e.OptionType = journal.OptionType(optType)
		e.Side = journal.Side(side)
		e.OpenCloseIndicator = journal.OpenClose(oc)
		e.DerivedOpenClose = journal.OpenClose(doc)
		e.Strike = dec(strike)
		e.Quantity = dec(qty)
		e.Price = dec(price)
		e.Commission = dec(comm)
		e.NetAmount = dec(net)
		if expiration.Valid {
			if t, err := time.Parse(time.RFC3339, expiration.String); err == nil {
				e.Expiration = t
			}
		}
		if t, err := time.Parse(time.RFC3339, execTime); err == nil {
			e.ExecutionTime = t
		}
		if tradeID.Valid {
			id := tradeID.Int64
			e.TradeID = &id
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveTrade inserts or updates a trade's summary fields. It does not persist
// legs — those are recomputed from executions on load, per spec.md §4.3's
// "trades are a view over executions, not a source of truth" framing.
func (s *Store) SaveTrade(t *journal.Trade) error {
	closedAt := nullTime(t.ClosedAt)

	var rollChainID sql.NullString
	if t.RollChainID != nil {
		rollChainID = sql.NullString{String: *t.RollChainID, Valid: true}
	}
	var rolledFrom, rolledTo sql.NullInt64
	if t.RolledFromTradeID != nil {
		rolledFrom = sql.NullInt64{Int64: *t.RolledFromTradeID, Valid: true}
	}
	if t.RolledToTradeID != nil {
		rolledTo = sql.NullInt64{Int64: *t.RolledToTradeID, Valid: true}
	}

	if t.ID == 0 {
		res, err := s.db.sql.Exec(`
			INSERT INTO trades (
				underlying, strategy_type, status, opened_at, closed_at,
				num_legs, num_executions, opening_cost, realized_pnl, total_commission, note,
				roll_chain_id, rolled_from_trade_id, rolled_to_trade_id, is_roll,
				is_assignment, wash_sale_adjustment
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			t.Underlying, string(t.StrategyType), string(t.Status), t.OpenedAt.UTC().Format(time.RFC3339), closedAt,
			t.NumLegs, t.NumExecutions, t.OpeningCost.String(), t.RealizedPnL.String(), t.TotalCommission.String(), t.Note,
			rollChainID, rolledFrom, rolledTo, t.IsRoll, t.IsAssignment, t.WashSaleAdjustment.String(),
		)
		if err != nil {
			return fmt.Errorf("insert trade: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		t.ID = id
		return nil
	}

	_, err := s.db.sql.Exec(`
		UPDATE trades SET
			strategy_type = ?, status = ?, closed_at = ?,
			num_legs = ?, num_executions = ?, opening_cost = ?, realized_pnl = ?, total_commission = ?,
			roll_chain_id = ?, rolled_from_trade_id = ?, rolled_to_trade_id = ?, is_roll = ?
		WHERE id = ?
	`,
		string(t.StrategyType), string(t.Status), closedAt,
		t.NumLegs, t.NumExecutions, t.OpeningCost.String(), t.RealizedPnL.String(), t.TotalCommission.String(),
		rollChainID, rolledFrom, rolledTo, t.IsRoll, t.ID,
	)
	return err
}

// SaveStockSplit persists a registered split.
func (s *Store) SaveStockSplit(split journal.StockSplit) error {
	_, err := s.db.sql.Exec(`
		INSERT INTO stock_splits (symbol, split_date, ratio_from, ratio_to, description)
		VALUES (?, ?, ?, ?, ?)
	`, split.Symbol, split.SplitDate.UTC().Format(time.RFC3339), split.RatioFrom, split.RatioTo, split.Description)
	return err
}

// ListStockSplits returns every registered split, across all symbols.
func (s *Store) ListStockSplits() ([]journal.StockSplit, error) {
	rows, err := s.db.sql.Query(`SELECT id, symbol, split_date, ratio_from, ratio_to, description FROM stock_splits ORDER BY split_date ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []journal.StockSplit
	for rows.Next() {
		var sp journal.StockSplit
		var date string
		if err := rows.Scan(&sp.ID, &sp.Symbol, &date, &sp.RatioFrom, &sp.RatioTo, &sp.Description); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339, date); err == nil {
			sp.SplitDate = t
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

// SaveMarginSettings upserts per-underlying collateral percentages.
func (s *Store) SaveMarginSettings(m journal.MarginSettings) error {
	_, err := s.db.sql.Exec(`
		INSERT INTO margin_settings (underlying, naked_put_pct, naked_call_pct, spread_pct, iron_condor_pct, notes)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(underlying) DO UPDATE SET
			naked_put_pct = excluded.naked_put_pct,
			naked_call_pct = excluded.naked_call_pct,
			spread_pct = excluded.spread_pct,
			iron_condor_pct = excluded.iron_condor_pct,
			notes = excluded.notes
	`, m.Underlying, m.NakedPutPct.String(), m.NakedCallPct.String(), m.SpreadPct.String(), m.IronCondorPct.String(), m.Notes)
	return err
}

// MarginSettingsFor returns the stored settings for an underlying, or the
// spec default if none have been saved.
func (s *Store) MarginSettingsFor(underlying string) (journal.MarginSettings, error) {
	var m journal.MarginSettings
	var put, call, spread, iron string
	err := s.db.sql.QueryRow(`
		SELECT underlying, naked_put_pct, naked_call_pct, spread_pct, iron_condor_pct, notes
		  FROM margin_settings WHERE underlying = ?
	`, underlying).Scan(&m.Underlying, &put, &call, &spread, &iron, &m.Notes)
	if err == sql.ErrNoRows {
		return journal.DefaultMarginSettings(underlying), nil
	}
	if err != nil {
		return journal.MarginSettings{}, err
	}
	m.NakedPutPct = dec(put)
	m.NakedCallPct = dec(call)
	m.SpreadPct = dec(spread)
	m.IronCondorPct = dec(iron)
	return m, nil
}

// EnsureTag returns the ID of an existing tag by name, creating it if needed.
func (s *Store) EnsureTag(name string) (int64, error) {
	var id int64
	err := s.db.sql.QueryRow(`SELECT id FROM tags WHERE name = ?`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}
	res, err := s.db.sql.Exec(`INSERT INTO tags (name) VALUES (?)`, name)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// TagTrade links a trade to a tag by name, creating the tag if needed.
func (s *Store) TagTrade(tradeID int64, tagName string) error {
	tagID, err := s.EnsureTag(tagName)
	if err != nil {
		return err
	}
	_, err = s.db.sql.Exec(`INSERT OR IGNORE INTO trade_tags (trade_id, tag_id) VALUES (?, ?)`, tradeID, tagID)
	return err
}

// TagsForTrade returns every tag name attached to a trade.
func (s *Store) TagsForTrade(tradeID int64) ([]string, error) {
	rows, err := s.db.sql.Query(`
		SELECT t.name FROM tags t
		JOIN trade_tags tt ON tt.tag_id = t.id
		WHERE tt.trade_id = ?
		ORDER BY t.name
	`, tradeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}
