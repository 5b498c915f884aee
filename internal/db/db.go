package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/traderid/optjournal/internal/logger"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection.
type DB struct {
	sql *sql.DB
}

func dbPath() string {
	if env := os.Getenv("OPTJOURNAL_DB_PATH"); env != "" {
		return env
	}
	if wd, err := os.Getwd(); err == nil {
		return filepath.Join(wd, "journal.db")
	}
	exe, _ := os.Executable()
	return filepath.Join(filepath.Dir(exe), "journal.db")
}

// Open opens (or creates) the SQLite database and runs migrations.
func Open() (*DB, error) {
	path := dbPath()
	sqlDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	d := &DB{sql: sqlDB}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	logger.Success("DB", fmt.Sprintf("opened %s", path))
	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.sql.Close()
}

func (d *DB) migrate() error {
	version := 0
	d.sql.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)

	if version < 1 {
		_, err := d.sql.Exec(`
			CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

			CREATE TABLE IF NOT EXISTS executions (
				id                   INTEGER PRIMARY KEY AUTOINCREMENT,
				exec_id              TEXT NOT NULL UNIQUE,
				order_id             INTEGER NOT NULL DEFAULT 0,
				perm_id              INTEGER NOT NULL DEFAULT 0,
				underlying           TEXT NOT NULL,
				security_type        TEXT NOT NULL,
				option_type          TEXT NOT NULL DEFAULT '',
				strike               TEXT NOT NULL DEFAULT '0',
				expiration           TEXT,
				multiplier           INTEGER NOT NULL DEFAULT 1,
				side                 TEXT NOT NULL,
				quantity             TEXT NOT NULL,
				price                TEXT NOT NULL,
				commission           TEXT NOT NULL DEFAULT '0',
				net_amount           TEXT NOT NULL,
				execution_time       TEXT NOT NULL,
				account_id           TEXT NOT NULL DEFAULT '',
				open_close_indicator TEXT NOT NULL DEFAULT '',
				derived_open_close   TEXT NOT NULL DEFAULT '',
				trade_id             INTEGER REFERENCES trades(id)
			);
			CREATE INDEX IF NOT EXISTS idx_executions_underlying ON executions(underlying);
			CREATE INDEX IF NOT EXISTS idx_executions_trade ON executions(trade_id);
			CREATE INDEX IF NOT EXISTS idx_executions_time ON executions(execution_time);

			CREATE TABLE IF NOT EXISTS trades (
				id                    INTEGER PRIMARY KEY AUTOINCREMENT,
				underlying            TEXT NOT NULL,
				strategy_type         TEXT NOT NULL DEFAULT 'CUSTOM',
				status                TEXT NOT NULL DEFAULT 'OPEN',
				opened_at             TEXT NOT NULL,
				closed_at             TEXT,
				num_legs              INTEGER NOT NULL DEFAULT 0,
				num_executions        INTEGER NOT NULL DEFAULT 0,
				opening_cost          TEXT NOT NULL DEFAULT '0',
				realized_pnl          TEXT NOT NULL DEFAULT '0',
				total_commission      TEXT NOT NULL DEFAULT '0',
				note                  TEXT NOT NULL DEFAULT ''
			);
			CREATE INDEX IF NOT EXISTS idx_trades_underlying ON trades(underlying);
			CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);

			CREATE TABLE IF NOT EXISTS position_ledger (
				id           INTEGER PRIMARY KEY AUTOINCREMENT,
				underlying   TEXT NOT NULL,
				leg_key      TEXT NOT NULL,
				quantity     TEXT NOT NULL DEFAULT '0',
				avg_cost     TEXT NOT NULL DEFAULT '0',
				total_cost   TEXT NOT NULL DEFAULT '0',
				realized_pnl TEXT NOT NULL DEFAULT '0',
				status       TEXT NOT NULL DEFAULT 'OPEN',
				opened_at    TEXT NOT NULL,
				closed_at    TEXT,
				trade_id     INTEGER REFERENCES trades(id),
				UNIQUE(underlying, leg_key, opened_at)
			);
			CREATE INDEX IF NOT EXISTS idx_ledger_key ON position_ledger(underlying, leg_key);

			INSERT OR IGNORE INTO schema_version (version) VALUES (1);
		`)
		if err != nil {
			return fmt.Errorf("migration v1: %w", err)
		}
		logger.Info("DB", "applied migration v1")
	}

	if version < 2 {
		_, err := d.sql.Exec(`
			CREATE TABLE IF NOT EXISTS stock_splits (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				symbol      TEXT NOT NULL,
				split_date  TEXT NOT NULL,
				ratio_from  INTEGER NOT NULL,
				ratio_to    INTEGER NOT NULL,
				description TEXT NOT NULL DEFAULT ''
			);
			CREATE INDEX IF NOT EXISTS idx_splits_symbol ON stock_splits(symbol);

			CREATE TABLE IF NOT EXISTS margin_settings (
				id                  INTEGER PRIMARY KEY AUTOINCREMENT,
				underlying          TEXT NOT NULL UNIQUE,
				naked_put_pct       TEXT NOT NULL DEFAULT '20.00',
				naked_call_pct      TEXT NOT NULL DEFAULT '20.00',
				spread_pct          TEXT NOT NULL DEFAULT '100.00',
				iron_condor_pct     TEXT NOT NULL DEFAULT '100.00',
				notes               TEXT NOT NULL DEFAULT ''
			);

			INSERT OR IGNORE INTO schema_version (version) VALUES (2);
		`)
		if err != nil {
			return fmt.Errorf("migration v2: %w", err)
		}
		logger.Info("DB", "applied migration v2")
	}

	if version < 3 {
		_, err := d.sql.Exec(`
			CREATE TABLE IF NOT EXISTS trade_leg_greeks (
				id               INTEGER PRIMARY KEY AUTOINCREMENT,
				trade_id         INTEGER NOT NULL REFERENCES trades(id),
				leg_key          TEXT NOT NULL,
				leg_index        INTEGER NOT NULL DEFAULT 0,
				snapshot_type    TEXT NOT NULL DEFAULT 'OPEN',
				delta            REAL,
				gamma            REAL,
				theta            REAL,
				vega             REAL,
				rho              REAL,
				iv               REAL,
				underlying_price TEXT,
				option_price     TEXT,
				bid              TEXT,
				ask              TEXT,
				open_interest    INTEGER,
				volume           INTEGER,
				data_source      TEXT NOT NULL DEFAULT '',
				captured_at      TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_leg_greeks_trade ON trade_leg_greeks(trade_id);

			INSERT OR IGNORE INTO schema_version (version) VALUES (3);
		`)
		if err != nil {
			return fmt.Errorf("migration v3: %w", err)
		}
		logger.Info("DB", "applied migration v3")
	}

	if version < 4 {
		_, err := d.sql.Exec(`
			CREATE TABLE IF NOT EXISTS tags (
				id   INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL UNIQUE
			);

			CREATE TABLE IF NOT EXISTS trade_tags (
				trade_id INTEGER NOT NULL REFERENCES trades(id),
				tag_id   INTEGER NOT NULL REFERENCES tags(id),
				PRIMARY KEY (trade_id, tag_id)
			);

			INSERT OR IGNORE INTO schema_version (version) VALUES (4);
		`)
		if err != nil {
			return fmt.Errorf("migration v4: %w", err)
		}
		logger.Info("DB", "applied migration v4")
	}

	if version < 5 {
		// Roll-chain and assignment tracking, added once multi-leg roll
		// detection shipped; additive so existing rows default to "no roll".
		cols := []struct{ name, def string }{
			{"roll_chain_id", "TEXT"},
			{"rolled_from_trade_id", "INTEGER"},
			{"rolled_to_trade_id", "INTEGER"},
			{"is_roll", "INTEGER NOT NULL DEFAULT 0"},
			{"is_assignment", "INTEGER NOT NULL DEFAULT 0"},
			{"assigned_from_trade_id", "INTEGER"},
			{"wash_sale_adjustment", "TEXT NOT NULL DEFAULT '0'"},
		}
		for _, c := range cols {
			if err := d.ensureTableColumn("trades", c.name, c.def); err != nil {
				return fmt.Errorf("migration v5 (trades.%s): %w", c.name, err)
			}
		}
		if _, err := d.sql.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (5);`); err != nil {
			return fmt.Errorf("migration v5: %w", err)
		}
		logger.Info("DB", "applied migration v5")
	}

	if version < 6 {
		cols := []struct{ name, def string }{
			{"is_assignment", "INTEGER NOT NULL DEFAULT 0"},
			{"assigned_from_trade_id", "INTEGER"},
		}
		for _, c := range cols {
			if err := d.ensureTableColumn("executions", c.name, c.def); err != nil {
				return fmt.Errorf("migration v6 (executions.%s): %w", c.name, err)
			}
		}
		if _, err := d.sql.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (6);`); err != nil {
			return fmt.Errorf("migration v6: %w", err)
		}
		logger.Info("DB", "applied migration v6")
	}

	if version < 7 {
		cols := []struct{ name, def string }{
			{"exchange", "TEXT NOT NULL DEFAULT ''"},
			{"currency", "TEXT NOT NULL DEFAULT 'USD'"},
		}
		for _, c := range cols {
			if err := d.ensureTableColumn("executions", c.name, c.def); err != nil {
				return fmt.Errorf("migration v7 (executions.%s): %w", c.name, err)
			}
		}
		if _, err := d.sql.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (7);`); err != nil {
			return fmt.Errorf("migration v7: %w", err)
		}
		logger.Info("DB", "applied migration v7")
	}

	return nil
}

func (d *DB) tableExists(tableName string) (bool, error) {
	var name string
	err := d.sql.QueryRow(
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ? LIMIT 1`,
		tableName,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *DB) ensureTableColumn(tableName, columnName, columnDef string) error {
	rows, err := d.sql.Query("PRAGMA table_info(" + tableName + ")")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, typ string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return err
		}
		if strings.EqualFold(name, columnName) {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = d.sql.Exec("ALTER TABLE " + tableName + " ADD COLUMN " + columnName + " " + columnDef)
	return err
}

// SqlDB returns the underlying *sql.DB for use by other packages.
func (d *DB) SqlDB() *sql.DB {
	return d.sql
}
