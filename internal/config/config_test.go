package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"OPTJOURNAL_DB_PATH", "IBKR_HOST", "IBKR_PORT", "SYNC_INTERVAL",
		"OPEN_WINDOW", "ROLL_WINDOW", "DEFAULT_MARGIN_PCT", "HTTP_ADDR",
	} {
		os.Unsetenv(key)
	}

	c := Load()
	if c.DBPath != "journal.db" {
		t.Errorf("DBPath = %q, want journal.db", c.DBPath)
	}
	if c.BrokerPort != 7497 {
		t.Errorf("BrokerPort = %d, want 7497", c.BrokerPort)
	}
	if c.SyncInterval != 5*time.Minute {
		t.Errorf("SyncInterval = %v, want 5m", c.SyncInterval)
	}
	if c.RollWindow != 10*time.Minute {
		t.Errorf("RollWindow = %v, want 10m", c.RollWindow)
	}
	if c.DefaultMarginPct != 20.0 {
		t.Errorf("DefaultMarginPct = %v, want 20.0", c.DefaultMarginPct)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	os.Setenv("IBKR_PORT", "4001")
	defer os.Unsetenv("IBKR_PORT")

	c := Load()
	if c.BrokerPort != 4001 {
		t.Errorf("BrokerPort = %d, want 4001 from env override", c.BrokerPort)
	}
}
