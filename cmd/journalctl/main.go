// Command journalctl runs the options-journal sync server and exposes a
// handful of maintenance subcommands (reprocess, integrity-check) for
// operating on the persisted trade history directly.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/traderid/optjournal/internal/api"
	"github.com/traderid/optjournal/internal/broker"
	"github.com/traderid/optjournal/internal/config"
	"github.com/traderid/optjournal/internal/db"
	"github.com/traderid/optjournal/internal/events"
	"github.com/traderid/optjournal/internal/journal"
	"github.com/traderid/optjournal/internal/logger"
	"github.com/traderid/optjournal/internal/marketdata"
)

var version = "dev"

func main() {
	cmd := "serve"
	if len(os.Args) > 1 && os.Args[1][0] != '-' {
		cmd = os.Args[1]
		os.Args = append(os.Args[:1], os.Args[2:]...)
	}

	switch cmd {
	case "serve":
		runServe()
	case "reprocess":
		runReprocess()
	case "integrity-check":
		runIntegrityCheck()
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q (want serve, reprocess, integrity-check)\n", cmd)
		os.Exit(1)
	}
}

func openStore(cfg *config.Config) (*db.DB, *db.Store) {
	os.Setenv("OPTJOURNAL_DB_PATH", cfg.DBPath)
	database, err := db.Open()
	if err != nil {
		logger.Error("DB", fmt.Sprintf("open failed: %v", err))
		os.Exit(1)
	}
	return database, db.NewStore(database)
}

func newCore(cfg *config.Config) *journal.Core {
	var quotes journal.QuoteSource
	var rates journal.RateSource
	if cfg.PolygonAPIKey != "" {
		quotes = marketdata.NewPolygonClient(cfg.PolygonAPIKey)
	}
	if cfg.FREDAPIKey != "" {
		rates = marketdata.NewFREDClient(cfg.FREDAPIKey)
	}
	return journal.NewCore(quotes, rates)
}

func runServe() {
	addr := flag.String("addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	flag.Parse()

	logger.Banner(version)

	cfg := config.Load()
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}

	database, store := openStore(cfg)
	defer database.Close()

	core := newCore(cfg)
	hydrateCore(core, store)

	bus := events.NewBus()
	adapter := broker.NewStubAdapter(nil)
	srv := api.New(core, store, bus, adapter)

	go runPeriodicSync(core, store, adapter, cfg.SyncInterval)

	logger.Server(cfg.HTTPAddr)
	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: srv}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		logger.Info("Server", "shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server", fmt.Sprintf("shutdown error: %v", err))
		}
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server", fmt.Sprintf("failed: %v", err))
		os.Exit(1)
	}
	logger.Info("Server", "stopped")
}

// hydrateCore replays every persisted execution through Core at startup so
// in-memory ledger/trade state matches the database before serving requests.
func hydrateCore(core *journal.Core, store *db.Store) {
	execs, err := store.ListAllExecutions()
	if err != nil {
		logger.Error("CORE", fmt.Sprintf("load history failed: %v", err))
		return
	}
	if len(execs) == 0 {
		return
	}
	if _, err := core.Grouper.ReprocessAll(core.Ledger, execs); err != nil {
		logger.Error("CORE", fmt.Sprintf("reprocess failed: %v", err))
		return
	}
	logger.Success("CORE", fmt.Sprintf("hydrated %d executions", len(execs)))
}

func runPeriodicSync(core *journal.Core, store *db.Store, adapter broker.Adapter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		if err := adapter.Connect(ctx); err != nil {
			logger.Warn("SYNC", fmt.Sprintf("broker connect failed: %v", err))
			cancel()
			continue
		}
		fills, err := adapter.FetchExecutions(ctx, 1)
		adapter.Close()
		if err != nil {
			logger.Warn("SYNC", fmt.Sprintf("fetch failed: %v", err))
			cancel()
			continue
		}
		stats := core.SyncFills(ctx, fills)
		persistExecutionsAndTrades(core, store)
		logger.Stats("sync", stats)
		cancel()
	}
}

func persistExecutionsAndTrades(core *journal.Core, store *db.Store) {
	for _, e := range core.Executions() {
		if err := store.SaveExecution(e); err != nil {
			logger.Warn("DB", fmt.Sprintf("save execution %s failed: %v", e.ExecID, err))
		}
	}
	for _, t := range core.Trades() {
		if err := store.SaveTrade(&t); err != nil {
			logger.Warn("DB", fmt.Sprintf("save trade %d failed: %v", t.ID, err))
		}
	}
}

func runReprocess() {
	flag.Parse()
	cfg := config.Load()
	database, store := openStore(cfg)
	defer database.Close()

	core := newCore(cfg)
	execs, err := store.ListAllExecutions()
	if err != nil {
		logger.Error("REPROCESS", err.Error())
		os.Exit(1)
	}

	trades, err := core.Grouper.ReprocessAll(core.Ledger, execs)
	if err != nil {
		logger.Error("REPROCESS", err.Error())
		os.Exit(1)
	}
	for _, t := range trades {
		// No quote fetch here; PMCC can't be confirmed without a spot price
		// or fetched Greeks, so a diagonal-shaped trade lands as CUSTOM until
		// a live sync runs analytics over it.
		t.StrategyType = journal.Classify(*t, journal.ClassifyContext{})
	}
	persistExecutionsAndTrades(core, store)

	rolled := 0
	for _, t := range trades {
		if t.IsRoll {
			rolled++
		}
	}
	logger.Success("REPROCESS", fmt.Sprintf("%d executions -> %d trades (%d rolls)", len(execs), len(trades), rolled))
}

// runIntegrityCheck runs the split-detection scan (spot.md §4.7) over every
// underlying's full execution history. Findings are advisory only — this
// never touches ledger or trade state, and a non-empty finding set is not a
// failure exit, just a reason to go look at a StockSplit entry.
func runIntegrityCheck() {
	flag.Parse()
	cfg := config.Load()
	database, store := openStore(cfg)
	defer database.Close()

	execs, err := store.ListAllExecutions()
	if err != nil {
		logger.Error("INTEGRITY", err.Error())
		os.Exit(1)
	}

	byUnderlying := make(map[string][]journal.Execution)
	for _, e := range execs {
		byUnderlying[e.Underlying] = append(byUnderlying[e.Underlying], e)
	}

	checker := journal.NewIntegrityChecker()
	findings := 0
	for underlying, u := range byUnderlying {
		for _, f := range checker.ScanUnderlying(underlying, u) {
			logger.Warn("INTEGRITY", f.Error())
			findings++
		}
	}

	if findings == 0 {
		logger.Success("INTEGRITY", fmt.Sprintf("clean across %d executions, %d underlyings", len(execs), len(byUnderlying)))
		return
	}
	logger.Warn("INTEGRITY", fmt.Sprintf("%d advisory split findings", findings))
}
