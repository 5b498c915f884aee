// Package api exposes journal.Core over HTTP: a thin chi router wrapping
// the core's read operations and the sync entrypoint, plus an SSE stream
// fed by internal/events.Bus so clients don't have to poll for trade
// updates.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/traderid/optjournal/internal/broker"
	"github.com/traderid/optjournal/internal/db"
	"github.com/traderid/optjournal/internal/events"
	"github.com/traderid/optjournal/internal/journal"
	"github.com/traderid/optjournal/internal/logger"
)

// Server wires the domain Core, the persistence Store, a broker Adapter for
// on-demand syncs, and the event bus into an http.Handler.
type Server struct {
	core   *journal.Core
	store  *db.Store
	bus    *events.Bus
	broker broker.Adapter
	mux    *chi.Mux
}

// New builds a Server and registers all routes.
func New(core *journal.Core, store *db.Store, bus *events.Bus, adapter broker.Adapter) *Server {
	s := &Server{core: core, store: store, bus: bus, broker: adapter}
	s.mux = chi.NewRouter()
	s.mux.Use(middleware.Recoverer)
	s.mux.Use(requestLogger)
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.Get("/api/status", s.handleStatus)

	s.mux.Get("/api/trades", s.handleListTrades)
	s.mux.Get("/api/trades/{id}", s.handleGetTrade)

	s.mux.Get("/api/positions", s.handleListPositions)

	s.mux.Get("/api/executions", s.handleListExecutions)
	s.mux.Post("/api/executions/sync", s.handleSyncExecutions)

	s.mux.Get("/api/splits/{underlying}", s.handleListSplits)
	s.mux.Post("/api/splits", s.handleRegisterSplit)

	s.mux.Get("/api/margin/{underlying}", s.handleGetMarginSettings)
	s.mux.Put("/api/margin/{underlying}", s.handleSetMarginSettings)

	s.mux.Post("/api/trades/{id}/tags", s.handleTagTrade)
	s.mux.Get("/api/trades/{id}/tags", s.handleListTradeTags)

	s.mux.Get("/api/events/stream", s.handleEventStream)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Info("API", r.Method+" "+r.URL.Path+" "+time.Since(start).String())
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"trades":     len(s.core.Trades()),
		"executions": len(s.core.Executions()),
	})
}

// handleSyncExecutions pulls fresh fills from the broker adapter, feeds them
// through Core, and publishes the resulting trade deltas on the event bus.
func (s *Server) handleSyncExecutions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	daysBack := 30
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			daysBack = n
		}
	}

	if err := s.broker.Connect(ctx); err != nil {
		writeError(w, http.StatusBadGateway, "broker connect: "+err.Error())
		return
	}
	defer s.broker.Close()

	fills, err := s.broker.FetchExecutions(ctx, daysBack)
	if err != nil {
		writeError(w, http.StatusBadGateway, "fetch executions: "+err.Error())
		return
	}

	before := tradeStatusSnapshot(s.core.Trades())
	stats := s.core.SyncFills(ctx, fills)
	s.publishTradeDeltas(before)

	writeJSON(w, stats)
}

func (s *Server) publishTradeDeltas(before map[int64]journal.PositionStatus) {
	for _, t := range s.core.Trades() {
		prevStatus, existed := before[t.ID]
		switch {
		case !existed:
			s.bus.Publish(events.Event{Type: events.TradeCreated, TradeID: t.ID})
		case t.Status == journal.StatusClosed && prevStatus != journal.StatusClosed:
			s.bus.Publish(events.Event{Type: events.TradeClosed, TradeID: t.ID})
		case prevStatus != t.Status:
			s.bus.Publish(events.Event{Type: events.TradeUpdated, TradeID: t.ID})
		}
		if t.IsRoll && t.RollChainID != nil {
			s.bus.Publish(events.Event{Type: events.RollLinked, TradeID: t.ID, Detail: *t.RollChainID})
		}
	}
}

func tradeStatusSnapshot(trades []journal.Trade) map[int64]journal.PositionStatus {
	m := make(map[int64]journal.PositionStatus, len(trades))
	for _, t := range trades {
		m[t.ID] = t.Status
	}
	return m
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
