package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/traderid/optjournal/internal/journal"
)

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	underlying := r.URL.Query().Get("underlying")
	trades := s.core.Trades()
	if underlying == "" {
		writeJSON(w, trades)
		return
	}
	filtered := make([]journal.Trade, 0, len(trades))
	for _, t := range trades {
		if t.Underlying == underlying {
			filtered = append(filtered, t)
		}
	}
	writeJSON(w, filtered)
}

func (s *Server) handleGetTrade(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid trade id")
		return
	}
	for _, t := range s.core.Trades() {
		if t.ID == id {
			writeJSON(w, t)
			return
		}
	}
	writeError(w, http.StatusNotFound, "trade not found")
}

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	underlying := r.URL.Query().Get("underlying")
	entries := s.core.Ledger.Entries()
	if underlying == "" {
		writeJSON(w, entries)
		return
	}
	filtered := make([]journal.LedgerEntry, 0, len(entries))
	for _, e := range entries {
		if e.Underlying == underlying {
			filtered = append(filtered, e)
		}
	}
	writeJSON(w, filtered)
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	underlying := r.URL.Query().Get("underlying")
	execs := s.core.Executions()
	if underlying == "" {
		writeJSON(w, execs)
		return
	}
	filtered := make([]journal.Execution, 0, len(execs))
	for _, e := range execs {
		if e.Underlying == underlying {
			filtered = append(filtered, e)
		}
	}
	writeJSON(w, filtered)
}

func (s *Server) handleListSplits(w http.ResponseWriter, r *http.Request) {
	underlying := chi.URLParam(r, "underlying")
	writeJSON(w, s.core.Splits.SplitsFor(underlying))
}

type registerSplitRequest struct {
	Symbol    string `json:"symbol"`
	Date      string `json:"date"` // RFC3339 or YYYY-MM-DD
	RatioFrom int    `json:"ratio_from"`
	RatioTo   int    `json:"ratio_to"`
}

// handleRegisterSplit registers a new stock split and triggers Core to
// reprocess every affected execution's cost basis, since a split changes
// quantity/price retroactively for fills before the split date.
func (s *Server) handleRegisterSplit(w http.ResponseWriter, r *http.Request) {
	var req registerSplitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Symbol == "" || req.RatioFrom <= 0 || req.RatioTo <= 0 {
		writeError(w, http.StatusBadRequest, "symbol, ratio_from, and ratio_to are required")
		return
	}
	date, err := parseFlexibleDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date: "+err.Error())
		return
	}

	split, err := s.core.RegisterSplit(req.Symbol, date, req.RatioFrom, req.RatioTo)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := s.store.SaveStockSplit(split); err != nil {
		writeError(w, http.StatusInternalServerError, "persist split: "+err.Error())
		return
	}
	writeJSONStatus(w, http.StatusCreated, split)
}

func parseFlexibleDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

func (s *Server) handleGetMarginSettings(w http.ResponseWriter, r *http.Request) {
	underlying := chi.URLParam(r, "underlying")
	settings, err := s.store.MarginSettingsFor(underlying)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, settings)
}

func (s *Server) handleSetMarginSettings(w http.ResponseWriter, r *http.Request) {
	underlying := chi.URLParam(r, "underlying")
	var settings journal.MarginSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	settings.Underlying = underlying
	if err := s.store.SaveMarginSettings(settings); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, settings)
}

type tagRequest struct {
	Tag string `json:"tag"`
}

func (s *Server) handleTagTrade(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid trade id")
		return
	}
	var req tagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Tag == "" {
		writeError(w, http.StatusBadRequest, "tag is required")
		return
	}
	if err := s.store.TagTrade(id, req.Tag); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSONStatus(w, http.StatusCreated, map[string]string{"tag": req.Tag})
}

func (s *Server) handleListTradeTags(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid trade id")
		return
	}
	tags, err := s.store.TagsForTrade(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, tags)
}
