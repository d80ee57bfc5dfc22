package http

import (
	"net/http"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/worker"
)

type ledgerResponse struct {
	Records   []core.Transaction `json:"records"`
	IsLoading bool               `json:"is_loading"`
	SyncState string             `json:"sync_state"`
	SyncError string             `json:"sync_error,omitempty"`
}

type summaryResponse struct {
	Balance         float64 `json:"balance"`
	MonthlyIncome   float64 `json:"monthly_income"`
	MonthlyExpenses float64 `json:"monthly_expenses"`
	Count           int     `json:"count"`
	IsLoading       bool    `json:"is_loading"`
}

type seriesResponse struct {
	Series []ledger.DayBucket `json:"series"`
}

func (s *Server) syncStatus() (string, string) {
	if s.sync == nil {
		return string(worker.StateIdle), ""
	}
	state, err := s.sync.State()
	if err != nil {
		return string(state), err.Error()
	}
	return string(state), ""
}

// handleLedger returns the current snapshot together with the loading flag
// and the sync error, if any. The snapshot is served as-is: last good data
// stays visible while a reconciliation is in flight or has failed.
func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	records := s.ledger.List()
	state, syncErr := s.syncStatus()

	writeJSON(w, http.StatusOK, ledgerResponse{
		Records:   records,
		IsLoading: s.ledger.Loading(),
		SyncState: state,
		SyncError: syncErr,
	})
}

// handleSummary returns the derived aggregates for the current snapshot.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	records := s.ledger.List()

	writeJSON(w, http.StatusOK, summaryResponse{
		Balance:         ledger.TotalBalance(records),
		MonthlyIncome:   ledger.MonthlyIncome(records),
		MonthlyExpenses: ledger.MonthlyExpenses(records),
		Count:           len(records),
		IsLoading:       s.ledger.Loading(),
	})
}

// handleSeries returns the per-day income/expense buckets, date ascending.
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	series := ledger.DailySeries(s.ledger.List())
	if series == nil {
		series = []ledger.DayBucket{}
	}
	writeJSON(w, http.StatusOK, seriesResponse{Series: series})
}

// handleRefresh schedules one reconciliation, coalescing with any pending.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.sync != nil {
		s.sync.Refresh()
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}
