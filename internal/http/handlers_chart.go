package http

import (
	"net/http"
	"strconv"

	"fintrack/internal/charts"
	"fintrack/internal/ledger"
	applog "fintrack/internal/log"
)

// handleDailyChart renders the daily income/expense series as a PNG. Renders
// are cached per applied snapshot sequence: the image only changes when the
// snapshot does.
func (s *Server) handleDailyChart(w http.ResponseWriter, r *http.Request) {
	key := strconv.FormatUint(s.ledger.LastApplied(), 10)

	png, found := s.chartCache.Get(key)
	if !found {
		series := ledger.DailySeries(s.ledger.List())
		var err error
		png, err = charts.RenderDailySeries(series)
		if err != nil {
			applog.FromContext(r.Context()).ErrorContext(r.Context(), "Chart render failed", applog.FieldError, err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "chart render failed"})
			return
		}
		if png != nil {
			s.chartCache.Set(key, png)
		}
	}

	// Fewer than two dated points is not enough for a line chart
	if len(png) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(png)
}
