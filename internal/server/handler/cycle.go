package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/arbiterhq/arbiter/internal/domain"
)

// CycleViewer exposes the current compounding-cycle state.
type CycleViewer interface {
	State() domain.CycleState
}

// CycleHandler serves the current cycle and completed-cycle history.
type CycleHandler struct {
	cycle  CycleViewer
	store  domain.CycleStore // nil when the warm archive is disabled
	logger *slog.Logger
}

// NewCycleHandler creates a CycleHandler.
func NewCycleHandler(cycle CycleViewer, store domain.CycleStore, logger *slog.Logger) *CycleHandler {
	return &CycleHandler{cycle: cycle, store: store, logger: logHandler(logger, "cycle")}
}

type cycleResponse struct {
	Number              int     `json:"number"`
	StartedAt           string  `json:"started_at"`
	EndsAt              string  `json:"ends_at"`
	CapitalBaseUSD      float64 `json:"capital_base_usd"`
	CumulativeProfitUSD float64 `json:"cumulative_profit_usd"`
	DailyTargetUSD      float64 `json:"daily_target_usd"`
	SettledTrades       int     `json:"settled_trades"`
	ProgressPct         float64 `json:"progress_pct"`
}

func cycleToResponse(st domain.CycleState) cycleResponse {
	return cycleResponse{
		Number:              st.Number,
		StartedAt:           st.StartedAt.UTC().Format(time.RFC3339),
		EndsAt:              st.EndsAt().UTC().Format(time.RFC3339),
		CapitalBaseUSD:      st.CapitalBaseUSD,
		CumulativeProfitUSD: st.CumulativeProfitUSD,
		DailyTargetUSD:      st.DailyTargetUSD,
		SettledTrades:       st.SettledTrades,
		ProgressPct:         st.ProgressPct(),
	}
}

// GetCurrent returns the active cycle.
// GET /api/cycle
func (h *CycleHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, cycleToResponse(h.cycle.State()))
}

// ListHistory returns completed cycles, newest first.
// GET /api/cycle/history
func (h *CycleHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusOK, []cycleResponse{})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	cycles, err := h.store.ListRecent(ctx, parseLimit(r, 20))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list cycles failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list cycles")
		return
	}

	out := make([]cycleResponse, 0, len(cycles))
	for _, c := range cycles {
		out = append(out, cycleToResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}
