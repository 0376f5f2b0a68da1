package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/arbiterhq/arbiter/internal/domain"
)

// ExecutionHandler serves the warm archive of sealed execution records.
type ExecutionHandler struct {
	store  domain.ExecutionStore // nil when the warm archive is disabled
	logger *slog.Logger
}

// NewExecutionHandler creates an ExecutionHandler.
func NewExecutionHandler(store domain.ExecutionStore, logger *slog.Logger) *ExecutionHandler {
	return &ExecutionHandler{store: store, logger: logHandler(logger, "execution")}
}

type legFillResponse struct {
	VenueID      string  `json:"venue_id"`
	InstrumentID string  `json:"instrument_id"`
	Side         string  `json:"side"`
	Status       string  `json:"status"`
	Price        float64 `json:"price"`
	Qty          float64 `json:"qty"`
	FilledPrice  float64 `json:"filled_price,omitempty"`
	FilledQty    float64 `json:"filled_qty,omitempty"`
	SlippageBps  float64 `json:"slippage_bps,omitempty"`
	VenueReason  string  `json:"venue_reason,omitempty"`
	UnwindStatus string  `json:"unwind_status,omitempty"`
	UnwindPnLUSD float64 `json:"unwind_pnl_usd,omitempty"`
}

type executionResponse struct {
	ID             string            `json:"id"`
	CandidateID    string            `json:"candidate_id"`
	Strategy       string            `json:"strategy"`
	State          string            `json:"state"`
	SizeUSD        float64           `json:"size_usd"`
	ExpectedPnLUSD float64           `json:"expected_pnl_usd"`
	RealizedPnLUSD float64           `json:"realized_pnl_usd"`
	Unwind         string            `json:"unwind,omitempty"`
	Legs           []legFillResponse `json:"legs,omitempty"`
	StartedAt      string            `json:"started_at"`
	SealedAt       string            `json:"sealed_at"`
}

func executionToResponse(rec domain.ExecutionRecord) executionResponse {
	resp := executionResponse{
		ID:             rec.ID,
		CandidateID:    rec.CandidateID,
		Strategy:       string(rec.Strategy),
		State:          string(rec.State),
		SizeUSD:        rec.SizeUSD,
		ExpectedPnLUSD: rec.ExpectedPnLUSD,
		RealizedPnLUSD: rec.RealizedPnLUSD,
		Unwind:         string(rec.Unwind),
		StartedAt:      rec.StartedAt.UTC().Format(time.RFC3339Nano),
		SealedAt:       rec.SealedAt.UTC().Format(time.RFC3339Nano),
	}
	for _, lf := range rec.Legs {
		resp.Legs = append(resp.Legs, legFillResponse{
			VenueID:      lf.Leg.VenueID,
			InstrumentID: lf.Leg.InstrumentID,
			Side:         string(lf.Leg.Side),
			Status:       string(lf.Status),
			Price:        lf.Leg.Price,
			Qty:          lf.Leg.Qty,
			FilledPrice:  lf.FilledPrice,
			FilledQty:    lf.FilledQty,
			SlippageBps:  lf.SlippageBps,
			VenueReason:  lf.VenueReason,
			UnwindStatus: string(lf.UnwindStatus),
			UnwindPnLUSD: lf.UnwindPnLUSD,
		})
	}
	return resp
}

// ListRecent returns recently sealed executions, newest first.
// GET /api/executions
func (h *ExecutionHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusOK, []executionResponse{})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	recs, err := h.store.ListRecent(ctx, parseLimit(r, 50))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list executions failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}

	out := make([]executionResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, executionToResponse(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

// Get returns one execution record including its legs.
// GET /api/executions/{id}
func (h *ExecutionHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotFound, "execution not found")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rec, err := h.store.Get(ctx, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "execution not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get execution failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load execution")
		return
	}

	writeJSON(w, http.StatusOK, executionToResponse(rec))
}
