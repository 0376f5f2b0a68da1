package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/arbiterhq/arbiter/internal/domain"
)

// RiskController is the slice of the risk manager the operator API needs.
type RiskController interface {
	State() domain.RiskState
	Halt()
	ManualReset()
}

// RiskHandler serves risk state and the manual breaker controls.
type RiskHandler struct {
	risk   RiskController
	logger *slog.Logger
}

// NewRiskHandler creates a RiskHandler.
func NewRiskHandler(risk RiskController, logger *slog.Logger) *RiskHandler {
	return &RiskHandler{risk: risk, logger: logHandler(logger, "risk")}
}

type riskStateResponse struct {
	Breaker           string  `json:"breaker"`
	TripCause         string  `json:"trip_cause,omitempty"`
	TrippedAt         string  `json:"tripped_at,omitempty"`
	DayPnLUSD         float64 `json:"day_pnl_usd"`
	ConsecutiveLosses int     `json:"consecutive_losses"`
	Volatility        float64 `json:"volatility"`
	Correlation       float64 `json:"correlation"`
	ReservedUSD       float64 `json:"reserved_usd"`
	CapitalUSD        float64 `json:"capital_usd"`
	PeakCapitalUSD    float64 `json:"peak_capital_usd"`
	DrawdownPct       float64 `json:"drawdown_pct"`
	OpenReservations  int     `json:"open_reservations"`
}

func riskStateToResponse(st domain.RiskState) riskStateResponse {
	resp := riskStateResponse{
		Breaker:           string(st.Breaker),
		TripCause:         string(st.TripCause),
		DayPnLUSD:         st.DayPnLUSD,
		ConsecutiveLosses: st.ConsecutiveLosses,
		Volatility:        st.Volatility,
		Correlation:       st.Correlation,
		ReservedUSD:       st.ReservedUSD,
		CapitalUSD:        st.CapitalUSD,
		PeakCapitalUSD:    st.PeakCapitalUSD,
		DrawdownPct:       st.DrawdownPct(),
		OpenReservations:  st.OpenReservations,
	}
	if !st.TrippedAt.IsZero() {
		resp.TrippedAt = st.TrippedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// GetState returns the current risk accounting snapshot.
// GET /api/risk
func (h *RiskHandler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, riskStateToResponse(h.risk.State()))
}

// Halt trips the circuit breaker manually. All subsequent candidates are
// rejected until a reset.
// POST /api/control/halt
func (h *RiskHandler) Halt(w http.ResponseWriter, r *http.Request) {
	h.risk.Halt()
	h.logger.WarnContext(r.Context(), "breaker halted by operator",
		slog.String("remote_addr", r.RemoteAddr),
	)
	writeJSON(w, http.StatusOK, riskStateToResponse(h.risk.State()))
}

// Reset clears a tripped breaker. This and cycle rollover are the only two
// paths out of the tripped state.
// POST /api/control/reset
func (h *RiskHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.risk.ManualReset()
	h.logger.WarnContext(r.Context(), "breaker reset by operator",
		slog.String("remote_addr", r.RemoteAddr),
	)
	writeJSON(w, http.StatusOK, riskStateToResponse(h.risk.State()))
}
