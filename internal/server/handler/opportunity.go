package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/arbiterhq/arbiter/internal/domain"
)

// CandidateSource exposes the candidates the engine admitted on recent
// evaluation passes.
type CandidateSource interface {
	RecentCandidates() []domain.Candidate
}

// OpportunityHandler serves recently detected arbitrage candidates.
type OpportunityHandler struct {
	source CandidateSource
	logger *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler.
func NewOpportunityHandler(source CandidateSource, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{source: source, logger: logHandler(logger, "opportunity")}
}

type legResponse struct {
	VenueID      string  `json:"venue_id"`
	VenueKind    string  `json:"venue_kind"`
	InstrumentID string  `json:"instrument_id"`
	Side         string  `json:"side"`
	Price        float64 `json:"price"`
	Qty          float64 `json:"qty"`
	Chain        string  `json:"chain,omitempty"`
}

type candidateResponse struct {
	ID             string        `json:"id"`
	Strategy       string        `json:"strategy"`
	Legs           []legResponse `json:"legs"`
	GrossProfitUSD float64       `json:"gross_profit_usd"`
	NetProfitUSD   float64       `json:"net_profit_usd"`
	FeesUSD        float64       `json:"fees_usd"`
	SlippageUSD    float64       `json:"slippage_usd"`
	GasUSD         float64       `json:"gas_usd,omitempty"`
	BridgeUSD      float64       `json:"bridge_usd,omitempty"`
	WinProbability float64       `json:"win_probability"`
	Confidence     float64       `json:"confidence"`
	CreatedAt      string        `json:"created_at"`
	ExpiresAt      string        `json:"expires_at"`
}

func candidateToResponse(c domain.Candidate) candidateResponse {
	legs := make([]legResponse, 0, len(c.Legs))
	for _, l := range c.Legs {
		legs = append(legs, legResponse{
			VenueID:      l.VenueID,
			VenueKind:    string(l.VenueKind),
			InstrumentID: l.InstrumentID,
			Side:         string(l.Side),
			Price:        l.Price,
			Qty:          l.Qty,
			Chain:        l.Chain,
		})
	}
	return candidateResponse{
		ID:             c.ID,
		Strategy:       string(c.Strategy),
		Legs:           legs,
		GrossProfitUSD: c.GrossProfitUSD,
		NetProfitUSD:   c.NetProfitUSD(),
		FeesUSD:        c.Cost.FeesUSD,
		SlippageUSD:    c.Cost.SlippageUSD,
		GasUSD:         c.Cost.GasUSD,
		BridgeUSD:      c.Cost.BridgeUSD,
		WinProbability: c.WinProbability,
		Confidence:     c.Confidence,
		CreatedAt:      c.CreatedAt.UTC().Format(time.RFC3339Nano),
		ExpiresAt:      c.ExpiresAt.UTC().Format(time.RFC3339Nano),
	}
}

// ListRecent returns candidates admitted on the most recent passes.
// GET /api/opportunities
func (h *OpportunityHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	cands := h.source.RecentCandidates()
	limit := parseLimit(r, 50)
	if len(cands) > limit {
		cands = cands[:limit]
	}

	out := make([]candidateResponse, 0, len(cands))
	for _, c := range cands {
		out = append(out, candidateToResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}
