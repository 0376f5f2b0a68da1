package domain

import "time"

// VenueKind distinguishes order-book exchanges from on-chain pools.
type VenueKind string

const (
	VenueKindCEX VenueKind = "cex"
	VenueKindDEX VenueKind = "dex"
)

// Quote is the latest normalized top-of-book (or pool-implied) price for one
// instrument on one venue. Quotes are owned by the snapshot store and
// overwritten in place per (venue, instrument) key; consumers must not retain
// them beyond the evaluation pass that read them.
type Quote struct {
	VenueID      string
	VenueKind    VenueKind
	InstrumentID string // "BASE/QUOTE" for CEX, pool address for DEX
	Base         string
	Quote        string
	Bid          float64
	Ask          float64
	BidSize      float64
	AskSize      float64
	// Pool reserves, set only for DEX quotes.
	ReserveBase  float64
	ReserveQuote float64
	// TokenAddress is the base token's contract address, set only for DEX
	// quotes. Chain names the network the pool lives on.
	TokenAddress string
	Chain        string
	// FundingRateBps is the current perp funding rate, set only on perp quotes.
	FundingRateBps float64
	Timestamp      time.Time
	Stale          bool
}

// Mid returns the quote midpoint, or 0 when one side is missing.
func (q Quote) Mid() float64 {
	if q.Bid <= 0 || q.Ask <= 0 {
		return 0
	}
	return (q.Bid + q.Ask) / 2
}

// SpreadBps returns the bid-ask spread in basis points of the midpoint.
func (q Quote) SpreadBps() float64 {
	mid := q.Mid()
	if mid <= 0 {
		return 0
	}
	return (q.Ask - q.Bid) / mid * 10_000
}
