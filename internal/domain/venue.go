package domain

import "context"

// LegResult is the venue's answer to an execution request.
type LegResult struct {
	Filled      bool
	FilledPrice float64
	FilledQty   float64
	VenueReason string // populated on rejection
}

// VenueExecutor is the execution capability a venue connector exposes to the
// coordinator. Implementations own connectivity, signing and rate limiting;
// the core only sequences calls and interprets results. ExecuteLeg must
// respect ctx cancellation; a deadline exceeded is treated as LegTimeout and
// must never be silently retried by the connector (retry-after-unknown-fill
// risks double execution).
type VenueExecutor interface {
	VenueID() string
	ExecuteLeg(ctx context.Context, leg Leg) (LegResult, error)
	// ClosePosition market-closes a previously filled leg during unwind and
	// returns the closing fill.
	ClosePosition(ctx context.Context, leg Leg, filledQty float64) (LegResult, error)
}

// TokenReport is the on-chain safety profile of a DEX token contract,
// supplied by a chain-data collaborator and consumed by the rug-pull screen.
type TokenReport struct {
	Address            string
	OwnershipRenounced bool
	LiquidityLockedUSD float64
	MintableUncapped   bool
	HoneypotSuspected  bool
	// TopHolderPct is the supply fraction held by the largest non-pool holder.
	TopHolderPct float64
	AgeDays      int
	HolderCount  int
}

// TokenInspector fetches safety reports for token contracts.
type TokenInspector interface {
	TokenReport(ctx context.Context, chain, address string) (TokenReport, error)
}
