package domain

import (
	"errors"
	"fmt"
)

var (
	ErrStaleQuote       = errors.New("quote is stale")
	ErrRejectedByFilter = errors.New("below win-rate or confidence threshold")
	ErrSafetyRejected   = errors.New("rug-pull screen hit")
	ErrNegativeEdge     = errors.New("non-positive kelly size")
	ErrLegTimeout       = errors.New("leg timed out")
	ErrPartialExposure  = errors.New("partial fill, unwind required")
	ErrUnwindFailed     = errors.New("unwind failed, residual exposure")
	ErrAlreadyReleased  = errors.New("reservation already released")
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
)

// RiskRejectionError is returned by the risk manager's check-and-reserve gate
// with the specific cause, never a generic failure.
type RiskRejectionError struct {
	Reason RejectionReason
	Detail string
}

func (e *RiskRejectionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("risk rejected: %s", e.Reason)
	}
	return fmt.Sprintf("risk rejected: %s: %s", e.Reason, e.Detail)
}

// RiskRejection extracts the rejection reason from an error chain, if any.
func RiskRejection(err error) (RejectionReason, bool) {
	var rr *RiskRejectionError
	if errors.As(err, &rr) {
		return rr.Reason, true
	}
	return "", false
}

// LegFailedError carries the venue-supplied reason for a failed leg.
type LegFailedError struct {
	VenueID     string
	VenueReason string
}

func (e *LegFailedError) Error() string {
	return fmt.Sprintf("leg failed on %s: %s", e.VenueID, e.VenueReason)
}
