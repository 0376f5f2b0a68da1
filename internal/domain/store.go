package domain

import (
	"context"
	"time"
)

// ExecutionStore persists sealed execution records (warm archive). Ownership
// of terminal records passes to the reporting side; the core only writes.
type ExecutionStore interface {
	Create(ctx context.Context, rec ExecutionRecord) error
	Get(ctx context.Context, id string) (ExecutionRecord, error)
	ListRecent(ctx context.Context, limit int) ([]ExecutionRecord, error)
	// ListSealedBefore returns sealed records older than cutoff, for archival.
	ListSealedBefore(ctx context.Context, cutoff time.Time, limit int) ([]ExecutionRecord, error)
	DeleteSealedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CycleStore persists completed cycle rows for reporting.
type CycleStore interface {
	Create(ctx context.Context, state CycleState) error
	ListRecent(ctx context.Context, limit int) ([]CycleState, error)
}

// BlobWriter writes a named object to cold storage.
type BlobWriter interface {
	Write(ctx context.Context, key string, data []byte, contentType string) error
}

// Archiver exports aged execution records to cold storage and prunes the
// warm archive. Triggered at cycle rollover.
type Archiver interface {
	ArchiveBefore(ctx context.Context, cutoff time.Time) (archived int, err error)
}
