package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/arbiterhq/arbiter/internal/domain"
)

// exportBatchSize bounds how many execution rows one export pass pulls from
// the warm archive.
const exportBatchSize = 1000

// Archiver implements domain.Archiver by exporting aged execution records
// from the warm archive to cold storage as JSONL, then pruning the exported
// rows.
//
// Deletion only happens after the upload succeeds, so a failed export leaves
// the warm archive intact and the next rollover retries the same window.
type Archiver struct {
	writer     domain.BlobWriter
	executions domain.ExecutionStore
	logger     *slog.Logger
}

// NewArchiver creates a new Archiver.
func NewArchiver(writer domain.BlobWriter, executions domain.ExecutionStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:     writer,
		executions: executions,
		logger:     logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveBefore exports all execution records sealed before cutoff to cold
// storage at archive/executions/YYYY/MM/DD-<unix>.jsonl and prunes them from
// the warm archive. Returns the number of records archived.
func (a *Archiver) ArchiveBefore(ctx context.Context, cutoff time.Time) (int, error) {
	total := 0
	for {
		recs, err := a.executions.ListSealedBefore(ctx, cutoff, exportBatchSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive query: %w", err)
		}
		if len(recs) == 0 {
			return total, nil
		}

		buf, err := marshalJSONL(recs)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive marshal: %w", err)
		}

		key := archiveKey(cutoff, total)
		if err := a.writer.Write(ctx, key, buf, "application/x-ndjson"); err != nil {
			return total, fmt.Errorf("s3blob: archive upload: %w", err)
		}

		batchCutoff := recs[len(recs)-1].SealedAt.Add(time.Nanosecond)
		if batchCutoff.After(cutoff) {
			batchCutoff = cutoff
		}
		deleted, err := a.executions.DeleteSealedBefore(ctx, batchCutoff)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive prune: %w", err)
		}

		total += len(recs)
		a.logger.Info("archived execution batch",
			slog.String("key", key),
			slog.Int("records", len(recs)),
			slog.Int64("pruned", deleted),
		)

		if len(recs) < exportBatchSize {
			return total, nil
		}
	}
}

// archiveKey builds the cold-storage key for an export batch, partitioned by
// the cutoff date. The offset keeps multi-batch exports from colliding.
func archiveKey(cutoff time.Time, offset int) string {
	return fmt.Sprintf("archive/executions/%s-%d-%d.jsonl",
		cutoff.UTC().Format("2006/01/02"), cutoff.Unix(), offset)
}

// marshalJSONL serialises records as newline-delimited JSON, one compact
// object per line.
func marshalJSONL(recs []domain.ExecutionRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range recs {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*Archiver)(nil)
