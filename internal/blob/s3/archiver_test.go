package s3blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterhq/arbiter/internal/domain"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type blobRecorder struct {
	keys    []string
	bodies  [][]byte
	failPut bool
}

func (b *blobRecorder) Write(_ context.Context, key string, data []byte, _ string) error {
	if b.failPut {
		return errors.New("bucket unavailable")
	}
	b.keys = append(b.keys, key)
	b.bodies = append(b.bodies, data)
	return nil
}

type execStoreStub struct {
	sealed  []domain.ExecutionRecord
	deleted []time.Time
}

func (s *execStoreStub) Create(context.Context, domain.ExecutionRecord) error { return nil }

func (s *execStoreStub) Get(context.Context, string) (domain.ExecutionRecord, error) {
	return domain.ExecutionRecord{}, domain.ErrNotFound
}

func (s *execStoreStub) ListRecent(context.Context, int) ([]domain.ExecutionRecord, error) {
	return nil, nil
}

func (s *execStoreStub) ListSealedBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.ExecutionRecord, error) {
	var out []domain.ExecutionRecord
	for _, rec := range s.sealed {
		if rec.SealedAt.Before(cutoff) {
			out = append(out, rec)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *execStoreStub) DeleteSealedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.deleted = append(s.deleted, cutoff)
	var kept []domain.ExecutionRecord
	var n int64
	for _, rec := range s.sealed {
		if rec.SealedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, rec)
	}
	s.sealed = kept
	return n, nil
}

func sealedRecord(id string, sealedAt time.Time) domain.ExecutionRecord {
	return domain.ExecutionRecord{
		ID:       id,
		State:    domain.TradeSettled,
		SealedAt: sealedAt,
	}
}

func TestArchiveBeforeExportsAndPrunes(t *testing.T) {
	cutoff := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	store := &execStoreStub{sealed: []domain.ExecutionRecord{
		sealedRecord("old-1", cutoff.Add(-48*time.Hour)),
		sealedRecord("old-2", cutoff.Add(-24*time.Hour)),
		sealedRecord("fresh", cutoff.Add(time.Hour)),
	}}
	blob := &blobRecorder{}

	arch := NewArchiver(blob, store, testLogger)
	n, err := arch.ArchiveBefore(context.Background(), cutoff)

	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, blob.keys, 1)
	assert.True(t, strings.HasPrefix(blob.keys[0], "archive/executions/2026/03/10-"))

	lines := bytes.Split(bytes.TrimSpace(blob.bodies[0]), []byte("\n"))
	assert.Len(t, lines, 2)

	// Only the fresh record survives in the warm archive.
	require.Len(t, store.sealed, 1)
	assert.Equal(t, "fresh", store.sealed[0].ID)
}

func TestArchiveBeforeNothingToExport(t *testing.T) {
	store := &execStoreStub{}
	blob := &blobRecorder{}

	arch := NewArchiver(blob, store, testLogger)
	n, err := arch.ArchiveBefore(context.Background(), time.Now())

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, blob.keys)
	assert.Empty(t, store.deleted, "no prune without an export")
}

func TestArchiveBeforeUploadFailureLeavesWarmArchive(t *testing.T) {
	cutoff := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	store := &execStoreStub{sealed: []domain.ExecutionRecord{
		sealedRecord("old-1", cutoff.Add(-time.Hour)),
	}}
	blob := &blobRecorder{failPut: true}

	arch := NewArchiver(blob, store, testLogger)
	n, err := arch.ArchiveBefore(context.Background(), cutoff)

	require.Error(t, err)
	assert.Zero(t, n)
	assert.Len(t, store.sealed, 1, "records must survive a failed upload")
}
