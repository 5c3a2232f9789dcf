package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"barcode-service/internal/config"
	"barcode-service/internal/model"
)

// memoryScanRepo is an in-memory repository.ScanRepository
type memoryScanRepo struct {
	mu        sync.Mutex
	records   []*model.ScanRecord
	createErr error
	block     chan struct{}
	deletes   int
}

func newMemoryScanRepo() *memoryScanRepo {
	return &memoryScanRepo{}
}

func (r *memoryScanRepo) Create(ctx context.Context, record *model.ScanRecord) error {
	r.mu.Lock()
	block := r.block
	r.mu.Unlock()
	if block != nil {
		<-block
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.records = append(r.records, record)
	return nil
}

func (r *memoryScanRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.ScanRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, errors.New("not found")
}

func (r *memoryScanRepo) List(ctx context.Context, filter *model.ScanFilter) ([]*model.ScanRecord, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.ScanRecord
	for _, rec := range r.records {
		if filter != nil && filter.ScannerName != nil && rec.ScannerName != *filter.ScannerName {
			continue
		}
		out = append(out, rec)
	}
	return out, len(out), nil
}

func (r *memoryScanRepo) CountByScanner(ctx context.Context, since time.Time) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int)
	for _, rec := range r.records {
		if !rec.ScannedAt.Before(since) {
			counts[rec.ScannerName]++
		}
	}
	return counts, nil
}

func (r *memoryScanRepo) DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes++
	kept := r.records[:0]
	var deleted int64
	for _, rec := range r.records {
		if rec.ScannedAt.Before(olderThan) {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	r.records = kept
	return deleted, nil
}

func (r *memoryScanRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func (r *memoryScanRepo) all() []*model.ScanRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*model.ScanRecord(nil), r.records...)
}

func (r *memoryScanRepo) deleteCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deletes
}

func record(scanner, value string) *model.ScanRecord {
	return model.NewScanRecord(model.NewBarcode(scanner, value), model.ConnectionTypeSerial, "/dev/"+scanner)
}

func TestJournalWritesAndFlushesOnStop(t *testing.T) {
	repo := newMemoryScanRepo()
	j := NewScanJournal(repo, config.JournalConfig{QueueSize: 8}, zap.NewNop())
	j.Start()

	for _, v := range []string{"1", "2", "3"} {
		assert.True(t, j.Record(record("front", v)))
	}
	j.Stop()
	j.Stop()

	records := repo.all()
	require.Len(t, records, 3)
	assert.Equal(t, "1", records[0].Value)
	assert.False(t, records[0].CreatedAt.IsZero())

	stats := j.Stats()
	assert.EqualValues(t, 3, stats.Written)
	assert.Zero(t, stats.Dropped)

	assert.False(t, j.Record(record("front", "late")))
	assert.EqualValues(t, 1, j.Stats().Dropped)
}

func TestJournalDropsWhenFull(t *testing.T) {
	repo := newMemoryScanRepo()
	repo.block = make(chan struct{})
	j := NewScanJournal(repo, config.JournalConfig{QueueSize: 1}, zap.NewNop())
	j.Start()

	// The writer takes the first record and blocks; the second fills the queue.
	require.True(t, j.Record(record("front", "1")))
	require.Eventually(t, func() bool { return j.Stats().Queued == 0 }, waitFor, tick)
	require.True(t, j.Record(record("front", "2")))
	assert.False(t, j.Record(record("front", "3")))
	assert.EqualValues(t, 1, j.Stats().Dropped)

	close(repo.block)
	j.Stop()
	assert.Equal(t, 2, repo.count())
}

func TestJournalCountsWriteFailures(t *testing.T) {
	repo := newMemoryScanRepo()
	repo.createErr = errors.New("connection refused")
	j := NewScanJournal(repo, config.JournalConfig{}, zap.NewNop())
	j.Start()

	j.Record(record("front", "1"))
	j.Stop()

	assert.EqualValues(t, 1, j.Stats().Failed)
	assert.Zero(t, j.Stats().Written)
}

func TestJournalDisabled(t *testing.T) {
	j := NewScanJournal(nil, config.JournalConfig{}, zap.NewNop())
	j.Start()
	defer j.Stop()

	assert.False(t, j.Enabled())
	assert.False(t, j.Record(record("front", "1")))

	_, _, err := j.List(context.Background(), nil)
	assert.ErrorIs(t, err, ErrJournalDisabled)
	_, err = j.CountByScanner(context.Background(), time.Now())
	assert.ErrorIs(t, err, ErrJournalDisabled)
}

func TestJournalRetentionCleanup(t *testing.T) {
	repo := newMemoryScanRepo()
	old := record("front", "old")
	old.ScannedAt = time.Now().UTC().Add(-48 * time.Hour)
	repo.records = append(repo.records, old, record("front", "new"))

	j := NewScanJournal(repo, config.JournalConfig{
		Retention:       24 * time.Hour,
		CleanupInterval: 10 * time.Millisecond,
	}, zap.NewNop())
	j.Start()
	defer j.Stop()

	assert.Eventually(t, func() bool { return repo.deleteCalls() > 0 && repo.count() == 1 }, waitFor, tick)
	assert.Equal(t, "new", repo.all()[0].Value)
}
