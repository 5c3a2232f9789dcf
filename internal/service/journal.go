// internal/service/journal.go
package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"barcode-service/internal/config"
	"barcode-service/internal/model"
	"barcode-service/internal/repository"
	"barcode-service/internal/utils"
)

// ErrJournalDisabled is returned by history queries when no database is configured
var ErrJournalDisabled = errors.New("scan journal is disabled")

// JournalStats reports journal throughput
type JournalStats struct {
	Enabled bool  `json:"enabled"`
	Queued  int   `json:"queued"`
	Written int64 `json:"written"`
	Failed  int64 `json:"failed"`
	Dropped int64 `json:"dropped"`
}

// ScanJournal persists barcodes off the scanner goroutines. Record never
// blocks: when the queue is full the record is dropped and counted.
type ScanJournal struct {
	repo   repository.ScanRepository
	config config.JournalConfig
	logger *utils.ServiceLogger

	mu     sync.RWMutex
	queue  chan *model.ScanRecord
	closed bool

	stop     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	written atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// NewScanJournal creates a journal. A nil repository yields a disabled
// journal whose Record calls are no-ops.
func NewScanJournal(repo repository.ScanRepository, cfg config.JournalConfig, logger *zap.Logger) *ScanJournal {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	j := &ScanJournal{
		repo:   repo,
		config: cfg,
		logger: utils.NewServiceLogger(logger, "scan-journal"),
		stop:   make(chan struct{}),
	}
	if repo != nil {
		j.queue = make(chan *model.ScanRecord, cfg.QueueSize)
	}
	return j
}

// Enabled reports whether records are persisted
func (j *ScanJournal) Enabled() bool {
	return j.repo != nil
}

// Start launches the writer and, when retention is set, the cleanup loop
func (j *ScanJournal) Start() {
	if !j.Enabled() {
		j.logger.Info("Scan journal disabled")
		return
	}

	j.wg.Add(1)
	go j.writer()

	if j.config.Retention > 0 && j.config.CleanupInterval > 0 {
		j.wg.Add(1)
		go j.cleanup()
	}

	j.logger.Info("Scan journal started",
		zap.Int("queue_size", j.config.QueueSize),
		zap.Duration("retention", j.config.Retention),
	)
}

// Record queues a record for writing. It returns false if the record was dropped.
func (j *ScanJournal) Record(record *model.ScanRecord) bool {
	if !j.Enabled() {
		return false
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.closed {
		j.dropped.Add(1)
		return false
	}

	select {
	case j.queue <- record:
		return true
	default:
		j.dropped.Add(1)
		j.logger.Warn("Scan journal queue full, dropping record",
			zap.String("scanner", record.ScannerName),
			zap.String("barcode_id", record.ID.String()),
		)
		return false
	}
}

// Stop flushes queued records and stops the loops. Safe to call more than once.
func (j *ScanJournal) Stop() {
	j.stopOnce.Do(func() {
		if !j.Enabled() {
			return
		}

		j.mu.Lock()
		j.closed = true
		close(j.queue)
		j.mu.Unlock()

		close(j.stop)
		j.wg.Wait()

		j.logger.Info("Scan journal stopped",
			zap.Int64("written", j.written.Load()),
			zap.Int64("failed", j.failed.Load()),
			zap.Int64("dropped", j.dropped.Load()),
		)
	})
}

// List queries the journal
func (j *ScanJournal) List(ctx context.Context, filter *model.ScanFilter) ([]*model.ScanRecord, int, error) {
	if !j.Enabled() {
		return nil, 0, ErrJournalDisabled
	}
	return j.repo.List(ctx, filter)
}

// CountByScanner counts journaled scans per scanner since the given time
func (j *ScanJournal) CountByScanner(ctx context.Context, since time.Time) (map[string]int, error) {
	if !j.Enabled() {
		return nil, ErrJournalDisabled
	}
	return j.repo.CountByScanner(ctx, since)
}

// Stats returns the journal counters
func (j *ScanJournal) Stats() JournalStats {
	stats := JournalStats{
		Enabled: j.Enabled(),
		Written: j.written.Load(),
		Failed:  j.failed.Load(),
		Dropped: j.dropped.Load(),
	}
	if j.queue != nil {
		stats.Queued = len(j.queue)
	}
	return stats
}

func (j *ScanJournal) writer() {
	defer j.wg.Done()

	for record := range j.queue {
		if record.CreatedAt.IsZero() {
			record.CreatedAt = time.Now().UTC()
		}

		ctx, cancel := context.WithTimeout(context.Background(), j.config.WriteTimeout)
		err := j.repo.Create(ctx, record)
		cancel()

		if err != nil {
			j.failed.Add(1)
			utils.LogError(j.logger.Logger, "Failed to journal barcode", err,
				zap.String("scanner", record.ScannerName),
				zap.String("barcode_id", record.ID.String()),
			)
			continue
		}
		j.written.Add(1)
	}
}

func (j *ScanJournal) cleanup() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), j.config.WriteTimeout)
			cutoff := time.Now().UTC().Add(-j.config.Retention)
			if _, err := j.repo.DeleteOlderThan(ctx, cutoff); err != nil {
				j.logger.Error("Scan journal cleanup failed", zap.Error(err))
			}
			cancel()
		}
	}
}
