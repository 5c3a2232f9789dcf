// internal/repository/interfaces.go
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"barcode-service/internal/model"
)

// ScanRepository defines scan journal data access operations
type ScanRepository interface {
	Create(ctx context.Context, record *model.ScanRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.ScanRecord, error)

	// Listing and filtering
	List(ctx context.Context, filter *model.ScanFilter) ([]*model.ScanRecord, int, error)
	CountByScanner(ctx context.Context, since time.Time) (map[string]int, error)

	// Cleanup
	DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error)
}
