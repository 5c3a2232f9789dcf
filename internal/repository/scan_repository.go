// internal/repository/scan_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"barcode-service/internal/database"
	"barcode-service/internal/model"
	"barcode-service/internal/utils"
)

// ErrScanNotFound is returned when a scan record does not exist
var ErrScanNotFound = errors.New("scan record not found")

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// scanRepository implements ScanRepository on PostgreSQL
type scanRepository struct {
	db     *database.DB
	logger *zap.Logger
	svc    *utils.ServiceLogger
}

// NewScanRepository creates a new scan repository
func NewScanRepository(db *database.DB, logger *zap.Logger) ScanRepository {
	return &scanRepository{
		db:     db,
		logger: logger,
		svc:    utils.NewServiceLogger(logger, "scan-repository"),
	}
}

// Create inserts one scan record
func (r *scanRepository) Create(ctx context.Context, record *model.ScanRecord) error {
	query := `
		INSERT INTO barcode_scans (
			id, scanner_name, connection_type, address, value, scanned_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	start := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		record.ID, record.ScannerName, record.ConnectionType,
		record.Address, record.Value, record.ScannedAt, record.CreatedAt,
	)
	r.svc.LogDatabaseQuery("insert barcode_scans", time.Since(start), err)

	if err != nil {
		return fmt.Errorf("failed to create scan record: %w", err)
	}
	return nil
}

// GetByID retrieves a scan record by ID
func (r *scanRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ScanRecord, error) {
	query := `
		SELECT id, scanner_name, connection_type, address, value, scanned_at, created_at
		FROM barcode_scans
		WHERE id = $1
	`

	record, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrScanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan record: %w", err)
	}
	return record, nil
}

// List returns scan records matching the filter, newest first, plus the
// total number of matches
func (r *scanRepository) List(ctx context.Context, filter *model.ScanFilter) ([]*model.ScanRecord, int, error) {
	whereClause, args := buildScanWhere(filter)

	countQuery := "SELECT COUNT(*) FROM barcode_scans " + whereClause
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count scan records: %w", err)
	}

	limit, offset := pageBounds(filter)
	query := fmt.Sprintf(`
		SELECT id, scanner_name, connection_type, address, value, scanned_at, created_at
		FROM barcode_scans
		%s
		ORDER BY scanned_at DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, args...)
	r.svc.LogDatabaseQuery("list barcode_scans", time.Since(start), err)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list scan records: %w", err)
	}
	defer rows.Close()

	var records []*model.ScanRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan record row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate scan records: %w", err)
	}

	return records, total, nil
}

// CountByScanner counts records per scanner since the given time
func (r *scanRepository) CountByScanner(ctx context.Context, since time.Time) (map[string]int, error) {
	query := `
		SELECT scanner_name, COUNT(*)
		FROM barcode_scans
		WHERE scanned_at >= $1
		GROUP BY scanner_name
	`

	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count scans by scanner: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count row: %w", err)
		}
		counts[name] = count
	}
	return counts, rows.Err()
}

// DeleteOlderThan removes records scanned before the cutoff
func (r *scanRepository) DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `DELETE FROM barcode_scans WHERE scanned_at < $1`

	start := time.Now()
	result, err := r.db.ExecContext(ctx, query, olderThan)
	r.svc.LogDatabaseQuery("delete old barcode_scans", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old scan records: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	if deleted > 0 {
		r.logger.Info("Old scan records deleted",
			zap.Int64("deleted", deleted),
			zap.Time("older_than", olderThan),
		)
	}
	return deleted, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.ScanRecord, error) {
	var record model.ScanRecord
	var connType string
	err := row.Scan(
		&record.ID, &record.ScannerName, &connType, &record.Address,
		&record.Value, &record.ScannedAt, &record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	record.ConnectionType = model.ConnectionType(connType)
	return &record, nil
}

// buildScanWhere turns a filter into a WHERE clause with numbered placeholders
func buildScanWhere(filter *model.ScanFilter) (string, []any) {
	if filter == nil {
		return "", nil
	}

	var whereConditions []string
	var args []any
	argIndex := 1

	if filter.ScannerName != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("scanner_name = $%d", argIndex))
		args = append(args, *filter.ScannerName)
		argIndex++
	}

	if filter.Value != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("value = $%d", argIndex))
		args = append(args, *filter.Value)
		argIndex++
	}

	if filter.Since != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("scanned_at >= $%d", argIndex))
		args = append(args, *filter.Since)
		argIndex++
	}

	if filter.Until != nil {
		whereConditions = append(whereConditions, fmt.Sprintf("scanned_at < $%d", argIndex))
		args = append(args, *filter.Until)
	}

	if len(whereConditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(whereConditions, " AND "), args
}

func pageBounds(filter *model.ScanFilter) (int, int) {
	limit, offset := defaultListLimit, 0
	if filter == nil {
		return limit, offset
	}
	if filter.Limit > 0 {
		limit = min(filter.Limit, maxListLimit)
	}
	if filter.Offset > 0 {
		offset = filter.Offset
	}
	return limit, offset
}
