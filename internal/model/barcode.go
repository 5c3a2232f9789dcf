// internal/model/barcode.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// Barcode is one token read from a scanner. It is passed by value and never mutated.
type Barcode struct {
	ID        uuid.UUID `json:"id"`
	Value     string    `json:"value"`
	Scanner   string    `json:"scanner"`
	ScannedAt time.Time `json:"scanned_at"`
}

// NewBarcode stamps a token with a fresh ID and the current time
func NewBarcode(scanner, value string) Barcode {
	return Barcode{
		ID:        uuid.New(),
		Value:     value,
		Scanner:   scanner,
		ScannedAt: time.Now().UTC(),
	}
}

// ScanRecord is a journaled barcode row
type ScanRecord struct {
	ID             uuid.UUID      `json:"id" db:"id"`
	ScannerName    string         `json:"scanner_name" db:"scanner_name"`
	ConnectionType ConnectionType `json:"connection_type" db:"connection_type"`
	Address        string         `json:"address" db:"address"`
	Value          string         `json:"value" db:"value"`
	ScannedAt      time.Time      `json:"scanned_at" db:"scanned_at"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

// NewScanRecord converts a barcode into a journal row
func NewScanRecord(b Barcode, connType ConnectionType, address string) *ScanRecord {
	return &ScanRecord{
		ID:             b.ID,
		ScannerName:    b.Scanner,
		ConnectionType: connType,
		Address:        address,
		Value:          b.Value,
		ScannedAt:      b.ScannedAt,
	}
}

// ScanFilter narrows journal queries
type ScanFilter struct {
	ScannerName *string
	Since       *time.Time
	Until       *time.Time
	Value       *string
	Limit       int
	Offset      int
}
