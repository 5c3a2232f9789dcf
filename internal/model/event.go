// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventBarcodeScanned      EventType = "BARCODE_SCANNED"
	EventScannerConnected    EventType = "SCANNER_CONNECTED"
	EventScannerDisconnected EventType = "SCANNER_DISCONNECTED"
	EventScannerFailed       EventType = "SCANNER_FAILED"
)

// ScannerEvent is published on the event bus and streamed to websocket clients
type ScannerEvent struct {
	ID        uuid.UUID      `json:"id"`
	EventType EventType      `json:"event_type"`
	Scanner   string         `json:"scanner"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Severity  string         `json:"severity"` // INFO, WARNING, ERROR
}

// NewBarcodeEvent wraps a barcode as a bus event
func NewBarcodeEvent(b Barcode) ScannerEvent {
	return ScannerEvent{
		ID:        uuid.New(),
		EventType: EventBarcodeScanned,
		Scanner:   b.Scanner,
		Data: map[string]any{
			"barcode_id": b.ID.String(),
			"value":      b.Value,
			"scanned_at": b.ScannedAt,
		},
		Timestamp: time.Now().UTC(),
		Severity:  "INFO",
	}
}

// NewStatusEvent builds a connect/disconnect/failure event
func NewStatusEvent(eventType EventType, scanner string, data map[string]any) ScannerEvent {
	severity := "INFO"
	switch eventType {
	case EventScannerDisconnected:
		severity = "WARNING"
	case EventScannerFailed:
		severity = "ERROR"
	}
	return ScannerEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Scanner:   scanner,
		Data:      data,
		Timestamp: time.Now().UTC(),
		Severity:  severity,
	}
}
