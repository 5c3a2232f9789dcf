// internal/model/scanner.go
package model

import (
	"time"
)

// ConnectionType represents how a scanner is attached to the host
type ConnectionType string

const (
	ConnectionTypeSerial ConnectionType = "SERIAL"
	ConnectionTypeUSB    ConnectionType = "USB"
	ConnectionTypeTCP    ConnectionType = "TCP"
)

// ParseConnectionType maps a config value (serial, usb, tcp) to a ConnectionType
func ParseConnectionType(value string) (ConnectionType, bool) {
	switch value {
	case "serial", "SERIAL":
		return ConnectionTypeSerial, true
	case "usb", "USB":
		return ConnectionTypeUSB, true
	case "tcp", "TCP":
		return ConnectionTypeTCP, true
	default:
		return "", false
	}
}

// ScannerState represents the lifecycle state of a configured scanner
type ScannerState string

const (
	ScannerStateOnline  ScannerState = "ONLINE"
	ScannerStateOffline ScannerState = "OFFLINE"
	ScannerStateFailed  ScannerState = "FAILED"
	ScannerStateStopped ScannerState = "STOPPED"
)

// ScannerStatus is a point-in-time view of one configured scanner
type ScannerStatus struct {
	Name           string         `json:"name"`
	Address        string         `json:"address"`
	ConnectionType ConnectionType `json:"connection_type"`
	State          ScannerState   `json:"state"`
	Connected      bool           `json:"connected"`
	Pending        int            `json:"pending_chunks"`
	Barcodes       int64          `json:"barcodes"`
	LastBarcodeAt  *time.Time     `json:"last_barcode_at,omitempty"`
	LastError      *string        `json:"last_error,omitempty"`
	Since          time.Time      `json:"since"`
	Channel        *ChannelStats  `json:"channel,omitempty"`
}

// IsOnline reports whether the scanner's channel was open when the status was taken
func (s *ScannerStatus) IsOnline() bool {
	return s.State == ScannerStateOnline
}

// ChannelStats holds I/O counters for one scanner channel
type ChannelStats struct {
	BytesRead    int64     `json:"bytes_read"`
	ChunksRead   int64     `json:"chunks_read"`
	ReadErrors   int64     `json:"read_errors"`
	Opens        int64     `json:"opens"`
	Closes       int64     `json:"closes"`
	LastActivity time.Time `json:"last_activity"`
	ConnectedAt  time.Time `json:"connected_at"`
}
