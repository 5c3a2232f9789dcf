// internal/protocol/connection.go
package protocol

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/gousb"
)

const defaultMaxChunkSize = 4096

// SerialConfig represents serial connection configuration
type SerialConfig struct {
	Port         string        `json:"port"`
	BaudRate     int           `json:"baud_rate"`
	DataBits     int           `json:"data_bits"`
	StopBits     int           `json:"stop_bits"`
	Parity       string        `json:"parity"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	MaxChunkSize int           `json:"max_chunk_size"`
}

// USBConfig represents USB connection configuration
type USBConfig struct {
	VendorID     gousb.ID      `json:"vendor_id"`
	ProductID    gousb.ID      `json:"product_id"`
	Interface    int           `json:"interface"`
	Endpoint     int           `json:"endpoint"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	MaxChunkSize int           `json:"max_chunk_size"`
}

// TCPConfig represents a serial-over-ethernet bridge connection
type TCPConfig struct {
	Address        string        `json:"address"`
	TLS            bool          `json:"tls"`
	KeepAlive      bool          `json:"keep_alive"`
	ConnectTimeout time.Duration `json:"connect_timeout"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	MaxChunkSize   int           `json:"max_chunk_size"`
}

// ResolveSerialAddress accepts a device path or a bare port number. On
// Windows a bare number n becomes COMn.
func ResolveSerialAddress(address string) string {
	address = strings.TrimSpace(address)
	if n, err := strconv.Atoi(address); err == nil && n >= 0 && runtime.GOOS == "windows" {
		return fmt.Sprintf("COM%d", n)
	}
	return address
}

// ParseUSBAddress parses "vid:pid" with optional 0x prefixes, e.g. "0c2e:0b61"
func ParseUSBAddress(address string) (gousb.ID, gousb.ID, error) {
	parts := strings.Split(address, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("usb address must be vendor:product, got %q", address)
	}
	vendorID, err := ParseHexID(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid vendor ID: %w", err)
	}
	productID, err := ParseHexID(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid product ID: %w", err)
	}
	return vendorID, productID, nil
}

// ParseHexID parses hex ID string (0x1234 or 1234)
func ParseHexID(hexStr string) (gousb.ID, error) {
	hexStr = strings.TrimSpace(hexStr)
	if len(hexStr) > 2 && (hexStr[:2] == "0x" || hexStr[:2] == "0X") {
		hexStr = hexStr[2:]
	}

	id, err := strconv.ParseUint(hexStr, 16, 16)
	if err != nil {
		return 0, err
	}

	return gousb.ID(id), nil
}

func chunkLimit(n int) int {
	if n <= 0 {
		return defaultMaxChunkSize
	}
	return n
}
