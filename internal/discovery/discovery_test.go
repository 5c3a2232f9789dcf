package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"barcode-service/internal/model"
)

type stubSource struct {
	kind      string
	available bool
	ports     []*DiscoveredPort
	err       error
}

func (s *stubSource) Scan(ctx context.Context) ([]*DiscoveredPort, error) { return s.ports, s.err }
func (s *stubSource) GetSourceType() string { return s.kind }
func (s *stubSource) IsAvailable() bool { return s.available }

func TestManagerScanAll(t *testing.T) {
	m := NewManager(zap.NewNop())
	m.RegisterSource(&stubSource{kind: "serial", available: true, ports: []*DiscoveredPort{
		{ConnectionType: model.ConnectionTypeSerial, Address: "/dev/ttyS0", Confidence: 0.2},
		{ConnectionType: model.ConnectionTypeSerial, Address: "/dev/ttyACM0", Confidence: 0.9},
		{ConnectionType: model.ConnectionTypeSerial, Address: "/dev/ttyACM0", Confidence: 0.9},
	}})
	m.RegisterSource(&stubSource{kind: "usb", available: true, err: errors.New("boom")})
	m.RegisterSource(&stubSource{kind: "tcp", available: false, ports: []*DiscoveredPort{
		{ConnectionType: model.ConnectionTypeTCP, Address: "10.0.0.5:4001", Confidence: 0.4},
	}})

	ports, err := m.ScanAll(context.Background())
	require.NoError(t, err)
	require.Len(t, ports, 2)
	assert.Equal(t, "/dev/ttyACM0", ports[0].Address)
	assert.Equal(t, "/dev/ttyS0", ports[1].Address)

	assert.Equal(t, []string{"serial", "usb"}, m.GetAvailableSources())
}

func TestManagerScanByType(t *testing.T) {
	m := NewManager(zap.NewNop())
	m.RegisterSource(&stubSource{kind: "tcp", available: false})

	_, err := m.ScanByType(context.Background(), "serial")
	assert.Error(t, err)

	_, err = m.ScanByType(context.Background(), "tcp")
	assert.Error(t, err)
}

func TestVendorDatabaseIdentify(t *testing.T) {
	db := NewVendorDatabase()
	assert.True(t, db.IsKnownVendor(0x05f9))
	assert.False(t, db.IsKnownVendor(0xffff))

	port := &DiscoveredPort{}
	assert.Equal(t, 0.9, db.Identify(port, 0x05e0, 0x1200, 0.1))
	assert.Equal(t, "Symbol (Zebra)", port.Vendor)
	assert.Equal(t, "LS2208", port.Product)

	port = &DiscoveredPort{}
	assert.Equal(t, 0.1, db.Identify(port, 0xffff, 0x0001, 0.1))
	assert.Empty(t, port.Vendor)

	db.AddVendor(0xabcd, &VendorInfo{Name: "Acme", Kind: VendorKindScanner, Confidence: 0.7})
	db.AddProduct(0xabcd, 0x0001, "Acme 1")
	port = &DiscoveredPort{}
	assert.Equal(t, 0.7, db.Identify(port, 0xabcd, 0x0001, 0))
	assert.Equal(t, "Acme 1", port.Product)
}
