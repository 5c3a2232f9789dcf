// internal/discovery/vendors.go
package discovery

import (
	"github.com/google/gousb"
)

// VendorKind tells scanner makers apart from USB-serial bridge chips
type VendorKind string

const (
	VendorKindScanner VendorKind = "scanner"
	VendorKindBridge  VendorKind = "bridge"
)

// VendorInfo describes a known USB vendor
type VendorInfo struct {
	Name       string
	Kind       VendorKind
	Confidence float64
	products   map[gousb.ID]string
}

// Product returns the model name for a product ID, if known
func (vi *VendorInfo) Product(productID gousb.ID) (string, bool) {
	name, ok := vi.products[productID]
	return name, ok
}

// VendorDatabase identifies scanners and bridges by USB vendor/product ID
type VendorDatabase struct {
	vendors map[gousb.ID]*VendorInfo
}

// NewVendorDatabase creates the database with the built-in vendors
func NewVendorDatabase() *VendorDatabase {
	db := &VendorDatabase{
		vendors: make(map[gousb.ID]*VendorInfo),
	}

	db.AddVendor(0x0c2e, &VendorInfo{Name: "Honeywell (Metrologic)", Kind: VendorKindScanner, Confidence: 0.9})
	db.AddProduct(0x0c2e, 0x0b61, "Voyager 1250g")
	db.AddProduct(0x0c2e, 0x0b6a, "Voyager 1450g")
	db.AddProduct(0x0c2e, 0x0901, "Xenon 1900")

	db.AddVendor(0x0536, &VendorInfo{Name: "Hand Held Products", Kind: VendorKindScanner, Confidence: 0.9})
	db.AddProduct(0x0536, 0x02e1, "Xenon 1900 (USB Serial)")

	db.AddVendor(0x05e0, &VendorInfo{Name: "Symbol (Zebra)", Kind: VendorKindScanner, Confidence: 0.9})
	db.AddProduct(0x05e0, 0x1200, "LS2208")
	db.AddProduct(0x05e0, 0x1701, "DS4308")

	db.AddVendor(0x05f9, &VendorInfo{Name: "Datalogic", Kind: VendorKindScanner, Confidence: 0.9})
	db.AddProduct(0x05f9, 0x4204, "Gryphon I GD4400")

	db.AddVendor(0x1eab, &VendorInfo{Name: "Newland", Kind: VendorKindScanner, Confidence: 0.85})

	db.AddVendor(0x0403, &VendorInfo{Name: "FTDI", Kind: VendorKindBridge, Confidence: 0.5})
	db.AddProduct(0x0403, 0x6001, "FT232R")

	db.AddVendor(0x067b, &VendorInfo{Name: "Prolific", Kind: VendorKindBridge, Confidence: 0.5})
	db.AddProduct(0x067b, 0x2303, "PL2303")

	db.AddVendor(0x10c4, &VendorInfo{Name: "Silicon Labs", Kind: VendorKindBridge, Confidence: 0.5})
	db.AddProduct(0x10c4, 0xea60, "CP210x")

	db.AddVendor(0x1a86, &VendorInfo{Name: "QinHeng", Kind: VendorKindBridge, Confidence: 0.5})
	db.AddProduct(0x1a86, 0x7523, "CH340")

	return db
}

// IsKnownVendor checks if a vendor ID is in the database
func (db *VendorDatabase) IsKnownVendor(vendorID gousb.ID) bool {
	_, ok := db.vendors[vendorID]
	return ok
}

// GetVendorInfo returns vendor information, or nil
func (db *VendorDatabase) GetVendorInfo(vendorID gousb.ID) *VendorInfo {
	return db.vendors[vendorID]
}

// AddVendor adds or replaces a vendor
func (db *VendorDatabase) AddVendor(vendorID gousb.ID, info *VendorInfo) {
	if info.products == nil {
		info.products = make(map[gousb.ID]string)
	}
	db.vendors[vendorID] = info
}

// AddProduct adds a product to an existing vendor
func (db *VendorDatabase) AddProduct(vendorID, productID gousb.ID, model string) {
	if vendor, ok := db.vendors[vendorID]; ok {
		vendor.products[productID] = model
	}
}

// Identify fills vendor and product names on a port and returns the
// confidence for it. Unknown vendors get the fallback.
func (db *VendorDatabase) Identify(port *DiscoveredPort, vendorID, productID gousb.ID, fallback float64) float64 {
	vendor := db.GetVendorInfo(vendorID)
	if vendor == nil {
		return fallback
	}

	port.Vendor = vendor.Name
	if product, ok := vendor.Product(productID); ok {
		port.Product = product
	}

	if vendor.Kind == VendorKindBridge {
		port.Notes = append(port.Notes, "USB-serial bridge; a scanner may be attached behind it")
	}
	return vendor.Confidence
}
