package model

import (
	"math"
	"time"
)

// StockStatus is the derived availability state of a stock record.
type StockStatus string

const (
	StatusInStock    StockStatus = "in_stock"
	StatusLowStock   StockStatus = "low_stock"
	StatusOutOfStock StockStatus = "out_of_stock"
)

// DefaultLowStockThreshold is used when a record is created without an explicit threshold.
const DefaultLowStockThreshold = 10

// MaxQuantity bounds any single quantity a caller may set. Stored columns are
// 64-bit, so sums of bounded amounts cannot overflow them.
const MaxQuantity = math.MaxInt32

// StockRecord is the authoritative quantity state for one product.
// Status is never assigned directly; call Refresh after changing quantities.
type StockRecord struct {
	ID                string      `json:"id"`
	ProductID         string      `json:"product_id"`
	QuantityAvailable int         `json:"quantity_available"`
	QuantityReserved  int         `json:"quantity_reserved"`
	QuantitySold      int         `json:"quantity_sold"`
	LowStockThreshold int         `json:"low_stock_threshold"`
	Status            StockStatus `json:"status"`
	LastUpdated       time.Time   `json:"last_updated"`
}

// IsOutOfStock reports whether nothing is available.
func (r *StockRecord) IsOutOfStock() bool {
	return isOutOfStock(r.QuantityAvailable)
}

// IsLowStock reports whether availability is positive but at or below the threshold.
func (r *StockRecord) IsLowStock() bool {
	return isLowStock(r.QuantityAvailable, r.LowStockThreshold)
}

// QuantityTotal is available plus reserved stock.
func (r *StockRecord) QuantityTotal() int {
	return r.QuantityAvailable + r.QuantityReserved
}

// ComputeStatus derives the status from the current quantities.
func (r *StockRecord) ComputeStatus() StockStatus {
	switch {
	case r.IsOutOfStock():
		return StatusOutOfStock
	case r.IsLowStock():
		return StatusLowStock
	default:
		return StatusInStock
	}
}

// Refresh re-derives Status and stamps LastUpdated.
func (r *StockRecord) Refresh(now time.Time) {
	r.Status = r.ComputeStatus()
	r.LastUpdated = now
}

// StockSnapshot is the wire representation of a StockRecord including derived fields.
type StockSnapshot struct {
	StockRecord
	QuantityTotal int  `json:"quantity_total"`
	IsOutOfStock  bool `json:"is_out_of_stock"`
	IsLowStock    bool `json:"is_low_stock"`
}

// Snapshot returns the record with its derived fields filled in.
func (r StockRecord) Snapshot() StockSnapshot {
	return StockSnapshot{
		StockRecord:   r,
		QuantityTotal: r.QuantityTotal(),
		IsOutOfStock:  r.IsOutOfStock(),
		IsLowStock:    r.IsLowStock(),
	}
}

func isOutOfStock(available int) bool {
	return available <= 0
}

func isLowStock(available, threshold int) bool {
	return available > 0 && available <= threshold
}
