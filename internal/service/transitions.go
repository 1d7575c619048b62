package service

import (
	"time"

	"shopsy-inventory-api/internal/model"
)

// The functions below run inside the record's transaction and see the
// authoritative pre-state. They validate first and only then mutate, so a
// rejected operation leaves rec untouched.

func reserve(rec *model.StockRecord, quantity int, now time.Time) (*model.LedgerEntry, error) {
	if quantity <= 0 {
		return nil, model.NewError(model.KindInvalidQuantity, "quantity must be positive, got %d", quantity)
	}
	if quantity > rec.QuantityAvailable {
		return nil, model.NewError(model.KindInsufficientStock,
			"Cannot reserve %d units. Only %d available.", quantity, rec.QuantityAvailable)
	}

	prev := rec.QuantityAvailable
	rec.QuantityAvailable -= quantity
	rec.QuantityReserved += quantity
	rec.Refresh(now)

	return availabilityEntry(rec, prev, model.EventStockReserved, map[string]interface{}{
		"operation":         "reserve",
		"quantity":          quantity,
		"quantity_reserved": rec.QuantityReserved,
	}), nil
}

func release(rec *model.StockRecord, quantity int, now time.Time) (*model.LedgerEntry, error) {
	if quantity <= 0 {
		return nil, model.NewError(model.KindInvalidQuantity, "quantity must be positive, got %d", quantity)
	}
	if quantity > rec.QuantityReserved {
		return nil, model.NewError(model.KindInsufficientReserved,
			"Cannot release %d units. Only %d reserved.", quantity, rec.QuantityReserved)
	}

	prev := rec.QuantityAvailable
	rec.QuantityReserved -= quantity
	rec.QuantityAvailable += quantity
	rec.Refresh(now)

	return availabilityEntry(rec, prev, model.EventStockReleased, map[string]interface{}{
		"operation":         "release",
		"quantity":          quantity,
		"quantity_reserved": rec.QuantityReserved,
	}), nil
}

// confirmSale moves reserved units to sold. Available is untouched, so the
// entry always has type sale_confirmed and its quantities describe the
// reserved count rather than the available one.
func confirmSale(rec *model.StockRecord, quantity int, now time.Time) (*model.LedgerEntry, error) {
	if quantity <= 0 {
		return nil, model.NewError(model.KindInvalidQuantity, "quantity must be positive, got %d", quantity)
	}
	if quantity > rec.QuantityReserved {
		return nil, model.NewError(model.KindInsufficientReserved,
			"Cannot confirm %d units. Only %d reserved.", quantity, rec.QuantityReserved)
	}

	prevReserved := rec.QuantityReserved
	rec.QuantityReserved -= quantity
	rec.QuantitySold += quantity
	rec.Refresh(now)

	return &model.LedgerEntry{
		EventType:        model.EventSaleConfirmed,
		PreviousQuantity: prevReserved,
		NewQuantity:      rec.QuantityReserved,
		QuantityChanged:  rec.QuantityReserved - prevReserved,
		Metadata: map[string]interface{}{
			"operation":          "confirm_sale",
			"quantity":           quantity,
			"quantity_basis":     "reserved",
			"quantity_available": rec.QuantityAvailable,
			"quantity_sold":      rec.QuantitySold,
		},
		CreatedAt: now,
	}, nil
}

// setAvailable replaces the available quantity. Setting the current value
// changes nothing and returns a nil entry.
func setAvailable(rec *model.StockRecord, quantity int, now time.Time) (*model.LedgerEntry, error) {
	if quantity < 0 || quantity > model.MaxQuantity {
		return nil, model.NewError(model.KindInvalidQuantity, "quantity must be between 0 and %d, got %d", model.MaxQuantity, quantity)
	}
	if quantity == rec.QuantityAvailable {
		return nil, nil
	}

	prev := rec.QuantityAvailable
	rec.QuantityAvailable = quantity
	rec.Refresh(now)

	return availabilityEntry(rec, prev, model.EventStockUpdated, map[string]interface{}{
		"operation": "set_available",
	}), nil
}

func availabilityEntry(rec *model.StockRecord, prev int, fallback model.EventType, metadata map[string]interface{}) *model.LedgerEntry {
	return &model.LedgerEntry{
		EventType:        model.DeriveEventType(prev, rec.QuantityAvailable, rec.LowStockThreshold, fallback),
		PreviousQuantity: prev,
		NewQuantity:      rec.QuantityAvailable,
		QuantityChanged:  rec.QuantityAvailable - prev,
		Metadata:         metadata,
		CreatedAt:        rec.LastUpdated,
	}
}
