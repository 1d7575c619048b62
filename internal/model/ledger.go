package model

import "time"

// EventType classifies a ledger entry.
type EventType string

const (
	EventStockUpdated    EventType = "stock_updated"
	EventLowStockWarning EventType = "low_stock_warning"
	EventOutOfStock      EventType = "out_of_stock"
	EventBackInStock     EventType = "back_in_stock"
	EventStockReserved   EventType = "stock_reserved"
	EventStockReleased   EventType = "stock_released"
	EventSaleConfirmed   EventType = "sale_confirmed"
)

// LedgerEntry is an immutable record of one stock transition.
type LedgerEntry struct {
	ID               int64                  `json:"id"`
	StockRecordID    string                 `json:"stock_record_id"`
	ProductID        string                 `json:"product_id"`
	EventType        EventType              `json:"event_type"`
	PreviousQuantity int                    `json:"previous_quantity"`
	NewQuantity      int                    `json:"new_quantity"`
	QuantityChanged  int                    `json:"quantity_changed"`
	Metadata         map[string]interface{} `json:"metadata"`
	CreatedAt        time.Time              `json:"created_at"`
}

// LedgerFilter narrows ledger queries. An empty ProductID matches every product.
type LedgerFilter struct {
	ProductID string
}

// DeriveEventType classifies a change of available quantity from prev to next.
// Both values are judged against the same threshold. Checks run in order:
// out_of_stock, back_in_stock, low_stock_warning; otherwise fallback is returned.
func DeriveEventType(prev, next, threshold int, fallback EventType) EventType {
	wasOut, isOut := isOutOfStock(prev), isOutOfStock(next)
	wasLow, isLow := isLowStock(prev, threshold), isLowStock(next, threshold)

	switch {
	case isOut && !wasOut:
		return EventOutOfStock
	case !isOut && wasOut:
		return EventBackInStock
	case isLow && !wasLow:
		return EventLowStockWarning
	default:
		return fallback
	}
}
