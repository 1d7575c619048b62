package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeStatus(t *testing.T) {
	tests := []struct {
		name      string
		available int
		threshold int
		want      StockStatus
	}{
		{"zero is out of stock", 0, 10, StatusOutOfStock},
		{"negative is out of stock", -1, 10, StatusOutOfStock},
		{"at threshold is low", 10, 10, StatusLowStock},
		{"below threshold is low", 1, 10, StatusLowStock},
		{"above threshold is in stock", 11, 10, StatusInStock},
		{"zero threshold never low", 1, 0, StatusInStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := StockRecord{QuantityAvailable: tt.available, LowStockThreshold: tt.threshold}
			assert.Equal(t, tt.want, r.ComputeStatus())
		})
	}
}

func TestRefreshKeepsStatusConsistent(t *testing.T) {
	r := StockRecord{QuantityAvailable: 20, LowStockThreshold: 5, Status: StatusOutOfStock}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	r.Refresh(now)
	assert.Equal(t, StatusInStock, r.Status)
	assert.Equal(t, now, r.LastUpdated)

	r.QuantityAvailable = 3
	r.Refresh(now)
	assert.Equal(t, StatusLowStock, r.Status)
}

func TestDeriveEventType(t *testing.T) {
	tests := []struct {
		name      string
		prev      int
		next      int
		threshold int
		want      EventType
	}{
		{"low to zero is out of stock", 5, 0, 10, EventOutOfStock},
		{"zero to plenty is back in stock", 0, 20, 10, EventBackInStock},
		{"zero to low is back in stock", 0, 3, 10, EventBackInStock},
		{"plenty to low is warning", 20, 8, 10, EventLowStockWarning},
		{"low to lower is generic", 8, 3, 10, EventStockUpdated},
		{"plenty to plenty is generic", 30, 20, 10, EventStockUpdated},
		{"low to plenty is generic", 3, 30, 10, EventStockUpdated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveEventType(tt.prev, tt.next, tt.threshold, EventStockUpdated))
		})
	}
}

func TestDeriveEventTypeFallback(t *testing.T) {
	assert.Equal(t, EventStockReserved, DeriveEventType(50, 40, 10, EventStockReserved))
	assert.Equal(t, EventLowStockWarning, DeriveEventType(20, 5, 5, EventStockReserved))
}

func TestSnapshotJSON(t *testing.T) {
	r := StockRecord{
		ID:                "rec-1",
		ProductID:         "prod-1",
		QuantityAvailable: 4,
		QuantityReserved:  6,
		LowStockThreshold: 5,
	}
	r.Refresh(time.Now())

	data, err := json.Marshal(r.Snapshot())
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "rec-1", out["id"])
	assert.Equal(t, float64(10), out["quantity_total"])
	assert.Equal(t, true, out["is_low_stock"])
	assert.Equal(t, false, out["is_out_of_stock"])
	assert.Equal(t, "low_stock", out["status"])
}
