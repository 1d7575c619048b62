package model

import "time"

// Subscription tracks one open push connection and its delivery cursor.
type Subscription struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	ProductID   string    `json:"product_id,omitempty"`
	LastEventID int64     `json:"last_event_id"`
	CreatedAt   time.Time `json:"subscribed_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// Filter returns the ledger filter matching this subscription.
func (s *Subscription) Filter() LedgerFilter {
	return LedgerFilter{ProductID: s.ProductID}
}
