package repository

import (
	"context"
	"errors"
	"time"

	"shopsy-inventory-api/internal/model"
)

var (
	// ErrNotFound is returned when a stock record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a product already has a stock record.
	ErrDuplicate = errors.New("duplicate record")
)

// MutateFunc receives the locked, authoritative record. It may change the
// record in place and return the ledger entry describing the change. A nil
// entry means nothing changed and nothing is written. A non-nil error aborts
// the transaction.
type MutateFunc func(rec *model.StockRecord) (*model.LedgerEntry, error)

// StockRepository defines stock record data access methods.
type StockRepository interface {
	// CreateRecord inserts a new stock record.
	CreateRecord(ctx context.Context, rec *model.StockRecord) error

	// GetRecord retrieves a stock record by ID.
	GetRecord(ctx context.Context, id string) (*model.StockRecord, error)

	// GetRecordsByProduct retrieves the records of the given products. Unknown ids are skipped.
	GetRecordsByProduct(ctx context.Context, productIDs []string) ([]model.StockRecord, error)

	// ListRecords returns a page of records and the total count.
	ListRecords(ctx context.Context, limit, offset int) ([]model.StockRecord, int64, error)

	// MutateRecord runs fn against the record under an exclusive lock and
	// persists the record together with the returned ledger entry atomically.
	MutateRecord(ctx context.Context, id string, fn MutateFunc) (*model.StockRecord, *model.LedgerEntry, error)

	// DeleteByProduct removes a product's record and its ledger.
	DeleteByProduct(ctx context.Context, productID string) (*model.StockRecord, error)

	// GetStats returns statistics about the stock database.
	GetStats(ctx context.Context) (map[string]interface{}, error)

	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// Close closes the repository connection.
	Close() error
}

// LedgerRepository defines read access to the append-only stock ledger.
// Entries are only written through StockRepository.MutateRecord.
type LedgerRepository interface {
	// RecentByRecord returns the newest entries of one record, newest first.
	RecentByRecord(ctx context.Context, recordID string, limit int) ([]model.LedgerEntry, error)

	// Recent returns the newest entries matching the filter, newest first.
	Recent(ctx context.Context, filter model.LedgerFilter, limit int) ([]model.LedgerEntry, error)

	// After returns entries with an id greater than afterID, ascending.
	After(ctx context.Context, filter model.LedgerFilter, afterID int64, limit int) ([]model.LedgerEntry, error)

	// Since returns entries created at or after since, ascending.
	Since(ctx context.Context, filter model.LedgerFilter, since time.Time) ([]model.LedgerEntry, error)
}

// SubscriptionRepository defines push subscription bookkeeping.
type SubscriptionRepository interface {
	// CreateSubscription registers an open push connection.
	CreateSubscription(ctx context.Context, sub *model.Subscription) error

	// TouchSubscription stores the delivery cursor and refreshes last_seen_at.
	TouchSubscription(ctx context.Context, id string, lastEventID int64) error

	// DeleteSubscription removes a subscription.
	DeleteSubscription(ctx context.Context, id string) error

	// DeleteStaleSubscriptions removes subscriptions not seen within threshold.
	DeleteStaleSubscriptions(ctx context.Context, threshold time.Duration) (int64, error)

	// CountSubscriptions returns the number of registered subscriptions.
	CountSubscriptions(ctx context.Context) (int64, error)
}
