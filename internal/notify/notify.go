// Package notify wakes change feed loops when new ledger entries are committed.
// A wake-up only means "look again": subscribers always read the ledger itself,
// so a lost or coalesced signal costs at most one poll interval.
package notify

import (
	"context"

	"shopsy-inventory-api/internal/model"
)

// Notifier publishes ledger appends and hands out wake-up channels.
type Notifier interface {
	// Publish announces a committed ledger entry.
	Publish(ctx context.Context, entry model.LedgerEntry) error

	// Subscribe returns a channel that receives a value after each publish,
	// coalescing bursts, and a function that releases it.
	Subscribe() (<-chan struct{}, func())

	// Close releases the notifier's resources.
	Close() error
}
