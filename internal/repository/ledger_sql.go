package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"shopsy-inventory-api/internal/model"
)

const entryColumns = `id, stock_record_id, product_id, event_type, previous_quantity,
	new_quantity, quantity_changed, metadata, created_at`

func scanEntry(row rowScanner) (*model.LedgerEntry, error) {
	var e model.LedgerEntry
	var eventType string
	var metadata []byte
	var createdAt int64

	err := row.Scan(
		&e.ID,
		&e.StockRecordID,
		&e.ProductID,
		&eventType,
		&e.PreviousQuantity,
		&e.NewQuantity,
		&e.QuantityChanged,
		&metadata,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	e.EventType = model.EventType(eventType)
	e.CreatedAt = fromMicros(createdAt)
	e.Metadata = map[string]interface{}{}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata of entry %d: %w", e.ID, err)
		}
	}
	return &e, nil
}

// RecentByRecord returns the newest entries of one record, newest first.
func (s *SQLStore) RecentByRecord(ctx context.Context, recordID string, limit int) ([]model.LedgerEntry, error) {
	query := s.dialect.bind(`SELECT ` + entryColumns + ` FROM stock_ledger
		WHERE stock_record_id = ? ORDER BY id DESC LIMIT ?`)
	return s.queryEntries(ctx, query, recordID, limit)
}

// Recent returns the newest entries matching the filter, newest first.
func (s *SQLStore) Recent(ctx context.Context, filter model.LedgerFilter, limit int) ([]model.LedgerEntry, error) {
	if filter.ProductID != "" {
		query := s.dialect.bind(`SELECT ` + entryColumns + ` FROM stock_ledger
			WHERE product_id = ? ORDER BY id DESC LIMIT ?`)
		return s.queryEntries(ctx, query, filter.ProductID, limit)
	}

	query := s.dialect.bind(`SELECT ` + entryColumns + ` FROM stock_ledger ORDER BY id DESC LIMIT ?`)
	return s.queryEntries(ctx, query, limit)
}

// After returns entries with an id greater than afterID in ascending id order.
func (s *SQLStore) After(ctx context.Context, filter model.LedgerFilter, afterID int64, limit int) ([]model.LedgerEntry, error) {
	if filter.ProductID != "" {
		query := s.dialect.bind(`SELECT ` + entryColumns + ` FROM stock_ledger
			WHERE id > ? AND product_id = ? ORDER BY id ASC LIMIT ?`)
		return s.queryEntries(ctx, query, afterID, filter.ProductID, limit)
	}

	query := s.dialect.bind(`SELECT ` + entryColumns + ` FROM stock_ledger
		WHERE id > ? ORDER BY id ASC LIMIT ?`)
	return s.queryEntries(ctx, query, afterID, limit)
}

// Since returns entries created at or after since in ascending id order.
func (s *SQLStore) Since(ctx context.Context, filter model.LedgerFilter, since time.Time) ([]model.LedgerEntry, error) {
	if filter.ProductID != "" {
		query := s.dialect.bind(`SELECT ` + entryColumns + ` FROM stock_ledger
			WHERE created_at >= ? AND product_id = ? ORDER BY id ASC`)
		return s.queryEntries(ctx, query, ceilMicros(since), filter.ProductID)
	}

	query := s.dialect.bind(`SELECT ` + entryColumns + ` FROM stock_ledger
		WHERE created_at >= ? ORDER BY id ASC`)
	return s.queryEntries(ctx, query, ceilMicros(since))
}

// ceilMicros rounds up to the stored precision so a cursor between two
// microseconds never matches an entry stamped before it.
func ceilMicros(t time.Time) int64 {
	us := t.UnixMicro()
	if t.After(time.UnixMicro(us)) {
		us++
	}
	return us
}

func (s *SQLStore) queryEntries(ctx context.Context, query string, args ...interface{}) ([]model.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	entries := []model.LedgerEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}
