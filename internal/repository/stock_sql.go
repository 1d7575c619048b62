package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"shopsy-inventory-api/internal/model"
)

const recordColumns = `id, product_id, quantity_available, quantity_reserved, quantity_sold,
	low_stock_threshold, status, last_updated`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*model.StockRecord, error) {
	var rec model.StockRecord
	var status string
	var lastUpdated int64

	err := row.Scan(
		&rec.ID,
		&rec.ProductID,
		&rec.QuantityAvailable,
		&rec.QuantityReserved,
		&rec.QuantitySold,
		&rec.LowStockThreshold,
		&status,
		&lastUpdated,
	)
	if err != nil {
		return nil, err
	}
	rec.Status = model.StockStatus(status)
	rec.LastUpdated = fromMicros(lastUpdated)
	return &rec, nil
}

// CreateRecord inserts a new stock record.
func (s *SQLStore) CreateRecord(ctx context.Context, rec *model.StockRecord) error {
	query := s.dialect.bind(`
		INSERT INTO stock_records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.ProductID, rec.QuantityAvailable, rec.QuantityReserved, rec.QuantitySold,
		rec.LowStockThreshold, string(rec.Status), toMicros(rec.LastUpdated))
	if err != nil {
		if s.dialect.isDuplicate(err) {
			return fmt.Errorf("product %s: %w", rec.ProductID, ErrDuplicate)
		}
		return fmt.Errorf("failed to create stock record: %w", err)
	}
	return nil
}

// GetRecord retrieves a stock record by ID.
func (s *SQLStore) GetRecord(ctx context.Context, id string) (*model.StockRecord, error) {
	query := s.dialect.bind(`SELECT ` + recordColumns + ` FROM stock_records WHERE id = ?`)

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get stock record: %w", err)
	}
	return rec, nil
}

// GetRecordsByProduct retrieves the records of the given products.
func (s *SQLStore) GetRecordsByProduct(ctx context.Context, productIDs []string) ([]model.StockRecord, error) {
	if len(productIDs) == 0 {
		return []model.StockRecord{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(productIDs)), ", ")
	query := s.dialect.bind(`SELECT ` + recordColumns + ` FROM stock_records
		WHERE product_id IN (` + placeholders + `) ORDER BY product_id`)

	args := make([]interface{}, len(productIDs))
	for i, id := range productIDs {
		args[i] = id
	}

	return s.queryRecords(ctx, query, args...)
}

// ListRecords returns a page of records ordered by product and the total count.
func (s *SQLStore) ListRecords(ctx context.Context, limit, offset int) ([]model.StockRecord, int64, error) {
	query := s.dialect.bind(`SELECT ` + recordColumns + ` FROM stock_records
		ORDER BY product_id LIMIT ? OFFSET ?`)

	records, err := s.queryRecords(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM stock_records").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count stock records: %w", err)
	}
	return records, total, nil
}

func (s *SQLStore) queryRecords(ctx context.Context, query string, args ...interface{}) ([]model.StockRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock records: %w", err)
	}
	defer rows.Close()

	records := []model.StockRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stock record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// MutateRecord runs fn against the record under an exclusive lock. The row
// lock is SELECT ... FOR UPDATE on PostgreSQL and MySQL; SQLite runs with a
// single connection so the transaction itself is exclusive.
func (s *SQLStore) MutateRecord(ctx context.Context, id string, fn MutateFunc) (*model.StockRecord, *model.LedgerEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := s.dialect.bind(`SELECT ` + recordColumns + ` FROM stock_records WHERE id = ?` + s.dialect.lockClause)
	rec, err := scanRecord(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to lock stock record: %w", err)
	}

	entry, err := fn(rec)
	if err != nil {
		return nil, nil, err
	}
	if entry == nil {
		return rec, nil, nil
	}

	update := s.dialect.bind(`
		UPDATE stock_records SET
			quantity_available = ?,
			quantity_reserved = ?,
			quantity_sold = ?,
			low_stock_threshold = ?,
			status = ?,
			last_updated = ?
		WHERE id = ?`)
	_, err = tx.ExecContext(ctx, update,
		rec.QuantityAvailable, rec.QuantityReserved, rec.QuantitySold,
		rec.LowStockThreshold, string(rec.Status), toMicros(rec.LastUpdated), rec.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update stock record: %w", err)
	}

	entry.StockRecordID = rec.ID
	entry.ProductID = rec.ProductID
	if err := s.appendEntry(ctx, tx, entry); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return rec, entry, nil
}

func (s *SQLStore) appendEntry(ctx context.Context, tx *sql.Tx, entry *model.LedgerEntry) error {
	if entry.Metadata == nil {
		entry.Metadata = map[string]interface{}{}
	}
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode ledger metadata: %w", err)
	}

	insert := `
		INSERT INTO stock_ledger (stock_record_id, product_id, event_type, previous_quantity,
			new_quantity, quantity_changed, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	args := []interface{}{
		entry.StockRecordID, entry.ProductID, string(entry.EventType), entry.PreviousQuantity,
		entry.NewQuantity, entry.QuantityChanged, string(metadata), toMicros(entry.CreatedAt),
	}

	if s.dialect.returning {
		err := tx.QueryRowContext(ctx, s.dialect.bind(insert+" RETURNING id"), args...).Scan(&entry.ID)
		if err != nil {
			return fmt.Errorf("failed to append ledger entry: %w", err)
		}
		return nil
	}

	result, err := tx.ExecContext(ctx, s.dialect.bind(insert), args...)
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	entry.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read ledger entry id: %w", err)
	}
	return nil
}

// DeleteByProduct removes a product's record together with its ledger.
func (s *SQLStore) DeleteByProduct(ctx context.Context, productID string) (*model.StockRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := s.dialect.bind(`SELECT ` + recordColumns + ` FROM stock_records WHERE product_id = ?` + s.dialect.lockClause)
	rec, err := scanRecord(tx.QueryRowContext(ctx, query, productID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock stock record: %w", err)
	}

	if _, err := tx.ExecContext(ctx, s.dialect.bind(`DELETE FROM stock_ledger WHERE stock_record_id = ?`), rec.ID); err != nil {
		return nil, fmt.Errorf("failed to delete ledger: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.dialect.bind(`DELETE FROM stock_records WHERE id = ?`), rec.ID); err != nil {
		return nil, fmt.Errorf("failed to delete stock record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return rec, nil
}
