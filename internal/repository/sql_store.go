package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLStore implements StockRepository, LedgerRepository and
// SubscriptionRepository on top of database/sql. Backend specifics live in
// the dialect; see NewSQLiteStore, NewPostgresStore and NewMySQLStore.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

func newSQLStore(db *sql.DB, d dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: d, now: time.Now}
	if err := s.Migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Migrate creates the stock tables if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Dialect returns the backend name (sqlite, postgres or mysql).
func (s *SQLStore) Dialect() string {
	return s.dialect.name
}

// SetClock overrides the time source used for timestamps.
func (s *SQLStore) SetClock(now func() time.Time) {
	s.now = now
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetStats returns statistics about the stock database.
func (s *SQLStore) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})
	stats["dialect"] = s.dialect.name

	var records int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM stock_records").Scan(&records); err != nil {
		return nil, err
	}
	stats["total_records"] = records

	var entries, latest int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*), COALESCE(MAX(id), 0) FROM stock_ledger").Scan(&entries, &latest); err != nil {
		return nil, err
	}
	stats["total_ledger_entries"] = entries
	stats["latest_ledger_id"] = latest

	var subs int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM stock_subscriptions").Scan(&subs); err != nil {
		return nil, err
	}
	stats["active_subscriptions"] = subs

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM stock_records GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byStatus := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		byStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	stats["records_by_status"] = byStatus

	return stats, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func toMicros(t time.Time) int64 {
	return t.UnixMicro()
}

func fromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

// Ensure SQLStore implements the repository interfaces
var (
	_ StockRepository        = (*SQLStore)(nil)
	_ LedgerRepository       = (*SQLStore)(nil)
	_ SubscriptionRepository = (*SQLStore)(nil)
)
