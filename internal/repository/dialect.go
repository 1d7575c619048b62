package repository

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// dialect captures the differences between the supported SQL backends.
type dialect struct {
	name string

	// numbered placeholders ($1, $2) instead of ?
	numbered bool

	// appended to the locking SELECT of a mutation
	lockClause string

	// INSERT ... RETURNING id is supported
	returning bool

	schema []string

	isDuplicate func(err error) bool
}

// bind rewrites ? placeholders for dialects with numbered parameters.
func (d dialect) bind(query string) string {
	if !d.numbered {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

var sqliteDialect = dialect{
	name:      "sqlite",
	returning: true,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS stock_records (
			id TEXT PRIMARY KEY,
			product_id TEXT NOT NULL UNIQUE,
			quantity_available INTEGER NOT NULL DEFAULT 0 CHECK (quantity_available >= 0),
			quantity_reserved INTEGER NOT NULL DEFAULT 0 CHECK (quantity_reserved >= 0),
			quantity_sold INTEGER NOT NULL DEFAULT 0 CHECK (quantity_sold >= 0),
			low_stock_threshold INTEGER NOT NULL DEFAULT 10,
			status TEXT NOT NULL,
			last_updated BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS stock_ledger (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			stock_record_id TEXT NOT NULL,
			product_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			previous_quantity INTEGER NOT NULL,
			new_quantity INTEGER NOT NULL,
			quantity_changed INTEGER NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_ledger_record ON stock_ledger(stock_record_id, id)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_ledger_product ON stock_ledger(product_id, id)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_ledger_created ON stock_ledger(created_at)`,
		`CREATE TABLE IF NOT EXISTS stock_subscriptions (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			product_id TEXT NOT NULL DEFAULT '',
			last_event_id BIGINT NOT NULL DEFAULT 0,
			subscribed_at BIGINT NOT NULL,
			last_seen_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_subscriptions_seen ON stock_subscriptions(last_seen_at)`,
	},
	isDuplicate: func(err error) bool {
		return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
	},
}

var postgresDialect = dialect{
	name:       "postgres",
	numbered:   true,
	lockClause: " FOR UPDATE",
	returning:  true,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS stock_records (
			id TEXT PRIMARY KEY,
			product_id TEXT NOT NULL UNIQUE,
			quantity_available BIGINT NOT NULL DEFAULT 0 CHECK (quantity_available >= 0),
			quantity_reserved BIGINT NOT NULL DEFAULT 0 CHECK (quantity_reserved >= 0),
			quantity_sold BIGINT NOT NULL DEFAULT 0 CHECK (quantity_sold >= 0),
			low_stock_threshold BIGINT NOT NULL DEFAULT 10,
			status TEXT NOT NULL,
			last_updated BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS stock_ledger (
			id BIGSERIAL PRIMARY KEY,
			stock_record_id TEXT NOT NULL REFERENCES stock_records(id),
			product_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			previous_quantity BIGINT NOT NULL,
			new_quantity BIGINT NOT NULL,
			quantity_changed BIGINT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_ledger_record ON stock_ledger(stock_record_id, id)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_ledger_product ON stock_ledger(product_id, id)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_ledger_created ON stock_ledger(created_at)`,
		`CREATE TABLE IF NOT EXISTS stock_subscriptions (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			product_id TEXT NOT NULL DEFAULT '',
			last_event_id BIGINT NOT NULL DEFAULT 0,
			subscribed_at BIGINT NOT NULL,
			last_seen_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_subscriptions_seen ON stock_subscriptions(last_seen_at)`,
	},
	isDuplicate: func(err error) bool {
		var pqErr *pq.Error
		return errors.As(err, &pqErr) && pqErr.Code == "23505"
	},
}

// MySQL has no CREATE INDEX IF NOT EXISTS, so indexes are declared inline.
var mysqlDialect = dialect{
	name:       "mysql",
	lockClause: " FOR UPDATE",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS stock_records (
			id VARCHAR(64) PRIMARY KEY,
			product_id VARCHAR(191) NOT NULL UNIQUE,
			quantity_available BIGINT NOT NULL DEFAULT 0,
			quantity_reserved BIGINT NOT NULL DEFAULT 0,
			quantity_sold BIGINT NOT NULL DEFAULT 0,
			low_stock_threshold BIGINT NOT NULL DEFAULT 10,
			status VARCHAR(32) NOT NULL,
			last_updated BIGINT NOT NULL,
			CHECK (quantity_available >= 0),
			CHECK (quantity_reserved >= 0),
			CHECK (quantity_sold >= 0)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS stock_ledger (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			stock_record_id VARCHAR(64) NOT NULL,
			product_id VARCHAR(191) NOT NULL,
			event_type VARCHAR(32) NOT NULL,
			previous_quantity BIGINT NOT NULL,
			new_quantity BIGINT NOT NULL,
			quantity_changed BIGINT NOT NULL,
			metadata JSON NOT NULL,
			created_at BIGINT NOT NULL,
			INDEX idx_stock_ledger_record (stock_record_id, id),
			INDEX idx_stock_ledger_product (product_id, id),
			INDEX idx_stock_ledger_created (created_at)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS stock_subscriptions (
			id VARCHAR(64) PRIMARY KEY,
			session_id VARCHAR(191) NOT NULL,
			product_id VARCHAR(191) NOT NULL DEFAULT '',
			last_event_id BIGINT NOT NULL DEFAULT 0,
			subscribed_at BIGINT NOT NULL,
			last_seen_at BIGINT NOT NULL,
			INDEX idx_stock_subscriptions_seen (last_seen_at)
		) ENGINE=InnoDB`,
	},
	isDuplicate: func(err error) bool {
		var myErr *mysql.MySQLError
		return errors.As(err, &myErr) && myErr.Number == 1062
	},
}
