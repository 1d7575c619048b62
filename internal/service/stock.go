package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"shopsy-inventory-api/internal/cache"
	"shopsy-inventory-api/internal/logger"
	"shopsy-inventory-api/internal/metrics"
	"shopsy-inventory-api/internal/model"
	"shopsy-inventory-api/internal/notify"
	"shopsy-inventory-api/internal/repository"
	"shopsy-inventory-api/pkg/uid"
)

// DefaultRecentEvents is the number of ledger entries returned for a record
// when the caller does not ask for a specific amount.
const DefaultRecentEvents = 50

// Options carries the optional collaborators of StockService.
type Options struct {
	Cache    *cache.StockCache
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// StockService owns every stock mutation. Each mutation runs against the
// locked record inside one transaction and appends exactly one ledger entry
// when the record changed.
type StockService struct {
	records  repository.StockRepository
	ledger   repository.LedgerRepository
	cache    *cache.StockCache
	notifier notify.Notifier
	metrics  *metrics.Metrics
	log      *zap.Logger
	locks    *recordLocks
	now      func() time.Time
}

// NewStockService creates a new stock service.
func NewStockService(records repository.StockRepository, ledger repository.LedgerRepository, opts Options) *StockService {
	return &StockService{
		records:  records,
		ledger:   ledger,
		cache:    opts.Cache,
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
		log:      logger.OrNop(opts.Logger).Named("stock"),
		locks:    newRecordLocks(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateRecord registers a product with its initial available quantity.
func (s *StockService) CreateRecord(ctx context.Context, productID string, quantity, threshold int) (*model.StockRecord, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, model.NewError(model.KindInvalidQuantity, "product_id is required")
	}
	if quantity < 0 || quantity > model.MaxQuantity {
		return nil, model.NewError(model.KindInvalidQuantity, "quantity must be between 0 and %d, got %d", model.MaxQuantity, quantity)
	}
	if threshold < 0 || threshold > model.MaxQuantity {
		return nil, model.NewError(model.KindInvalidQuantity, "low_stock_threshold must be between 0 and %d, got %d", model.MaxQuantity, threshold)
	}

	rec := &model.StockRecord{
		ID:                uid.New(),
		ProductID:         productID,
		QuantityAvailable: quantity,
		LowStockThreshold: threshold,
	}
	rec.Refresh(s.now())

	if err := s.records.CreateRecord(ctx, rec); err != nil {
		s.metrics.ObserveOperation("create", resultOf(err))
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewError(model.KindConflict, "product %s already has a stock record", productID)
		}
		return nil, fmt.Errorf("create stock record: %w", err)
	}
	s.metrics.ObserveOperation("create", "ok")

	s.log.Info("stock record created",
		zap.String("record_id", rec.ID),
		zap.String("product_id", rec.ProductID),
		zap.Int("quantity_available", rec.QuantityAvailable))
	return rec, nil
}

// ReserveStock moves quantity units from available to reserved.
func (s *StockService) ReserveStock(ctx context.Context, id string, quantity int) (*model.StockRecord, error) {
	return s.mutate(ctx, "reserve", id, func(rec *model.StockRecord) (*model.LedgerEntry, error) {
		return reserve(rec, quantity, s.now())
	})
}

// ReleaseStock moves quantity units from reserved back to available.
func (s *StockService) ReleaseStock(ctx context.Context, id string, quantity int) (*model.StockRecord, error) {
	return s.mutate(ctx, "release", id, func(rec *model.StockRecord) (*model.LedgerEntry, error) {
		return release(rec, quantity, s.now())
	})
}

// ConfirmSale moves quantity units from reserved to sold.
func (s *StockService) ConfirmSale(ctx context.Context, id string, quantity int) (*model.StockRecord, error) {
	return s.mutate(ctx, "confirm_sale", id, func(rec *model.StockRecord) (*model.LedgerEntry, error) {
		return confirmSale(rec, quantity, s.now())
	})
}

// SetAvailableQuantity replaces the available quantity. Setting the current
// value is a no-op and records nothing.
func (s *StockService) SetAvailableQuantity(ctx context.Context, id string, quantity int) (*model.StockRecord, error) {
	return s.mutate(ctx, "set_available", id, func(rec *model.StockRecord) (*model.LedgerEntry, error) {
		return setAvailable(rec, quantity, s.now())
	})
}

func (s *StockService) mutate(ctx context.Context, op, id string, fn repository.MutateFunc) (*model.StockRecord, error) {
	unlock := s.locks.Lock(id)
	rec, entry, err := s.records.MutateRecord(ctx, id, fn)
	unlock()

	if err != nil {
		s.metrics.ObserveOperation(op, resultOf(err))
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewError(model.KindNotFound, "stock record %s not found", id)
		}
		var se *model.StockError
		if errors.As(err, &se) {
			s.log.Debug("stock operation rejected",
				zap.String("operation", op),
				zap.String("record_id", id),
				zap.String("kind", string(se.Kind)),
				zap.String("reason", se.Message))
			return nil, se
		}
		s.log.Error("stock operation failed",
			zap.String("operation", op),
			zap.String("record_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("%s stock: %w", op, err)
	}

	s.metrics.ObserveOperation(op, "ok")
	if entry != nil {
		s.committed(ctx, rec, entry)
	}
	return rec, nil
}

// committed runs after a mutation is durable. Failures here are logged only;
// the ledger is already authoritative.
func (s *StockService) committed(ctx context.Context, rec *model.StockRecord, entry *model.LedgerEntry) {
	s.metrics.ObserveLedgerEntry(string(entry.EventType))

	if err := s.cache.Invalidate(ctx, rec.ProductID); err != nil {
		s.log.Warn("failed to invalidate stock snapshot",
			zap.String("product_id", rec.ProductID), zap.Error(err))
	}
	if s.notifier != nil {
		if err := s.notifier.Publish(ctx, *entry); err != nil {
			s.log.Warn("failed to publish ledger entry",
				zap.Int64("entry_id", entry.ID), zap.Error(err))
		}
	}

	s.log.Debug("ledger entry appended",
		zap.Int64("entry_id", entry.ID),
		zap.String("product_id", entry.ProductID),
		zap.String("event_type", string(entry.EventType)),
		zap.Int("previous_quantity", entry.PreviousQuantity),
		zap.Int("new_quantity", entry.NewQuantity))
}

// GetRecord returns a stock record by id.
func (s *StockService) GetRecord(ctx context.Context, id string) (*model.StockRecord, error) {
	rec, err := s.records.GetRecord(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewError(model.KindNotFound, "stock record %s not found", id)
		}
		return nil, fmt.Errorf("get stock record: %w", err)
	}
	return rec, nil
}

// ListRecords returns a page of stock records and the total count.
func (s *StockService) ListRecords(ctx context.Context, page, limit int) ([]model.StockRecord, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	records, total, err := s.records.ListRecords(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list stock records: %w", err)
	}
	return records, total, nil
}

// CheckStock returns snapshots for the given products in request order.
// Unknown products are omitted. Snapshots may be served from the cache.
func (s *StockService) CheckStock(ctx context.Context, productIDs []string) ([]model.StockSnapshot, error) {
	ids := uniqueIDs(productIDs)
	found := make(map[string]model.StockRecord, len(ids))

	var misses []string
	for _, id := range ids {
		if rec, ok := s.cache.Get(ctx, id); ok {
			found[id] = *rec
			continue
		}
		misses = append(misses, id)
	}

	if len(misses) > 0 {
		gens := make(map[string]uint64, len(misses))
		for _, id := range misses {
			gens[id] = s.cache.Generation(id)
		}
		records, err := s.records.GetRecordsByProduct(ctx, misses)
		if err != nil {
			return nil, fmt.Errorf("check stock: %w", err)
		}
		for _, rec := range records {
			found[rec.ProductID] = rec
			if err := s.cache.Put(ctx, rec, gens[rec.ProductID]); err != nil {
				s.log.Warn("failed to cache stock snapshot",
					zap.String("product_id", rec.ProductID), zap.Error(err))
			}
		}
	}

	snapshots := make([]model.StockSnapshot, 0, len(found))
	for _, id := range ids {
		if rec, ok := found[id]; ok {
			snapshots = append(snapshots, rec.Snapshot())
		}
	}
	return snapshots, nil
}

// RecentEvents returns the newest ledger entries of a record, newest first.
func (s *StockService) RecentEvents(ctx context.Context, id string, limit int) ([]model.LedgerEntry, error) {
	if limit <= 0 {
		limit = DefaultRecentEvents
	}
	if _, err := s.GetRecord(ctx, id); err != nil {
		return nil, err
	}
	entries, err := s.ledger.RecentByRecord(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	return entries, nil
}

// DeleteByProduct removes a product's stock record together with its ledger.
func (s *StockService) DeleteByProduct(ctx context.Context, productID string) (*model.StockRecord, error) {
	rec, err := s.records.DeleteByProduct(ctx, productID)
	if err != nil {
		s.metrics.ObserveOperation("delete", resultOf(err))
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewError(model.KindNotFound, "no stock record for product %s", productID)
		}
		return nil, fmt.Errorf("delete stock record: %w", err)
	}
	s.metrics.ObserveOperation("delete", "ok")

	if err := s.cache.Invalidate(ctx, productID); err != nil {
		s.log.Warn("failed to invalidate stock snapshot",
			zap.String("product_id", productID), zap.Error(err))
	}
	s.log.Info("stock record deleted",
		zap.String("record_id", rec.ID),
		zap.String("product_id", productID))
	return rec, nil
}

func resultOf(err error) string {
	if kind := model.KindOf(err); kind != "" {
		return strings.ToLower(string(kind))
	}
	if errors.Is(err, repository.ErrNotFound) {
		return "not_found"
	}
	if errors.Is(err, repository.ErrDuplicate) {
		return "conflict"
	}
	return "error"
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
