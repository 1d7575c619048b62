package repository

import (
	"context"
	"fmt"
	"time"

	"shopsy-inventory-api/internal/model"
)

// CreateSubscription registers an open push connection.
func (s *SQLStore) CreateSubscription(ctx context.Context, sub *model.Subscription) error {
	now := s.now()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.LastSeenAt = now

	query := s.dialect.bind(`
		INSERT INTO stock_subscriptions (id, session_id, product_id, last_event_id, subscribed_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?)`)

	_, err := s.db.ExecContext(ctx, query,
		sub.ID, sub.SessionID, sub.ProductID, sub.LastEventID, toMicros(sub.CreatedAt), toMicros(sub.LastSeenAt))
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// TouchSubscription stores the delivery cursor and refreshes last_seen_at.
func (s *SQLStore) TouchSubscription(ctx context.Context, id string, lastEventID int64) error {
	query := s.dialect.bind(`UPDATE stock_subscriptions SET last_event_id = ?, last_seen_at = ? WHERE id = ?`)

	if _, err := s.db.ExecContext(ctx, query, lastEventID, toMicros(s.now()), id); err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	return nil
}

// DeleteSubscription removes a subscription.
func (s *SQLStore) DeleteSubscription(ctx context.Context, id string) error {
	query := s.dialect.bind(`DELETE FROM stock_subscriptions WHERE id = ?`)

	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

// DeleteStaleSubscriptions removes subscriptions not seen within threshold.
func (s *SQLStore) DeleteStaleSubscriptions(ctx context.Context, threshold time.Duration) (int64, error) {
	cutoff := s.now().Add(-threshold)
	query := s.dialect.bind(`DELETE FROM stock_subscriptions WHERE last_seen_at < ?`)

	result, err := s.db.ExecContext(ctx, query, toMicros(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale subscriptions: %w", err)
	}
	return result.RowsAffected()
}

// CountSubscriptions returns the number of registered subscriptions.
func (s *SQLStore) CountSubscriptions(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM stock_subscriptions").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	return count, nil
}
