package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"shopsy-inventory-api/internal/logger"
	"shopsy-inventory-api/internal/repository"
)

// SweeperConfig holds configuration for the subscription sweeper.
type SweeperConfig struct {
	// StaleAfter is how long a subscription may go unseen before removal.
	StaleAfter time.Duration

	// Interval is how often the sweep runs.
	Interval time.Duration
}

// DefaultSweeperConfig returns default sweeper configuration.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		StaleAfter: 10 * time.Minute,
		Interval:   5 * time.Minute,
	}
}

// SubscriptionSweeper periodically removes subscriptions left behind by
// connections that ended without cleanup, such as a crashed instance.
type SubscriptionSweeper struct {
	repo      repository.SubscriptionRepository
	config    SweeperConfig
	log       *zap.Logger
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex
}

// NewSubscriptionSweeper creates a new subscription sweeper.
func NewSubscriptionSweeper(repo repository.SubscriptionRepository, config SweeperConfig, log *zap.Logger) *SubscriptionSweeper {
	defaults := DefaultSweeperConfig()
	if config.StaleAfter <= 0 {
		config.StaleAfter = defaults.StaleAfter
	}
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}

	return &SubscriptionSweeper{
		repo:   repo,
		config: config,
		log:    logger.OrNop(log).Named("sweeper"),
		stopCh: make(chan struct{}),
	}
}

// Start begins sweeping in the background. The first sweep runs immediately.
func (s *SubscriptionSweeper) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.config.Interval)
	s.mu.Unlock()

	s.log.Info("subscription sweeper started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("stale_after", s.config.StaleAfter))

	go s.run()
}

func (s *SubscriptionSweeper) run() {
	s.sweep()
	for {
		select {
		case <-s.ticker.C:
			s.sweep()
		case <-s.stopCh:
			s.log.Info("subscription sweeper stopped")
			return
		}
	}
}

func (s *SubscriptionSweeper) sweep() {
	removed, err := s.RunNow(context.Background())
	if err != nil {
		s.log.Error("subscription sweep failed", zap.Error(err))
		return
	}
	if removed > 0 {
		s.log.Info("removed stale subscriptions", zap.Int64("count", removed))
	} else {
		s.log.Debug("no stale subscriptions")
	}
}

// Stop stops the sweeper.
func (s *SubscriptionSweeper) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
	})
}

// RunNow performs one sweep and returns the number of removed subscriptions.
func (s *SubscriptionSweeper) RunNow(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	return s.repo.DeleteStaleSubscriptions(ctx, s.config.StaleAfter)
}
