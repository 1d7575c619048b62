// Package feed relays committed ledger entries to subscribers, either over a
// long-lived push stream or through timestamp-cursor polls.
package feed

import (
	"context"
	"time"

	"go.uber.org/zap"

	"shopsy-inventory-api/internal/logger"
	"shopsy-inventory-api/internal/metrics"
	"shopsy-inventory-api/internal/model"
	"shopsy-inventory-api/internal/notify"
	"shopsy-inventory-api/internal/repository"
	"shopsy-inventory-api/pkg/uid"
)

// Disconnect reasons reported to metrics.
const (
	reasonClientClosed = "client_closed"
	reasonWriteError   = "write_error"
	reasonReadError    = "read_error"
)

// Message is a control message written to a push stream.
type Message struct {
	Type    string `json:"type"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

// Connected is the first message of every push stream.
var Connected = Message{Type: "connection", Status: "connected"}

// Sink is the transport side of one push subscription. Implementations write
// each value as a single frame and must surface write failures.
type Sink interface {
	// Send writes one JSON message: a Message or a model.LedgerEntry.
	Send(v interface{}) error

	// Heartbeat writes a keep-alive frame carrying no data.
	Heartbeat() error
}

// Config holds change feed settings.
type Config struct {
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	BatchSize         int
	RecentPerProduct  int
	RecentGlobal      int
	PollWindow        time.Duration

	// CommitGrace is how long a push loop keeps looking below its newest
	// delivered id for entries whose transactions committed late.
	CommitGrace time.Duration
}

// DefaultConfig returns default change feed configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval:      time.Second,
		HeartbeatInterval: 30 * time.Second,
		BatchSize:         500,
		RecentPerProduct:  10,
		RecentGlobal:      20,
		PollWindow:        10 * time.Second,
		CommitGrace:       5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.RecentPerProduct <= 0 {
		c.RecentPerProduct = d.RecentPerProduct
	}
	if c.RecentGlobal <= 0 {
		c.RecentGlobal = d.RecentGlobal
	}
	if c.PollWindow <= 0 {
		c.PollWindow = d.PollWindow
	}
	if c.CommitGrace <= 0 {
		c.CommitGrace = d.CommitGrace
	}
	return c
}

// Feed serves the push and pull sides of the change feed. It only reads
// committed ledger entries and never touches stock records.
type Feed struct {
	ledger   repository.LedgerRepository
	subs     repository.SubscriptionRepository
	notifier notify.Notifier
	metrics  *metrics.Metrics
	log      *zap.Logger
	cfg      Config
	now      func() time.Time
}

// New creates a change feed. notifier and m may be nil.
func New(ledger repository.LedgerRepository, subs repository.SubscriptionRepository, notifier notify.Notifier, m *metrics.Metrics, cfg Config, log *zap.Logger) *Feed {
	return &Feed{
		ledger:   ledger,
		subs:     subs,
		notifier: notifier,
		metrics:  m,
		log:      logger.OrNop(log).Named("feed"),
		cfg:      cfg.withDefaults(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Stream runs one push subscription until ctx is cancelled or a write to sink
// fails. It returns nil when the client went away and a TRANSPORT_ERROR
// StockError when delivery failed. The subscription record is removed on
// every exit path.
func (f *Feed) Stream(ctx context.Context, sessionID, productID string, sink Sink) error {
	if sessionID == "" {
		sessionID = "anonymous"
	}
	sub := &model.Subscription{
		ID:        uid.New(),
		SessionID: sessionID,
		ProductID: productID,
	}
	if err := f.subs.CreateSubscription(ctx, sub); err != nil {
		// Delivery does not depend on the bookkeeping row.
		f.log.Warn("failed to register subscription", zap.String("session_id", sessionID), zap.Error(err))
		sub = nil
	}

	log := f.log.With(zap.String("session_id", sessionID), zap.String("product_id", productID))
	f.metrics.SubscriberOpened()
	log.Info("push subscriber connected")

	reason := reasonClientClosed
	defer func() {
		if sub != nil {
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := f.subs.DeleteSubscription(cleanupCtx, sub.ID); err != nil {
				log.Warn("failed to remove subscription", zap.String("subscription_id", sub.ID), zap.Error(err))
			}
			cancel()
		}
		f.metrics.SubscriberClosed(reason)
		log.Info("push subscriber disconnected", zap.String("reason", reason))
	}()

	var subID string
	if sub != nil {
		subID = sub.ID
	}
	s := &stream{
		feed:   f,
		sink:   sink,
		log:    log,
		subID:  subID,
		filter: model.LedgerFilter{ProductID: productID},
		sent:   make(map[int64]time.Time),
	}
	err := s.run(ctx)
	switch {
	case err == nil:
	case model.KindOf(err) == model.KindTransport:
		reason = reasonWriteError
	default:
		reason = reasonReadError
	}
	return err
}

// stream is the state of one push loop. The cursor is local to it.
//
// Ids are allocated before commit, so a lower id can become visible after a
// higher one was sent. Every id at or below floor is settled; ids above it
// are re-read on each poll and the ones in sent are skipped.
type stream struct {
	feed   *Feed
	sink   Sink
	log    *zap.Logger
	subID  string
	filter model.LedgerFilter
	cursor int64
	floor  int64
	sent   map[int64]time.Time
}

func (s *stream) run(ctx context.Context) error {
	cfg := s.feed.cfg

	if err := s.send(Connected); err != nil {
		return err
	}

	limit := cfg.RecentGlobal
	if s.filter.ProductID != "" {
		limit = cfg.RecentPerProduct
	}
	recent, err := s.feed.ledger.Recent(ctx, s.filter, limit)
	if err != nil {
		return s.readFailed(ctx, err)
	}
	if len(recent) > 0 {
		s.floor = recent[len(recent)-1].ID - 1
	}
	now := s.feed.now()
	for i := len(recent) - 1; i >= 0; i-- {
		if err := s.deliver(recent[i], now); err != nil {
			return err
		}
	}
	s.feed.metrics.EntriesDelivered(len(recent))

	var wake <-chan struct{}
	if s.feed.notifier != nil {
		ch, release := s.feed.notifier.Subscribe()
		defer release()
		wake = ch
	}

	poll := time.NewTicker(cfg.PollInterval)
	defer poll.Stop()
	heartbeat := time.NewTicker(cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-heartbeat.C:
			if err := s.sink.Heartbeat(); err != nil {
				return model.WrapError(model.KindTransport, err, "heartbeat failed")
			}
			continue
		case <-poll.C:
		case <-wake:
		}

		if err := s.catchUp(ctx); err != nil {
			return err
		}
		s.touch(ctx)
	}
}

// catchUp delivers every unsent entry above the floor in ascending id order,
// one batch at a time, then settles what is past the commit grace.
func (s *stream) catchUp(ctx context.Context) error {
	batchSize := s.feed.cfg.BatchSize
	from := s.floor
	now := s.feed.now()
	for {
		batch, err := s.feed.ledger.After(ctx, s.filter, from, batchSize)
		if err != nil {
			return s.readFailed(ctx, err)
		}
		delivered := 0
		for _, entry := range batch {
			from = entry.ID
			if _, ok := s.sent[entry.ID]; ok {
				continue
			}
			if err := s.deliver(entry, now); err != nil {
				return err
			}
			delivered++
		}
		s.feed.metrics.EntriesDelivered(delivered)
		if len(batch) < batchSize || ctx.Err() != nil {
			break
		}
	}
	s.settle(now)
	return nil
}

func (s *stream) deliver(entry model.LedgerEntry, now time.Time) error {
	if err := s.send(entry); err != nil {
		return err
	}
	s.sent[entry.ID] = now
	if entry.ID > s.cursor {
		s.cursor = entry.ID
	}
	return nil
}

// settle raises the floor to the highest id sent at least CommitGrace ago.
// Any id below it was allocated before that entry was seen, so its
// transaction has had the whole grace period to commit.
func (s *stream) settle(now time.Time) {
	floor := s.floor
	for id, at := range s.sent {
		if id > floor && now.Sub(at) >= s.feed.cfg.CommitGrace {
			floor = id
		}
	}
	if floor == s.floor {
		return
	}
	s.floor = floor
	for id := range s.sent {
		if id <= floor {
			delete(s.sent, id)
		}
	}
}

func (s *stream) touch(ctx context.Context) {
	if s.subID == "" || ctx.Err() != nil {
		return
	}
	if err := s.feed.subs.TouchSubscription(ctx, s.subID, s.cursor); err != nil && ctx.Err() == nil {
		s.log.Warn("failed to update subscription cursor", zap.Error(err))
	}
}

func (s *stream) send(v interface{}) error {
	if err := s.sink.Send(v); err != nil {
		return model.WrapError(model.KindTransport, err, "push delivery failed")
	}
	return nil
}

// readFailed reports a ledger read error to the client. A read aborted by
// the client disconnecting is a normal close.
func (s *stream) readFailed(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	s.log.Error("ledger read failed", zap.Error(err))
	_ = s.sink.Send(Message{Type: "error", Message: err.Error()})
	return err
}

// Changes returns entries created at or after since, ascending, optionally
// restricted to one product.
func (f *Feed) Changes(ctx context.Context, since time.Time, productID string) ([]model.LedgerEntry, error) {
	entries, err := f.ledger.Since(ctx, model.LedgerFilter{ProductID: productID}, since)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	return entries, nil
}
