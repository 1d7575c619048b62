package notify

import (
	"context"
	"strconv"
	"sync"

	"shopsy-inventory-api/internal/logger"
	"shopsy-inventory-api/internal/model"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisNotifier publishes ledger appends on a Redis channel so push loops on
// every instance wake up. One SUBSCRIBE per process is fanned out locally.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	pubsub  *redis.PubSub
	local   *LocalNotifier
	log     *zap.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// NewRedisNotifier subscribes to <prefix>:ledger. The client is owned by the caller.
func NewRedisNotifier(ctx context.Context, client *redis.Client, prefix string, log *zap.Logger) (*RedisNotifier, error) {
	channel := prefix + ":ledger"

	pubsub := client.Subscribe(ctx, channel)
	// wait for the subscription confirmation so early publishes are not lost
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	n := &RedisNotifier{
		client:  client,
		channel: channel,
		pubsub:  pubsub,
		local:   NewLocalNotifier(),
		log:     logger.OrNop(log).Named("redis_notifier"),
		done:    make(chan struct{}),
	}

	go n.relay()

	n.log.Info("subscribed", zap.String("channel", channel))
	return n, nil
}

func (n *RedisNotifier) relay() {
	defer close(n.done)

	for msg := range n.pubsub.Channel() {
		n.log.Debug("ledger append announced", zap.String("entry_id", msg.Payload))
		n.local.Broadcast()
	}
}

// Publish announces the entry id on the Redis channel.
func (n *RedisNotifier) Publish(ctx context.Context, entry model.LedgerEntry) error {
	return n.client.Publish(ctx, n.channel, strconv.FormatInt(entry.ID, 10)).Err()
}

// Subscribe returns a local wake-up channel.
func (n *RedisNotifier) Subscribe() (<-chan struct{}, func()) {
	return n.local.Subscribe()
}

// Close unsubscribes from Redis and drops local subscribers.
func (n *RedisNotifier) Close() error {
	var err error
	n.closeOnce.Do(func() {
		err = n.pubsub.Close()
		<-n.done
		n.local.Close()
	})
	return err
}

var _ Notifier = (*RedisNotifier)(nil)
