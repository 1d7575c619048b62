package notify

import (
	"context"
	"sync"

	"shopsy-inventory-api/internal/model"
)

// LocalNotifier broadcasts wake-ups to subscribers within this process.
type LocalNotifier struct {
	mu     sync.Mutex
	subs   map[chan struct{}]struct{}
	closed bool
}

// NewLocalNotifier creates an in-process notifier.
func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{subs: make(map[chan struct{}]struct{})}
}

// Publish wakes every subscriber.
func (n *LocalNotifier) Publish(ctx context.Context, entry model.LedgerEntry) error {
	n.Broadcast()
	return nil
}

// Broadcast wakes every subscriber without blocking. A subscriber that has
// not consumed its previous wake-up keeps a single pending signal.
func (n *LocalNotifier) Broadcast() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribe registers a wake-up channel.
func (n *LocalNotifier) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	n.mu.Lock()
	if !n.closed {
		n.subs[ch] = struct{}{}
	}
	n.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, ch)
			n.mu.Unlock()
		})
	}
}

// Subscribers returns the number of registered channels.
func (n *LocalNotifier) Subscribers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

// Close drops all subscribers. Their loops fall back to polling.
func (n *LocalNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.closed = true
	n.subs = make(map[chan struct{}]struct{})
	return nil
}

var _ Notifier = (*LocalNotifier)(nil)
