package feed

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shopsy-inventory-api/internal/model"
)

// fakeLedger hands out ids in insert order but only returns entries that
// were committed, like a database with concurrent writers.
type fakeLedger struct {
	mu        sync.Mutex
	entries   map[int64]model.LedgerEntry
	committed map[int64]bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{entries: map[int64]model.LedgerEntry{}, committed: map[int64]bool{}}
}

func (l *fakeLedger) insert(id int64, productID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[id] = model.LedgerEntry{ID: id, ProductID: productID, EventType: model.EventStockReserved}
}

func (l *fakeLedger) commit(ids ...int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range ids {
		l.committed[id] = true
	}
}

func (l *fakeLedger) visible(filter model.LedgerFilter) []model.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.LedgerEntry
	for id, e := range l.entries {
		if l.committed[id] && (filter.ProductID == "" || filter.ProductID == e.ProductID) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (l *fakeLedger) RecentByRecord(ctx context.Context, recordID string, limit int) ([]model.LedgerEntry, error) {
	return nil, nil
}

func (l *fakeLedger) Recent(ctx context.Context, filter model.LedgerFilter, limit int) ([]model.LedgerEntry, error) {
	all := l.visible(filter)
	out := []model.LedgerEntry{}
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (l *fakeLedger) After(ctx context.Context, filter model.LedgerFilter, afterID int64, limit int) ([]model.LedgerEntry, error) {
	out := []model.LedgerEntry{}
	for _, e := range l.visible(filter) {
		if e.ID > afterID && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *fakeLedger) Since(ctx context.Context, filter model.LedgerFilter, since time.Time) ([]model.LedgerEntry, error) {
	return l.visible(filter), nil
}

type nopSubscriptions struct{}

func (nopSubscriptions) CreateSubscription(ctx context.Context, sub *model.Subscription) error {
	return nil
}

func (nopSubscriptions) TouchSubscription(ctx context.Context, id string, lastEventID int64) error {
	return nil
}

func (nopSubscriptions) DeleteSubscription(ctx context.Context, id string) error { return nil }

func (nopSubscriptions) DeleteStaleSubscriptions(ctx context.Context, threshold time.Duration) (int64, error) {
	return 0, nil
}

func (nopSubscriptions) CountSubscriptions(ctx context.Context) (int64, error) { return 0, nil }

func ids(entries []model.LedgerEntry) []int64 {
	out := make([]int64, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestStreamDeliversEntryCommittedAfterHigherID(t *testing.T) {
	ledger := newFakeLedger()
	ledger.insert(1, "prod-a")
	ledger.commit(1)

	f := New(ledger, nopSubscriptions{}, nil, nil, Config{PollInterval: 10 * time.Millisecond, CommitGrace: time.Minute}, nil)
	sink := newRecordingSink()
	cancel, done := runStream(t, f, "", sink)
	sink.waitEntries(t, 1)

	// Id 2 is taken by a transaction that commits after id 3.
	ledger.insert(2, "prod-a")
	ledger.insert(3, "prod-b")
	ledger.commit(3)
	sink.waitEntries(t, 2)

	ledger.commit(2)
	got := sink.waitEntries(t, 3)
	assert.Equal(t, []int64{1, 3, 2}, ids(got))

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, sink.entries(), 3, "entries must not be sent twice")

	cancel()
	require.NoError(t, <-done)
}

func TestCatchUpSettlesAfterCommitGrace(t *testing.T) {
	ledger := newFakeLedger()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f := New(ledger, nopSubscriptions{}, nil, nil, Config{BatchSize: 2, CommitGrace: 5 * time.Second}, nil)
	f.now = func() time.Time { return now }

	sink := newRecordingSink()
	s := &stream{feed: f, sink: sink, log: zap.NewNop(), sent: map[int64]time.Time{}}
	ctx := context.Background()

	for id := int64(1); id <= 5; id++ {
		ledger.insert(id, "prod-a")
	}
	ledger.commit(1, 2, 4, 5)

	require.NoError(t, s.catchUp(ctx))
	assert.Equal(t, []int64{1, 2, 4, 5}, ids(sink.entries()))
	assert.Equal(t, int64(5), s.cursor)
	assert.Zero(t, s.floor)

	// Within the grace period nothing settles and id 3 is still picked up.
	now = now.Add(time.Second)
	ledger.commit(3)
	require.NoError(t, s.catchUp(ctx))
	assert.Equal(t, []int64{1, 2, 4, 5, 3}, ids(sink.entries()))
	assert.Equal(t, int64(5), s.cursor)

	now = now.Add(5 * time.Second)
	require.NoError(t, s.catchUp(ctx))
	assert.Equal(t, int64(5), s.floor)
	assert.Empty(t, s.sent)
	assert.Len(t, sink.entries(), 5)

	ledger.insert(6, "prod-a")
	ledger.commit(6)
	require.NoError(t, s.catchUp(ctx))
	assert.Equal(t, []int64{1, 2, 4, 5, 3, 6}, ids(sink.entries()))
}
