package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsCounters(t *testing.T) {
	m := MustNewMetrics(prometheus.NewRegistry())

	m.ObserveOperation("reserve", "ok")
	m.ObserveOperation("reserve", "ok")
	m.ObserveOperation("reserve", "insufficient_stock")
	m.ObserveLedgerEntry("low_stock_warning")
	m.SubscriberOpened()
	m.SubscriberOpened()
	m.SubscriberClosed("client_closed")
	m.EntriesDelivered(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.stockOperations.WithLabelValues("reserve", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ledgerEntries.WithLabelValues("low_stock_warning")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.feedSubscribers))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.feedDelivered))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.feedDisconnects.WithLabelValues("client_closed")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveOperation("reserve", "ok")
	m.SubscriberOpened()
	m.SubscriberClosed("x")
	m.EntriesDelivered(1)
}
