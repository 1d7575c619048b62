package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "shopsy"

// Metrics exposes Prometheus collectors for stock operations and the change feed.
type Metrics struct {
	stockOperations *prometheus.CounterVec
	ledgerEntries   *prometheus.CounterVec
	feedSubscribers prometheus.Gauge
	feedDelivered   prometheus.Counter
	feedDisconnects *prometheus.CounterVec
}

// MustNewMetrics registers the collectors with reg. Tests should pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		stockOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stock",
				Name:      "operations_total",
				Help:      "Stock operations by operation and result.",
			},
			[]string{"operation", "result"},
		),
		ledgerEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stock",
				Name:      "ledger_entries_total",
				Help:      "Ledger entries appended by event type.",
			},
			[]string{"event_type"},
		),
		feedSubscribers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "feed",
				Name:      "subscribers",
				Help:      "Open push subscriptions on this instance.",
			},
		),
		feedDelivered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "feed",
				Name:      "entries_delivered_total",
				Help:      "Ledger entries written to push subscribers.",
			},
		),
		feedDisconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "feed",
				Name:      "disconnects_total",
				Help:      "Push subscriptions closed, by reason.",
			},
			[]string{"reason"},
		),
	}

	reg.MustRegister(m.stockOperations, m.ledgerEntries, m.feedSubscribers, m.feedDelivered, m.feedDisconnects)
	return m
}

// ObserveOperation counts a stock operation outcome. Nil-safe.
func (m *Metrics) ObserveOperation(operation, result string) {
	if m == nil {
		return
	}
	m.stockOperations.WithLabelValues(operation, result).Inc()
}

// ObserveLedgerEntry counts an appended ledger entry.
func (m *Metrics) ObserveLedgerEntry(eventType string) {
	if m == nil {
		return
	}
	m.ledgerEntries.WithLabelValues(eventType).Inc()
}

// SubscriberOpened increments the open subscriber gauge.
func (m *Metrics) SubscriberOpened() {
	if m == nil {
		return
	}
	m.feedSubscribers.Inc()
}

// SubscriberClosed decrements the gauge and counts the disconnect reason.
func (m *Metrics) SubscriberClosed(reason string) {
	if m == nil {
		return
	}
	m.feedSubscribers.Dec()
	m.feedDisconnects.WithLabelValues(reason).Inc()
}

// EntriesDelivered counts entries pushed to a subscriber.
func (m *Metrics) EntriesDelivered(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.feedDelivered.Add(float64(n))
}
