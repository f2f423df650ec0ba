package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"lancechain/core/types"
)

type eventMetrics struct {
	events    *prometheus.CounterVec
	transfers prometheus.Counter
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking committed ledger events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lance",
				Subsystem: "events",
				Name:      "committed_total",
				Help:      "Count of committed events segmented by event type.",
			}, []string{"type"}),
			transfers: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lance",
				Subsystem: "events",
				Name:      "transfers_total",
				Help:      "Count of native unit transfers.",
			}),
		}
		prometheus.MustRegister(eventRegistry.events, eventRegistry.transfers)
	})
	return eventRegistry
}

// Record counts each committed event by type.
func (m *eventMetrics) Record(evts []types.Event) {
	if m == nil {
		return
	}
	for _, evt := range evts {
		normalized := strings.TrimSpace(evt.Type)
		if normalized == "" {
			normalized = "unknown"
		}
		m.events.WithLabelValues(normalized).Inc()
		if normalized == "transfer.native" {
			m.transfers.Inc()
		}
	}
}
