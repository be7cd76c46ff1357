// Package obs holds the prometheus instrumentation for index operations.
package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all metrics.
type Metrics struct {
	VectorInserts prometheus.Counter
	VectorDeletes prometheus.Counter
	SearchQueries prometheus.Counter
	SearchErrors  prometheus.Counter
	SearchLatency prometheus.Histogram
}

var (
	once     sync.Once
	instance *Metrics
)

// Shared returns the process-wide metrics instance. promauto registers
// against the default registry, so construction happens exactly once.
func Shared() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			VectorInserts: promauto.NewCounter(prometheus.CounterOpts{
				Name: "densevec_vector_inserts_total",
				Help: "Total vector insertions",
			}),
			VectorDeletes: promauto.NewCounter(prometheus.CounterOpts{
				Name: "densevec_vector_deletes_total",
				Help: "Total vector removals",
			}),
			SearchQueries: promauto.NewCounter(prometheus.CounterOpts{
				Name: "densevec_search_queries_total",
				Help: "Total search queries",
			}),
			SearchErrors: promauto.NewCounter(prometheus.CounterOpts{
				Name: "densevec_search_errors_total",
				Help: "Total search errors",
			}),
			SearchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
				Name: "densevec_search_latency_seconds",
				Help: "Search latency",
			}),
		}
	})
	return instance
}
