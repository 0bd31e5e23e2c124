// Package metrics records repository operations of GoRollup as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/chararch/gorollup"
)

const (
	// MetricsNamespace is the namespace for all GoRollup metrics.
	MetricsNamespace = "gorollup"

	// MetricsSubsystem is the subsystem for repository metrics.
	MetricsSubsystem = "metadata_repository"
)

// outcome label values
const (
	OutcomeOK       = "ok"
	OutcomeConflict = "conflict"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Metrics holds the repository metrics of one backend
type Metrics struct {
	backend string

	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the repository metrics of backend.
// A nil registerer creates collectors that are not registered anywhere.
func NewMetrics(reg prometheus.Registerer, backend string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		backend: backend,
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Subsystem: MetricsSubsystem,
				Name:      "operations_total",
				Help:      "Total number of metadata repository operations by outcome",
			},
			[]string{"backend", "operation", "outcome"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: MetricsNamespace,
				Subsystem: MetricsSubsystem,
				Name:      "operation_duration_seconds",
				Help:      "Duration of metadata repository operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"backend", "operation"},
		),
	}
}

// Observe records one operation started at start and finished with err
func (m *Metrics) Observe(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(m.backend, operation, Outcome(err)).Inc()
	m.OperationDuration.WithLabelValues(m.backend, operation).Observe(time.Since(start).Seconds())
}

// Outcome classifies err into an outcome label value
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case gorollup.IsStaleVersion(err):
		return OutcomeConflict
	case gorollup.IsNotFound(err):
		return OutcomeNotFound
	default:
		return OutcomeError
	}
}
