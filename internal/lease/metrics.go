package lease

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records lifecycle operation outcomes and latency.
type Metrics struct {
	operations    *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	numberRetries prometheus.Counter
}

// NewMetrics registers the lease collectors on reg. A nil reg leaves them
// unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leasekeeper",
			Name:      "contract_operations_total",
			Help:      "Contract lifecycle operations by outcome.",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "leasekeeper",
			Name:      "contract_operation_duration_seconds",
			Help:      "Contract lifecycle operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		numberRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "leasekeeper",
			Name:      "contract_number_retries_total",
			Help:      "Contract creations retried after a contract number collision.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.duration, m.numberRetries)
	}
	return m
}

func (m *Metrics) observe(op string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(op).Observe(time.Since(started).Seconds())
	m.operations.WithLabelValues(op, outcome(err)).Inc()
}

func (m *Metrics) numberRetry() {
	if m == nil {
		return
	}
	m.numberRetries.Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrAuditWrite):
		return "audit_write_failure"
	default:
		return "storage_error"
	}
}
