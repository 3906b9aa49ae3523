// Package metrics exposes prometheus instruments for route operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Recorder counts and times route operations.
type Recorder struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	volume     *prometheus.CounterVec
}

// NewRecorder creates the payroute instruments and registers them with reg.
// A nil reg leaves the instruments unregistered.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payroute_route_operations_total",
			Help: "Route operations by operation and result.",
		}, []string{"operation", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "payroute_route_operation_duration_seconds",
			Help:    "Time taken by route operations, including the ledger commit.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		volume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payroute_transfers_total",
			Help: "Committed ledger transfers by purpose.",
		}, []string{"purpose"}),
	}
	if reg != nil {
		reg.MustRegister(r.operations, r.duration, r.volume)
	}
	return r
}

// Observe records one finished operation.
func (r *Recorder) Observe(operation string, started time.Time, err error) {
	if r == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	r.operations.WithLabelValues(operation, result).Inc()
	r.duration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// CountTransfer records a committed transfer.
func (r *Recorder) CountTransfer(purpose string) {
	if r == nil {
		return
	}
	r.volume.WithLabelValues(purpose).Inc()
}
