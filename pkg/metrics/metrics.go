package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oci-utils/vnic-agent/pkg/types"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
	// resultAborted is a pass that stopped before touching every interface
	resultAborted = "aborted"
)

var metricReconcilePasses = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: types.MetricNamespace,
	Subsystem: types.MetricSubsystemReconcile,
	Name:      "passes_total",
	Help:      "The number of reconciliation passes by result"},
	[]string{
		"result",
	},
)

var metricInterfaceActions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: types.MetricNamespace,
	Subsystem: types.MetricSubsystemReconcile,
	Name:      "interface_actions_total",
	Help:      "The number of actions taken on interfaces by action and result"},
	[]string{
		"action",
		"result",
	},
)

var metricReconcileDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
	Namespace: types.MetricNamespace,
	Subsystem: types.MetricSubsystemReconcile,
	Name:      "duration_seconds",
	Help:      "The duration of a reconciliation pass",
	Buckets:   prometheus.ExponentialBuckets(.01, 2, 12),
})

var metricInterfaces = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: types.MetricNamespace,
	Name:      "interfaces",
	Help:      "The number of interfaces found by the last pass, by configuration state"},
	[]string{
		"state",
	},
)

// RegisterMetrics registers every agent metric with registry
func RegisterMetrics(registry prometheus.Registerer) {
	registry.MustRegister(
		metricReconcilePasses,
		metricInterfaceActions,
		metricReconcileDuration,
		metricInterfaces,
	)
}

func resultOf(err error) string {
	if err != nil {
		return resultFailure
	}
	return resultSuccess
}

// RecordPass records a completed pass. aborted is true when the pass
// returned an error, failed when some interface action failed.
func RecordPass(aborted, failed bool, duration time.Duration) {
	result := resultSuccess
	switch {
	case aborted:
		result = resultAborted
	case failed:
		result = resultFailure
	}
	metricReconcilePasses.WithLabelValues(result).Inc()
	metricReconcileDuration.Observe(duration.Seconds())
}

// RecordAction records the outcome of one action on one interface
func RecordAction(action string, err error) {
	metricInterfaceActions.WithLabelValues(action, resultOf(err)).Inc()
}

// SetInterfaces replaces the per state interface counts
func SetInterfaces(byState map[string]int) {
	metricInterfaces.Reset()
	for state, n := range byState {
		metricInterfaces.WithLabelValues(state).Set(float64(n))
	}
}
