// Package metrics defines Prometheus collectors for the swap policy daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Swap transition metrics
	SwapEnablesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapd_swap_enables_total",
			Help: "Total VMM-swap enable decisions",
		},
		[]string{"vm_id"},
	)

	SwapDisablesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapd_swap_disables_total",
			Help: "Total VMM-swap disable decisions",
		},
		[]string{"vm_id"},
	)

	SwapControlErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swapd_swap_control_errors_total",
			Help: "Errors from the underlying swap control mechanism",
		},
		[]string{"vm_id", "action"},
	)

	// Prediction metrics
	PredictedEnabledSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "swapd_predicted_enabled_seconds",
			Help:    "Predicted remaining swap-enabled duration at decision time",
			Buckets: []float64{60, 300, 900, 3600, 4 * 3600, 12 * 3600, 24 * 3600, 7 * 24 * 3600},
		},
	)

	// Engine metrics
	TrackedVMs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "swapd_tracked_vms",
			Help: "Number of VMs currently tracked by the policy engine",
		},
	)

	HostMemoryUsedPercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "swapd_host_memory_used_percent",
			Help: "Host memory usage sampled on the last engine cycle",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		SwapEnablesTotal,
		SwapDisablesTotal,
		SwapControlErrors,
		PredictedEnabledSeconds,
		TrackedVMs,
		HostMemoryUsedPercent,
	)
}
