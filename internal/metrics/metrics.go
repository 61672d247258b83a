package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Kernel compilation metrics
	KernelCompiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_kernel_compiles_total",
		Help: "The total number of kernel compilations by status",
	}, []string{"status"})

	// Dispatch metrics
	Dispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_dispatches_total",
		Help: "The total number of compute dispatches by status",
	}, []string{"status"})

	DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bridge_dispatch_duration_seconds",
		Help:    "Wall-clock duration of blocking compute dispatches",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 18), // 100µs to ~13s
	})

	// Buffer registry metrics
	BuffersLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_buffers_live",
		Help: "Number of device buffers currently registered",
	})

	BufferBytesLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_buffer_bytes_live",
		Help: "Total bytes of device memory currently registered",
	})
)
