package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestBridgeMetrics(t *testing.T) {
	t.Run("KernelCompiles", func(t *testing.T) {
		before := testutil.ToFloat64(KernelCompiles.WithLabelValues("ok"))
		KernelCompiles.WithLabelValues("ok").Inc()
		KernelCompiles.WithLabelValues("error").Inc()
		assert.Equal(t, before+1, testutil.ToFloat64(KernelCompiles.WithLabelValues("ok")))
	})

	t.Run("Dispatches", func(t *testing.T) {
		before := testutil.ToFloat64(Dispatches.WithLabelValues("error"))
		Dispatches.WithLabelValues("error").Inc()
		assert.Equal(t, before+1, testutil.ToFloat64(Dispatches.WithLabelValues("error")))
	})

	t.Run("DispatchDuration", func(t *testing.T) {
		assert.NotPanics(t, func() {
			DispatchDuration.Observe(0.0042)
		})
	})

	t.Run("BufferGauges", func(t *testing.T) {
		BuffersLive.Set(3)
		BufferBytesLive.Set(4096)
		assert.Equal(t, float64(3), testutil.ToFloat64(BuffersLive))
		assert.Equal(t, float64(4096), testutil.ToFloat64(BufferBytesLive))
	})
}
