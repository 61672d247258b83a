package device

import (
	"fmt"
	"log/slog"
)

// New creates the device backend named by backend. An empty string or "auto"
// tries Metal first, then WebGPU, and falls back to the CPU reference
// backend, which is always available.
func New(backend string, logger *slog.Logger) (Device, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch backend {
	case "", "auto":
		if d, err := newMetalDevice(logger); err == nil {
			logger.Info("using Metal device backend")
			return d, nil
		}
		if d, err := newWebGPUDevice(logger); err == nil {
			logger.Info("using WebGPU device backend")
			return d, nil
		}
		logger.Info("using CPU device backend (no GPU available)")
		return NewCPUDevice(logger), nil
	case "cpu":
		return NewCPUDevice(logger), nil
	case "metal":
		return newMetalDevice(logger)
	case "webgpu":
		return newWebGPUDevice(logger)
	default:
		return nil, fmt.Errorf("unknown device backend %q", backend)
	}
}
