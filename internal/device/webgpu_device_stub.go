//go:build !webgpu
// +build !webgpu

package device

import (
	"fmt"
	"log/slog"
)

// newWebGPUDevice reports WebGPU as unavailable when the webgpu build tag is
// not present.
func newWebGPUDevice(_ *slog.Logger) (Device, error) {
	return nil, fmt.Errorf("webgpu backend not available: compiled without WebGPU support")
}
