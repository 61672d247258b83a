//go:build !metal || !darwin
// +build !metal !darwin

package device

import (
	"fmt"
	"log/slog"
)

// newMetalDevice reports Metal as unavailable when the metal build tag is not
// present or the platform is not darwin.
func newMetalDevice(_ *slog.Logger) (Device, error) {
	return nil, fmt.Errorf("metal backend not available: compiled without Metal support")
}
