package logger

import (
	"go.uber.org/zap"
)

// New builds the process logger at the given verbosity ("debug", "info",
// "warn", "error"). An empty verbosity defaults to info.
func New(verbosity string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	level, err := zap.ParseAtomicLevel(verbosity)
	if err != nil {
		return nil, err
	}
	config.Level = level
	config.DisableStacktrace = true
	return config.Build()
}
