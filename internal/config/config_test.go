package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "info", cfg.Logger.Verbosity)
		assert.Equal(t, "auto", cfg.Device.Backend)
		assert.Equal(t, ":9090", cfg.Metrics.ListenAddress)
	})

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		data := `
logger:
  verbosity: debug
device:
  backend: cpu
metrics:
  listenAddress: ":9999"
`
		require.NoError(t, os.WriteFile(path, []byte(data), 0644))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Logger.Verbosity)
		assert.Equal(t, "cpu", cfg.Device.Backend)
		assert.Equal(t, ":9999", cfg.Metrics.ListenAddress)
	})

	t.Run("partial file keeps defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("device:\n  backend: webgpu\n"), 0644))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "webgpu", cfg.Device.Backend)
		assert.Equal(t, "info", cfg.Logger.Verbosity)
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("{not yaml"), 0644))

		_, err := LoadConfig(path)
		require.Error(t, err)
	})
}
