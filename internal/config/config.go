package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Logger struct {
		Verbosity string `yaml:"verbosity"`
	} `yaml:"logger"`
	Device struct {
		// Backend selects the device backend: "auto", "cpu", "metal" or
		// "webgpu". Empty means auto.
		Backend string `yaml:"backend"`
	} `yaml:"device"`
	Metrics struct {
		ListenAddress string `yaml:"listenAddress"`
	} `yaml:"metrics"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Logger.Verbosity = "info"
	cfg.Device.Backend = "auto"
	cfg.Metrics.ListenAddress = ":9090"
	return cfg
}

// LoadConfig reads a YAML configuration file. A missing file yields the
// defaults; a malformed file is an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if cfg.Logger.Verbosity == "" {
		cfg.Logger.Verbosity = "info"
	}
	if cfg.Device.Backend == "" {
		cfg.Device.Backend = "auto"
	}
	return cfg, nil
}
