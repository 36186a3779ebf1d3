package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand ${VAR} environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config and applies default values.
func LoadWithDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Reload re-reads path and reports whether the result differs from prev
// in a way the running process can apply. Only the network list is
// compared: component settings take effect on restart.
func Reload(path string, prev *Config) (*Config, bool, error) {
	cfg, err := LoadAndValidate(path)
	if err != nil {
		return nil, false, err
	}
	if prev == nil {
		return cfg, true, nil
	}
	return cfg, !sameNetworks(prev.Networks, cfg.Networks), nil
}

func sameNetworks(a, b []NetworkConfig) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.Name != y.Name || x.Protocol != y.Protocol || x.Transport != y.Transport ||
			x.Endpoint != y.Endpoint || x.CoordinatorAddress != y.CoordinatorAddress ||
			len(x.Topics) != len(y.Topics) {
			return false
		}
		for j := range x.Topics {
			if x.Topics[j] != y.Topics[j] {
				return false
			}
		}
	}
	return true
}
