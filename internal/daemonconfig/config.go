// Package daemonconfig loads the daemon's own settings: where remap
// configuration files live, where the IPC socket is created, and whether a
// realtime priority bump should be attempted. It is deliberately separate
// from the configuration grammar read by internal/registry.
package daemonconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the daemon's own settings, as distinct from the remap
// configuration files the registry loads.
type Config struct {
	ConfigDir       string `yaml:"config_dir"`
	SocketPath      string `yaml:"socket_path"`
	LogLevel        string `yaml:"log_level"`
	RequestPriority bool   `yaml:"request_priority"`
}

// Default returns the built-in settings used when no file is found.
func Default() *Config {
	return &Config{
		ConfigDir:       "/etc/keyremapd",
		SocketPath:      "/run/keyremapd.socket",
		LogLevel:        "info",
		RequestPriority: true,
	}
}

// Load reads daemon settings from the first readable file among path (when
// non-empty) and a fixed set of search locations, falling back to Default
// if none can be read.
func Load(path string) (*Config, error) {
	cfg := Default()

	searchPaths := []string{}
	if path != "" {
		searchPaths = append(searchPaths, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".config", "keyremapd", "config.yaml"))
	}
	searchPaths = append(searchPaths, "/etc/keyremapd/config.yaml")

	for _, p := range searchPaths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing daemon config %s: %w", p, err)
		}
		break
	}

	return cfg, nil
}
