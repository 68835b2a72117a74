// Package config handles application configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the Event Hub's recognised configuration (spec.md §6
// "Configuration recognised").
type Config struct {
	ExcludedDevices       []string `yaml:"excluded_devices"`
	VirtualKeyboard       bool     `yaml:"virtual_keyboard"`
	InputDirectory        string   `yaml:"input_directory"`
	VideoDirectory        string   `yaml:"video_directory"`
	LogLevel              string   `yaml:"log_level"`
	LayoutDirectory       string   `yaml:"layout_directory"`
	DeviceConfigDirectory string   `yaml:"device_config_directory"`
	ConfigDir             string   `yaml:"-"`
}

func DefaultConfig() *Config {
	return &Config{
		InputDirectory: "/dev/input",
		VideoDirectory: "/dev",
		LogLevel:       "info",
	}
}

// Load reads configuration from the specified path or default locations.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Search paths in order of priority
	searchPaths := []string{}

	if configPath != "" {
		searchPaths = append(searchPaths, configPath)
	}

	// User config directory (use SUDO_USER if running as root via sudo)
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		searchPaths = append(searchPaths, filepath.Join("/home", sudoUser, ".config", "eventhub", "config.yaml"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".config", "eventhub", "config.yaml"))
	}

	// Executable directory (for portable usage)
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		searchPaths = append(searchPaths, filepath.Join(exeDir, "configs", "config.yaml"))
	}

	// System config directory
	searchPaths = append(searchPaths, "/etc/eventhub/config.yaml")

	var loadedPath string
	for _, path := range searchPaths {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
			loadedPath = path
			break
		}
	}

	// Set config directory based on loaded file or default
	if loadedPath != "" {
		cfg.ConfigDir = filepath.Dir(loadedPath)
	} else {
		// Fallback: use executable directory
		if exe, err := os.Executable(); err == nil {
			cfg.ConfigDir = filepath.Join(filepath.Dir(exe), "configs")
		} else if home, err := os.UserHomeDir(); err == nil {
			cfg.ConfigDir = filepath.Join(home, ".config", "eventhub")
		} else {
			cfg.ConfigDir = "/etc/eventhub"
		}
	}
	if cfg.LayoutDirectory == "" {
		cfg.LayoutDirectory = filepath.Join(cfg.ConfigDir, "layouts")
	}
	if cfg.DeviceConfigDirectory == "" {
		cfg.DeviceConfigDirectory = filepath.Join(cfg.ConfigDir, "devices")
	}

	return cfg, nil
}

// IsExcluded reports whether path matches any of the configured
// excluded_devices globs (spec.md §6/§8 "Opening an excluded path is a
// silent no-op").
func (c *Config) IsExcluded(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range c.ExcludedDevices {
		if ok, err := filepath.Match(pattern, path); err == nil && ok {
			return true
		}
		if ok, err := filepath.Match(pattern, base); err == nil && ok {
			return true
		}
	}
	return false
}

func (c *Config) Save() error {
	configPath := filepath.Join(c.ConfigDir, "config.yaml")

	if err := os.MkdirAll(c.ConfigDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}
