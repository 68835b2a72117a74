// Package devconfig loads the optional per-device configuration file
// CapabilityProbe rule 7 references (spec.md §4.3): a YAML file keyed
// by device descriptor, carrying capability overrides and a
// per-device LED table override (spec.md §4.9). Adapted from the
// teacher's internal/mappings.LoadLayout: read file, yaml.Unmarshal,
// missing file is not an error.
package devconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LedOverride maps an abstract LED name to the kernel LED index this
// specific device uses for it, overriding the default table.
type LedOverride struct {
	NumLock    *uint16  `yaml:"num_lock"`
	CapsLock   *uint16  `yaml:"caps_lock"`
	ScrollLock *uint16  `yaml:"scroll_lock"`
	Player     []uint16 `yaml:"player"`
}

// Config is one device's optional auxiliary configuration.
type Config struct {
	Properties map[string]string `yaml:"properties"`
	Led        LedOverride       `yaml:"led"`
}

// Load reads "<dir>/<descriptor>.yaml". A missing file returns a zero
// Config and a nil error — absence is the common case, not a failure
// (spec.md §7: "Keymap and configuration load failures are
// non-fatal").
func Load(dir, descriptor string) (Config, error) {
	path := filepath.Join(dir, descriptor+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("devconfig: reading %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("devconfig: parsing %s: %w", path, err)
	}
	return cfg, nil
}
