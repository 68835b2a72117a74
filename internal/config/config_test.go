package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.InputDirectory != "/dev/input" || cfg.VideoDirectory != "/dev" || cfg.LogLevel != "info" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFromExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "excluded_devices:\n  - \"*virtual*\"\nvirtual_keyboard: true\ninput_directory: /custom/input\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.VirtualKeyboard {
		t.Fatalf("expected virtual_keyboard: true to be parsed")
	}
	if cfg.InputDirectory != "/custom/input" {
		t.Fatalf("InputDirectory = %q; want /custom/input", cfg.InputDirectory)
	}
	if cfg.ConfigDir != dir {
		t.Fatalf("ConfigDir = %q; want %q", cfg.ConfigDir, dir)
	}
	if cfg.LayoutDirectory != filepath.Join(dir, "layouts") {
		t.Fatalf("LayoutDirectory default = %q", cfg.LayoutDirectory)
	}
	if cfg.DeviceConfigDirectory != filepath.Join(dir, "devices") {
		t.Fatalf("DeviceConfigDirectory default = %q", cfg.DeviceConfigDirectory)
	}
}

func TestLoadNonexistentPathFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load with no resolvable path should not error: %v", err)
	}
	if cfg.InputDirectory != "/dev/input" {
		t.Fatalf("expected default InputDirectory when nothing loaded")
	}
}

func TestIsExcludedGlobMatching(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExcludedDevices = []string{"*virtual*", "/dev/input/event9"}

	cases := []struct {
		path string
		want bool
	}{
		{"/dev/input/event0-virtual-keyboard", true},
		{"/dev/input/event9", true},
		{"/dev/input/event1", false},
	}
	for _, c := range cases {
		if got := cfg.IsExcluded(c.path); got != c.want {
			t.Fatalf("IsExcluded(%q) = %v; want %v", c.path, got, c.want)
		}
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.ConfigDir = dir
	cfg.VirtualKeyboard = true

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("Load after Save: %v", err)
	}
	if !loaded.VirtualKeyboard {
		t.Fatalf("round-tripped config lost VirtualKeyboard=true")
	}
}
