package devconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir, "no-such-descriptor")
	if err != nil {
		t.Fatalf("Load of missing file returned error: %v", err)
	}
	if cfg.Properties != nil || cfg.Led.NumLock != nil {
		t.Fatalf("missing file should yield a zero Config, got %+v", cfg)
	}
}

func TestLoadParsesLedOverride(t *testing.T) {
	dir := t.TempDir()
	body := "properties:\n  vendor: acme\nled:\n  num_lock: 3\n  player:\n    - 5\n    - 6\n"
	if err := os.WriteFile(filepath.Join(dir, "my-device.yaml"), []byte(body), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	cfg, err := Load(dir, "my-device")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Properties["vendor"] != "acme" {
		t.Fatalf("Properties[vendor] = %q; want acme", cfg.Properties["vendor"])
	}
	if cfg.Led.NumLock == nil || *cfg.Led.NumLock != 3 {
		t.Fatalf("Led.NumLock = %v; want pointer to 3", cfg.Led.NumLock)
	}
	if len(cfg.Led.Player) != 2 || cfg.Led.Player[0] != 5 || cfg.Led.Player[1] != 6 {
		t.Fatalf("Led.Player = %v; want [5 6]", cfg.Led.Player)
	}
}

func TestLoadMalformedYAMLErrors(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("not: [valid"), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	if _, err := Load(dir, "bad"); err == nil {
		t.Fatalf("expected a parse error for malformed YAML")
	}
}
