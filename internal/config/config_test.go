package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("HEXSCAN_DEFAULT_STRIDE")
	os.Unsetenv("HEXSCAN_SUSPEND_WHILE_SCANNING")
	os.Unsetenv("HEXSCAN_WRITE_TIMEOUT_MS")
	os.Unsetenv("HEXSCAN_MAX_REGION_BYTES")

	cfg := Load()
	if cfg.DefaultStride != 1 {
		t.Errorf("DefaultStride = %d, want 1", cfg.DefaultStride)
	}
	if cfg.SuspendWhileScanning {
		t.Error("SuspendWhileScanning should default to false")
	}
	if cfg.WriteTimeoutMS != 2000 {
		t.Errorf("WriteTimeoutMS = %d, want 2000", cfg.WriteTimeoutMS)
	}
	if cfg.MaxRegionBytes != 256<<20 {
		t.Errorf("MaxRegionBytes = %d, want %d", cfg.MaxRegionBytes, 256<<20)
	}
}

func TestLoadRespectsOverrides(t *testing.T) {
	os.Setenv("HEXSCAN_DEFAULT_STRIDE", "4")
	os.Setenv("HEXSCAN_SUSPEND_WHILE_SCANNING", "true")
	defer os.Unsetenv("HEXSCAN_DEFAULT_STRIDE")
	defer os.Unsetenv("HEXSCAN_SUSPEND_WHILE_SCANNING")

	cfg := Load()
	if cfg.DefaultStride != 4 {
		t.Errorf("DefaultStride = %d, want 4", cfg.DefaultStride)
	}
	if !cfg.SuspendWhileScanning {
		t.Error("SuspendWhileScanning should be true when HEXSCAN_SUSPEND_WHILE_SCANNING=true")
	}
}
