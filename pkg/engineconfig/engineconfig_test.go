package engineconfig

import "testing"

func TestDefaultPoolMatchesMbufPoolSizing(t *testing.T) {
	cfg := Default()
	if cfg.PoolSize != 16*1024 || cfg.BufferSize != 2048 {
		t.Fatalf("defaults = %d x %dB, want 16384 x 2048B", cfg.PoolSize, cfg.BufferSize)
	}
}

func TestDefaultReservesControlCore(t *testing.T) {
	cfg := Default()
	if cfg.CoreCount < 2 {
		t.Fatalf("CoreCount = %d, want at least 2 (one reserved, one free)", cfg.CoreCount)
	}
}
