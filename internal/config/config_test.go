package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "lumen.yaml")
	body := `
playback:
  queue_depth: 8
gpu:
  idle_timeout: 10s
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Playback.QueueDepth != 8 {
		t.Errorf("queue depth = %d, want 8", cfg.Playback.QueueDepth)
	}
	if cfg.Playback.FailureThreshold != 5 {
		t.Errorf("failure threshold = %d, want default 5", cfg.Playback.FailureThreshold)
	}
	if cfg.GPU.IdleTimeout != 10*time.Second {
		t.Errorf("idle timeout = %s, want 10s", cfg.GPU.IdleTimeout)
	}
	if cfg.GPU.SweepInterval != 2*time.Second {
		t.Errorf("sweep interval = %s, want default 2s", cfg.GPU.SweepInterval)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("playback: [oops"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("malformed YAML accepted")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("missing file accepted")
	}
}
