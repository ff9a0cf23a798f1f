package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != DefaultAddr {
		t.Fatalf("Addr = %q, want %q", cfg.Addr, DefaultAddr)
	}
	if cfg.QueueURL != DefaultQueueURL {
		t.Fatalf("QueueURL = %q, want %q", cfg.QueueURL, DefaultQueueURL)
	}
	if cfg.MaxBatch != DefaultMaxBatch || cfg.MaxBatchTime != DefaultMaxBatchTime {
		t.Fatalf("batch defaults wrong: %d, %v", cfg.MaxBatch, cfg.MaxBatchTime)
	}
	if cfg.CompactInterval != DefaultCompactInterval || cfg.MinPartsToCompact != DefaultMinParts {
		t.Fatalf("compactor defaults wrong: %v, %d", cfg.CompactInterval, cfg.MinPartsToCompact)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("QUEUE_URL", "redis://example:6380/1")
	t.Setenv("QUEUE_KEY", "hr:q")
	t.Setenv("PROCESSING_KEY", "hr:p")
	t.Setenv("MAX_BATCH", "50")
	t.Setenv("MAX_BATCH_TIME", "2.5")
	t.Setenv("BRPOP_TIMEOUT", "0.5")
	t.Setenv("COMPACT_SLEEP_SECONDS", "60")
	t.Setenv("MIN_PARTS_TO_COMPACT", "3")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.QueueURL != "redis://example:6380/1" {
		t.Fatalf("QueueURL = %q", cfg.QueueURL)
	}
	if cfg.QueueKey != "hr:q" || cfg.ProcessingKey != "hr:p" {
		t.Fatalf("keys = %q, %q", cfg.QueueKey, cfg.ProcessingKey)
	}
	if cfg.MaxBatch != 50 {
		t.Fatalf("MaxBatch = %d", cfg.MaxBatch)
	}
	if cfg.MaxBatchTime != 2500*time.Millisecond {
		t.Fatalf("MaxBatchTime = %v, want 2.5s", cfg.MaxBatchTime)
	}
	if cfg.PollTimeout != 500*time.Millisecond {
		t.Fatalf("PollTimeout = %v, want 0.5s", cfg.PollTimeout)
	}
	if cfg.CompactInterval != time.Minute {
		t.Fatalf("CompactInterval = %v, want 1m", cfg.CompactInterval)
	}
	if cfg.MinPartsToCompact != 3 || cfg.LogLevel != "debug" {
		t.Fatalf("MinPartsToCompact = %d, LogLevel = %q", cfg.MinPartsToCompact, cfg.LogLevel)
	}
}

func TestLoadYAMLThenEnvWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "addr: \":9000\"\nmax_batch: 10\ndata_dir: /from/file\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MAX_BATCH", "99")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9000" || cfg.DataDir != "/from/file" {
		t.Fatalf("file values not applied: %q, %q", cfg.Addr, cfg.DataDir)
	}
	if cfg.MaxBatch != 99 {
		t.Fatalf("MaxBatch = %d, want env override 99", cfg.MaxBatch)
	}
}

func TestLoadConfigEnvVarNamesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("addr: \":7000\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG", path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":7000" {
		t.Fatalf("Addr = %q, want :7000 from CONFIG file", cfg.Addr)
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("Load with missing file: %v", err)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"non-numeric batch", "MAX_BATCH", "many"},
		{"non-numeric duration", "MAX_BATCH_TIME", "soon"},
		{"zero batch", "MAX_BATCH", "0"},
		{"negative parts", "MIN_PARTS_TO_COMPACT", "-1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(""); err == nil {
				t.Fatalf("Load accepted %s=%s", tc.key, tc.value)
			}
		})
	}
}

func TestLoadRejectsEqualKeys(t *testing.T) {
	t.Setenv("QUEUE_KEY", "same")
	t.Setenv("PROCESSING_KEY", "same")
	if _, err := Load(""); err == nil {
		t.Fatalf("Load accepted queue_key == processing_key")
	}
}
