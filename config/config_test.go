package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_FullConfig(t *testing.T) {
	yaml := `server: https://www.webpagetest.org/work/
servers:
  - https://a.example.com
  - https://b.example.com
location: Dulles_MotoG4
key: abc123

scheduler:
  url: https://sched.example.com
  salt: s3cret
  node: AGENT-1

poll_interval: 5s

shaper:
  in_kbps: 1600
  out_kbps: 768
  rtt_ms: 50
  loss_pct: 0
  queue_limit: 8

storage:
  bucket: wpt-results
  region: us-east-1
  endpoint: https://s3.example.com
  s3_path_style: true

adapter:
  redis_addr: localhost:6379
  retry_queue: wpt:retry
  complete_queue: wpt:complete

liveness_file: /var/run/wptagent.alive
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	assertEqual(t, "server", cfg.Server, "https://www.webpagetest.org/work/")
	assertEqual(t, "location", cfg.Location, "Dulles_MotoG4")
	assertEqual(t, "key", cfg.Key, "abc123")
	assertEqual(t, "scheduler.url", cfg.Scheduler.URL, "https://sched.example.com")
	assertEqual(t, "scheduler.salt", cfg.Scheduler.Salt, "s3cret")
	assertEqual(t, "scheduler.node", cfg.Scheduler.Node, "AGENT-1")

	if len(cfg.Servers) != 2 {
		t.Fatalf("servers: got %d entries, want 2", len(cfg.Servers))
	}
	if cfg.PollInterval.Duration != 5*time.Second {
		t.Errorf("poll_interval: got %v, want 5s", cfg.PollInterval.Duration)
	}

	if cfg.Shaper.InKbps != 1600 || cfg.Shaper.OutKbps != 768 || cfg.Shaper.RTTMs != 50 {
		t.Errorf("shaper: got %+v", cfg.Shaper)
	}

	assertEqual(t, "storage.bucket", cfg.Storage.Bucket, "wpt-results")
	if !cfg.Storage.S3PathStyle {
		t.Error("storage.s3_path_style: want true")
	}

	assertEqual(t, "adapter.redis_addr", cfg.Adapter.RedisAddr, "localhost:6379")
	assertEqual(t, "liveness_file", cfg.LivenessFile, "/var/run/wptagent.alive")
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("WPT_KEY", "from-env")

	yaml := `server: https://example.com/work/
key: ${WPT_KEY}
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "key", cfg.Key, "from-env")
}

func TestLoad_UnknownField(t *testing.T) {
	yaml := `server: https://example.com/work/
not_a_real_field: true
`
	path := writeTemp(t, yaml)
	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown field, got nil")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file, got nil")
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "quarry-agent.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func assertEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}
