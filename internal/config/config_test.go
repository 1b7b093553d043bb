// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "rpltrace.yaml")
	content := []byte(`
format: full
correlate_by: id
trim_inflight: 5
bucket: 5m
report_dir: /srv/runs/_runs
cache_path: /var/cache/rpltrace/runs.db
setup: test-tsch-optims
commit: ae26163dd07b6ebf3a2d0aa6eeec52dd2f0b5768
workers: 2
`)
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Format != "full" {
		t.Errorf("Format = %q, want %q", cfg.Format, "full")
	}
	if cfg.CorrelateBy != CorrelateByID {
		t.Errorf("CorrelateBy = %q, want %q", cfg.CorrelateBy, CorrelateByID)
	}
	if cfg.TrimInflight != 5 {
		t.Errorf("TrimInflight = %d, want 5", cfg.TrimInflight)
	}
	if cfg.Bucket != 5*time.Minute {
		t.Errorf("Bucket = %v, want 5m0s", cfg.Bucket)
	}
	if cfg.CachePath != "/var/cache/rpltrace/runs.db" {
		t.Errorf("CachePath = %q", cfg.CachePath)
	}
	if cfg.Workers != 2 {
		t.Errorf("Workers = %d, want 2", cfg.Workers)
	}
	// not in the file, default kept
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want default %q", cfg.LogLevel, "info")
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") failed: %v", err)
	}
	if cfg.TrimInflight != 10 {
		t.Errorf("TrimInflight = %d, want 10", cfg.TrimInflight)
	}
	if cfg.Bucket != 2*time.Minute {
		t.Errorf("Bucket = %v, want 2m0s", cfg.Bucket)
	}
	if cfg.CorrelateBy != CorrelateByNode {
		t.Errorf("CorrelateBy = %q, want %q", cfg.CorrelateBy, CorrelateByNode)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "rpltrace.yaml")
	if err := os.WriteFile(configPath, []byte("report_dir: ./out\nworkers: 4\n"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("RPLTRACE_REPORT_DIR", "/tmp/reports")
	t.Setenv("RPLTRACE_WORKERS", "8")
	t.Setenv("RPLTRACE_COMMIT", "deadbeef")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ReportDir != "/tmp/reports" {
		t.Errorf("ReportDir = %q, want %q", cfg.ReportDir, "/tmp/reports")
	}
	if cfg.Workers != 8 {
		t.Errorf("Workers = %d, want 8", cfg.Workers)
	}
	if cfg.Commit != "deadbeef" {
		t.Errorf("Commit = %q, want %q", cfg.Commit, "deadbeef")
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []string{
		"correlate_by: packet\n",
		"format: multiphy\n",
		"bucket: 0s\n",
		"trim_inflight: -1\n",
		"workers: 0\n",
	}

	for _, content := range tests {
		path := filepath.Join(t.TempDir(), "rpltrace.yaml")
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Errorf("Load accepted %q", content)
		}
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load accepted a missing file")
	}
}
