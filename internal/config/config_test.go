package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 50051 {
		t.Errorf("expected HTTPPort 50051, got %d", cfg.HTTPPort)
	}
	if cfg.MetricsPort != 50052 {
		t.Errorf("expected MetricsPort 50052, got %d", cfg.MetricsPort)
	}
	if cfg.Slots != 5 {
		t.Errorf("expected Slots 5, got %d", cfg.Slots)
	}
	if cfg.ContextRoot != "/cog" {
		t.Errorf("expected ContextRoot /cog, got %s", cfg.ContextRoot)
	}
	if cfg.TaskTimeout != 0 {
		t.Errorf("expected TaskTimeout disabled, got %v", cfg.TaskTimeout)
	}
	if cfg.HarvestGrace != 2*time.Second {
		t.Errorf("expected HarvestGrace 2s, got %v", cfg.HarvestGrace)
	}
	if cfg.OTELEndpoint != "localhost:4317" {
		t.Errorf("expected OTELEndpoint localhost:4317, got %s", cfg.OTELEndpoint)
	}
	if cfg.BillingURL != "" {
		t.Errorf("expected BillingURL empty, got %s", cfg.BillingURL)
	}
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	t.Setenv("RUNNER_HTTP_PORT", "7070")
	t.Setenv("RUNNER_SLOTS", "12")
	t.Setenv("RUNNER_TASK_TIMEOUT", "30m")
	t.Setenv("RUNNER_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 7070 {
		t.Errorf("expected HTTPPort 7070, got %d", cfg.HTTPPort)
	}
	if cfg.Slots != 12 {
		t.Errorf("expected Slots 12, got %d", cfg.Slots)
	}
	if cfg.TaskTimeout != 30*time.Minute {
		t.Errorf("expected TaskTimeout 30m, got %v", cfg.TaskTimeout)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected LogLevel debug, got %s", cfg.LogLevel)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runnerd.yaml")
	content := []byte("http_port: 9090\nslots: 3\nresults_root: /data/results\nhost_root: /remote/results\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 9090 {
		t.Errorf("expected HTTPPort 9090, got %d", cfg.HTTPPort)
	}
	if cfg.Slots != 3 {
		t.Errorf("expected Slots 3, got %d", cfg.Slots)
	}
	if cfg.ResultsRoot != "/data/results" {
		t.Errorf("expected ResultsRoot /data/results, got %s", cfg.ResultsRoot)
	}
	if cfg.HostRoot != "/remote/results" {
		t.Errorf("expected HostRoot /remote/results, got %s", cfg.HostRoot)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoad_NegativeSlots(t *testing.T) {
	t.Setenv("RUNNER_SLOTS", "-1")

	_, err := Load("")
	if err == nil {
		t.Error("expected error for negative slots")
	}
}
