// Package config loads runner daemon configuration from file and environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values for the runner daemon.
type Config struct {
	// HTTP listen port for the runner API.
	HTTPPort int

	// Dedicated listen port for the Prometheus /metrics endpoint.
	MetricsPort int

	// Worker slot capacity seeded into the durable counter.
	Slots int

	// ForceResetSlots overwrites any persisted slot count with Slots at startup.
	ForceResetSlots bool

	// StateDir holds the durable slot counter record.
	StateDir string

	// ResultsRoot is the local directory under which job workspaces live.
	ResultsRoot string

	// HostRoot is the path prefix under which callers address job workspaces.
	HostRoot string

	// ContextRoot is the mount target inside the task's execution context.
	ContextRoot string

	// TaskTimeout bounds one task execution. Zero disables the deadline.
	TaskTimeout time.Duration

	// HarvestGrace is how long to wait for a result document after exit.
	HarvestGrace time.Duration

	// GitRemote is the base URL dataset and model references resolve against.
	GitRemote string

	// OTELEndpoint is the OTLP gRPC collector address.
	OTELEndpoint string

	// BillingURL receives periodic host snapshots. Empty disables reporting.
	BillingURL string

	// BillingInterval is the delay between host snapshots.
	BillingInterval time.Duration

	// RunnerID identifies this node in billing snapshots.
	RunnerID string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string
}

// Load reads configuration from the given file (optional, YAML) and from
// RUNNER_* environment variables. Environment overrides file values.
func Load(path string) (*Config, error) {
	v := viper.New()

	hostname, _ := os.Hostname()

	v.SetDefault("http_port", 50051)
	v.SetDefault("metrics_port", 50052)
	v.SetDefault("slots", 5)
	v.SetDefault("force_reset_slots", false)
	v.SetDefault("state_dir", "/var/lib/mlrunner")
	v.SetDefault("results_root", "/var/lib/mlrunner/results")
	v.SetDefault("host_root", "/var/lib/mlrunner/results")
	v.SetDefault("context_root", "/cog")
	v.SetDefault("task_timeout", time.Duration(0))
	v.SetDefault("harvest_grace", 2*time.Second)
	v.SetDefault("git_remote", "https://gitlab.com")
	v.SetDefault("otel_endpoint", "localhost:4317")
	v.SetDefault("billing_url", "")
	v.SetDefault("billing_interval", 5*time.Minute)
	v.SetDefault("runner_id", hostname)
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("RUNNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		HTTPPort:        v.GetInt("http_port"),
		MetricsPort:     v.GetInt("metrics_port"),
		Slots:           v.GetInt("slots"),
		ForceResetSlots: v.GetBool("force_reset_slots"),
		StateDir:        v.GetString("state_dir"),
		ResultsRoot:     v.GetString("results_root"),
		HostRoot:        v.GetString("host_root"),
		ContextRoot:     v.GetString("context_root"),
		TaskTimeout:     v.GetDuration("task_timeout"),
		HarvestGrace:    v.GetDuration("harvest_grace"),
		GitRemote:       v.GetString("git_remote"),
		OTELEndpoint:    v.GetString("otel_endpoint"),
		BillingURL:      v.GetString("billing_url"),
		BillingInterval: v.GetDuration("billing_interval"),
		RunnerID:        v.GetString("runner_id"),
		LogLevel:        v.GetString("log_level"),
	}

	if cfg.Slots < 0 {
		return nil, fmt.Errorf("slots must be >= 0, got %d", cfg.Slots)
	}
	if cfg.ResultsRoot == "" {
		return nil, fmt.Errorf("results_root is required")
	}
	if cfg.ContextRoot == "" {
		return nil, fmt.Errorf("context_root is required")
	}

	return cfg, nil
}
