// Package config loads the pipeline's tuning knobs: worker polling/lease
// behavior, the Anthropic Agent client, and outbound notification settings.
// Resolution is built-in defaults overridden by an optional YAML file; no
// field is overridden from environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// PipelineConfig is the full set of tuning knobs a worker process needs.
type PipelineConfig struct {
	Worker       WorkerConfig       `yaml:"worker"`
	Anthropic    AnthropicConfig    `yaml:"anthropic"`
	Notification NotificationConfig `yaml:"notification"`
	Suppression  SuppressionConfig  `yaml:"suppression"`
}

// WorkerConfig tunes claim/lease/heartbeat/discovery behavior shared across
// the three worker processes and the heartbeat monitor.
type WorkerConfig struct {
	PollInterval          time.Duration `yaml:"poll_interval"`
	LeaseSeconds          int           `yaml:"lease_seconds"`
	HeartbeatInterval     time.Duration `yaml:"heartbeat_interval"`
	DeadWorkerThreshold   time.Duration `yaml:"dead_worker_threshold"`
	MonitorInterval       time.Duration `yaml:"monitor_interval"`
	OversampleFactor      float64       `yaml:"oversample_factor"`
	RegionCount           int           `yaml:"region_count"`
	BatchSize             int           `yaml:"batch_size"`
	MaxLoopsPerInvocation int           `yaml:"worker_max_loops"`
	RunFilterID           string        `yaml:"run_filter_id"`
}

// AnthropicConfig configures the concrete Agent client.
type AnthropicConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
	MaxTokens int64  `yaml:"max_tokens"`
}

// NotificationConfig configures the delivery-step email notifier.
type NotificationConfig struct {
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port"`
	FromAddr string `yaml:"from_addr"`
	Username string `yaml:"username_env"`
	Password string `yaml:"password_env"`
}

// SuppressionConfig tunes the Suppression Oracle's recency window.
type SuppressionConfig struct {
	RecentlyContactedDays int `yaml:"recently_contacted_days"`
}

// Default returns the built-in configuration.
func Default() *PipelineConfig {
	return &PipelineConfig{
		Worker: WorkerConfig{
			PollInterval:          5 * time.Second,
			LeaseSeconds:          600,
			HeartbeatInterval:     30 * time.Second,
			DeadWorkerThreshold:   300 * time.Second,
			MonitorInterval:       60 * time.Second,
			OversampleFactor:      2.0,
			RegionCount:           4,
			BatchSize:             10,
			MaxLoopsPerInvocation: 0, // 0 = unbounded; run until no claimable work
		},
		Anthropic: AnthropicConfig{
			APIKeyEnv: "ANTHROPIC_API_KEY",
			Model:     "claude-sonnet-4-5",
			MaxTokens: 8192,
		},
		Notification: NotificationConfig{
			SMTPHost: "localhost",
			SMTPPort: 25,
			FromAddr: "leadpipe@localhost",
		},
		Suppression: SuppressionConfig{
			RecentlyContactedDays: 90,
		},
	}
}

// Load resolves configuration: built-in defaults, overridden by yamlPath (if
// non-empty and present). A .env file in the working directory (if present)
// is loaded into the process environment first; it does not override any
// config field. Environment variables referenced by *Env fields are resolved
// by callers at the point of use, not here, so secrets never sit in the
// struct longer than necessary.
func Load(yamlPath string) (*PipelineConfig, error) {
	_ = godotenv.Load() // best-effort; absence of .env is not an error

	cfg := Default()

	if yamlPath == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(yamlPath)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", yamlPath, err)
	}

	var override PipelineConfig
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", yamlPath, err)
	}

	if err := mergo.Merge(cfg, &override, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merging config file %s: %w", yamlPath, err)
	}
	return cfg, nil
}
