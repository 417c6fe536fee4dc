// Package config resolves agent runtime configuration from, in increasing
// priority: quarry-agent.yaml, CLI flags, and server-push control blocks
// applied live by the Dispatcher. It also parses cloud instance metadata
// and user data (FetchInstanceMetadata, ParseUserData); neither is merged
// into Config.
package config

import (
	"fmt"
	"time"
)

// Config represents a quarry-agent.yaml configuration file. All values are
// optional and act as defaults; CLI flags and server-push control blocks
// override them at runtime.
type Config struct {
	Server       string        `yaml:"server"`
	Servers      []string      `yaml:"servers"`
	Location     string        `yaml:"location"`
	Key          string        `yaml:"key"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	Scheduler    SchedulerSpec `yaml:"scheduler"`
	PollInterval Duration      `yaml:"poll_interval"`
	Shaper       ShaperSpec    `yaml:"shaper"`
	Storage      StorageConfig `yaml:"storage"`
	Adapter      AdapterConfig `yaml:"adapter"`
	LivenessFile string        `yaml:"liveness_file"`

	// DriverPath is the BrowserDriver executable RunController launches per
	// task, extracted once per process by executor.EnsureBundle.
	DriverPath string `yaml:"driver_path"`
	// WorkDir is the root directory task working directories and result
	// archives are created under.
	WorkDir string `yaml:"work_dir"`
	// SuppressUAIdentity omits the agent identity suffix RunController
	// otherwise appends to the effective user agent string.
	SuppressUAIdentity bool `yaml:"suppress_ua_identity"`
}

// SchedulerSpec holds scheduler node defaults from the config file.
type SchedulerSpec struct {
	URL  string `yaml:"url"`
	Salt string `yaml:"salt"`
	Node string `yaml:"node"`
}

// ShaperSpec holds default traffic-shaping parameters applied when a job
// does not specify its own.
type ShaperSpec struct {
	InKbps     int `yaml:"in_kbps"`
	OutKbps    int `yaml:"out_kbps"`
	RTTMs      int `yaml:"rtt_ms"`
	LossPct    int `yaml:"loss_pct"`
	QueueLimit int `yaml:"queue_limit"`
}

// StorageConfig holds blob-storage defaults for ResultAssembler.
type StorageConfig struct {
	Bucket      string `yaml:"bucket"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig holds result-delivery defaults: the Redis address used by
// ResultAssembler's pubsub and the run-completed event adapter, the pubsub
// retry/complete queues the Dispatcher backfills into job routing, and the
// event adapter's webhook settings.
type AdapterConfig struct {
	RedisAddr       string   `yaml:"redis_addr"`
	RetryQueue      string   `yaml:"retry_queue"`
	CompleteQueue   string   `yaml:"complete_queue"`
	WebhookURL      string   `yaml:"webhook_url,omitempty"`
	WebhookHeaders  []string `yaml:"webhook_headers,omitempty"`
	WebhookTimeout  Duration `yaml:"webhook_timeout,omitempty"`
	WebhookRetries  *int     `yaml:"webhook_retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
