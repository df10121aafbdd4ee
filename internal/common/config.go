package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration shared by the
// dispatcher CLI/server and the worker agent.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Store      StoreConfig      `toml:"store"`
	Dispatcher DispatcherConfig `toml:"dispatcher"`
	Worker     WorkerConfig     `toml:"worker"`
	Logging    LoggingConfig    `toml:"logging"`
	Debug      bool             `toml:"debug"` // DEBUG_MODE: verbose logging, disables tool timeout
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// StoreConfig describes the S3-compatible bucket used as the only
// shared surface between workstation and workers.
type StoreConfig struct {
	Remote     string  `toml:"remote"`      // "<profile>:<bucket>", e.g. "r2_pose_factory:pose-factory"
	Endpoint   string  `toml:"endpoint"`    // S3-compatible endpoint URL (R2, MinIO, AWS)
	Region     string  `toml:"region"`      // "auto" for R2
	MaxRetries int     `toml:"max_retries"` // transport retry attempts before surfacing the error
	RateLimit  float64 `toml:"rate_limit"`  // store operations per second, 0 = unlimited
	RateBurst  int     `toml:"rate_burst"`
}

type DispatcherConfig struct {
	DataDir      string `toml:"data_dir"`      // local job records under <data_dir>/jobs
	ScriptsDir   string `toml:"scripts_dir"`   // local scripts tree mirrored to scripts/ at submit
	PollInterval string `toml:"poll_interval"` // wait polling interval, e.g. "30s"
	WaitTimeout  string `toml:"wait_timeout"`  // default wait bound, e.g. "1h"
}

type WorkerConfig struct {
	WorkspaceRoot   string `toml:"workspace_root"`   // default /workspace
	Tool            string `toml:"tool"`             // render tool binary
	PollInterval    string `toml:"poll_interval"`    // pending prefix poll interval
	ToolTimeout     string `toml:"tool_timeout"`     // subprocess execution bound
	CleanupSchedule string `toml:"cleanup_schedule"` // cron expression for record/log pruning
	RecordTTL       string `toml:"record_ttl"`       // local job records older than this are pruned
	OpsQueue        string `toml:"ops_queue"`        // optional SSH agent queue path (out-of-band setup)
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig creates a configuration with default values.
// Timeouts follow the job protocol defaults: 30s polls, 1h bounds.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8090,
			Host: "localhost",
		},
		Store: StoreConfig{
			Region:     "auto",
			MaxRetries: 5,
			RateLimit:  20,
			RateBurst:  40,
		},
		Dispatcher: DispatcherConfig{
			DataDir:      "./data",
			ScriptsDir:   ".",
			PollInterval: "30s",
			WaitTimeout:  "1h",
		},
		Worker: WorkerConfig{
			WorkspaceRoot:   "/workspace",
			Tool:            "blender",
			PollInterval:    "30s",
			ToolTimeout:     "1h",
			CleanupSchedule: "0 * * * *", // hourly
			RecordTTL:       "24h",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFile loads configuration with priority: defaults -> file -> env.
// CLI flag overrides are applied separately and win over everything.
func LoadFromFile(path string) (*Config, error) {
	config := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)
	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
// The bare names (STORE_REMOTE, WORKSPACE_ROOT, ...) are the protocol's
// recognized variables; RENDERQ_* covers the rest of the surface.
func applyEnvOverrides(config *Config) {
	if remote := os.Getenv("STORE_REMOTE"); remote != "" {
		config.Store.Remote = remote
	}
	if endpoint := os.Getenv("STORE_ENDPOINT"); endpoint != "" {
		config.Store.Endpoint = endpoint
	}
	if root := os.Getenv("WORKSPACE_ROOT"); root != "" {
		config.Worker.WorkspaceRoot = root
	}
	if interval := os.Getenv("JOB_POLL_INTERVAL"); interval != "" {
		if normalized, ok := normalizeDuration(interval); ok {
			config.Worker.PollInterval = normalized
			config.Dispatcher.PollInterval = normalized
		}
	}
	if timeout := os.Getenv("JOB_TIMEOUT"); timeout != "" {
		if normalized, ok := normalizeDuration(timeout); ok {
			config.Worker.ToolTimeout = normalized
			config.Dispatcher.WaitTimeout = normalized
		}
	}
	if queue := os.Getenv("SSH_AGENT_QUEUE"); queue != "" {
		config.Worker.OpsQueue = queue
	}
	if debug := os.Getenv("DEBUG_MODE"); debug != "" {
		if d, err := strconv.ParseBool(debug); err == nil {
			config.Debug = d
		}
	}

	if port := os.Getenv("RENDERQ_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("RENDERQ_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if level := os.Getenv("RENDERQ_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if dataDir := os.Getenv("RENDERQ_DATA_DIR"); dataDir != "" {
		config.Dispatcher.DataDir = dataDir
	}
	if tool := os.Getenv("RENDERQ_TOOL"); tool != "" {
		config.Worker.Tool = tool
	}
}

// normalizeDuration accepts either a Go duration string or a bare
// number of seconds (the protocol's env vars are documented in seconds).
func normalizeDuration(value string) (string, bool) {
	if _, err := time.ParseDuration(value); err == nil {
		return value, true
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return fmt.Sprintf("%ds", secs), true
	}
	return "", false
}

// ApplyFlagOverrides applies command-line flag overrides to config.
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Bucket extracts the bucket name from the remote identifier.
// Remote is "<profile>:<bucket>"; a bare value is taken as the bucket.
func (c *StoreConfig) Bucket() string {
	if idx := strings.LastIndex(c.Remote, ":"); idx >= 0 {
		return c.Remote[idx+1:]
	}
	return c.Remote
}

// Profile extracts the credentials profile from the remote identifier.
func (c *StoreConfig) Profile() string {
	if idx := strings.LastIndex(c.Remote, ":"); idx > 0 {
		return c.Remote[:idx]
	}
	return ""
}

// Duration helpers. A value that fails to parse falls back to the
// default so a bad override degrades instead of wedging the agent.

func (c *DispatcherConfig) PollIntervalDuration() time.Duration {
	return parseDurationOr(c.PollInterval, 30*time.Second)
}

func (c *DispatcherConfig) WaitTimeoutDuration() time.Duration {
	return parseDurationOr(c.WaitTimeout, time.Hour)
}

func (c *WorkerConfig) PollIntervalDuration() time.Duration {
	return parseDurationOr(c.PollInterval, 30*time.Second)
}

func (c *WorkerConfig) ToolTimeoutDuration() time.Duration {
	return parseDurationOr(c.ToolTimeout, time.Hour)
}

func (c *WorkerConfig) RecordTTLDuration() time.Duration {
	return parseDurationOr(c.RecordTTL, 24*time.Hour)
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
