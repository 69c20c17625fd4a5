// Package config holds the collector's typed configuration: defaults,
// optional YAML file, environment overrides, and validation. The struct is
// populated once at startup and never mutated afterwards.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Version is the collector release version, overridable at build time.
var Version = "0.3.0"

// Config is the full collector configuration.
type Config struct {
	Listen   ListenConfig   `yaml:"listen"`
	Router   RouterConfig   `yaml:"router"`
	EventLog EventLogConfig `yaml:"eventlog"`
	Database DatabaseConfig `yaml:"database"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// ListenConfig covers the shared datagram/stream bind point.
type ListenConfig struct {
	Addr            string `yaml:"addr"`
	MaxMessageBytes int    `yaml:"max_message_bytes"`
}

// RouterConfig drives the remote router log poller.
type RouterConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Mode     string        `yaml:"mode"` // "http" or "ssh"
	URL      string        `yaml:"url"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"` // literal, env:NAME, or file:PATH
	SSHAddr  string        `yaml:"ssh_addr"`
	LogPath  string        `yaml:"log_path"`
	Interval time.Duration `yaml:"interval"`
}

// EventLogConfig drives the host event-log poller.
type EventLogConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Channels  []string      `yaml:"channels"`
	Levels    []string      `yaml:"levels"` // severity allow-list; empty = all
	MaxEvents int           `yaml:"max_events"`
	Interval  time.Duration `yaml:"interval"`
}

// DatabaseConfig identifies the PostgreSQL destination.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"` // literal, env:NAME, or file:PATH
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN renders a pgx connection string with the password already resolved.
func (d DatabaseConfig) DSN() (string, error) {
	pw, err := ResolveSecret(d.Password)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, pw, d.Host, d.Port, d.Name, d.SSLMode), nil
}

// PipelineConfig controls batching, staging, and checkpoint placement.
type PipelineConfig struct {
	FlushInterval time.Duration `yaml:"flush_interval"`
	MinBatchSize  int           `yaml:"min_batch_size"`
	StagingDir    string        `yaml:"staging_dir"`
	StateDir      string        `yaml:"state_dir"`
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LogConfig controls the collector's own log output.
type LogConfig struct {
	Level    string `yaml:"level"`
	File     string `yaml:"file"`
	MaxBytes int64  `yaml:"max_bytes"`
}

// Load builds the configuration: defaults, then the YAML file at path (if
// non-empty), then NETWATCH_* environment overrides.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func defaults() Config {
	return Config{
		Listen: ListenConfig{
			Addr:            "0.0.0.0:5514",
			MaxMessageBytes: 8192,
		},
		Router: RouterConfig{
			Mode:     "http",
			LogPath:  "/tmp/syslog.log",
			Interval: 60 * time.Second,
		},
		EventLog: EventLogConfig{
			Channels:  []string{"Microsoft-Windows-WLAN-AutoConfig/Operational"},
			MaxEvents: 500,
			Interval:  120 * time.Second,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
		},
		Pipeline: PipelineConfig{
			FlushInterval: 30 * time.Second,
			MinBatchSize:  25,
			StagingDir:    os.TempDir(),
			StateDir:      "state",
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9143",
		},
		Log: LogConfig{
			Level:    "info",
			MaxBytes: 10 << 20,
		},
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.Listen.Addr, "NETWATCH_LISTEN_ADDR")
	setInt(&cfg.Listen.MaxMessageBytes, "NETWATCH_MAX_MESSAGE_BYTES")

	setBool(&cfg.Router.Enabled, "NETWATCH_ROUTER_ENABLED")
	setString(&cfg.Router.Mode, "NETWATCH_ROUTER_MODE")
	setString(&cfg.Router.URL, "NETWATCH_ROUTER_URL")
	setString(&cfg.Router.Username, "NETWATCH_ROUTER_USERNAME")
	setString(&cfg.Router.Password, "NETWATCH_ROUTER_PASSWORD")
	setString(&cfg.Router.SSHAddr, "NETWATCH_ROUTER_SSH_ADDR")
	setString(&cfg.Router.LogPath, "NETWATCH_ROUTER_LOG_PATH")
	setDuration(&cfg.Router.Interval, "NETWATCH_ROUTER_INTERVAL")

	setBool(&cfg.EventLog.Enabled, "NETWATCH_EVENTLOG_ENABLED")
	setList(&cfg.EventLog.Channels, "NETWATCH_EVENTLOG_CHANNELS")
	setList(&cfg.EventLog.Levels, "NETWATCH_EVENTLOG_LEVELS")
	setInt(&cfg.EventLog.MaxEvents, "NETWATCH_EVENTLOG_MAX_EVENTS")
	setDuration(&cfg.EventLog.Interval, "NETWATCH_EVENTLOG_INTERVAL")

	setString(&cfg.Database.Host, "NETWATCH_DB_HOST")
	setInt(&cfg.Database.Port, "NETWATCH_DB_PORT")
	setString(&cfg.Database.User, "NETWATCH_DB_USER")
	setString(&cfg.Database.Password, "NETWATCH_DB_PASSWORD")
	setString(&cfg.Database.Name, "NETWATCH_DB_NAME")
	setString(&cfg.Database.SSLMode, "NETWATCH_DB_SSLMODE")

	setDuration(&cfg.Pipeline.FlushInterval, "NETWATCH_FLUSH_INTERVAL")
	setInt(&cfg.Pipeline.MinBatchSize, "NETWATCH_MIN_BATCH_SIZE")
	setString(&cfg.Pipeline.StagingDir, "NETWATCH_STAGING_DIR")
	setString(&cfg.Pipeline.StateDir, "NETWATCH_STATE_DIR")

	setBool(&cfg.Metrics.Enabled, "NETWATCH_METRICS_ENABLED")
	setString(&cfg.Metrics.Addr, "NETWATCH_METRICS_ADDR")

	setString(&cfg.Log.Level, "NETWATCH_LOG_LEVEL")
	setString(&cfg.Log.File, "NETWATCH_LOG_FILE")
}

// Validate checks everything that must hold before startup. Errors are
// aggregated so a misconfigured deployment reports all problems at once.
func (c Config) Validate() error {
	var errs []error

	if c.Database.Host == "" {
		errs = append(errs, errors.New("config: database host is required"))
	}
	if c.Database.User == "" {
		errs = append(errs, errors.New("config: database user is required (NETWATCH_DB_USER)"))
	}
	if c.Database.Name == "" {
		errs = append(errs, errors.New("config: database name is required (NETWATCH_DB_NAME)"))
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: database port %d out of range", c.Database.Port))
	}

	if c.Listen.MaxMessageBytes <= 0 {
		errs = append(errs, errors.New("config: max_message_bytes must be positive"))
	}
	if c.Pipeline.FlushInterval <= 0 {
		errs = append(errs, errors.New("config: flush_interval must be positive"))
	}
	if c.Pipeline.MinBatchSize <= 0 {
		errs = append(errs, errors.New("config: min_batch_size must be positive"))
	}

	if c.Router.Enabled {
		switch c.Router.Mode {
		case "http":
			if c.Router.URL == "" {
				errs = append(errs, errors.New("config: router url is required in http mode"))
			}
		case "ssh":
			if c.Router.SSHAddr == "" {
				errs = append(errs, errors.New("config: router ssh_addr is required in ssh mode"))
			}
		default:
			errs = append(errs, fmt.Errorf("config: unknown router mode %q", c.Router.Mode))
		}
	}

	if lvl := strings.ToLower(c.Log.Level); lvl != "debug" && lvl != "info" && lvl != "warn" && lvl != "error" {
		errs = append(errs, fmt.Errorf("config: unknown log level %q", c.Log.Level))
	}

	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			*dst = d
		}
	}
}

func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var items []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			items = append(items, p)
		}
	}
	if len(items) > 0 {
		*dst = items
	}
}
