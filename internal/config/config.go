package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/loykin/patiently/internal/logger"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Defaults
const (
	DefaultQueueDir         = ".patiently"
	DefaultJobs             = 1
	DefaultShell            = "/bin/sh"
	DefaultInterval         = time.Second
	DefaultLivenessInterval = 10 * time.Second
)

// Config is the merged view of defaults, an optional TOML file, environment
// variables and command-line flags (highest precedence).
type Config struct {
	QueueDir             string        `toml:"queue_dir" mapstructure:"queue_dir"`
	LogLevel             string        `toml:"log_level" mapstructure:"log_level"`
	LogColor             bool          `toml:"log_color" mapstructure:"log_color"`
	Jobs                 int           `toml:"jobs" mapstructure:"jobs"`
	Shell                string        `toml:"shell" mapstructure:"shell"`
	Interval             time.Duration `toml:"interval" mapstructure:"interval"`
	LivenessInterval     time.Duration `toml:"liveness_interval" mapstructure:"liveness_interval"`
	WatchRetryMaxElapsed time.Duration `toml:"watch_retry_max_elapsed" mapstructure:"watch_retry_max_elapsed"`
	MetricsFile          string        `toml:"metrics_file" mapstructure:"metrics_file"`
	Listen               string        `toml:"listen" mapstructure:"listen"`
	Env                  []string      `toml:"env" mapstructure:"env"`
	Log                  LogConfig     `toml:"log" mapstructure:"log"`
}

// LogConfig configures capture of the external command's output.
type LogConfig struct {
	Dir        string `toml:"dir" mapstructure:"dir"`
	Stdout     string `toml:"stdout" mapstructure:"stdout"`
	Stderr     string `toml:"stderr" mapstructure:"stderr"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// env names for each key; queue_dir and log_level use the conventional bare names
var envBindings = map[string]string{
	"queue_dir":               "QUEUE_DIR",
	"log_level":               "LOG_LEVEL",
	"log_color":               "PATIENTLY_LOG_COLOR",
	"jobs":                    "PATIENTLY_JOBS",
	"shell":                   "PATIENTLY_SHELL",
	"interval":                "PATIENTLY_INTERVAL",
	"liveness_interval":       "PATIENTLY_LIVENESS_INTERVAL",
	"watch_retry_max_elapsed": "PATIENTLY_WATCH_RETRY_MAX_ELAPSED",
	"metrics_file":            "PATIENTLY_METRICS_FILE",
	"listen":                  "PATIENTLY_LISTEN",
	"log.dir":                 "PATIENTLY_LOG_DIR",
}

// flag names bound onto config keys when present in the flag set
var flagBindings = map[string]string{
	"jobs":         "jobs",
	"log-level":    "log_level",
	"queue-dir":    "queue_dir",
	"shell":        "shell",
	"interval":     "interval",
	"metrics-file": "metrics_file",
	"listen":       "listen",
	"log-dir":      "log.dir",
}

// Load resolves configuration. path may be empty; flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetDefault("queue_dir", DefaultQueueDir)
	v.SetDefault("log_level", logger.LevelWarn)
	v.SetDefault("log_color", false)
	v.SetDefault("jobs", DefaultJobs)
	v.SetDefault("shell", DefaultShell)
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("liveness_interval", DefaultLivenessInterval)
	v.SetDefault("watch_retry_max_elapsed", time.Duration(0))
	v.SetDefault("metrics_file", "")
	v.SetDefault("listen", "")
	v.SetDefault("env", []string{})
	v.SetDefault("log.dir", "")
	v.SetDefault("log.stdout", "")
	v.SetDefault("log.stderr", "")
	v.SetDefault("log.max_size_mb", 0)
	v.SetDefault("log.max_backups", 0)
	v.SetDefault("log.max_age_days", 0)
	v.SetDefault("log.compress", false)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}
	if flags != nil {
		for name, key := range flagBindings {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding --%s: %w", name, err)
				}
			}
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects values the rest of the program cannot work with.
func (c *Config) Validate() error {
	var errs []error
	if c.QueueDir == "" {
		errs = append(errs, errors.New("queue_dir must not be empty"))
	}
	if c.Jobs < 1 {
		errs = append(errs, fmt.Errorf("jobs must be >= 1, got %d", c.Jobs))
	}
	if c.Shell == "" {
		errs = append(errs, errors.New("shell must not be empty"))
	}
	if c.Interval <= 0 {
		errs = append(errs, fmt.Errorf("interval must be > 0, got %s", c.Interval))
	}
	if c.LivenessInterval < 0 {
		errs = append(errs, fmt.Errorf("liveness_interval must be >= 0, got %s", c.LivenessInterval))
	}
	if c.WatchRetryMaxElapsed < 0 {
		errs = append(errs, fmt.Errorf("watch_retry_max_elapsed must be >= 0, got %s", c.WatchRetryMaxElapsed))
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Logger converts the logging-related settings.
func (c *Config) Logger() logger.Config {
	return logger.Config{
		Slog: logger.SlogConfig{
			Level: c.LogLevel,
			Color: c.LogColor,
		},
		File: logger.FileConfig{
			Dir:        c.Log.Dir,
			StdoutPath: c.Log.Stdout,
			StderrPath: c.Log.Stderr,
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			MaxAgeDays: c.Log.MaxAgeDays,
			Compress:   c.Log.Compress,
		},
	}
}
