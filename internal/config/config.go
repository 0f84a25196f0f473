// Package config loads taskprocessor settings from a YAML file, .env files
// and TASKPROC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/vnykmshr/taskprocessor/pkg/codec"
	"github.com/vnykmshr/taskprocessor/pkg/common/validation"
	"github.com/vnykmshr/taskprocessor/pkg/scheduling/recurring"
	"github.com/vnykmshr/taskprocessor/pkg/task"
)

// EnvPrefix prefixes every environment override, e.g. TASKPROC_POOL_WORKERS=8.
const EnvPrefix = "TASKPROC"

// Config is the root application configuration.
type Config struct {
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Pool      PoolConfig      `mapstructure:"pool"`
	Results   ResultsConfig   `mapstructure:"results"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Redis     RedisConfig     `mapstructure:"redis"`

	// Recurring lists cron jobs that submit random tasks.
	Recurring []RecurringJob `mapstructure:"recurring"`
}

// SchedulerConfig mirrors scheduler.Config.
type SchedulerConfig struct {
	Name            string `mapstructure:"name"`
	HighThreshold   int    `mapstructure:"high_threshold"`
	NormalThreshold int    `mapstructure:"normal_threshold"`
	LowThreshold    int    `mapstructure:"low_threshold"`
	MaxQueueSize    int    `mapstructure:"max_queue_size"`
	GraceWindow     int    `mapstructure:"grace_window"`
}

// PoolConfig mirrors the tunable parts of workerpool.Config.
type PoolConfig struct {
	Name        string        `mapstructure:"name"`
	Workers     int           `mapstructure:"workers"`
	TaskTimeout time.Duration `mapstructure:"task_timeout"`

	// RateLimit caps tasks taken per second across the pool. Zero disables it.
	RateLimit float64 `mapstructure:"rate_limit"`
	// Burst is the throttle's bucket size. Zero means one per worker.
	Burst int `mapstructure:"burst"`
}

// ResultsConfig sizes the in-memory result store.
type ResultsConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	Rotation    RotationConfig `mapstructure:"rotation"`
	Development bool           `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool `mapstructure:"enable"`
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr"`
	Namespace string `mapstructure:"namespace"`
}

// RedisConfig enables mirroring of results into Redis.
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
	// Codec is a codec short name: json, cbor or proto.
	Codec string `mapstructure:"codec"`
}

// RecurringJob submits a random task of Type on every Schedule tick.
type RecurringJob struct {
	ID       string `mapstructure:"id"`
	Schedule string `mapstructure:"schedule"`
	Type     string `mapstructure:"type"`
	MaxRuns  int    `mapstructure:"max_runs"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			Name:            "default",
			HighThreshold:   10,
			NormalThreshold: 5,
			LowThreshold:    0,
			MaxQueueSize:    100,
			GraceWindow:     3,
		},
		Pool: PoolConfig{
			Name:        "worker",
			Workers:     4,
			TaskTimeout: 30 * time.Second,
		},
		Results: ResultsConfig{Capacity: 1000},
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stdout"},
			Rotation: RotationConfig{
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Addr:      ":9090",
			Namespace: "taskprocessor",
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "taskprocessor",
			TTL:    time.Hour,
			Codec:  "json",
		},
	}
}

// LoadEnv loads .env from the working directory and then from the
// executable's directory. Missing files are ignored; variables already set
// are never overwritten.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
		if exe, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(exe), ".env"))
		}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from path, or searches ./taskprocessor.yaml,
// ./configs and ~/.taskprocessor when path is empty. TASKPROC_CONFIG
// overrides the search. Environment variables replace `.` with `_`, so
// TASKPROC_LOG_LEVEL=debug sets log.level.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	seedDefaults(v, cfg)

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("taskprocessor")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".taskprocessor"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// seedDefaults registers every key so env-only configs decode.
func seedDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("scheduler.name", cfg.Scheduler.Name)
	v.SetDefault("scheduler.high_threshold", cfg.Scheduler.HighThreshold)
	v.SetDefault("scheduler.normal_threshold", cfg.Scheduler.NormalThreshold)
	v.SetDefault("scheduler.low_threshold", cfg.Scheduler.LowThreshold)
	v.SetDefault("scheduler.max_queue_size", cfg.Scheduler.MaxQueueSize)
	v.SetDefault("scheduler.grace_window", cfg.Scheduler.GraceWindow)

	v.SetDefault("pool.name", cfg.Pool.Name)
	v.SetDefault("pool.workers", cfg.Pool.Workers)
	v.SetDefault("pool.task_timeout", cfg.Pool.TaskTimeout)
	v.SetDefault("pool.rate_limit", cfg.Pool.RateLimit)
	v.SetDefault("pool.burst", cfg.Pool.Burst)

	v.SetDefault("results.capacity", cfg.Results.Capacity)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)
	v.SetDefault("metrics.namespace", cfg.Metrics.Namespace)

	v.SetDefault("redis.enabled", cfg.Redis.Enabled)
	v.SetDefault("redis.addr", cfg.Redis.Addr)
	v.SetDefault("redis.password", cfg.Redis.Password)
	v.SetDefault("redis.db", cfg.Redis.DB)
	v.SetDefault("redis.prefix", cfg.Redis.Prefix)
	v.SetDefault("redis.ttl", cfg.Redis.TTL)
	v.SetDefault("redis.codec", cfg.Redis.Codec)
}

// Validate checks ranges and names. It normalises log settings in place.
func (c *Config) Validate() error {
	if err := validation.ValidatePositive("config", "scheduler.max_queue_size", c.Scheduler.MaxQueueSize); err != nil {
		return err
	}
	if err := validation.ValidateNonNegative("config", "scheduler.grace_window", float64(c.Scheduler.GraceWindow)); err != nil {
		return err
	}
	if err := validation.ValidateOrdered("config", "scheduler.normal_threshold", c.Scheduler.LowThreshold, c.Scheduler.NormalThreshold); err != nil {
		return err
	}
	if err := validation.ValidateOrdered("config", "scheduler.high_threshold", c.Scheduler.NormalThreshold, c.Scheduler.HighThreshold); err != nil {
		return err
	}
	if err := validation.ValidatePositive("config", "pool.workers", c.Pool.Workers); err != nil {
		return err
	}
	if err := validation.ValidateNonNegative("config", "pool.task_timeout", c.Pool.TaskTimeout.Seconds()); err != nil {
		return err
	}
	if err := validation.ValidateNonNegative("config", "pool.rate_limit", c.Pool.RateLimit); err != nil {
		return err
	}
	if err := validation.ValidateNonNegative("config", "pool.burst", float64(c.Pool.Burst)); err != nil {
		return err
	}
	if err := validation.ValidatePositive("config", "results.capacity", c.Results.Capacity); err != nil {
		return err
	}

	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}

	if c.Metrics.Enabled {
		if err := validation.ValidateNotEmpty("config", "metrics.addr", c.Metrics.Addr); err != nil {
			return err
		}
	}

	if c.Redis.Enabled {
		if err := validation.ValidateNotEmpty("config", "redis.addr", c.Redis.Addr); err != nil {
			return err
		}
		codecs, err := codec.NewRegistry()
		if err != nil {
			return err
		}
		if _, err := codecs.Lookup(c.Redis.Codec); err != nil {
			return fmt.Errorf("invalid redis.codec: %w", err)
		}
	}

	seen := make(map[string]bool, len(c.Recurring))
	for i, job := range c.Recurring {
		field := fmt.Sprintf("recurring[%d]", i)
		if err := validation.ValidateNotEmpty("config", field+".id", job.ID); err != nil {
			return err
		}
		if seen[job.ID] {
			return fmt.Errorf("duplicate recurring job id %q", job.ID)
		}
		seen[job.ID] = true
		if err := recurring.Validate(job.Schedule); err != nil {
			return fmt.Errorf("%s.schedule: %w", field, err)
		}
		if _, err := task.ParseType(job.Type); err != nil {
			return fmt.Errorf("%s.type: %w", field, err)
		}
		if err := validation.ValidateNonNegative("config", field+".max_runs", float64(job.MaxRuns)); err != nil {
			return err
		}
	}
	return nil
}
