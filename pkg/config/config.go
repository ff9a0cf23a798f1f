// Package config centralizes every knob the three processes recognize.
// Precedence: defaults, then the optional YAML config file, then
// environment variables. A .env file is loaded into the environment first
// when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults mirror the documented environment-variable defaults.
const (
	DefaultAddr            = ":8000"
	DefaultQueueURL        = "redis://localhost:6379/0"
	DefaultQueueKey        = "heartbeat:queue"
	DefaultProcessingKey   = "heartbeat:processing"
	DefaultDataDir         = "data"
	DefaultArchiveDir      = "archive"
	DefaultMaxBatch        = 400
	DefaultMaxBatchTime    = 5 * time.Second
	DefaultPollTimeout     = 1 * time.Second
	DefaultCompactInterval = 300 * time.Second
	DefaultMinParts        = 5
	DefaultLogLevel        = "info"
)

// Config holds the effective configuration shared by the server, consumer
// and compactor.
type Config struct {
	Addr          string `yaml:"addr"`
	QueueURL      string `yaml:"queue_url"`
	QueueKey      string `yaml:"queue_key"`
	ProcessingKey string `yaml:"processing_key"`
	DataDir       string `yaml:"data_dir"`
	ArchiveDir    string `yaml:"archive_dir"`

	MaxBatch     int           `yaml:"max_batch"`
	MaxBatchTime time.Duration `yaml:"max_batch_time"`
	PollTimeout  time.Duration `yaml:"brpop_timeout"`

	CompactInterval   time.Duration `yaml:"compact_sleep_seconds"`
	CompactCron       string        `yaml:"compact_cron"`
	MinPartsToCompact int           `yaml:"min_parts_to_compact"`

	LogLevel  string  `yaml:"log_level"`
	RateRPS   float64 `yaml:"rate_rps"`
	RateBurst int     `yaml:"rate_burst"`
}

func defaults() *Config {
	return &Config{
		Addr:              DefaultAddr,
		QueueURL:          DefaultQueueURL,
		QueueKey:          DefaultQueueKey,
		ProcessingKey:     DefaultProcessingKey,
		DataDir:           DefaultDataDir,
		ArchiveDir:        DefaultArchiveDir,
		MaxBatch:          DefaultMaxBatch,
		MaxBatchTime:      DefaultMaxBatchTime,
		PollTimeout:       DefaultPollTimeout,
		CompactInterval:   DefaultCompactInterval,
		MinPartsToCompact: DefaultMinParts,
		LogLevel:          DefaultLogLevel,
	}
}

// Load builds the effective config. path names an optional YAML file; an
// empty path falls back to the CONFIG env var, and a missing file is not an
// error. Environment variables always win over file values.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := defaults()

	if path == "" {
		path = os.Getenv("CONFIG")
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString := func(name string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
		}
	}
	setString("ADDR", &cfg.Addr)
	setString("QUEUE_URL", &cfg.QueueURL)
	setString("QUEUE_KEY", &cfg.QueueKey)
	setString("PROCESSING_KEY", &cfg.ProcessingKey)
	setString("DATA_DIR", &cfg.DataDir)
	setString("ARCHIVE_DIR", &cfg.ArchiveDir)
	setString("COMPACT_CRON", &cfg.CompactCron)
	setString("LOG_LEVEL", &cfg.LogLevel)

	var err error
	setInt := func(name string, dst *int) {
		v := strings.TrimSpace(os.Getenv(name))
		if v == "" || err != nil {
			return
		}
		n, perr := strconv.Atoi(v)
		if perr != nil {
			err = fmt.Errorf("config: %s: %w", name, perr)
			return
		}
		*dst = n
	}
	setSeconds := func(name string, dst *time.Duration) {
		v := strings.TrimSpace(os.Getenv(name))
		if v == "" || err != nil {
			return
		}
		f, perr := strconv.ParseFloat(v, 64)
		if perr != nil {
			err = fmt.Errorf("config: %s: %w", name, perr)
			return
		}
		*dst = time.Duration(f * float64(time.Second))
	}

	setInt("MAX_BATCH", &cfg.MaxBatch)
	setSeconds("MAX_BATCH_TIME", &cfg.MaxBatchTime)
	setSeconds("BRPOP_TIMEOUT", &cfg.PollTimeout)
	setSeconds("COMPACT_SLEEP_SECONDS", &cfg.CompactInterval)
	setInt("MIN_PARTS_TO_COMPACT", &cfg.MinPartsToCompact)

	if v := strings.TrimSpace(os.Getenv("RATE_RPS")); v != "" && err == nil {
		f, perr := strconv.ParseFloat(v, 64)
		if perr != nil {
			err = fmt.Errorf("config: RATE_RPS: %w", perr)
		} else {
			cfg.RateRPS = f
		}
	}
	setInt("RATE_BURST", &cfg.RateBurst)
	return err
}

func (c *Config) validate() error {
	if c.QueueURL == "" {
		return fmt.Errorf("config: queue_url must not be empty")
	}
	if c.QueueKey == "" || c.ProcessingKey == "" {
		return fmt.Errorf("config: queue_key and processing_key must not be empty")
	}
	if c.QueueKey == c.ProcessingKey {
		return fmt.Errorf("config: queue_key and processing_key must differ")
	}
	if c.MaxBatch <= 0 {
		return fmt.Errorf("config: max_batch must be positive")
	}
	if c.MaxBatchTime <= 0 || c.PollTimeout <= 0 || c.CompactInterval <= 0 {
		return fmt.Errorf("config: durations must be positive")
	}
	if c.MinPartsToCompact <= 0 {
		return fmt.Errorf("config: min_parts_to_compact must be positive")
	}
	return nil
}
