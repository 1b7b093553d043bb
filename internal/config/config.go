// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Correlation modes
const (
	CorrelateByNode = "node"
	CorrelateByID   = "id"
)

// Config for a parse/report run
type Config struct {
	Format       string        `yaml:"format"`        // auto, full, basic
	CorrelateBy  string        `yaml:"correlate_by"`  // node or id
	TrimInflight int           `yaml:"trim_inflight"` // trailing requests dropped from reports
	Bucket       time.Duration `yaml:"bucket"`        // per-time aggregation window
	ReportDir    string        `yaml:"report_dir"`
	CachePath    string        `yaml:"cache_path"`   // SQLite cache, empty disables
	MetricsFile  string        `yaml:"metrics_file"` // Prometheus textfile, empty disables
	Setup        string        `yaml:"setup"`
	Commit       string        `yaml:"commit"`
	Workers      int           `yaml:"workers"`
	LogLevel     string        `yaml:"log_level"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Format:       "auto",
		CorrelateBy:  CorrelateByNode,
		TrimInflight: 10,
		Bucket:       2 * time.Minute,
		ReportDir:    ".",
		Workers:      runtime.NumCPU(),
		LogLevel:     "info",
	}
}

// LoadEnv loads .env files from the working directory, if present
func LoadEnv(logger *logrus.Logger) {
	for _, file := range []string{".env", ".env.local"} {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			logger.WithError(err).Warnf("Failed to load %s", file)
			continue
		}
		logger.Debugf("Loaded env file %s", file)
	}
}

// Load reads config from a YAML file over the defaults and applies env
// overrides. An empty path means defaults plus env.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	// Env overrides
	if v := os.Getenv("RPLTRACE_FORMAT"); v != "" {
		cfg.Format = v
	}
	if v := os.Getenv("RPLTRACE_REPORT_DIR"); v != "" {
		cfg.ReportDir = v
	}
	if v := os.Getenv("RPLTRACE_CACHE_PATH"); v != "" {
		cfg.CachePath = v
	}
	if v := os.Getenv("RPLTRACE_METRICS_FILE"); v != "" {
		cfg.MetricsFile = v
	}
	if v := os.Getenv("RPLTRACE_COMMIT"); v != "" {
		cfg.Commit = v
	}
	if v := os.Getenv("RPLTRACE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("RPLTRACE_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("RPLTRACE_WORKERS: %w", err)
		}
		cfg.Workers = n
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Format) {
	case "", "auto", "full", "basic":
	default:
		errs = append(errs, fmt.Errorf("format: unknown value %q", c.Format))
	}
	switch c.CorrelateBy {
	case CorrelateByNode, CorrelateByID:
	default:
		errs = append(errs, fmt.Errorf("correlate_by: must be %q or %q, got %q", CorrelateByNode, CorrelateByID, c.CorrelateBy))
	}
	if c.TrimInflight < 0 {
		errs = append(errs, errors.New("trim_inflight: must not be negative"))
	}
	if c.Bucket <= 0 {
		errs = append(errs, errors.New("bucket: must be positive"))
	}
	if c.Workers < 1 {
		errs = append(errs, errors.New("workers: must be at least 1"))
	}
	return errors.Join(errs...)
}
