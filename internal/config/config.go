package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port           string        `yaml:"port"`
	ShutdownWait   time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	RateLimitStats int           `yaml:"rate_limit_stats_per_min"`

	Ledger  LedgerConfig  `yaml:"ledger"`
	Archive ArchiveConfig `yaml:"archive"`
	Log     LogConfig     `yaml:"log"`
}

type LedgerConfig struct {
	Capacity  int           `yaml:"capacity"`
	Tolerance time.Duration `yaml:"tolerance"`
	// Timezone names the IANA zone that defines "today" for statistics;
	// empty or "Local" uses the host zone.
	Timezone string `yaml:"timezone"`
}

type ArchiveConfig struct {
	Driver       string        `yaml:"driver"` // "", postgres, sqlite
	DSN          string        `yaml:"dsn"`
	QueueMaxSize int           `yaml:"queue_max_size"`
	BatchMaxSize int           `yaml:"batch_max_size"`
	BatchMaxWait time.Duration `yaml:"batch_max_wait"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

func Defaults() Config {
	return Config{
		Port:           "8080",
		ShutdownWait:   10 * time.Second,
		MaxBodyBytes:   64 << 10,
		RateLimitStats: 120,
		Ledger: LedgerConfig{
			Capacity:  100,
			Tolerance: time.Second,
			Timezone:  "Local",
		},
		Archive: ArchiveConfig{
			QueueMaxSize: 1000,
			BatchMaxSize: 100,
			BatchMaxWait: 250 * time.Millisecond,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load layers defaults, the optional YAML file at path, then environment
// variables, and validates the result.
func Load(path string) (Config, error) {
	c := Defaults()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return Config{}, fmt.Errorf("parse yaml: %w", err)
		}
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	c.Port = getString(getenv, "PORT", c.Port)
	c.ShutdownWait = getDuration(getenv, "SHUTDOWN_TIMEOUT", c.ShutdownWait)
	c.MaxBodyBytes = int64(getInt(getenv, "MAX_BODY_BYTES", int(c.MaxBodyBytes)))
	c.RateLimitStats = getInt(getenv, "RATE_LIMIT_STATS_PER_MIN", c.RateLimitStats)

	c.Ledger.Capacity = getInt(getenv, "HISTORY_CAPACITY", c.Ledger.Capacity)
	c.Ledger.Tolerance = getMillis(getenv, "DEDUP_TOLERANCE_MS", c.Ledger.Tolerance)
	c.Ledger.Timezone = getString(getenv, "TIMEZONE", c.Ledger.Timezone)

	c.Archive.Driver = getString(getenv, "ARCHIVE_DRIVER", c.Archive.Driver)
	c.Archive.DSN = getString(getenv, "ARCHIVE_DSN", c.Archive.DSN)
	c.Archive.QueueMaxSize = getInt(getenv, "QUEUE_MAX_SIZE", c.Archive.QueueMaxSize)
	c.Archive.BatchMaxSize = getInt(getenv, "BATCH_MAX_SIZE", c.Archive.BatchMaxSize)
	c.Archive.BatchMaxWait = getMillis(getenv, "BATCH_MAX_WAIT_MS", c.Archive.BatchMaxWait)

	c.Log.Level = getString(getenv, "LOG_LEVEL", c.Log.Level)
	c.Log.Format = getString(getenv, "LOG_FORMAT", c.Log.Format)
}

func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port: required"))
	}
	if c.Ledger.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("ledger.capacity: must be positive, got %d", c.Ledger.Capacity))
	}
	if c.Ledger.Tolerance <= 0 {
		errs = append(errs, fmt.Errorf("ledger.tolerance: must be positive, got %s", c.Ledger.Tolerance))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	switch c.Archive.Driver {
	case "", "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("archive.driver: unknown driver %q", c.Archive.Driver))
	}
	if c.Archive.Driver != "" && c.Archive.DSN == "" {
		errs = append(errs, errors.New("archive.dsn: required when archive.driver is set"))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format: must be json or text, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Location resolves the configured timezone.
func (c Config) Location() (*time.Location, error) {
	switch c.Ledger.Timezone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Ledger.Timezone)
	if err != nil {
		return nil, fmt.Errorf("ledger.timezone: %w", err)
	}
	return loc, nil
}

func (c Config) LogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}

// RedactedDSN hides the password part of a DSN for logging.
func (c Config) RedactedDSN() string {
	dsn := c.Archive.DSN
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	userinfo := dsn[scheme+3 : at]
	if i := strings.Index(userinfo, ":"); i >= 0 {
		userinfo = userinfo[:i] + ":***"
	}
	return dsn[:scheme+3] + userinfo + dsn[at:]
}

func getString(getenv func(string) string, key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(getenv func(string) string, key string, def int) int {
	if v := getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getMillis(getenv func(string) string, key string, def time.Duration) time.Duration {
	if v := getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Millisecond
		}
	}
	return def
}

func getDuration(getenv func(string) string, key string, def time.Duration) time.Duration {
	if v := getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
