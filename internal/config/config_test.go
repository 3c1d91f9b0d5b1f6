package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaultsAreValid(t *testing.T) {
	c := Defaults()
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if c.Ledger.Capacity != 100 || c.Ledger.Tolerance != time.Second {
		t.Errorf("unexpected ledger defaults: %+v", c.Ledger)
	}
}

func TestApplyEnv(t *testing.T) {
	c := Defaults()
	c.applyEnv(envMap(map[string]string{
		"PORT":                     "9090",
		"HISTORY_CAPACITY":         "25",
		"DEDUP_TOLERANCE_MS":       "1500",
		"TIMEZONE":                 "UTC",
		"ARCHIVE_DRIVER":           "sqlite",
		"ARCHIVE_DSN":              "/tmp/a.db",
		"BATCH_MAX_WAIT_MS":        "40",
		"SHUTDOWN_TIMEOUT":         "3s",
		"RATE_LIMIT_STATS_PER_MIN": "0",
		"LOG_LEVEL":                "debug",
		"HISTORY_CAPACITY_TYPO":    "7",
		"QUEUE_MAX_SIZE":           "not-a-number",
	}))

	if c.Port != "9090" {
		t.Errorf("Port = %s", c.Port)
	}
	if c.Ledger.Capacity != 25 {
		t.Errorf("Capacity = %d", c.Ledger.Capacity)
	}
	if c.Ledger.Tolerance != 1500*time.Millisecond {
		t.Errorf("Tolerance = %s", c.Ledger.Tolerance)
	}
	if c.Archive.Driver != "sqlite" || c.Archive.DSN != "/tmp/a.db" {
		t.Errorf("Archive = %+v", c.Archive)
	}
	if c.Archive.BatchMaxWait != 40*time.Millisecond {
		t.Errorf("BatchMaxWait = %s", c.Archive.BatchMaxWait)
	}
	if c.Archive.QueueMaxSize != 1000 {
		t.Errorf("bad int should keep default, got %d", c.Archive.QueueMaxSize)
	}
	if c.ShutdownWait != 3*time.Second {
		t.Errorf("ShutdownWait = %s", c.ShutdownWait)
	}
	if c.RateLimitStats != 0 {
		t.Errorf("RateLimitStats = %d, want 0 (disabled)", c.RateLimitStats)
	}
	lvl, err := c.LogLevel()
	if err != nil || lvl != slog.LevelDebug {
		t.Errorf("LogLevel = %v, %v", lvl, err)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	yml := `
port: "7070"
ledger:
  capacity: 50
  tolerance: 2s
  timezone: UTC
archive:
  driver: postgres
  dsn: postgres://u:secret@db:5432/attendance
log:
  format: text
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"PORT", "DEDUP_TOLERANCE_MS", "TIMEZONE", "ARCHIVE_DRIVER", "ARCHIVE_DSN", "BATCH_MAX_SIZE", "LOG_LEVEL", "LOG_FORMAT"} {
		t.Setenv(k, "")
	}
	t.Setenv("HISTORY_CAPACITY", "60")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Port != "7070" {
		t.Errorf("Port = %s", c.Port)
	}
	if c.Ledger.Capacity != 60 {
		t.Errorf("env should override yaml: Capacity = %d", c.Ledger.Capacity)
	}
	if c.Ledger.Tolerance != 2*time.Second {
		t.Errorf("Tolerance = %s", c.Ledger.Tolerance)
	}
	if c.Archive.BatchMaxSize != 100 {
		t.Errorf("unset yaml key should keep default, got %d", c.Archive.BatchMaxSize)
	}
	if c.Log.Format != "text" {
		t.Errorf("Log.Format = %s", c.Log.Format)
	}
	loc, err := c.Location()
	if err != nil || loc != time.UTC {
		t.Errorf("Location = %v, %v", loc, err)
	}
	if got := c.RedactedDSN(); got != "postgres://u:***@db:5432/attendance" {
		t.Errorf("RedactedDSN = %s", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero capacity", func(c *Config) { c.Ledger.Capacity = 0 }, "ledger.capacity"},
		{"negative tolerance", func(c *Config) { c.Ledger.Tolerance = -time.Second }, "ledger.tolerance"},
		{"bad timezone", func(c *Config) { c.Ledger.Timezone = "Mars/Olympus" }, "ledger.timezone"},
		{"bad driver", func(c *Config) { c.Archive.Driver = "mongo"; c.Archive.DSN = "x" }, "archive.driver"},
		{"driver without dsn", func(c *Config) { c.Archive.Driver = "sqlite" }, "archive.dsn"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"empty port", func(c *Config) { c.Port = "" }, "port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Defaults()
			tt.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestRedactedDSNWithoutPassword(t *testing.T) {
	c := Defaults()
	c.Archive.DSN = "/var/lib/attendance/archive.db"
	if got := c.RedactedDSN(); got != c.Archive.DSN {
		t.Errorf("RedactedDSN = %s", got)
	}
}
