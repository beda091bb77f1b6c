package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func baseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("EXPORT_DIR", "/data/export")
	t.Setenv("CONNECTIONS_FILE", "/etc/exportcron/connections.json")
	t.Setenv("QUERIES_DIR", "/etc/exportcron/queries")
}

func TestLoadDefaults(t *testing.T) {
	baseEnv(t)

	cfg := Load()
	if cfg.QueryTimeoutSec != 300 {
		t.Errorf("QueryTimeoutSec = %d, want 300", cfg.QueryTimeoutSec)
	}
	if cfg.WriteTimeoutSec != 120 {
		t.Errorf("WriteTimeoutSec = %d, want 120", cfg.WriteTimeoutSec)
	}
	if !cfg.RetryEnabled {
		t.Error("RetryEnabled should default true")
	}
	if cfg.RetryDelayMinutes != 30 || cfg.RetryMaxAttempts != 3 {
		t.Errorf("retry defaults = %d min, %d attempts", cfg.RetryDelayMinutes, cfg.RetryMaxAttempts)
	}
	if cfg.BusSuccessThreshold != 95.0 {
		t.Errorf("BusSuccessThreshold = %.1f, want 95", cfg.BusSuccessThreshold)
	}
	if !cfg.BusRandomKeyFallback {
		t.Error("BusRandomKeyFallback should default true")
	}
	if cfg.TickInterval != 30*time.Second {
		t.Errorf("TickInterval = %s, want 30s", cfg.TickInterval)
	}
	if cfg.Workers != 1 {
		t.Errorf("Workers = %d, want 1", cfg.Workers)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.MetricsPath != "/metrics" {
		t.Errorf("MetricsPath = %q", cfg.MetricsPath)
	}
	if cfg.MetricsRetentionDays != 90 {
		t.Errorf("MetricsRetentionDays = %d, want 90", cfg.MetricsRetentionDays)
	}
	if cfg.DailyReportCron != "0 6 * * *" {
		t.Errorf("DailyReportCron = %q", cfg.DailyReportCron)
	}
	if cfg.DailyReportSubject != "Report schedulazioni" {
		t.Errorf("DailyReportSubject = %q", cfg.DailyReportSubject)
	}
}

func TestLoadOverrides(t *testing.T) {
	baseEnv(t)
	t.Setenv("SCHEDULER_QUERY_TIMEOUT_SEC", "600")
	t.Setenv("TICK_INTERVAL", "10s")
	t.Setenv("RETRY_ENABLED", "false")
	t.Setenv("BUS_SUCCESS_THRESHOLD", "80.5")
	t.Setenv("WORKERS", "4")

	cfg := Load()
	if cfg.QueryTimeoutSec != 600 {
		t.Errorf("QueryTimeoutSec = %d", cfg.QueryTimeoutSec)
	}
	if cfg.TickInterval != 10*time.Second {
		t.Errorf("TickInterval = %s", cfg.TickInterval)
	}
	if cfg.RetryEnabled {
		t.Error("RETRY_ENABLED=false not honored")
	}
	if cfg.BusSuccessThreshold != 80.5 {
		t.Errorf("BusSuccessThreshold = %.1f", cfg.BusSuccessThreshold)
	}
	if cfg.Workers != 4 {
		t.Errorf("Workers = %d", cfg.Workers)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	baseEnv(t)
	t.Setenv("SCHEDULER_QUERY_TIMEOUT_SEC", "abc")
	t.Setenv("WORKERS", "-2")
	t.Setenv("BUS_SUCCESS_THRESHOLD", "150")
	t.Setenv("METRICS_RETENTION_DAYS", "3")

	cfg := Load()
	if cfg.QueryTimeoutSec != 300 {
		t.Errorf("bad int should fall back: %d", cfg.QueryTimeoutSec)
	}
	if cfg.Workers != 1 {
		t.Errorf("negative workers should fall back: %d", cfg.Workers)
	}
	if cfg.BusSuccessThreshold != 95.0 {
		t.Errorf("out-of-range threshold should fall back: %.1f", cfg.BusSuccessThreshold)
	}
	if cfg.MetricsRetentionDays != 7 {
		t.Errorf("retention below minimum should clamp to 7: %d", cfg.MetricsRetentionDays)
	}
}

func TestLoadPortFallback(t *testing.T) {
	baseEnv(t)
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("PORT", "9090")

	if cfg := Load(); cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want :9090", cfg.HTTPAddr)
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Config{QueryTimeoutSec: 300, WriteTimeoutSec: 120, RetryDelayMinutes: 30, BusRetryBackoffMS: 100}
	if cfg.QueryTimeout() != 5*time.Minute {
		t.Errorf("QueryTimeout = %s", cfg.QueryTimeout())
	}
	if cfg.WriteTimeout() != 2*time.Minute {
		t.Errorf("WriteTimeout = %s", cfg.WriteTimeout())
	}
	if cfg.RetryDelay() != 30*time.Minute {
		t.Errorf("RetryDelay = %s", cfg.RetryDelay())
	}
	if cfg.BusRetryBackoff() != 100*time.Millisecond {
		t.Errorf("BusRetryBackoff = %s", cfg.BusRetryBackoff())
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		ExportDir:       "/data/export",
		ConnectionsFile: "/etc/exportcron/connections.json",
		QueriesDir:      "/etc/exportcron/queries",
		TickIntervalStr: "30s",
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing export dir", func(c *Config) { c.ExportDir = "" }, "EXPORT_DIR"},
		{"missing connections file", func(c *Config) { c.ConnectionsFile = "" }, "CONNECTIONS_FILE"},
		{"missing queries dir", func(c *Config) { c.QueriesDir = "" }, "QUERIES_DIR"},
		{"bad tick interval", func(c *Config) { c.TickIntervalStr = "soon" }, "TICK_INTERVAL"},
		{"negative tick interval", func(c *Config) { c.TickIntervalStr = "-5s" }, "TICK_INTERVAL"},
		{"daily report without smtp", func(c *Config) {
			c.DailyReportEnabled = true
			c.DailyReportRecipients = "ops@example.com"
		}, "DAILY_REPORT_ENABLED"},
		{"daily report without recipients", func(c *Config) {
			c.DailyReportEnabled = true
			c.SMTPHost = "smtp.example.com"
			c.SMTPFrom = "noreply@example.com"
		}, "DAILY_REPORT_RECIPIENTS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	err := Validate(Config{})
	var errs ValidationErrors
	if !errors.As(err, &errs) {
		t.Fatalf("error type = %T", err)
	}
	if len(errs) != 3 {
		t.Errorf("errors = %d, want 3", len(errs))
	}
}

func TestMaskedJSON(t *testing.T) {
	cfg := Config{SMTPPassword: "hunter2", TickIntervalStr: "30s"}
	data, err := cfg.MaskedJSON()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "hunter2") {
		t.Error("password leaked into masked output")
	}
	if !strings.Contains(string(data), "***") {
		t.Error("masked marker missing")
	}
}
