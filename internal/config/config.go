package config

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the exportcron application.
// Values are loaded from environment variables; see printUsage() in
// cmd/exportcron for the full list.
type Config struct {
	ExportDir       string `json:"export_dir"`
	ConnectionsFile string `json:"connections_file"`
	QueriesDir      string `json:"queries_dir"`

	TickInterval    time.Duration `json:"-"`
	TickIntervalStr string        `json:"tick_interval"`

	QueryTimeoutSec int `json:"query_timeout_sec"`
	WriteTimeoutSec int `json:"write_timeout_sec"`

	RetryEnabled      bool `json:"retry_enabled"`
	RetryDelayMinutes int  `json:"retry_delay_minutes"`
	RetryMaxAttempts  int  `json:"retry_max_attempts"`

	BusMaxRetries        int     `json:"bus_max_retries"`
	BusRetryBackoffMS    int     `json:"bus_retry_backoff_ms"`
	BusSuccessThreshold  float64 `json:"bus_success_threshold"`
	BusRandomKeyFallback bool    `json:"bus_random_key_fallback"`

	MetricsRetentionDays int `json:"metrics_retention_days"`
	ExportRetentionDays  int `json:"export_retention_days"`

	Workers            int `json:"workers"`
	EventBusBufferSize int `json:"eventbus_buffer_size"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsPath    string `json:"metrics_path"`
	HTTPAddr       string `json:"http_addr"`

	RedisAddr string `json:"redis_addr,omitempty"`

	SMTPHost     string `json:"smtp_host,omitempty"`
	SMTPPort     int    `json:"smtp_port"`
	SMTPUser     string `json:"smtp_user,omitempty"`
	SMTPPassword string `json:"smtp_password,omitempty"`
	SMTPFrom     string `json:"smtp_from,omitempty"`

	DailyReportEnabled    bool   `json:"daily_report_enabled"`
	DailyReportCron       string `json:"daily_report_cron"`
	DailyReportRecipients string `json:"daily_report_recipients,omitempty"`
	DailyReportCC         string `json:"daily_report_cc,omitempty"`
	DailyReportSubject    string `json:"daily_report_subject"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	cfg := Config{
		ExportDir:             os.Getenv("EXPORT_DIR"),
		ConnectionsFile:       os.Getenv("CONNECTIONS_FILE"),
		QueriesDir:            os.Getenv("QUERIES_DIR"),
		TickIntervalStr:       os.Getenv("TICK_INTERVAL"),
		RetryEnabled:          os.Getenv("RETRY_ENABLED") != "false",
		BusRandomKeyFallback:  os.Getenv("BUS_RANDOM_KEY_FALLBACK") != "false",
		MetricsEnabled:        os.Getenv("METRICS_ENABLED") == "true",
		MetricsPath:           os.Getenv("METRICS_PATH"),
		HTTPAddr:              os.Getenv("HTTP_ADDR"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		SMTPHost:              os.Getenv("SMTP_HOST"),
		SMTPUser:              os.Getenv("SMTP_USER"),
		SMTPPassword:          os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:              os.Getenv("SMTP_FROM"),
		DailyReportEnabled:    os.Getenv("DAILY_REPORT_ENABLED") == "true",
		DailyReportCron:       os.Getenv("DAILY_REPORT_CRON"),
		DailyReportRecipients: os.Getenv("DAILY_REPORT_RECIPIENTS"),
		DailyReportCC:         os.Getenv("DAILY_REPORT_CC"),
		DailyReportSubject:    os.Getenv("DAILY_REPORT_SUBJECT"),
	}

	cfg.QueryTimeoutSec = intEnv("SCHEDULER_QUERY_TIMEOUT_SEC", 300)
	cfg.WriteTimeoutSec = intEnv("SCHEDULER_WRITE_TIMEOUT_SEC", 120)
	cfg.RetryDelayMinutes = intEnv("RETRY_DELAY_MINUTES", 30)
	cfg.RetryMaxAttempts = intEnv("RETRY_MAX_ATTEMPTS", 3)
	cfg.BusMaxRetries = intEnv("BUS_MAX_RETRIES", 3)
	cfg.BusRetryBackoffMS = intEnv("BUS_RETRY_BACKOFF_MS", 100)
	cfg.ExportRetentionDays = intEnv("EXPORT_RETENTION_DAYS", 30)
	cfg.Workers = intEnv("WORKERS", 1)
	cfg.EventBusBufferSize = intEnv("EVENTBUS_BUFFER_SIZE", 100)
	cfg.SMTPPort = intEnv("SMTP_PORT", 25)

	cfg.MetricsRetentionDays = intEnv("METRICS_RETENTION_DAYS", 90)
	if cfg.MetricsRetentionDays < 7 {
		log.Printf("config: METRICS_RETENTION_DAYS %d below minimum, using 7", cfg.MetricsRetentionDays)
		cfg.MetricsRetentionDays = 7
	}

	cfg.BusSuccessThreshold = 95.0
	if thresholdStr := os.Getenv("BUS_SUCCESS_THRESHOLD"); thresholdStr != "" {
		if f, err := strconv.ParseFloat(thresholdStr, 64); err == nil && f > 0 && f <= 100 {
			cfg.BusSuccessThreshold = f
		} else {
			log.Printf("config: invalid BUS_SUCCESS_THRESHOLD %q (must be in (0,100]), using default 95", thresholdStr)
		}
	}

	if cfg.TickIntervalStr == "" {
		cfg.TickIntervalStr = "30s"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}
	if cfg.DailyReportCron == "" {
		cfg.DailyReportCron = "0 6 * * *"
	}
	if cfg.DailyReportSubject == "" {
		cfg.DailyReportSubject = "Report schedulazioni"
	}

	// Parse durations; validation is handled separately by Validate().
	if d, err := time.ParseDuration(cfg.TickIntervalStr); err == nil {
		cfg.TickInterval = d
	}

	return cfg
}

// QueryTimeout returns the query stage timeout as a duration.
func (c Config) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSec) * time.Second
}

// WriteTimeout returns the artifact write timeout as a duration.
func (c Config) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSec) * time.Second
}

// RetryDelay returns the delay before a retry re-fire.
func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMinutes) * time.Minute
}

// BusRetryBackoff returns the base backoff between publish attempts.
func (c Config) BusRetryBackoff() time.Duration {
	return time.Duration(c.BusRetryBackoffMS) * time.Millisecond
}

func intEnv(name string, def int) int {
	s := os.Getenv(name)
	if s == "" {
		return def
	}
	n, err := parseInt(s)
	if err != nil || n <= 0 {
		log.Printf("config: invalid %s %q (must be a positive integer), using default %d", name, s, def)
		return def
	}
	return n
}

// parseInt parses a string as an integer.
func parseInt(s string) (int, error) {
	var n int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, os.ErrInvalid
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := c
	if masked.SMTPPassword != "" {
		masked.SMTPPassword = "***"
	}
	return json.MarshalIndent(masked, "", "  ")
}
