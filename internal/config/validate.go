package config

import (
	"fmt"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors

	if cfg.ExportDir == "" {
		errs = append(errs, ValidationError{Field: "EXPORT_DIR", Message: "required"})
	}
	if cfg.ConnectionsFile == "" {
		errs = append(errs, ValidationError{Field: "CONNECTIONS_FILE", Message: "required"})
	}
	if cfg.QueriesDir == "" {
		errs = append(errs, ValidationError{Field: "QUERIES_DIR", Message: "required"})
	}

	if cfg.TickIntervalStr != "" {
		d, err := time.ParseDuration(cfg.TickIntervalStr)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   "TICK_INTERVAL",
				Message: fmt.Sprintf("invalid duration: %v", err),
			})
		} else if d <= 0 {
			errs = append(errs, ValidationError{
				Field:   "TICK_INTERVAL",
				Message: "must be positive",
			})
		}
	}

	if cfg.DailyReportEnabled {
		if cfg.SMTPHost == "" || cfg.SMTPFrom == "" {
			errs = append(errs, ValidationError{
				Field:   "DAILY_REPORT_ENABLED",
				Message: "requires SMTP_HOST and SMTP_FROM",
			})
		}
		if cfg.DailyReportRecipients == "" {
			errs = append(errs, ValidationError{
				Field:   "DAILY_REPORT_RECIPIENTS",
				Message: "required when the daily report is enabled",
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
