package render

import (
	"testing"
	"time"

	"github.com/davolpi-it/export-cron/internal/domain"
)

var fireInstant = time.Date(2025, 10, 12, 8, 0, 0, 0, time.UTC)

func TestFilename_DefaultTemplate(t *testing.T) {
	got := Filename("REPORT.sql", domain.OutputTemplate{DateFormat: "%Y-%m-%d"}, fireInstant)
	want := "REPORT_2025-10-12.xlsx"
	if got != want {
		t.Errorf("Filename = %q, want %q", got, want)
	}
}

func TestFilename_EnforcesExtension(t *testing.T) {
	got := Filename("REPORT.sql", domain.OutputTemplate{FilenameTemplate: "{query_name}_{date}"}, fireInstant)
	want := "REPORT_2025-10-12.xlsx"
	if got != want {
		t.Errorf("Filename = %q, want %q", got, want)
	}
}

func TestTokens_DateMinusOneRelation(t *testing.T) {
	tpl := domain.OutputTemplate{DateFormat: "%Y-%m-%d", OffsetDays: -1}
	tokens := Tokens("REPORT.sql", tpl, fireInstant)

	if tokens["date"] != "2025-10-11" {
		t.Errorf("date = %q, want 2025-10-11", tokens["date"])
	}
	// {date-1} is always one day behind {date}, in the same format.
	if tokens["date-1"] != "2025-10-10" {
		t.Errorf("date-1 = %q, want 2025-10-10", tokens["date-1"])
	}
}

func TestTokens_Timestamp(t *testing.T) {
	tokens := Tokens("REPORT.sql", domain.OutputTemplate{}, fireInstant)
	if tokens["timestamp"] != "2025-10-12_08-00" {
		t.Errorf("timestamp = %q, want 2025-10-12_08-00", tokens["timestamp"])
	}
}

func TestQueryName_Sanitization(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"REPORT.sql", "REPORT"},
		{"daily export (v2).sql", "daily_export_v2_"},
		{"ab-c_d.sql", "ab-c_d"},
		{"noext", "noext"},
	}
	for _, tt := range tests {
		if got := QueryName(tt.query); got != tt.want {
			t.Errorf("QueryName(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}

func TestRender_UnknownTokenUntouched(t *testing.T) {
	got := Render("{query_name}-{mystery}", "REPORT.sql", domain.OutputTemplate{}, fireInstant)
	want := "REPORT-{mystery}"
	if got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}

func TestRender_Idempotent(t *testing.T) {
	tpl := domain.OutputTemplate{DateFormat: "%Y-%m-%d"}
	once := Render("{query_name}_{date}", "REPORT.sql", tpl, fireInstant)
	twice := Render(once, "REPORT.sql", tpl, fireInstant)
	if once != twice {
		t.Errorf("second render changed output: %q -> %q", once, twice)
	}
}

func TestRender_BadDateFormatFallsBack(t *testing.T) {
	tpl := domain.OutputTemplate{DateFormat: "%Q"}
	tokens := Tokens("REPORT.sql", tpl, fireInstant)
	if tokens["date"] != "2025-10-12" {
		t.Errorf("date with bad format = %q, want ISO fallback", tokens["date"])
	}
}
