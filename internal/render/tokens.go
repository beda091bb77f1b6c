// Package render expands the {query_name}, {date}, {date-1} and
// {timestamp} tokens used in output filenames and email templates.
package render

import (
	"log"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/lestrrat-go/strftime"

	"github.com/davolpi-it/export-cron/internal/domain"
)

const (
	defaultDateFormat = "%Y-%m-%d"
	timestampFormat   = "%Y-%m-%d_%H-%M"
)

var unsafeChars = regexp.MustCompile(`[^0-9A-Za-z_\-]+`)

// QueryName strips the query identifier's extension and collapses every
// character outside [A-Za-z0-9_-] to an underscore.
func QueryName(query string) string {
	name := strings.TrimSuffix(query, filepath.Ext(query))
	return unsafeChars.ReplaceAllString(name, "_")
}

// Tokens builds the replacement set for one execution instant. {date} is
// the instant shifted by the job's offset days; {date-1} is the same
// shifted back one further day, in the same format.
func Tokens(query string, tpl domain.OutputTemplate, at time.Time) map[string]string {
	format := tpl.DateFormat
	if format == "" {
		format = defaultDateFormat
	}

	target := at.AddDate(0, 0, tpl.OffsetDays)
	prev := at.AddDate(0, 0, tpl.OffsetDays-1)

	return map[string]string{
		"query_name": QueryName(query),
		"date":       formatDate(target, format),
		"date-1":     formatDate(prev, format),
		"timestamp":  formatDate(at, timestampFormat),
	}
}

// Render substitutes {token} occurrences literally; unknown tokens are
// left untouched.
func Render(template, query string, tpl domain.OutputTemplate, at time.Time) string {
	if template == "" {
		return template
	}
	out := template
	for k, v := range Tokens(query, tpl, at) {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

// Filename renders the job's filename template and enforces the .xlsx
// extension when the rendered name lacks one.
func Filename(query string, tpl domain.OutputTemplate, at time.Time) string {
	template := tpl.FilenameTemplate
	if template == "" {
		template = "{query_name}_{date}.xlsx"
	}
	name := Render(template, query, tpl, at)
	if !strings.HasSuffix(strings.ToLower(name), ".xlsx") {
		name += ".xlsx"
	}
	return name
}

func formatDate(t time.Time, pattern string) string {
	s, err := strftime.Format(pattern, t)
	if err != nil {
		log.Printf("render: invalid date format %q, using %s: %v", pattern, defaultDateFormat, err)
		s, _ = strftime.Format(defaultDateFormat, t)
	}
	return s
}
