// Package report builds and emails the daily execution summary.
package report

import (
	"context"
	"fmt"
	"html"
	"log"
	"strings"
	"time"

	"github.com/davolpi-it/export-cron/internal/delivery"
	"github.com/davolpi-it/export-cron/internal/domain"
)

// HistorySource serves the execution records the report is built from.
type HistorySource interface {
	Records() []domain.ExecutionRecord
}

// Config names the report's recipients and subject.
type Config struct {
	To      string // pipe-separated
	CC      string // pipe-separated
	Subject string
}

// Daily summarizes one day of execution history into an HTML email.
type Daily struct {
	history HistorySource
	mailer  delivery.Mailer
	config  Config

	clock func() time.Time
}

func NewDaily(history HistorySource, mailer delivery.Mailer, config Config) *Daily {
	if config.Subject == "" {
		config.Subject = "Report schedulazioni"
	}
	return &Daily{history: history, mailer: mailer, config: config, clock: time.Now}
}

// Generate builds the HTML body for the given day.
func (d *Daily) Generate(day time.Time) string {
	items := d.filterByDate(day)
	return buildHTML(day, items)
}

// Send generates today's report and emails it. Failures are logged and
// swallowed; a missed report never affects scheduling.
func (d *Daily) Send(ctx context.Context) {
	day := d.clock()
	to := delivery.SplitRecipients(d.config.To)
	if len(to) == 0 {
		log.Printf("report: no recipients configured, skipping daily report")
		return
	}

	msg := delivery.MailMessage{
		To:      to,
		CC:      delivery.SplitRecipients(d.config.CC),
		Subject: d.config.Subject,
		Body:    d.Generate(day),
		HTML:    true,
	}
	if err := d.mailer.Send(ctx, msg); err != nil {
		log.Printf("report: send daily report: %v", err)
		return
	}
	log.Printf("report: daily report sent to=%s", strings.Join(to, ","))
}

func (d *Daily) filterByDate(day time.Time) []domain.ExecutionRecord {
	y, m, dd := day.Date()
	var out []domain.ExecutionRecord
	for _, rec := range d.history.Records() {
		ry, rm, rd := rec.Timestamp.Date()
		if ry == y && rm == m && rd == dd {
			out = append(out, rec)
		}
	}
	return out
}

func buildHTML(day time.Time, items []domain.ExecutionRecord) string {
	var success, fail, rowsTotal int
	var durSum float64
	var durCount int
	for _, h := range items {
		switch h.Status {
		case domain.ExecutionStatusSuccess:
			success++
		case domain.ExecutionStatusFail:
			fail++
		}
		if h.DurationSec != nil {
			durSum += *h.DurationSec
			durCount++
		}
		rowsTotal += h.RowCount
	}
	avg := 0.0
	if durCount > 0 {
		avg = durSum / float64(durCount)
	}

	var rows strings.Builder
	for _, h := range items {
		dur := 0.0
		if h.DurationSec != nil {
			dur = *h.DurationSec
		}
		fmt.Fprintf(&rows, `<tr>
<td>%s</td><td>%s</td><td>%s</td><td>%s</td>
<td style='text-align:right'>%.2f</td><td style='text-align:right'>%d</td>
<td style='width:40%%'><pre style='white-space:pre-wrap;margin:0'>%s</pre></td>
</tr>`,
			html.EscapeString(h.Query), html.EscapeString(h.Connection),
			html.EscapeString(h.StartDate), html.EscapeString(string(h.Status)),
			dur, h.RowCount, html.EscapeString(h.Error))
	}
	if rows.Len() == 0 {
		rows.WriteString("<tr><td colspan=7>Nessuna esecuzione</td></tr>")
	}

	return fmt.Sprintf(`<html><head><style>
body { font-family: system-ui, Arial, sans-serif; }
table { width: 100%%; border-collapse: collapse; }
th, td { border: 1px solid #ddd; padding: 8px; vertical-align: top; }
th { background: #f3f4f6; text-align: left; }
</style></head><body>
<h3>Report schedulazioni - %s</h3>
<p>
Totale: <b>%d</b> &nbsp;|
Successi: <b style='color:#059669'>%d</b> &nbsp;|
Fallimenti: <b style='color:#dc2626'>%d</b> &nbsp;|
Tempo medio (s): <b>%.2f</b> &nbsp;|
Righe totali: <b>%d</b>
</p>
<table>
<thead><tr>
<th>Query</th><th>Connessione</th><th>Partenza</th><th>Stato</th>
<th>Durata (s)</th><th>Rows</th><th style='width:40%%'>Errore</th>
</tr></thead>
<tbody>%s</tbody>
</table>
</body></html>`,
		day.Format("2006-01-02"), len(items), success, fail, avg, rowsTotal, rows.String())
}
