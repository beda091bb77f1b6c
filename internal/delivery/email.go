package delivery

import (
	"context"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/davolpi-it/export-cron/internal/domain"
	"github.com/davolpi-it/export-cron/internal/render"
)

const defaultEmailBody = "Buongiorno,\n" +
	"in allegato estrazione relativa l'oggetto, generata da procedura automatica.\n" +
	"Saluti,\n" +
	"Report_PSTT\n"

// MailMessage is one outbound email. Attachment may be empty.
type MailMessage struct {
	To         []string
	CC         []string
	Subject    string
	Body       string
	HTML       bool
	Attachment string
}

// Mailer sends email. One implementation talks SMTP; tests script their
// own.
type Mailer interface {
	Send(ctx context.Context, msg MailMessage) error
}

// Email sends the materialized artifact as an attachment. Sending is
// best-effort: when recipients are missing or SMTP fails, the artifact
// on disk is the fallback and the fire still counts as delivered.
type Email struct {
	mailer Mailer
}

func NewEmail(mailer Mailer) *Email {
	return &Email{mailer: mailer}
}

// Deliver emails artifactPath according to the job's email settings.
// Never returns an error: every failure is logged and swallowed.
func (e *Email) Deliver(ctx context.Context, job domain.JobDefinition, cfg domain.EmailDelivery, artifactPath string, at time.Time) {
	toField := cfg.To
	if toField == "" {
		toField = cfg.LegacyRecipients
	}
	to := SplitRecipients(toField)
	if len(to) == 0 {
		log.Printf("email: job=%s no recipients configured, artifact kept at %s", job.Name(), artifactPath)
		return
	}
	cc := SplitRecipients(cfg.CC)

	filename := filepath.Base(artifactPath)
	subject := cfg.Subject
	if subject == "" {
		subject = "Export scheduler: " + filename
	}
	body := cfg.Body
	if body == "" {
		body = defaultEmailBody
	}
	subject = render.Render(subject, job.Query, job.Output, at)
	body = render.Render(body, job.Query, job.Output, at)

	msg := MailMessage{
		To:         to,
		CC:         cc,
		Subject:    subject,
		Body:       body,
		Attachment: artifactPath,
	}
	if err := e.mailer.Send(ctx, msg); err != nil {
		log.Printf("email: job=%s send failed: %v (artifact kept at %s)", job.Name(), err, artifactPath)
		return
	}
	log.Printf("email: job=%s sent to=%s cc=%s file=%s", job.Name(), strings.Join(to, ","), strings.Join(cc, ","), filename)
}

// SplitRecipients splits a pipe-separated address list, trimming blanks.
func SplitRecipients(field string) []string {
	if field == "" {
		return nil
	}
	parts := strings.Split(field, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
