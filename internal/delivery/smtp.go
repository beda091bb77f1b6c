package delivery

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
)

// SMTPMailer sends mail through a single configured SMTP relay.
// STARTTLS is attempted opportunistically, matching relays that only
// speak plaintext on the inside network.
type SMTPMailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (m *SMTPMailer) Send(ctx context.Context, msg MailMessage) error {
	message := mail.NewMsg()
	if err := message.From(m.From); err != nil {
		return fmt.Errorf("from address: %w", err)
	}
	if err := message.To(msg.To...); err != nil {
		return fmt.Errorf("to addresses: %w", err)
	}
	if len(msg.CC) > 0 {
		if err := message.Cc(msg.CC...); err != nil {
			return fmt.Errorf("cc addresses: %w", err)
		}
	}
	message.Subject(msg.Subject)
	if msg.HTML {
		message.SetBodyString(mail.TypeTextHTML, msg.Body)
	} else {
		message.SetBodyString(mail.TypeTextPlain, msg.Body)
	}
	if msg.Attachment != "" {
		message.AttachFile(msg.Attachment)
	}

	opts := []mail.Option{
		mail.WithPort(m.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if m.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.Username),
			mail.WithPassword(m.Password),
		)
	}
	client, err := mail.NewClient(m.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, message)
}
