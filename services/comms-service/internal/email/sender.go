package email

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/google/uuid"
)

type Sender interface {
	// Send delivers one message and returns a provider message id for the
	// communication log.
	Send(to string, subject string, body string) (string, error)
}

// SMTPSender sends email via unauthenticated SMTP (Mailpit-compatible).
type SMTPSender struct {
	addr string
	from string
}

func NewSMTPSender(host string, port string, from string) *SMTPSender {
	host = strings.TrimSpace(host)
	port = strings.TrimSpace(port)
	from = strings.TrimSpace(from)
	if from == "" {
		from = "no-reply@workshop.local"
	}
	return &SMTPSender{
		addr: fmt.Sprintf("%s:%s", host, port),
		from: from,
	}
}

func (s *SMTPSender) Send(to string, subject string, body string) (string, error) {
	messageID := fmt.Sprintf("<%s@workshop>", uuid.NewString())
	msg := buildMessage(s.from, to, subject, body, messageID)
	if err := smtp.SendMail(s.addr, nil, s.from, []string{to}, []byte(msg)); err != nil {
		return "", err
	}
	return messageID, nil
}

func buildMessage(from, to, subject, body, messageID string) string {
	// Minimal RFC 5322 message; enough for Mailpit and most SMTP relays.
	return fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMessage-ID: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		from,
		to,
		subject,
		messageID,
		body,
	)
}
