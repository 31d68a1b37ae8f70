package email

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
	ProviderID() string
}

type SMTPConfig struct {
	Host     string
	Port     string
	From     string
	Username string
	Password string
}

// SMTPSender delivers plain-text mail. Without credentials it talks
// unauthenticated SMTP, which is what local relays such as Mailpit expect.
type SMTPSender struct {
	addr string
	host string
	from string
	auth smtp.Auth
	now  func() time.Time
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	host := strings.TrimSpace(cfg.Host)
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		from = "no-reply@tabletop.local"
	}
	s := &SMTPSender{
		addr: net.JoinHostPort(host, strings.TrimSpace(cfg.Port)),
		host: host,
		from: from,
		now:  time.Now,
	}
	if cfg.Username != "" {
		s.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}
	return s
}

func (s *SMTPSender) ProviderID() string {
	return "smtp"
}

// Send gives up early when ctx is already done; net/smtp itself has no
// context support.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to = strings.TrimSpace(to)
	if to == "" || strings.ContainsAny(to, "\r\n") {
		return fmt.Errorf("invalid recipient %q", to)
	}
	msg := buildMessage(s.from, to, subject, body, s.now())
	return smtp.SendMail(s.addr, s.auth, s.from, []string{to}, []byte(msg))
}

func buildMessage(from, to, subject, body string, at time.Time) string {
	subject = strings.NewReplacer("\r", " ", "\n", " ").Replace(subject)
	return fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nDate: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		from,
		to,
		subject,
		at.UTC().Format(time.RFC1123Z),
		body,
	)
}
