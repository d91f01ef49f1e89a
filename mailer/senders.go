package mailer

import (
	"context"
	"fmt"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"

	auth "github.com/goliatone/go-auth-lifecycle"
	goerrors "github.com/goliatone/go-errors"
)

// LogSender writes messages to a logger instead of delivering them.
// Useful in development; the text body carries the link.
type LogSender struct {
	Logger auth.Logger
}

// Deliver implements Sender
func (s LogSender) Deliver(_ context.Context, msg Message) error {
	s.Logger.Info("mail delivery (log sender)",
		"from", msg.From,
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Text,
	)
	return nil
}

// SMTPConfig holds SMTP connection settings
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// SMTPSender delivers messages over SMTP with PLAIN auth when credentials are set
type SMTPSender struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender creates an SMTP sender
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg, send: smtp.SendMail}
}

// Deliver implements Sender
func (s *SMTPSender) Deliver(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := buildMIME(msg)
	if err != nil {
		return err
	}

	var smtpAuth smtp.Auth
	if s.cfg.Username != "" {
		smtpAuth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	if err := s.send(addr, smtpAuth, msg.From, []string{msg.To}, raw); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "smtp delivery failed").
			WithMetadata(map[string]any{"host": s.cfg.Host})
	}
	return nil
}

func buildMIME(msg Message) ([]byte, error) {
	var b strings.Builder
	w := multipart.NewWriter(&b)

	fmt.Fprintf(&b, "From: %s\r\n", msg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", w.Boundary())

	parts := []struct {
		contentType string
		body        string
	}{
		{"text/plain; charset=utf-8", msg.Text},
		{"text/html; charset=utf-8", msg.HTML},
	}
	for _, p := range parts {
		if p.body == "" {
			continue
		}
		pw, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {p.contentType}})
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build mail part")
		}
		if _, err := pw.Write([]byte(p.body)); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to write mail part")
		}
	}
	if err := w.Close(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to close mail body")
	}
	return []byte(b.String()), nil
}
