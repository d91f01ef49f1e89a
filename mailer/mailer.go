// Package mailer renders and delivers the account mails requested by
// auth.AccountLifecycle.
package mailer

import (
	"context"

	auth "github.com/goliatone/go-auth-lifecycle"
)

// Message is a rendered mail ready for delivery
type Message struct {
	From    string
	To      string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers rendered messages
type Sender interface {
	Deliver(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender
type SenderFunc func(ctx context.Context, msg Message) error

// Deliver implements Sender
func (f SenderFunc) Deliver(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Mailer implements auth.Mailer by rendering templates and handing the
// result to a Sender.
type Mailer struct {
	from     string
	renderer *Renderer
	sender   Sender
}

var _ auth.Mailer = (*Mailer)(nil)

// New creates a Mailer
func New(from string, renderer *Renderer, sender Sender) *Mailer {
	if renderer == nil {
		renderer = NewRenderer(nil)
	}
	return &Mailer{from: from, renderer: renderer, sender: sender}
}

// Send implements auth.Mailer
func (m *Mailer) Send(ctx context.Context, mail auth.Mail) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	body, err := m.renderer.Render(mail)
	if err != nil {
		return err
	}

	return m.sender.Deliver(ctx, Message{
		From:    m.from,
		To:      mail.To,
		Subject: mail.Subject,
		Text:    body.Text,
		HTML:    body.HTML,
	})
}
