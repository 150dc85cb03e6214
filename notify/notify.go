// Package notify renders e-mail templates and delivers them.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/mbolis/workation/log"
	"github.com/mbolis/workation/model"
	"github.com/mbolis/workation/store"
)

var (
	ErrNoRecipient      = errors.New("no recipient address")
	ErrInvalidRecipient = errors.New("invalid recipient address")
)

type Message struct {
	To      []string
	BCC     []string
	Subject string
	HTML    string
}

// Mailer delivers one message and returns the provider's message id.
type Mailer interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// LogMailer only logs messages; used when no provider is configured.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, msg Message) (string, error) {
	if len(msg.To) == 0 {
		return "", ErrNoRecipient
	}
	id := "log-" + uuid.NewString()
	log.WithFields(log.Fields{
		"id":      id,
		"to":      strings.Join(msg.To, ","),
		"bcc":     strings.Join(msg.BCC, ","),
		"subject": msg.Subject,
	}).Info("notify: mail not sent, no provider configured")
	log.Debugf("notify: body of %s:\n%s", id, msg.HTML)
	return id, nil
}

// DefaultConfirmation is used until an admin saves a confirmation template.
var DefaultConfirmation = model.EmailTemplate{
	Subject: "Thank you for joining the workation campaign{{#if name}}, {{name}}{{/if}}!",
	Content: `<p>Hi {{name}},</p>
<p>we received your application for the workation campaign.</p>
{{#if isBrandCollaboration}}<p>Our partnership team will review the collaboration proposal from {{companyName}} and get back to you shortly.</p>{{/if}}
<p>Winners of the prize draw are notified at this address.</p>
<p>See you soon!</p>`,
}

type Service struct {
	mailer   Mailer
	content  store.ContentStore
	adminBCC string
	validate *validator.Validate
}

// NewService returns a service sending through mailer. adminBCC, if set,
// receives a blind copy of every confirmation.
func NewService(mailer Mailer, content store.ContentStore, adminBCC string) *Service {
	return &Service{
		mailer:   mailer,
		content:  content,
		adminBCC: adminBCC,
		validate: validator.New(),
	}
}

// Confirmation returns the stored confirmation template, or the built-in
// one when none was saved or it cannot be loaded.
func (s *Service) Confirmation(ctx context.Context) model.EmailTemplate {
	if s.content == nil {
		return DefaultConfirmation
	}
	tpls, found, err := store.LoadEmailTemplates(ctx, s.content)
	if err != nil {
		log.Warnf("notify.load_template: %s", err)
		return DefaultConfirmation
	}
	if !found || tpls.Confirmation.Subject == "" || tpls.Confirmation.Content == "" {
		return DefaultConfirmation
	}
	return tpls.Confirmation
}

// SendConfirmation mails the survey confirmation to the respondent.
func (s *Service) SendConfirmation(ctx context.Context, to string, data map[string]any) (string, error) {
	return s.send(ctx, to, s.Confirmation(ctx), data, true)
}

// SendTemplate renders tpl with data and mails it to to (no blind copy).
func (s *Service) SendTemplate(ctx context.Context, to string, tpl model.EmailTemplate, data map[string]any) (string, error) {
	return s.send(ctx, to, tpl, data, false)
}

func (s *Service) send(ctx context.Context, to string, tpl model.EmailTemplate, data map[string]any, bcc bool) (string, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return "", ErrNoRecipient
	}
	if err := s.validate.Var(to, "email"); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidRecipient, to)
	}

	out := Render(tpl, data)
	msg := Message{
		To:      []string{to},
		Subject: out.Subject,
		HTML:    out.Content,
	}
	if bcc && s.adminBCC != "" {
		msg.BCC = []string{s.adminBCC}
	}
	return s.mailer.Send(ctx, msg)
}
