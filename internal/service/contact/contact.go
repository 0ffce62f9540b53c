// Package contact forwards public contact-form messages to the profile
// owner through the platform transport.
package contact

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ignite/profile-mailer/internal/domain"
	"github.com/ignite/profile-mailer/internal/pkg/logger"
	"github.com/ignite/profile-mailer/internal/service/sending"
	"github.com/ignite/profile-mailer/internal/service/subscriber"
)

// MaxMessageLength caps the visitor's message in runes.
const MaxMessageLength = 5000

// ProfileLookup resolves a public profile.
type ProfileLookup interface {
	GetBySlug(ctx context.Context, slug string) (*domain.Profile, error)
}

// Input is a visitor's contact-form submission.
type Input struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// Notifier sends owner notifications.
type Notifier struct {
	profiles  ProfileLookup
	transport sending.Transport
	fromEmail string
	fromName  string
}

// NewNotifier sends as fromName <fromEmail> through t.
func NewNotifier(profiles ProfileLookup, t sending.Transport, fromEmail, fromName string) *Notifier {
	return &Notifier{profiles: profiles, transport: t, fromEmail: fromEmail, fromName: fromName}
}

// Notify validates in and emails it to the owner of slug, with Reply-To set
// to the visitor.
func (n *Notifier) Notify(ctx context.Context, slug string, in Input) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Validation("name", "is required")
	}
	email, err := subscriber.NormalizeEmail(in.Email)
	if err != nil {
		return err
	}
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return domain.Validation("message", "is required")
	}
	if utf8.RuneCountInString(message) > MaxMessageLength {
		return domain.Validation("message", "must be at most %d characters", MaxMessageLength)
	}

	p, err := n.profiles.GetBySlug(ctx, slug)
	if err != nil {
		return err
	}
	if p.ContactEmail == "" {
		return domain.NotFound("profile contact address")
	}

	msg := &domain.EmailMessage{
		FromName:  n.fromName,
		FromEmail: n.fromEmail,
		ReplyTo:   email,
		To:        []domain.Recipient{{Email: p.ContactEmail, Name: p.DisplayName}},
		Subject:   fmt.Sprintf("New message from %s via your profile", name),
		Body:      fmt.Sprintf("From: %s <%s>\n\n%s\n", name, email, message),
	}
	if err := n.transport.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify owner: %w", err)
	}
	logger.Info("contact: owner notified", "profile_id", p.ID, "transport", n.transport.Kind())
	return nil
}
