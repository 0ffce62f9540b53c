// Package api exposes the mailer over HTTP.
package api

import (
	"context"

	"github.com/ignite/profile-mailer/internal/auth"
	"github.com/ignite/profile-mailer/internal/domain"
	"github.com/ignite/profile-mailer/internal/service/campaign"
	"github.com/ignite/profile-mailer/internal/service/contact"
	"github.com/ignite/profile-mailer/internal/service/sending"
	"github.com/ignite/profile-mailer/internal/service/smtpsetting"
	"github.com/ignite/profile-mailer/internal/service/subscriber"
)

// Sender runs the send pipeline.
type Sender interface {
	SendGmail(ctx context.Context, userID string, req sending.SendRequest) (*sending.Result, error)
	SendSMTP(ctx context.Context, userID string, req sending.SendRequest) (*sending.Result, error)
}

// CampaignService reads and deletes campaign history.
type CampaignService interface {
	List(ctx context.Context, userID string, f campaign.ListFilter) ([]domain.Campaign, int, error)
	Get(ctx context.Context, userID, id string) (*campaign.Detail, error)
	Delete(ctx context.Context, userID, id string) error
}

// SubscriberService manages the owner's list and public sign-ups.
type SubscriberService interface {
	List(ctx context.Context, userID string, f subscriber.ListFilter) ([]domain.Subscriber, int, error)
	Add(ctx context.Context, userID string, in subscriber.Input) (*domain.Subscriber, bool, error)
	SetActive(ctx context.Context, userID, id string, active bool) error
	Delete(ctx context.Context, userID string, ids []string) (int, error)
	Subscribe(ctx context.Context, slug string, in subscriber.Input) (*domain.Subscriber, bool, error)
}

// SmtpSettingService manages stored SMTP servers.
type SmtpSettingService interface {
	List(ctx context.Context, userID string) ([]domain.SmtpSetting, error)
	Create(ctx context.Context, userID string, in smtpsetting.Input) (*domain.SmtpSetting, error)
	Update(ctx context.Context, userID, id string, in smtpsetting.Input) (*domain.SmtpSetting, error)
	Delete(ctx context.Context, userID, id string) error
	Test(ctx context.Context, userID, id string) error
}

// GmailService reports and removes the connected mailbox.
type GmailService interface {
	Status(ctx context.Context, userID string) (*auth.GmailStatus, error)
	Disconnect(ctx context.Context, userID string) error
}

// ContactService forwards public contact-form messages.
type ContactService interface {
	Notify(ctx context.Context, slug string, in contact.Input) error
}

// Handlers holds the services behind every route.
type Handlers struct {
	sender       Sender
	campaigns    CampaignService
	subscribers  SubscriberService
	smtpSettings SmtpSettingService
	gmail        GmailService
	contact      ContactService
	health       *HealthChecker
}

// Services wires NewHandlers.
type Services struct {
	Sender       Sender
	Campaigns    CampaignService
	Subscribers  SubscriberService
	SmtpSettings SmtpSettingService
	Gmail        GmailService
	Contact      ContactService
	Health       *HealthChecker
}

func NewHandlers(s Services) *Handlers {
	if s.Health == nil {
		s.Health = NewHealthChecker()
	}
	return &Handlers{
		sender:       s.Sender,
		campaigns:    s.Campaigns,
		subscribers:  s.Subscribers,
		smtpSettings: s.SmtpSettings,
		gmail:        s.Gmail,
		contact:      s.Contact,
		health:       s.Health,
	}
}
