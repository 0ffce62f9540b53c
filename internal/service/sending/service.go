package sending

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/profile-mailer/internal/domain"
	"github.com/ignite/profile-mailer/internal/personalize"
	"github.com/ignite/profile-mailer/internal/pkg/logger"
)

// ProfileStore loads the owner's profile.
type ProfileStore interface {
	GetByUserID(ctx context.Context, userID string) (*domain.Profile, error)
}

// SubscriberLister loads every subscriber of a profile.
type SubscriberLister interface {
	ListByProfile(ctx context.Context, profileID string) ([]domain.Subscriber, error)
}

// GmailAccountStore loads a user's stored mailbox tokens.
type GmailAccountStore interface {
	Get(ctx context.Context, userID string) (*domain.GmailAccount, error)
}

// SmtpSettingStore loads one of a user's SMTP settings.
type SmtpSettingStore interface {
	Get(ctx context.Context, userID, id string) (*domain.SmtpSetting, error)
}

// Ledger records the campaign around a dispatch.
type Ledger interface {
	// Open inserts c with status "sending" and zero counts, filling ID and CreatedAt.
	Open(ctx context.Context, c *domain.Campaign) error
	// Record appends one SentEmail row per outcome.
	Record(ctx context.Context, c *domain.Campaign, outcomes []domain.SendOutcome) error
	// Finalize writes the final counts, re-reads the row and returns a
	// non-empty warning if the stored row does not match.
	Finalize(ctx context.Context, c *domain.Campaign, sent, failed int) string
}

// RecipientError is one failed recipient in a Result.
type RecipientError struct {
	Email string `json:"email"`
	Error string `json:"error"`
}

// Result is the response of a processed send. Success means the request
// was processed, not that every recipient succeeded.
type Result struct {
	Success    bool             `json:"success"`
	CampaignID string           `json:"campaignId"`
	Sent       int              `json:"sent"`
	Failed     int              `json:"failed"`
	Errors     []RecipientError `json:"errors"`
	Warning    string           `json:"warning,omitempty"`
}

// Deps wires a Service. Personalizer may be nil.
type Deps struct {
	Composer       Composer
	Dispatcher     *Dispatcher
	Ledger         Ledger
	Profiles       ProfileStore
	Subscribers    SubscriberLister
	GmailAccounts  GmailAccountStore
	SmtpSettings   SmtpSettingStore
	GmailTransport GmailTransportFactory
	SMTPTransport  SMTPTransportFactory
	Personalizer   *personalize.Engine
	PersistTimeout time.Duration
}

// Service runs the send pipeline for both mailbox variants.
type Service struct {
	d Deps
}

// NewService creates a send service.
func NewService(d Deps) *Service {
	if d.Dispatcher == nil {
		d.Dispatcher = NewDispatcher(0, -1)
	}
	if d.PersistTimeout <= 0 {
		d.PersistTimeout = 15 * time.Second
	}
	return &Service{d: d}
}

// SendGmail validates req, loads the profile, the mailbox tokens and the
// recipients, then dispatches through the user's Gmail account.
func (s *Service) SendGmail(ctx context.Context, userID string, req SendRequest) (*Result, error) {
	draft, err := s.d.Composer.Compose(req)
	if err != nil {
		return nil, err
	}
	profile, err := s.d.Profiles.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	account, err := s.d.GmailAccounts.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NotFound("Gmail account")
		}
		return nil, fmt.Errorf("load gmail account: %w", err)
	}
	recipients, err := s.resolve(ctx, profile, draft)
	if err != nil {
		return nil, err
	}

	out := Outgoing{FromName: profile.DisplayName, FromEmail: account.Email}
	return s.run(ctx, userID, draft, out, recipients, s.d.GmailTransport(account))
}

// SendSMTP is SendGmail through a stored SMTP setting. The connection is
// verified before any campaign row exists. The setting is read once, so an
// edit made while the send runs only applies to later sends.
func (s *Service) SendSMTP(ctx context.Context, userID string, req SendRequest) (*Result, error) {
	draft, err := s.d.Composer.Compose(req)
	if err != nil {
		return nil, err
	}
	if req.SmtpSettingID == "" {
		return nil, domain.Validation("smtpSettingId", "is required")
	}
	setting, err := s.d.SmtpSettings.Get(ctx, userID, req.SmtpSettingID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NotFound("SMTP setting")
		}
		return nil, fmt.Errorf("load smtp setting: %w", err)
	}
	if !setting.IsActive {
		return nil, domain.NotFound("SMTP setting")
	}

	profile, err := s.d.Profiles.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	recipients, err := s.resolve(ctx, profile, draft)
	if err != nil {
		return nil, err
	}

	transport := s.d.SMTPTransport(setting)
	if err := transport.Verify(ctx); err != nil {
		var ce *domain.ConnectionError
		if !errors.As(err, &ce) {
			err = &domain.ConnectionError{Err: err}
		}
		return nil, err
	}

	name, email := setting.Sender()
	if name == "" {
		name = profile.DisplayName
	}
	return s.run(ctx, userID, draft, Outgoing{FromName: name, FromEmail: email}, recipients, transport)
}

func (s *Service) resolve(ctx context.Context, profile *domain.Profile, draft *Draft) ([]domain.Recipient, error) {
	subs, err := s.d.Subscribers.ListByProfile(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("load subscribers: %w", err)
	}
	return ResolveRecipients(draft.RecipientIDs, subs)
}

// run is shared by both variants once the request is accepted. From here
// on the client going away does not cancel delivery.
func (s *Service) run(ctx context.Context, userID string, draft *Draft, out Outgoing, recipients []domain.Recipient, t Transport) (*Result, error) {
	ctx = context.WithoutCancel(ctx)

	c := &domain.Campaign{
		UserID:          userID,
		Subject:         draft.Subject,
		Body:            draft.Body,
		IsHTML:          draft.IsHTML,
		SendType:        draft.SendType,
		Transport:       t.Kind(),
		RecipientsCount: len(recipients),
	}
	if err := s.d.Ledger.Open(ctx, c); err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}
	log := logger.Default().With("campaign_id", c.ID, "user_id", userID, "transport", t.Kind())
	log.Info("dispatch started", "recipients", len(recipients), "send_type", draft.SendType)

	out.Subject, out.Body, out.IsHTML, out.SendType = draft.Subject, draft.Body, draft.IsHTML, draft.SendType
	if draft.SendType == domain.SendIndividual && s.d.Personalizer != nil {
		out.Renderer = s.d.Personalizer.Prepare(draft.Subject, draft.Body, draft.IsHTML)
	}

	started := time.Now()
	outcomes := s.d.Dispatcher.Dispatch(ctx, t, out, recipients, log)
	sent, failed := Tally(outcomes)
	log.Info("dispatch finished", "sent", sent, "failed", failed, "elapsed", time.Since(started).Round(time.Millisecond))

	pctx, cancel := context.WithTimeout(ctx, s.d.PersistTimeout)
	defer cancel()
	if err := s.d.Ledger.Record(pctx, c, outcomes); err != nil {
		log.Error("record sent emails failed", "error", err)
	}
	warning := s.d.Ledger.Finalize(pctx, c, sent, failed)
	if warning != "" {
		log.Warn("campaign reconciliation warning", "warning", warning)
	}

	res := &Result{
		Success:    true,
		CampaignID: c.ID,
		Sent:       sent,
		Failed:     failed,
		Errors:     []RecipientError{},
		Warning:    warning,
	}
	for _, o := range outcomes {
		if !o.OK {
			res.Errors = append(res.Errors, RecipientError{Email: o.Recipient.Email, Error: o.Err})
		}
	}
	return res, nil
}
