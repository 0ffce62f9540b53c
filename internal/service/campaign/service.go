package campaign

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/profile-mailer/internal/domain"
	"github.com/ignite/profile-mailer/internal/pkg/logger"
)

// Warnings surfaced to the sender when the ledger cannot be reconciled.
const (
	WarnUpdateFailed = "Emails were processed but campaign statistics could not be saved."
	WarnMismatch     = "Emails were processed but campaign statistics may be inaccurate."
)

// Service implements the campaign ledger. All public methods are safe for
// concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a campaign service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Open inserts the in-flight row: status "sending", zero counts.
func (s *Service) Open(ctx context.Context, c *domain.Campaign) error {
	c.ID = uuid.New().String()
	c.Status = domain.CampaignSending
	c.SentCount, c.FailedCount = 0, 0
	c.CreatedAt = s.now().UTC()
	c.SentAt = nil
	if err := s.repo.Create(ctx, c); err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

// Record appends one SentEmail per outcome carrying the campaign's
// subject and body as sent.
func (s *Service) Record(ctx context.Context, c *domain.Campaign, outcomes []domain.SendOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	at := s.now().UTC()
	rows := make([]domain.SentEmail, 0, len(outcomes))
	for _, o := range outcomes {
		row := domain.SentEmail{
			ID:             uuid.New().String(),
			CampaignID:     c.ID,
			UserID:         c.UserID,
			RecipientEmail: o.Recipient.Email,
			Subject:        c.Subject,
			Body:           c.Body,
			Status:         domain.SentEmailSent,
			SentAt:         at,
		}
		if !o.OK {
			row.Status = domain.SentEmailFailed
			row.ErrorMessage = o.Err
		}
		rows = append(rows, row)
	}
	return s.repo.InsertSentEmails(ctx, rows)
}

// Finalize writes the counts, then re-reads the row and compares it with
// what was written. Any failure becomes a warning; the send itself has
// already happened.
func (s *Service) Finalize(ctx context.Context, c *domain.Campaign, sent, failed int) string {
	res := Result{
		SentCount:   sent,
		FailedCount: failed,
		Status:      domain.FinalStatus(sent),
		SentAt:      s.now().UTC(),
	}
	if err := s.repo.UpdateResult(ctx, c.ID, res); err != nil {
		logger.Error("campaign: update result failed", "campaign_id", c.ID, "error", err)
		return WarnUpdateFailed
	}

	stored, err := s.repo.Get(ctx, c.UserID, c.ID)
	if err != nil {
		logger.Error("campaign: re-read after update failed", "campaign_id", c.ID, "error", err)
		return WarnUpdateFailed
	}
	if stored.SentCount != sent || stored.FailedCount != failed || stored.Status != res.Status {
		logger.Warn("campaign: stored counts differ from dispatch",
			"campaign_id", c.ID,
			"sent", sent, "stored_sent", stored.SentCount,
			"failed", failed, "stored_failed", stored.FailedCount,
			"status", res.Status, "stored_status", stored.Status)
		return WarnMismatch
	}

	c.SentCount, c.FailedCount, c.Status = sent, failed, res.Status
	c.SentAt = &res.SentAt
	return ""
}

// Detail is a campaign with its per-recipient rows.
type Detail struct {
	domain.Campaign
	Emails []domain.SentEmail `json:"emails"`
}

// Get returns one of the user's campaigns with its SentEmail rows.
func (s *Service) Get(ctx context.Context, userID, id string) (*Detail, error) {
	c, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	emails, err := s.repo.ListSentEmails(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("list sent emails: %w", err)
	}
	if emails == nil {
		emails = []domain.SentEmail{}
	}
	return &Detail{Campaign: *c, Emails: emails}, nil
}

// List returns campaigns matching the filter.
func (s *Service) List(ctx context.Context, userID string, f ListFilter) ([]domain.Campaign, int, error) {
	if f.Status != "" {
		switch domain.CampaignStatus(f.Status) {
		case domain.CampaignSending, domain.CampaignSent, domain.CampaignFailed:
		default:
			return nil, 0, domain.Validation("status", "unknown campaign status %q", f.Status)
		}
	}
	return s.repo.List(ctx, userID, f)
}

// Delete removes one of the user's campaigns and its SentEmail rows.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	return s.repo.Delete(ctx, userID, id)
}
