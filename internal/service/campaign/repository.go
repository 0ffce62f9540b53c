package campaign

import (
	"context"
	"time"

	"github.com/ignite/profile-mailer/internal/domain"
)

// Repository defines the data access contract for campaigns.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Create inserts c. ID and CreatedAt are already set.
	Create(ctx context.Context, c *domain.Campaign) error

	// Get returns one of the user's campaigns or an error matching domain.ErrNotFound.
	Get(ctx context.Context, userID, id string) (*domain.Campaign, error)

	// List returns the user's campaigns, newest first, and the total count.
	List(ctx context.Context, userID string, filter ListFilter) ([]domain.Campaign, int, error)

	// UpdateResult writes final counts and status in one statement.
	UpdateResult(ctx context.Context, id string, r Result) error

	// Delete removes a campaign and, by cascade, its SentEmail rows.
	Delete(ctx context.Context, userID, id string) error

	// InsertSentEmails appends rows in a single bulk statement.
	InsertSentEmails(ctx context.Context, rows []domain.SentEmail) error

	// ListSentEmails returns a campaign's rows ordered by sent_at.
	ListSentEmails(ctx context.Context, campaignID string) ([]domain.SentEmail, error)
}

// ListFilter controls pagination and filtering for campaign lists.
type ListFilter struct {
	Status string
	Limit  int
	Offset int
}

// Result is the final state written after dispatch.
type Result struct {
	SentCount   int
	FailedCount int
	Status      domain.CampaignStatus
	SentAt      time.Time
}
