package subscriber

import (
	"context"

	"github.com/ignite/profile-mailer/internal/domain"
)

// Repository defines the data access contract for subscribers.
type Repository interface {
	// Upsert inserts s or, if the email already exists for the profile,
	// reactivates it and refreshes the optional fields. It fills s.ID and
	// reports whether a new row was created.
	Upsert(ctx context.Context, s *domain.Subscriber) (bool, error)

	// ListByProfile returns every subscriber of a profile.
	ListByProfile(ctx context.Context, profileID string) ([]domain.Subscriber, error)

	// List returns a page of subscribers and the total count.
	List(ctx context.Context, profileID string, filter ListFilter) ([]domain.Subscriber, int, error)

	// SetActive flips the active flag. Missing rows match domain.ErrNotFound.
	SetActive(ctx context.Context, profileID, id string, active bool) error

	// Delete removes the given subscribers and returns how many existed.
	Delete(ctx context.Context, profileID string, ids []string) (int, error)
}

// ProfileLookup resolves the profile a request acts on.
type ProfileLookup interface {
	GetByUserID(ctx context.Context, userID string) (*domain.Profile, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Profile, error)
}

// ListFilter controls pagination and filtering for subscriber lists.
type ListFilter struct {
	Search     string
	ActiveOnly bool
	Limit      int
	Offset     int
}
