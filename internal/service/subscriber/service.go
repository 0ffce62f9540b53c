package subscriber

import (
	"context"
	"fmt"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/ignite/profile-mailer/internal/domain"
)

// Input is the writable part of a subscriber.
type Input struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Country string `json:"country"`
	City    string `json:"city"`
}

// Service implements subscriber business logic. It is safe for concurrent use.
type Service struct {
	repo     Repository
	profiles ProfileLookup
}

// NewService creates a subscriber service backed by the given repository.
func NewService(repo Repository, profiles ProfileLookup) *Service {
	return &Service{repo: repo, profiles: profiles}
}

// NormalizeEmail lowercases and validates an address.
func NormalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", domain.Validation("email", "is required")
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", domain.Validation("email", "%q is not a valid address", raw)
	}
	return strings.ToLower(addr.Address), nil
}

// Subscribe records a public sign-up on the profile with the given slug.
// Signing up again reactivates an existing subscriber.
func (s *Service) Subscribe(ctx context.Context, slug string, in Input) (*domain.Subscriber, bool, error) {
	p, err := s.profiles.GetBySlug(ctx, slug)
	if err != nil {
		return nil, false, err
	}
	return s.upsert(ctx, p.ID, in, domain.SourceSubscriptionBlock)
}

// Add creates a subscriber on the user's own profile.
func (s *Service) Add(ctx context.Context, userID string, in Input) (*domain.Subscriber, bool, error) {
	p, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return s.upsert(ctx, p.ID, in, domain.SourceManual)
}

func (s *Service) upsert(ctx context.Context, profileID string, in Input, source domain.SubscriberSource) (*domain.Subscriber, bool, error) {
	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return nil, false, err
	}
	sub := &domain.Subscriber{
		ProfileID: profileID,
		Email:     email,
		Name:      strings.TrimSpace(in.Name),
		Phone:     strings.TrimSpace(in.Phone),
		Country:   strings.TrimSpace(in.Country),
		City:      strings.TrimSpace(in.City),
		Source:    source,
		IsActive:  true,
	}
	created, err := s.repo.Upsert(ctx, sub)
	if err != nil {
		return nil, false, fmt.Errorf("save subscriber: %w", err)
	}
	return sub, created, nil
}

// List returns a page of the user's subscribers.
func (s *Service) List(ctx context.Context, userID string, f ListFilter) ([]domain.Subscriber, int, error) {
	p, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return s.repo.List(ctx, p.ID, f)
}

// SetActive activates or deactivates one of the user's subscribers.
func (s *Service) SetActive(ctx context.Context, userID, id string, active bool) error {
	p, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}
	return s.repo.SetActive(ctx, p.ID, id, active)
}

// Delete removes subscribers from the user's profile. Unknown ids are ignored
// unless none matched.
func (s *Service) Delete(ctx context.Context, userID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, domain.Validation("ids", "at least one id is required")
	}
	p, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return 0, err
	}
	n, err := s.repo.Delete(ctx, p.ID, ids)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, domain.NotFound("subscriber")
	}
	return n, nil
}
