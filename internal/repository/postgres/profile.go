package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignite/profile-mailer/internal/domain"
)

// ProfileRepo reads the profile rows owned by the page builder.
type ProfileRepo struct{ db *sql.DB }

func NewProfileRepo(db *sql.DB) *ProfileRepo { return &ProfileRepo{db: db} }

func (r *ProfileRepo) get(ctx context.Context, where string, arg string) (*domain.Profile, error) {
	p := &domain.Profile{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, slug, COALESCE(display_name, ''), COALESCE(contact_email, ''), created_at
		FROM profiles WHERE `+where+` = $1
	`, arg).Scan(&p.ID, &p.UserID, &p.Slug, &p.DisplayName, &p.ContactEmail, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("profile")
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (r *ProfileRepo) GetByUserID(ctx context.Context, userID string) (*domain.Profile, error) {
	return r.get(ctx, "user_id", userID)
}

func (r *ProfileRepo) GetBySlug(ctx context.Context, slug string) (*domain.Profile, error) {
	return r.get(ctx, "slug", slug)
}
