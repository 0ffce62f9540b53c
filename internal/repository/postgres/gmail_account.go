package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/profile-mailer/internal/domain"
)

// GmailAccountRepo stores one connected mailbox per user.
type GmailAccountRepo struct{ db *sql.DB }

func NewGmailAccountRepo(db *sql.DB) *GmailAccountRepo { return &GmailAccountRepo{db: db} }

func (r *GmailAccountRepo) Get(ctx context.Context, userID string) (*domain.GmailAccount, error) {
	a := &domain.GmailAccount{}
	var expiry sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, email, access_token, refresh_token, expiry, created_at, updated_at
		FROM gmail_accounts WHERE user_id = $1
	`, userID).Scan(&a.UserID, &a.Email, &a.AccessToken, &a.RefreshToken, &expiry, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("Gmail account")
	}
	if err != nil {
		return nil, fmt.Errorf("get gmail account: %w", err)
	}
	a.Expiry = expiry.Time
	return a, nil
}

// Upsert stores the tokens from a completed consent flow. An empty refresh
// token keeps the stored one.
func (r *GmailAccountRepo) Upsert(ctx context.Context, a *domain.GmailAccount) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO gmail_accounts (user_id, email, access_token, refresh_token, expiry, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			email = EXCLUDED.email,
			access_token = EXCLUDED.access_token,
			refresh_token = COALESCE(NULLIF(EXCLUDED.refresh_token, ''), gmail_accounts.refresh_token),
			expiry = EXCLUDED.expiry,
			updated_at = NOW()
	`, a.UserID, a.Email, a.AccessToken, a.RefreshToken, nullTime(a.Expiry))
	if err != nil {
		return fmt.Errorf("upsert gmail account: %w", err)
	}
	return nil
}

func (r *GmailAccountRepo) UpdateTokens(ctx context.Context, userID, accessToken, refreshToken string, expiry time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE gmail_accounts
		SET access_token = $1,
		    refresh_token = COALESCE(NULLIF($2, ''), refresh_token),
		    expiry = $3, updated_at = NOW()
		WHERE user_id = $4
	`, accessToken, refreshToken, nullTime(expiry), userID)
	if err != nil {
		return fmt.Errorf("update gmail tokens: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.NotFound("Gmail account")
	}
	return nil
}

func (r *GmailAccountRepo) Delete(ctx context.Context, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM gmail_accounts WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete gmail account: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.NotFound("Gmail account")
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
