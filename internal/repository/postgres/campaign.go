package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/profile-mailer/internal/domain"
	"github.com/ignite/profile-mailer/internal/service/campaign"
)

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignColumns = `id, user_id, subject, body, is_html, send_type, transport,
	recipients_count, sent_count, failed_count, status, created_at, sent_at`

func scanCampaign(row interface{ Scan(...any) error }) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	var sentAt sql.NullTime
	if err := row.Scan(
		&c.ID, &c.UserID, &c.Subject, &c.Body, &c.IsHTML, &c.SendType, &c.Transport,
		&c.RecipientsCount, &c.SentCount, &c.FailedCount, &c.Status, &c.CreatedAt, &sentAt,
	); err != nil {
		return nil, err
	}
	if sentAt.Valid {
		t := sentAt.Time
		c.SentAt = &t
	}
	return c, nil
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaigns
			(id, user_id, subject, body, is_html, send_type, transport,
			 recipients_count, sent_count, failed_count, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, c.ID, c.UserID, c.Subject, c.Body, c.IsHTML, c.SendType, c.Transport,
		c.RecipientsCount, c.SentCount, c.FailedCount, c.Status, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepo) Get(ctx context.Context, userID, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1 AND user_id = $2`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("campaign")
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) List(ctx context.Context, userID string, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	where := ` WHERE user_id = $1`
	args := []interface{}{userID}
	if f.Status != "" {
		where += ` AND status = $2`
		args = append(args, f.Status)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	q := `SELECT ` + campaignColumns + ` FROM campaigns` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, q, append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	out := []domain.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

func (r *CampaignRepo) UpdateResult(ctx context.Context, id string, res campaign.Result) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET sent_count = $1, failed_count = $2, status = $3, sent_at = $4
		WHERE id = $5
	`, res.SentCount, res.FailedCount, res.Status, res.SentAt, id)
	if err != nil {
		return fmt.Errorf("update campaign result: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return domain.NotFound("campaign")
	}
	return nil
}

func (r *CampaignRepo) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM campaigns WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.NotFound("campaign")
	}
	return nil
}

// InsertSentEmails streams rows through COPY inside one transaction.
func (r *CampaignRepo) InsertSentEmails(ctx context.Context, rows []domain.SentEmail) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("sent_emails",
		"id", "campaign_id", "user_id", "recipient_email", "subject", "body",
		"status", "error_message", "sent_at"))
	if err != nil {
		return fmt.Errorf("prepare copy: %w", err)
	}
	for _, e := range rows {
		if _, err := stmt.ExecContext(ctx, e.ID, e.CampaignID, e.UserID, e.RecipientEmail,
			e.Subject, e.Body, e.Status, e.ErrorMessage, e.SentAt); err != nil {
			stmt.Close()
			return fmt.Errorf("copy sent email: %w", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("close copy: %w", err)
	}
	return tx.Commit()
}

func (r *CampaignRepo) ListSentEmails(ctx context.Context, campaignID string) ([]domain.SentEmail, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, campaign_id, user_id, recipient_email, subject, body,
		       status, COALESCE(error_message, ''), sent_at
		FROM sent_emails
		WHERE campaign_id = $1
		ORDER BY sent_at, recipient_email
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list sent emails: %w", err)
	}
	defer rows.Close()

	out := []domain.SentEmail{}
	for rows.Next() {
		var e domain.SentEmail
		if err := rows.Scan(&e.ID, &e.CampaignID, &e.UserID, &e.RecipientEmail, &e.Subject,
			&e.Body, &e.Status, &e.ErrorMessage, &e.SentAt); err != nil {
			return nil, fmt.Errorf("scan sent email: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
