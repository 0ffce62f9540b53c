package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/profile-mailer/internal/domain"
)

// SmtpSettingRepo stores user SMTP servers.
type SmtpSettingRepo struct{ db *sql.DB }

func NewSmtpSettingRepo(db *sql.DB) *SmtpSettingRepo { return &SmtpSettingRepo{db: db} }

const smtpSettingColumns = `id, user_id, name, host, port, username, password,
	COALESCE(from_email, ''), COALESCE(from_name, ''), is_active, created_at, updated_at`

func scanSmtpSetting(row interface{ Scan(...any) error }) (*domain.SmtpSetting, error) {
	s := &domain.SmtpSetting{}
	err := row.Scan(&s.ID, &s.UserID, &s.Name, &s.Host, &s.Port, &s.Username, &s.Password,
		&s.FromEmail, &s.FromName, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (r *SmtpSettingRepo) Get(ctx context.Context, userID, id string) (*domain.SmtpSetting, error) {
	s, err := scanSmtpSetting(r.db.QueryRowContext(ctx,
		`SELECT `+smtpSettingColumns+` FROM smtp_settings WHERE id = $1 AND user_id = $2`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("SMTP setting")
	}
	if err != nil {
		return nil, fmt.Errorf("get smtp setting: %w", err)
	}
	return s, nil
}

func (r *SmtpSettingRepo) List(ctx context.Context, userID string) ([]domain.SmtpSetting, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+smtpSettingColumns+` FROM smtp_settings WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list smtp settings: %w", err)
	}
	defer rows.Close()

	out := []domain.SmtpSetting{}
	for rows.Next() {
		s, err := scanSmtpSetting(rows)
		if err != nil {
			return nil, fmt.Errorf("scan smtp setting: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *SmtpSettingRepo) Create(ctx context.Context, s *domain.SmtpSetting) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO smtp_settings
			(id, user_id, name, host, port, username, password, from_email, from_name, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10, NOW(), NOW())
		RETURNING created_at, updated_at
	`, s.ID, s.UserID, s.Name, s.Host, s.Port, s.Username, s.Password, s.FromEmail, s.FromName, s.IsActive,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create smtp setting: %w", err)
	}
	return nil
}

func (r *SmtpSettingRepo) Update(ctx context.Context, s *domain.SmtpSetting) error {
	err := r.db.QueryRowContext(ctx, `
		UPDATE smtp_settings
		SET name = $1, host = $2, port = $3, username = $4, password = $5,
		    from_email = NULLIF($6, ''), from_name = NULLIF($7, ''), is_active = $8, updated_at = NOW()
		WHERE id = $9 AND user_id = $10
		RETURNING updated_at
	`, s.Name, s.Host, s.Port, s.Username, s.Password, s.FromEmail, s.FromName, s.IsActive, s.ID, s.UserID,
	).Scan(&s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFound("SMTP setting")
	}
	if err != nil {
		return fmt.Errorf("update smtp setting: %w", err)
	}
	return nil
}

func (r *SmtpSettingRepo) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM smtp_settings WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete smtp setting: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.NotFound("SMTP setting")
	}
	return nil
}
