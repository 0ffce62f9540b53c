package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/profile-mailer/internal/domain"
	"github.com/ignite/profile-mailer/internal/service/subscriber"
)

// SubscriberRepo implements subscriber.Repository against PostgreSQL.
type SubscriberRepo struct{ db *sql.DB }

// NewSubscriberRepo creates a Postgres-backed subscriber repository.
func NewSubscriberRepo(db *sql.DB) *SubscriberRepo { return &SubscriberRepo{db: db} }

const subscriberColumns = `id, profile_id, email, COALESCE(name, ''), COALESCE(phone, ''),
	COALESCE(country, ''), COALESCE(city, ''), source, is_active, created_at`

func scanSubscriber(rows *sql.Rows) (domain.Subscriber, error) {
	var s domain.Subscriber
	err := rows.Scan(&s.ID, &s.ProfileID, &s.Email, &s.Name, &s.Phone,
		&s.Country, &s.City, &s.Source, &s.IsActive, &s.CreatedAt)
	return s, err
}

// Upsert relies on the (profile_id, email) unique index. xmax is zero only
// for a freshly inserted tuple.
func (r *SubscriberRepo) Upsert(ctx context.Context, s *domain.Subscriber) (bool, error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	var created bool
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO subscribers (id, profile_id, email, name, phone, country, city, source, is_active, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8, true, NOW())
		ON CONFLICT (profile_id, email) DO UPDATE SET
			name = COALESCE(EXCLUDED.name, subscribers.name),
			phone = COALESCE(EXCLUDED.phone, subscribers.phone),
			country = COALESCE(EXCLUDED.country, subscribers.country),
			city = COALESCE(EXCLUDED.city, subscribers.city),
			is_active = true
		RETURNING id, created_at, (xmax = 0)
	`, s.ID, s.ProfileID, s.Email, s.Name, s.Phone, s.Country, s.City, s.Source,
	).Scan(&s.ID, &s.CreatedAt, &created)
	if err != nil {
		return false, fmt.Errorf("upsert subscriber: %w", err)
	}
	s.IsActive = true
	return created, nil
}

func (r *SubscriberRepo) ListByProfile(ctx context.Context, profileID string) ([]domain.Subscriber, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE profile_id = $1 ORDER BY created_at`, profileID)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	var out []domain.Subscriber
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SubscriberRepo) List(ctx context.Context, profileID string, f subscriber.ListFilter) ([]domain.Subscriber, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	where := ` WHERE profile_id = $1`
	args := []interface{}{profileID}
	if f.ActiveOnly {
		where += ` AND is_active = true`
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		where += fmt.Sprintf(` AND (email ILIKE $%d OR name ILIKE $%d)`, len(args), len(args))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscribers`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count subscribers: %w", err)
	}

	q := `SELECT ` + subscriberColumns + ` FROM subscribers` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, q, append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	out := []domain.Subscriber{}
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan subscriber: %w", err)
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (r *SubscriberRepo) SetActive(ctx context.Context, profileID, id string, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE subscribers SET is_active = $1 WHERE id = $2 AND profile_id = $3`, active, id, profileID)
	if err != nil {
		return fmt.Errorf("update subscriber: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.NotFound("subscriber")
	}
	return nil
}

func (r *SubscriberRepo) Delete(ctx context.Context, profileID string, ids []string) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM subscribers WHERE profile_id = $1 AND id = ANY($2)`, profileID, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("delete subscribers: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
