package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

const planColumns = `id, name, price, duration_days, COALESCE(description, ''), is_active, created_at`

func scanPlan(row pgx.Row) (*Plan, error) {
	var p Plan
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &p.DurationDays, &p.Description, &p.IsActive, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PgStore) ListActivePlans(ctx context.Context) ([]Plan, error) {
	rows, err := s.db.Query(ctx, `SELECT `+planColumns+` FROM subscription_plans WHERE is_active ORDER BY price`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	plans := []Plan{}
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

func (s *PgStore) GetPlan(ctx context.Context, id int64) (*Plan, error) {
	p, err := scanPlan(s.db.QueryRow(ctx, `SELECT `+planColumns+` FROM subscription_plans WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	return p, err
}

func (s *PgStore) UpsertPlan(ctx context.Context, p Plan) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO subscription_plans (name, price, duration_days, description, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE SET
			price = EXCLUDED.price,
			duration_days = EXCLUDED.duration_days,
			description = EXCLUDED.description,
			is_active = EXCLUDED.is_active
		RETURNING id`,
		p.Name, p.Price, p.DurationDays, p.Description, p.IsActive,
	).Scan(&id)
	return id, err
}

const subscriptionColumns = `id, user_id, plan_id, start_date, end_date, status, payment_transaction_id, created_at`

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var sub Subscription
	err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.PlanID,
		&sub.StartDate,
		&sub.EndDate,
		&sub.Status,
		&sub.PaymentTransactionID,
		&sub.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *PgStore) Active(ctx context.Context, userID string, now time.Time) (*Subscription, error) {
	sub, err := scanSubscription(s.db.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE user_id = $1 AND status = 'active' AND end_date > $2
		ORDER BY end_date DESC
		LIMIT 1`, userID, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sub, err
}

func (s *PgStore) CreateForTransaction(ctx context.Context, in Subscription) (*Subscription, bool, error) {
	sub, err := scanSubscription(s.db.QueryRow(ctx, `
		INSERT INTO subscriptions (user_id, plan_id, start_date, end_date, status, payment_transaction_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (payment_transaction_id) DO NOTHING
		RETURNING `+subscriptionColumns,
		in.UserID, in.PlanID, in.StartDate, in.EndDate, in.Status, in.PaymentTransactionID,
	))
	if err == nil {
		return sub, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	// lost the race or a repeat: read the winner
	sub, err = scanSubscription(s.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE payment_transaction_id = $1`,
		in.PaymentTransactionID,
	))
	if err != nil {
		return nil, false, err
	}
	return sub, false, nil
}
