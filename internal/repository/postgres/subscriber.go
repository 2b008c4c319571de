package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignite/newsletter/internal/domain"
	"github.com/lib/pq"
)

const subscriberColumns = `id, email, status, subscribed_at, confirmed_at, unsubscribed_at, unsubscribe_token`

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// SubscriberRepo implements subscription.Repository against PostgreSQL.
type SubscriberRepo struct{ db *sql.DB }

// NewSubscriberRepo creates a Postgres-backed subscriber repository.
func NewSubscriberRepo(db *sql.DB) *SubscriberRepo { return &SubscriberRepo{db: db} }

// Save updates the row matching the subscriber's id or token, inserting a
// new row when neither exists. A second active row for the same email is
// rejected by the partial unique index and reported as domain.ErrConflict.
func (r *SubscriberRepo) Save(ctx context.Context, s *domain.Subscriber) error {
	rec := s.Record()

	res, err := r.db.ExecContext(ctx, `
		UPDATE subscribers
		SET status = $2, confirmed_at = $3, unsubscribed_at = $4, updated_at = NOW()
		WHERE id = $1 OR unsubscribe_token = $5
	`, rec.ID, rec.Status, rec.ConfirmedAt, rec.UnsubscribedAt, rec.Token)
	if err != nil {
		return wrapWriteErr("update subscriber", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO subscribers (`+subscriberColumns+`, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	`, rec.ID, rec.Email, rec.Status, rec.SubscribedAt, rec.ConfirmedAt, rec.UnsubscribedAt, rec.Token)
	if err != nil {
		return wrapWriteErr("insert subscriber", err)
	}
	return nil
}

func wrapWriteErr(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %s: %w", op, pqErr.Constraint, domain.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// FindByEmail returns the most recently subscribed record for email.
func (r *SubscriberRepo) FindByEmail(ctx context.Context, email string) (*domain.Subscriber, error) {
	return r.findOne(ctx, "get subscriber by email", `
		SELECT `+subscriberColumns+` FROM subscribers
		WHERE email = $1
		ORDER BY subscribed_at DESC, created_at DESC
		LIMIT 1
	`, email)
}

func (r *SubscriberRepo) FindByToken(ctx context.Context, token string) (*domain.Subscriber, error) {
	return r.findOne(ctx, "get subscriber by token",
		`SELECT `+subscriberColumns+` FROM subscribers WHERE unsubscribe_token = $1`, token)
}

func (r *SubscriberRepo) FindByID(ctx context.Context, id string) (*domain.Subscriber, error) {
	return r.findOne(ctx, "get subscriber",
		`SELECT `+subscriberColumns+` FROM subscribers WHERE id = $1`, id)
}

func (r *SubscriberRepo) findOne(ctx context.Context, op, query string, arg any) (*domain.Subscriber, error) {
	rec, err := scanSubscriber(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return domain.SubscriberFromRecord(rec), nil
}

// FindAll returns every record, newest first.
func (r *SubscriberRepo) FindAll(ctx context.Context) ([]*domain.Subscriber, error) {
	return r.findMany(ctx, "list subscribers",
		`SELECT `+subscriberColumns+` FROM subscribers ORDER BY subscribed_at DESC, created_at DESC`)
}

// FindByStatus returns records in status, oldest first.
func (r *SubscriberRepo) FindByStatus(ctx context.Context, status domain.SubscriberStatus) ([]*domain.Subscriber, error) {
	return r.findMany(ctx, "list subscribers by status", `
		SELECT `+subscriberColumns+` FROM subscribers
		WHERE status = $1
		ORDER BY subscribed_at ASC, created_at ASC
	`, status)
}

func (r *SubscriberRepo) findMany(ctx context.Context, op, query string, args ...any) ([]*domain.Subscriber, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []*domain.Subscriber
	for rows.Next() {
		rec, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, domain.SubscriberFromRecord(rec))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (r *SubscriberRepo) CountByStatus(ctx context.Context, status domain.SubscriberStatus) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscribers WHERE status = $1`, status).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count subscribers by status: %w", err)
	}
	return n, nil
}

func (r *SubscriberRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscribers`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count subscribers: %w", err)
	}
	return n, nil
}

func (r *SubscriberRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM subscribers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete subscriber: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscriber(row rowScanner) (domain.SubscriberRecord, error) {
	var (
		rec            domain.SubscriberRecord
		status         string
		confirmedAt    sql.NullTime
		unsubscribedAt sql.NullTime
	)
	err := row.Scan(&rec.ID, &rec.Email, &status, &rec.SubscribedAt, &confirmedAt, &unsubscribedAt, &rec.Token)
	if err != nil {
		return rec, err
	}
	rec.Status = domain.SubscriberStatus(status)
	if confirmedAt.Valid {
		t := confirmedAt.Time
		rec.ConfirmedAt = &t
	}
	if unsubscribedAt.Valid {
		t := unsubscribedAt.Time
		rec.UnsubscribedAt = &t
	}
	return rec, nil
}
