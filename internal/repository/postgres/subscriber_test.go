package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ignite/newsletter/internal/domain"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var columns = []string{"id", "email", "status", "subscribed_at", "confirmed_at", "unsubscribed_at", "unsubscribe_token"}

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func newSubscriber(t *testing.T) *domain.Subscriber {
	t.Helper()
	s, err := domain.NewSubscriber("a@example.com", time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return s
}

func TestSaveUpdatesExistingRow(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewSubscriberRepo(db)
	s := newSubscriber(t)
	require.NoError(t, s.Confirm(time.Date(2025, 2, 1, 11, 0, 0, 0, time.UTC)))

	mock.ExpectExec("UPDATE subscribers").
		WithArgs(s.ID(), "confirmed", sqlmock.AnyArg(), nil, s.Token()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Save(context.Background(), s))
}

func TestSaveInsertsNewRow(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewSubscriberRepo(db)
	s := newSubscriber(t)

	mock.ExpectExec("UPDATE subscribers").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO subscribers").
		WithArgs(s.ID(), "a@example.com", "pending_confirmation", s.SubscribedAt(), nil, nil, s.Token()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Save(context.Background(), s))
}

func TestSaveMapsUniqueViolationToConflict(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewSubscriberRepo(db)

	mock.ExpectExec("UPDATE subscribers").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO subscribers").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "subscribers_active_email_key"})

	err := repo.Save(context.Background(), newSubscriber(t))
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Contains(t, err.Error(), "subscribers_active_email_key")
}

func TestSaveOtherErrorsAreWrapped(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewSubscriberRepo(db)
	boom := errors.New("connection reset")

	mock.ExpectExec("UPDATE subscribers").WillReturnError(boom)

	err := repo.Save(context.Background(), newSubscriber(t))
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, domain.ErrConflict)
}

func TestFindByTokenRoundTrip(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewSubscriberRepo(db)
	subscribed := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	confirmed := subscribed.Add(time.Hour)

	mock.ExpectQuery("SELECT .+ FROM subscribers WHERE unsubscribe_token = \\$1").
		WithArgs("tok").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("id-1", "a@example.com", "confirmed", subscribed, confirmed, nil, "tok"))

	s, err := repo.FindByToken(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "id-1", s.ID())
	assert.True(t, s.IsActive())
	require.NotNil(t, s.ConfirmedAt())
	assert.True(t, s.ConfirmedAt().Equal(confirmed))
	assert.Nil(t, s.UnsubscribedAt())
	assert.Equal(t, "tok", s.Token())
}

func TestFindByEmailNotFound(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewSubscriberRepo(db)

	mock.ExpectQuery("SELECT .+ FROM subscribers\\s+WHERE email = \\$1\\s+ORDER BY subscribed_at DESC").
		WithArgs("ghost@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByEmail(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFindByStatus(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewSubscriberRepo(db)
	at := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT .+ FROM subscribers\\s+WHERE status = \\$1").
		WithArgs("confirmed").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("id-1", "a@example.com", "confirmed", at, at, nil, "t1").
			AddRow("id-2", "b@example.com", "confirmed", at.Add(time.Minute), at, nil, "t2"))

	subs, err := repo.FindByStatus(context.Background(), domain.StatusConfirmed)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "b@example.com", subs[1].Email())
}

func TestCountByStatus(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewSubscriberRepo(db)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM subscribers WHERE status = \\$1").
		WithArgs("pending_confirmation").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := repo.CountByStatus(context.Background(), domain.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestDeleteMissing(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewSubscriberRepo(db)

	mock.ExpectExec("DELETE FROM subscribers WHERE id = \\$1").
		WithArgs("nope").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), "nope"), domain.ErrNotFound)
}
