package subscription

import (
	"context"

	"github.com/ignite/newsletter/internal/domain"
)

// Repository defines the data access contract for subscribers.
// Lookups that match nothing return domain.ErrNotFound.
type Repository interface {
	// Save inserts s or updates the existing record with the same id or token.
	Save(ctx context.Context, s *domain.Subscriber) error

	// FindByEmail returns the most recently subscribed record for email.
	FindByEmail(ctx context.Context, email string) (*domain.Subscriber, error)

	FindByToken(ctx context.Context, token string) (*domain.Subscriber, error)
	FindByID(ctx context.Context, id string) (*domain.Subscriber, error)

	// FindAll returns every record, newest first.
	FindAll(ctx context.Context) ([]*domain.Subscriber, error)

	// FindByStatus returns records in the given status, oldest first so
	// dispatch order is stable.
	FindByStatus(ctx context.Context, status domain.SubscriberStatus) ([]*domain.Subscriber, error)

	CountByStatus(ctx context.Context, status domain.SubscriberStatus) (int, error)
	Count(ctx context.Context) (int, error)

	// Delete removes a record. Returns domain.ErrNotFound if it doesn't exist.
	Delete(ctx context.Context, id string) error
}

// Mailer sends the double opt-in confirmation email.
type Mailer interface {
	SendConfirmation(ctx context.Context, to, confirmationURL string) error
}
