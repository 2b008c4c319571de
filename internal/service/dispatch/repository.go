package dispatch

import (
	"context"
	"time"

	"github.com/ignite/newsletter/internal/domain"
)

// SubscriberReader is the slice of the subscriber store dispatch needs.
type SubscriberReader interface {
	FindByEmail(ctx context.Context, email string) (*domain.Subscriber, error)
	FindByStatus(ctx context.Context, status domain.SubscriberStatus) ([]*domain.Subscriber, error)
}

// IssueSource reads authored issues. Drafts are never returned. Lookups
// that match nothing return domain.ErrNotFound.
type IssueSource interface {
	FindBySlug(ctx context.Context, slug string) (*domain.Issue, error)
	FindByNumber(ctx context.Context, number int) (*domain.Issue, error)

	// FindAll returns every issue, newest publication first.
	FindAll(ctx context.Context) ([]*domain.Issue, error)

	// FindLatest returns the issue with the newest publication date.
	FindLatest(ctx context.Context) (*domain.Issue, error)

	// FindPublished returns issues published at or before now, newest first.
	FindPublished(ctx context.Context, now time.Time) ([]*domain.Issue, error)
}

// Mailer delivers the three kinds of newsletter email.
type Mailer interface {
	SendWelcome(ctx context.Context, to, unsubscribeURL string) error
	SendConfirmation(ctx context.Context, to, confirmationURL string) error

	// SendNewsletter renders the issue once and delivers it to every
	// recipient with their own unsubscribe URL substituted in.
	SendNewsletter(ctx context.Context, recipients []domain.Recipient, issue domain.IssueEmailData) error
}

// Pacer spaces out consecutive sends. Wait blocks until the next send may
// start or ctx is done.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Locker is a mutual-exclusion lock shared across processes. Refresh
// reports an error once the lock has expired or passed to another holder.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Refresh(ctx context.Context) error
	Release(ctx context.Context) error
}

// Ledger records which issues have been dispatched.
type Ledger interface {
	WasDispatched(ctx context.Context, slug string) (bool, error)
	MarkDispatched(ctx context.Context, slug string, sent int) error
}
