package subscription

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/pkg/links"
	"github.com/ignite/newsletter/internal/pkg/logger"
)

// Result is the outcome of a lifecycle operation. Err is nil on success and
// otherwise classifies the failure for the HTTP layer; it is never shown to
// visitors.
type Result struct {
	Success    bool               `json:"success"`
	Message    string             `json:"message"`
	Subscriber *domain.Subscriber `json:"-"`
	Err        error              `json:"-"`
}

// Stats holds subscriber counts by status.
type Stats struct {
	Total        int `json:"total"`
	Confirmed    int `json:"confirmed"`
	Pending      int `json:"pending"`
	Unsubscribed int `json:"unsubscribed"`
}

// Service implements subscription business logic. It is safe for concurrent use.
type Service struct {
	repo   Repository
	mailer Mailer
	log    *logger.Logger
	now    func() time.Time
}

// NewService creates a subscription service backed by the given repository
// and mailer.
func NewService(repo Repository, mailer Mailer) *Service {
	return &Service{
		repo:   repo,
		mailer: mailer,
		log:    logger.Default().With("component", "subscription"),
		now:    time.Now,
	}
}

// Subscribe starts the double opt-in flow for email. A new pending record is
// created when the address is unknown or was previously unsubscribed, and a
// confirmation link built on baseURL is emailed to it. Confirmed and pending
// addresses are rejected without sending anything.
func (s *Service) Subscribe(ctx context.Context, email, baseURL string) Result {
	normalized, err := domain.NormalizeEmail(email)
	if err != nil {
		return failure(MsgInvalidEmail, err)
	}

	existing, err := s.repo.FindByEmail(ctx, normalized)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		return s.internal("find subscriber by email", err, "email", normalized)
	case existing.IsActive():
		return failure(MsgAlreadySubscribed, ErrAlreadySubscribed)
	case existing.IsPending():
		return failure(MsgConfirmationPending, ErrConfirmationPending)
	}

	// Unknown or unsubscribed: the old unsubscribed record is left as history.
	sub, err := domain.NewSubscriber(normalized, s.now())
	if err != nil {
		return s.internal("create subscriber", err, "email", normalized)
	}
	if err := s.repo.Save(ctx, sub); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// A concurrent request for the same address got there first.
			return failure(MsgConfirmationPending, ErrConfirmationPending)
		}
		return s.internal("save subscriber", err, "email", normalized)
	}

	confirmURL := links.ConfirmURL(baseURL, sub.Token())
	if err := s.mailer.SendConfirmation(ctx, sub.Email(), confirmURL); err != nil {
		return s.internal("send confirmation email", &domain.ExternalServiceError{Service: "mailer", Err: err}, "email", normalized)
	}

	s.log.Info("subscriber created", "email", sub.Email(), "subscriber_id", sub.ID())
	return Result{Success: true, Message: MsgSubscribed, Subscriber: sub}
}

// ConfirmSubscription confirms the pending subscriber holding token.
// Confirming twice succeeds both times and keeps the first confirmation time.
func (s *Service) ConfirmSubscription(ctx context.Context, token string) Result {
	if !domain.IsWellFormedToken(token) {
		return failure(MsgInvalidToken, ErrInvalidToken)
	}

	sub, err := s.repo.FindByToken(ctx, token)
	if errors.Is(err, domain.ErrNotFound) {
		return failure(MsgInvalidToken, ErrInvalidToken)
	}
	if err != nil {
		return s.internal("find subscriber by token", err)
	}

	if sub.IsActive() {
		return Result{Success: true, Message: MsgAlreadyConfirmed, Subscriber: sub}
	}
	if err := sub.Confirm(s.now()); err != nil {
		return failure(MsgTokenNotPending, err)
	}
	if err := s.repo.Save(ctx, sub); err != nil {
		return s.internal("save confirmed subscriber", err, "email", sub.Email())
	}

	s.log.Info("subscriber confirmed", "email", sub.Email(), "subscriber_id", sub.ID())
	return Result{Success: true, Message: MsgConfirmed, Subscriber: sub}
}

// Unsubscribe resolves the subscriber by token when one is given, otherwise
// by email, and unsubscribes it. Unsubscribing twice succeeds both times and
// keeps the first unsubscribe time.
func (s *Service) Unsubscribe(ctx context.Context, email, token string) Result {
	var (
		sub *domain.Subscriber
		err error
	)
	token = strings.TrimSpace(token)
	switch {
	case token != "":
		sub, err = s.repo.FindByToken(ctx, token)
	case strings.TrimSpace(email) != "":
		normalized, verr := domain.NormalizeEmail(email)
		if verr != nil {
			return failure(MsgInvalidEmail, verr)
		}
		sub, err = s.repo.FindByEmail(ctx, normalized)
	default:
		return failure(MsgNotFound, ErrMissingIdentity)
	}

	if errors.Is(err, domain.ErrNotFound) {
		return failure(MsgNotFound, ErrSubscriberNotFound)
	}
	if err != nil {
		return s.internal("find subscriber", err, "email", email)
	}

	if sub.IsUnsubscribed() {
		return Result{Success: true, Message: MsgAlreadyUnsubscribe, Subscriber: sub}
	}
	if err := sub.Unsubscribe(s.now()); err != nil {
		return failure(MsgAlreadyUnsubscribe, err)
	}
	if err := s.repo.Save(ctx, sub); err != nil {
		return s.internal("save unsubscribed subscriber", err, "email", sub.Email())
	}

	s.log.Info("subscriber unsubscribed", "email", sub.Email(), "subscriber_id", sub.ID())
	return Result{Success: true, Message: MsgUnsubscribed, Subscriber: sub}
}

// Stats returns subscriber counts by status.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var err error
	if st.Total, err = s.repo.Count(ctx); err != nil {
		return Stats{}, err
	}
	counts := map[domain.SubscriberStatus]*int{
		domain.StatusConfirmed:    &st.Confirmed,
		domain.StatusPending:      &st.Pending,
		domain.StatusUnsubscribed: &st.Unsubscribed,
	}
	for status, dst := range counts {
		if *dst, err = s.repo.CountByStatus(ctx, status); err != nil {
			return Stats{}, err
		}
	}
	return st, nil
}

func failure(msg string, err error) Result {
	return Result{Success: false, Message: msg, Err: err}
}

func (s *Service) internal(op string, err error, fields ...interface{}) Result {
	s.log.Error(op+" failed", append(fields, "error", err)...)
	return failure(MsgInternal, err)
}
