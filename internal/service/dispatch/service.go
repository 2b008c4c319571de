package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/pkg/links"
	"github.com/ignite/newsletter/internal/pkg/logger"
)

// Result is the outcome of a dispatch. SentCount+FailedCount is the number
// of recipients attempted.
type Result struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	SentCount   int    `json:"sentCount"`
	FailedCount int    `json:"failedCount"`
	Err         error  `json:"-"`
}

// Attempted returns how many recipients a send was tried for.
func (r Result) Attempted() int { return r.SentCount + r.FailedCount }

// Options configures a Service. Zero values are usable: no pacing, no
// locking, no ledger.
type Options struct {
	// SourceName is the newsletter name used in subjects, e.g. "Puro Suco".
	SourceName string
	// BaseURL is used by the single-recipient sends, which have no request
	// to take it from.
	BaseURL string
	Pacer   Pacer
	// NewLock returns the cross-process lock guarding one issue's dispatch.
	NewLock func(key string) Locker
	Ledger  Ledger
}

// SendOption adjusts a single dispatch.
type SendOption func(*sendConfig)

type sendConfig struct {
	force bool
}

// Force sends even if the ledger says the issue already went out.
func Force() SendOption {
	return func(c *sendConfig) { c.force = true }
}

// Service implements newsletter dispatch. It is safe for concurrent use.
type Service struct {
	subscribers SubscriberReader
	issues      IssueSource
	mailer      Mailer
	opts        Options
	log         *logger.Logger
	now         func() time.Time
}

// NewService wires a dispatch service.
func NewService(subscribers SubscriberReader, issues IssueSource, mailer Mailer, opts Options) *Service {
	if opts.Pacer == nil {
		opts.Pacer = noPacer{}
	}
	if opts.SourceName == "" {
		opts.SourceName = "Puro Suco"
	}
	return &Service{
		subscribers: subscribers,
		issues:      issues,
		mailer:      mailer,
		opts:        opts,
		log:         logger.Default().With("component", "dispatch"),
		now:         time.Now,
	}
}

// SendBySlug sends the issue identified by slug to every confirmed subscriber.
func (s *Service) SendBySlug(ctx context.Context, slug, baseURL string, opts ...SendOption) Result {
	issue, err := s.issues.FindBySlug(ctx, slug)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && domain.IsDraftSlug(slug)) {
		return Result{Message: MsgIssueNotFound, Err: ErrIssueNotFound}
	}
	if err != nil {
		return s.internal("find issue by slug", err, "slug", slug)
	}
	if !issue.IsPublished(s.now()) {
		return Result{Message: MsgNotPublished, Err: ErrNotPublished}
	}
	return s.SendToAllSubscribers(ctx, issue, baseURL, opts...)
}

// SendByNumber sends the issue with the given edition number.
func (s *Service) SendByNumber(ctx context.Context, number int, baseURL string, opts ...SendOption) Result {
	issue, err := s.issues.FindByNumber(ctx, number)
	if errors.Is(err, domain.ErrNotFound) {
		return Result{Message: MsgIssueNotFound, Err: ErrIssueNotFound}
	}
	if err != nil {
		return s.internal("find issue by number", err, "issue", number)
	}
	if !issue.IsPublished(s.now()) {
		return Result{Message: MsgNotPublished, Err: ErrNotPublished}
	}
	return s.SendToAllSubscribers(ctx, issue, baseURL, opts...)
}

// SendLatest sends the most recent issue to every confirmed subscriber.
func (s *Service) SendLatest(ctx context.Context, baseURL string, opts ...SendOption) Result {
	issue, err := s.issues.FindLatest(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return Result{Message: MsgNoIssues, Err: ErrIssueNotFound}
	}
	if err != nil {
		return s.internal("find latest issue", err)
	}
	if !issue.IsPublished(s.now()) {
		return Result{Message: MsgLatestNotPublished, Err: ErrNotPublished}
	}
	return s.SendToAllSubscribers(ctx, issue, baseURL, opts...)
}

// SendToAllSubscribers sends issue to each confirmed subscriber in turn.
// A recipient's failure is counted and the loop moves on. Cancelling ctx
// stops the loop, as does losing the dispatch lock; the result then
// reports what was done so far.
func (s *Service) SendToAllSubscribers(ctx context.Context, issue *domain.Issue, baseURL string, opts ...SendOption) Result {
	var cfg sendConfig
	for _, o := range opts {
		o(&cfg)
	}
	log := s.log.With("slug", issue.Slug(), "issue", issue.Number())

	var lock Locker
	if s.opts.NewLock != nil {
		lock = s.opts.NewLock("dispatch:" + issue.Slug())
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			return s.internal("acquire dispatch lock", err, "slug", issue.Slug())
		}
		if !acquired {
			return Result{Message: MsgInProgress, Err: ErrInProgress}
		}
		defer func() {
			// ctx may already be cancelled; the lock still has to go.
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("release dispatch lock failed", "error", err)
			}
		}()
	}

	if s.opts.Ledger != nil && !cfg.force {
		done, err := s.opts.Ledger.WasDispatched(ctx, issue.Slug())
		if err != nil {
			return s.internal("check dispatch ledger", err, "slug", issue.Slug())
		}
		if done {
			return Result{Message: MsgAlreadySent, Err: ErrAlreadySent}
		}
	}

	active, err := s.subscribers.FindByStatus(ctx, domain.StatusConfirmed)
	if err != nil {
		return s.internal("list confirmed subscribers", err, "slug", issue.Slug())
	}
	if len(active) == 0 {
		return Result{Message: MsgNoSubscribers, Err: ErrNoSubscribers}
	}

	data := issue.EmailData(s.opts.SourceName)
	var sent, failed int
	var interrupted error
	lockLost := false

	log.Info("dispatch started", "recipients", len(active))
	for i, sub := range active {
		if i > 0 {
			if err := s.opts.Pacer.Wait(ctx); err != nil {
				interrupted = err
				break
			}
		}
		if err := ctx.Err(); err != nil {
			interrupted = err
			break
		}
		// The lock TTL is shorter than a large dispatch, so it is pushed
		// out before every send after the first.
		if lock != nil && i > 0 {
			if err := lock.Refresh(ctx); err != nil {
				interrupted = fmt.Errorf("%w: %v", ErrLockLost, err)
				lockLost = true
				break
			}
		}

		recipient := domain.Recipient{
			Email:          sub.Email(),
			UnsubscribeURL: links.UnsubscribeURL(baseURL, sub.Email(), sub.Token()),
		}
		if err := s.mailer.SendNewsletter(ctx, []domain.Recipient{recipient}, data); err != nil {
			failed++
			log.Warn("newsletter send failed", "email", sub.Email(), "error", err)
			continue
		}
		sent++
	}

	res := buildResult(sent, failed)
	switch {
	case lockLost:
		res.Message = fmt.Sprintf(msgLockLost, res.Message)
		res.Err = interrupted
	case interrupted != nil:
		res.Message = fmt.Sprintf(msgInterrupted, res.Message)
		res.Err = interrupted
	}
	log.Info("dispatch finished", "sent", sent, "failed", failed, "interrupted", interrupted != nil)

	if s.opts.Ledger != nil && interrupted == nil && sent > 0 {
		if err := s.opts.Ledger.MarkDispatched(context.WithoutCancel(ctx), issue.Slug(), sent); err != nil {
			log.Warn("record dispatch failed", "error", err)
		}
	}
	return res
}

func buildResult(sent, failed int) Result {
	res := Result{Success: sent > 0, SentCount: sent, FailedCount: failed}
	if res.Success {
		res.Message = fmt.Sprintf(msgSentFormat, sent)
	} else {
		res.Message = MsgSendFailed
		res.Err = ErrAllFailed
	}
	if failed > 0 {
		res.Message = fmt.Sprintf(msgFailedFormat, res.Message, failed)
	}
	return res
}

// SendConfirmationEmail re-sends the confirmation link to a pending
// subscriber. It reports whether an email went out.
func (s *Service) SendConfirmationEmail(ctx context.Context, email string) bool {
	sub, ok := s.lookup(ctx, email)
	if !ok || !sub.IsPending() {
		return false
	}
	if err := s.mailer.SendConfirmation(ctx, sub.Email(), links.ConfirmURL(s.opts.BaseURL, sub.Token())); err != nil {
		s.log.Error("send confirmation email failed", "email", sub.Email(), "error", err)
		return false
	}
	return true
}

// SendWelcomeEmail greets a confirmed subscriber. It reports whether an
// email went out.
func (s *Service) SendWelcomeEmail(ctx context.Context, email string) bool {
	sub, ok := s.lookup(ctx, email)
	if !ok || !sub.IsActive() {
		return false
	}
	if err := s.mailer.SendWelcome(ctx, sub.Email(), links.UnsubscribeURL(s.opts.BaseURL, sub.Email(), sub.Token())); err != nil {
		s.log.Error("send welcome email failed", "email", sub.Email(), "error", err)
		return false
	}
	return true
}

func (s *Service) lookup(ctx context.Context, email string) (*domain.Subscriber, bool) {
	normalized, err := domain.NormalizeEmail(email)
	if err != nil {
		return nil, false
	}
	sub, err := s.subscribers.FindByEmail(ctx, normalized)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.log.Error("find subscriber by email failed", "email", normalized, "error", err)
		}
		return nil, false
	}
	return sub, true
}

func (s *Service) internal(op string, err error, fields ...interface{}) Result {
	s.log.Error(op+" failed", append(fields, "error", err)...)
	return Result{Message: MsgInternal, Err: err}
}

type noPacer struct{}

func (noPacer) Wait(ctx context.Context) error { return ctx.Err() }
