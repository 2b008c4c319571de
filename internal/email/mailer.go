// Package email renders and delivers the newsletter's three kinds of mail:
// the double opt-in confirmation, the welcome message, and issues.
package email

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/pkg/links"
	"github.com/ignite/newsletter/internal/pkg/logger"
)

// Message is a single rendered email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Tags    map[string]string
}

// Sender delivers one message. Implementations must be safe for concurrent
// use.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Options tune a Mailer. Zero values fall back to the defaults noted.
type Options struct {
	SiteName   string
	SiteURL    string
	BatchSize  int           // default 50
	BatchPause time.Duration // pause between batches
}

// Mailer renders templates and hands messages to a Sender.
type Mailer struct {
	sender   Sender
	renderer *Renderer
	opts     Options
	log      *logger.Logger
}

// NewMailer parses the templates and returns a ready Mailer.
func NewMailer(sender Sender, opts Options) (*Mailer, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	r, err := NewRenderer(opts.SiteName, opts.SiteURL)
	if err != nil {
		return nil, err
	}
	return &Mailer{
		sender:   sender,
		renderer: r,
		opts:     opts,
		log:      logger.Default().With("component", "email"),
	}, nil
}

func (m *Mailer) SendConfirmation(ctx context.Context, to, confirmationURL string) error {
	body, err := m.renderer.Confirmation(to, confirmationURL)
	if err != nil {
		return err
	}
	return m.sender.Send(ctx, Message{
		To:      to,
		Subject: fmt.Sprintf("Confirme sua inscrição no %s 🍊", m.opts.SiteName),
		HTML:    body,
		Tags:    map[string]string{"newsletter_type": "confirmation"},
	})
}

func (m *Mailer) SendWelcome(ctx context.Context, to, unsubscribeURL string) error {
	body, err := m.renderer.Welcome(to, unsubscribeURL)
	if err != nil {
		return err
	}
	return m.sender.Send(ctx, Message{
		To:      to,
		Subject: fmt.Sprintf("Bem-vindo ao %s! 🍊", m.opts.SiteName),
		HTML:    body,
		Tags:    map[string]string{"newsletter_type": "welcome"},
	})
}

// SendNewsletter renders issue once, then sends it to recipients in batches.
// Messages within a batch go out concurrently; batches are separated by
// BatchPause. Every failure is reported in the joined error.
func (m *Mailer) SendNewsletter(ctx context.Context, recipients []domain.Recipient, issue domain.IssueEmailData) error {
	body, err := m.renderer.Newsletter(issue, links.IssueURL(m.opts.SiteURL, issue.Slug))
	if err != nil {
		return err
	}
	tags := map[string]string{
		"newsletter_type": "newsletter",
		"issue":           strconv.Itoa(issue.Number),
		"slug":            issue.Slug,
	}

	var errs []error
	for start := 0; start < len(recipients); start += m.opts.BatchSize {
		if start > 0 && m.opts.BatchPause > 0 {
			select {
			case <-ctx.Done():
				return errors.Join(append(errs, ctx.Err())...)
			case <-time.After(m.opts.BatchPause):
			}
		}
		end := min(start+m.opts.BatchSize, len(recipients))
		errs = append(errs, m.sendBatch(ctx, recipients[start:end], issue.Subject, body, tags)...)
	}
	if len(errs) > 0 {
		m.log.Warn("newsletter batch had failures", "slug", issue.Slug, "failed", len(errs), "recipients", len(recipients))
	}
	return errors.Join(errs...)
}

func (m *Mailer) sendBatch(ctx context.Context, batch []domain.Recipient, subject, body string, tags map[string]string) []error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, r := range batch {
		wg.Add(1)
		go func(r domain.Recipient) {
			defer wg.Done()
			err := m.sender.Send(ctx, Message{
				To:      r.Email,
				Subject: subject,
				HTML:    Personalize(body, r.UnsubscribeURL),
				Tags:    tags,
			})
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("send to %s: %w", logger.RedactEmail(r.Email), err))
				mu.Unlock()
			}
		}(r)
	}
	wg.Wait()
	return errs
}

// LogSender writes messages to the log instead of sending them. Used when no
// email provider is configured.
type LogSender struct{}

func (LogSender) Send(_ context.Context, msg Message) error {
	logger.Info("email not sent (log provider)", "to", msg.To, "subject", msg.Subject, "bytes", len(msg.HTML))
	return nil
}
