// Package content loads newsletter issues from authored sources: a local
// directory of markdown files, an S3 prefix holding the same files, or an
// RSS/Atom feed. Store turns whatever a Loader returns into domain issues.
package content

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/pkg/logger"
)

// Entry is one authored issue before validation.
type Entry struct {
	Slug        string
	Title       string
	Description string
	Body        string
	HTML        bool // Body is already HTML
	PublishedAt time.Time
	Tags        []string
	PreviewText string
	Number      int
	ReadingTime int
}

// Loader reads every entry from a source, drafts included.
type Loader interface {
	Load(ctx context.Context) ([]Entry, error)
}

// Store implements dispatch.IssueSource over a Loader. Each call reloads the
// source so edits show up without a restart.
type Store struct {
	loader Loader
	log    *logger.Logger
}

// NewStore creates a Store reading from loader.
func NewStore(loader Loader) *Store {
	return &Store{
		loader: loader,
		log:    logger.Default().With("component", "content"),
	}
}

// FindAll returns every non-draft issue, newest publication first.
func (s *Store) FindAll(ctx context.Context) ([]*domain.Issue, error) {
	entries, err := s.loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load issues: %w", err)
	}

	kept := entries[:0:0]
	for _, e := range entries {
		if e.Slug == "" || domain.IsDraftSlug(e.Slug) {
			continue
		}
		kept = append(kept, e)
	}

	// Oldest first, so a missing issue number can fall back to position.
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].PublishedAt.Before(kept[j].PublishedAt) })

	issues := make([]*domain.Issue, 0, len(kept))
	for i, e := range kept {
		number := e.Number
		if number <= 0 {
			number = i + 1
		}
		issue, err := s.build(e, number)
		if err != nil {
			s.log.Warn("skipping invalid issue", "slug", e.Slug, "error", err)
			continue
		}
		issues = append(issues, issue)
	}

	for l, r := 0, len(issues)-1; l < r; l, r = l+1, r-1 {
		issues[l], issues[r] = issues[r], issues[l]
	}
	return issues, nil
}

func (s *Store) build(e Entry, number int) (*domain.Issue, error) {
	format := domain.FormatMarkdown
	if e.HTML {
		format = domain.FormatHTML
	}
	return domain.NewIssue(domain.IssueInput{
		ID:          e.Slug,
		Title:       e.Title,
		Description: e.Description,
		Content:     e.Body,
		Format:      format,
		Slug:        e.Slug,
		Number:      number,
		PublishedAt: e.PublishedAt,
		Tags:        e.Tags,
		ReadingTime: e.ReadingTime,
		PreviewText: e.PreviewText,
	})
}

func (s *Store) FindBySlug(ctx context.Context, slug string) (*domain.Issue, error) {
	return s.findFirst(ctx, func(i *domain.Issue) bool { return i.Slug() == slug })
}

func (s *Store) FindByNumber(ctx context.Context, number int) (*domain.Issue, error) {
	return s.findFirst(ctx, func(i *domain.Issue) bool { return i.Number() == number })
}

// FindLatest returns the issue with the newest publication date, published
// or not.
func (s *Store) FindLatest(ctx context.Context) (*domain.Issue, error) {
	return s.findFirst(ctx, func(*domain.Issue) bool { return true })
}

func (s *Store) findFirst(ctx context.Context, match func(*domain.Issue) bool) (*domain.Issue, error) {
	issues, err := s.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, i := range issues {
		if match(i) {
			return i, nil
		}
	}
	return nil, domain.ErrNotFound
}

// FindPublished returns issues published at or before now, newest first.
func (s *Store) FindPublished(ctx context.Context, now time.Time) ([]*domain.Issue, error) {
	return s.filter(ctx, func(i *domain.Issue) bool { return i.IsPublished(now) })
}

// FindByTag returns issues carrying tag, compared case-insensitively.
func (s *Store) FindByTag(ctx context.Context, tag string) ([]*domain.Issue, error) {
	return s.filter(ctx, func(i *domain.Issue) bool {
		for _, t := range i.Tags() {
			if strings.EqualFold(t, tag) {
				return true
			}
		}
		return false
	})
}

// FindByDateRange returns issues published within [from, to].
func (s *Store) FindByDateRange(ctx context.Context, from, to time.Time) ([]*domain.Issue, error) {
	if to.Before(from) {
		return nil, errors.New("find by date range: end before start")
	}
	return s.filter(ctx, func(i *domain.Issue) bool {
		p := i.PublishedAt()
		return !p.Before(from) && !p.After(to)
	})
}

func (s *Store) filter(ctx context.Context, keep func(*domain.Issue) bool) ([]*domain.Issue, error) {
	issues, err := s.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	out := issues[:0]
	for _, i := range issues {
		if keep(i) {
			out = append(out, i)
		}
	}
	return out, nil
}
