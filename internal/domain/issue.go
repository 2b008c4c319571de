package domain

import (
	"fmt"
	"strings"
	"time"
)

// ContentFormat says how an issue body is written.
type ContentFormat int

const (
	FormatMarkdown ContentFormat = iota
	// FormatHTML marks bodies that arrive already rendered, e.g. from a feed.
	FormatHTML
)

// IssueInput carries the raw fields an issue is built from.
type IssueInput struct {
	ID          string
	Title       string
	Description string
	Content     string
	Format      ContentFormat
	Slug        string
	Number      int
	PublishedAt time.Time
	Tags        []string
	ReadingTime int
	PreviewText string
}

// Issue is one numbered edition of the newsletter. It is a read model built
// from authored content; once constructed it never changes.
type Issue struct {
	id          string
	title       string
	description string
	content     string
	format      ContentFormat
	slug        string
	number      int
	publishedAt time.Time
	tags        []string
	readingTime int
	previewText string
}

// IssueEmailData is what an email template needs to render an issue.
type IssueEmailData struct {
	Title       string
	Subject     string
	Content     string
	Format      ContentFormat
	PreviewText string
	Number      int
	Slug        string
}

// NewIssue validates in and builds an Issue. Title, description and preview
// text are trimmed; content is kept verbatim.
func NewIssue(in IssueInput) (*Issue, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, &ValidationError{Field: "title", Message: "newsletter title is required"}
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, &ValidationError{Field: "content", Message: "newsletter content is required"}
	}
	if in.Number <= 0 {
		return nil, &ValidationError{Field: "issue", Message: "newsletter issue must be positive"}
	}

	tags := make([]string, len(in.Tags))
	copy(tags, in.Tags)

	id := in.ID
	if id == "" {
		id = in.Slug
	}
	readingTime := in.ReadingTime
	if readingTime <= 0 {
		if in.Format == FormatHTML {
			readingTime = EstimateReadingTimeHTML(in.Content)
		} else {
			readingTime = EstimateReadingTime(in.Content)
		}
	}

	return &Issue{
		id:          id,
		title:       title,
		description: strings.TrimSpace(in.Description),
		content:     in.Content,
		format:      in.Format,
		slug:        in.Slug,
		number:      in.Number,
		publishedAt: in.PublishedAt,
		tags:        tags,
		readingTime: readingTime,
		previewText: strings.TrimSpace(in.PreviewText),
	}, nil
}

func (i *Issue) ID() string { return i.id }
func (i *Issue) Title() string { return i.title }
func (i *Issue) Description() string { return i.description }
func (i *Issue) Content() string { return i.content }
func (i *Issue) Format() ContentFormat { return i.format }
func (i *Issue) Slug() string { return i.slug }
func (i *Issue) Number() int { return i.number }
func (i *Issue) PublishedAt() time.Time { return i.publishedAt }
func (i *Issue) ReadingTime() int { return i.readingTime }

// Tags returns a copy of the issue's tags.
func (i *Issue) Tags() []string {
	out := make([]string, len(i.tags))
	copy(out, i.tags)
	return out
}

// PreviewText falls back to the description when no preview was authored.
func (i *Issue) PreviewText() string {
	if i.previewText != "" {
		return i.previewText
	}
	return i.description
}

// IsPublished reports whether the issue's publication time has been reached.
func (i *Issue) IsPublished(now time.Time) bool {
	return !i.publishedAt.After(now)
}

// EmailSubject formats the subject line, e.g. "Go generics - Puro Suco #12".
func (i *Issue) EmailSubject(source string) string {
	return fmt.Sprintf("%s - %s #%d", i.title, source, i.number)
}

// EmailData returns the template payload for this issue.
func (i *Issue) EmailData(source string) IssueEmailData {
	return IssueEmailData{
		Title:       i.title,
		Subject:     i.EmailSubject(source),
		Content:     i.content,
		Format:      i.format,
		PreviewText: i.PreviewText(),
		Number:      i.number,
		Slug:        i.slug,
	}
}

// IsDraftSlug reports whether slug names a draft. Drafts are never listed
// or sent.
func IsDraftSlug(slug string) bool {
	return strings.HasPrefix(slug, "_")
}
