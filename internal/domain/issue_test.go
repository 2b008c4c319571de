package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"
)

func validIssueInput() IssueInput {
	return IssueInput{
		ID:          "go-generics",
		Title:       "  Go generics na prática  ",
		Description: "  Um tour rápido  ",
		Content:     "# Olá\n\nConteúdo da edição.",
		Slug:        "go-generics",
		Number:      12,
		PublishedAt: t0,
		Tags:        []string{"go", "go", "generics"},
		ReadingTime: 4,
	}
}

func TestNewIssue(t *testing.T) {
	issue, err := NewIssue(validIssueInput())
	if err != nil {
		t.Fatalf("NewIssue: %v", err)
	}
	if issue.Title() != "Go generics na prática" {
		t.Errorf("title = %q, want trimmed", issue.Title())
	}
	if issue.Description() != "Um tour rápido" {
		t.Errorf("description = %q, want trimmed", issue.Description())
	}
	if issue.ReadingTime() != 4 {
		t.Errorf("readingTime = %d, want 4", issue.ReadingTime())
	}
	if got := issue.Tags(); len(got) != 3 || got[0] != "go" || got[1] != "go" {
		t.Errorf("tags = %v, want duplicates preserved in order", got)
	}
}

func TestNewIssueValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*IssueInput)
		field  string
	}{
		{"empty title", func(in *IssueInput) { in.Title = "   " }, "title"},
		{"empty content", func(in *IssueInput) { in.Content = "\n\t" }, "content"},
		{"zero issue", func(in *IssueInput) { in.Number = 0 }, "issue"},
		{"negative issue", func(in *IssueInput) { in.Number = -3 }, "issue"},
	}
	for _, tt := range tests {
		in := validIssueInput()
		tt.mutate(&in)
		_, err := NewIssue(in)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("%s: err = %v, want *ValidationError", tt.name, err)
			continue
		}
		if ve.Field != tt.field {
			t.Errorf("%s: field = %q, want %q", tt.name, ve.Field, tt.field)
		}
	}
}

func TestIssueTagsAreCopies(t *testing.T) {
	in := validIssueInput()
	issue, _ := NewIssue(in)
	in.Tags[0] = "mutated-input"
	tags := issue.Tags()
	tags[1] = "mutated-output"
	if got := issue.Tags(); got[0] != "go" || got[1] != "go" {
		t.Errorf("issue tags leaked mutation: %v", got)
	}
}

func TestIssuePreviewTextFallback(t *testing.T) {
	in := validIssueInput()
	issue, _ := NewIssue(in)
	if issue.PreviewText() != "Um tour rápido" {
		t.Errorf("preview = %q, want description fallback", issue.PreviewText())
	}

	in.PreviewText = "  Prévia  "
	issue, _ = NewIssue(in)
	if issue.PreviewText() != "Prévia" {
		t.Errorf("preview = %q, want trimmed preview text", issue.PreviewText())
	}
}

func TestIssueEmailSubject(t *testing.T) {
	issue, _ := NewIssue(validIssueInput())
	want := "Go generics na prática - Puro Suco #12"
	if got := issue.EmailSubject("Puro Suco"); got != want {
		t.Errorf("subject = %q, want %q", got, want)
	}
	data := issue.EmailData("Puro Suco")
	if data.Subject != want || data.Number != 12 || data.Slug != "go-generics" {
		t.Errorf("email data = %+v", data)
	}
}

func TestIssueKeepsRawMarkdown(t *testing.T) {
	issue, _ := NewIssue(validIssueInput())
	if issue.Content() != "# Olá\n\nConteúdo da edição." || issue.Format() != FormatMarkdown {
		t.Errorf("content = %q format = %v, want raw markdown", issue.Content(), issue.Format())
	}
	if data := issue.EmailData("Puro Suco"); data.Format != FormatMarkdown || data.Content != issue.Content() {
		t.Errorf("email data = %+v", data)
	}
}

func TestIssueReadingTimeForHTMLContent(t *testing.T) {
	in := validIssueInput()
	in.ReadingTime = 0
	in.Format = FormatHTML
	in.Content = "<p>" + strings.Repeat("palavra ", 450) + "</p><script>" + strings.Repeat("x ", 1000) + "</script>"
	issue, _ := NewIssue(in)
	if issue.ReadingTime() != 3 {
		t.Errorf("readingTime = %d, want 3 (script ignored)", issue.ReadingTime())
	}
}

func TestIssueIsPublished(t *testing.T) {
	issue, _ := NewIssue(validIssueInput())
	if !issue.IsPublished(t0) {
		t.Error("issue published exactly now should count as published")
	}
	if issue.IsPublished(t0.Add(-time.Second)) {
		t.Error("issue in the future should not be published")
	}
}

func TestIssueReadingTimeComputedWhenMissing(t *testing.T) {
	in := validIssueInput()
	in.ReadingTime = 0
	in.Content = strings.Repeat("palavra ", 450)
	issue, _ := NewIssue(in)
	if issue.ReadingTime() != 3 {
		t.Errorf("readingTime = %d, want 3", issue.ReadingTime())
	}
}

func TestIsDraftSlug(t *testing.T) {
	if !IsDraftSlug("_rascunho") || IsDraftSlug("edicao-1") {
		t.Error("drafts are exactly the slugs starting with an underscore")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{&ValidationError{Field: "email", Message: "bad"}, http.StatusBadRequest},
		{&InvalidStateError{From: StatusConfirmed, Event: EventConfirm}, http.StatusBadRequest},
		{ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("subscribe: %w", ErrConflict), http.StatusConflict},
		{&ExternalServiceError{Service: "ses", Err: errors.New("throttled")}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
