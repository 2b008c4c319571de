package api

import (
	"encoding/xml"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/pkg/httputil"
	"github.com/ignite/newsletter/internal/pkg/links"
	"github.com/ignite/newsletter/internal/pkg/logger"
)

type rssDoc struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	Language      string    `xml:"language"`
	LastBuildDate string    `xml:"lastBuildDate,omitempty"`
	Items         []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	GUID        string   `xml:"guid"`
	Description string   `xml:"description"`
	PubDate     string   `xml:"pubDate"`
	Categories  []string `xml:"category"`
}

// RSS lists published issues, newest first. The feed can be narrowed to a
// tag or to one publication year.
//
//	GET /rss.xml[?tag=go][&year=2025]
func (h *Handlers) RSS(w http.ResponseWriter, r *http.Request) {
	issues, err := h.feedIssues(r)
	if err != nil {
		if errors.Is(err, errBadYear) {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.InternalError(w, err)
		return
	}

	base := h.baseURL(r)
	doc := rssDoc{
		Version: "2.0",
		Channel: rssChannel{
			Title:       h.site.Name,
			Link:        base,
			Description: "Newsletter semanal com as melhores notícias de tech, desenvolvimento e design.",
			Language:    "pt-BR",
		},
	}
	if len(issues) > 0 {
		doc.Channel.LastBuildDate = issues[0].PublishedAt().Format(time.RFC1123Z)
	}
	for _, i := range issues {
		link := links.IssueURL(base, i.Slug())
		doc.Channel.Items = append(doc.Channel.Items, rssItem{
			Title:       i.Title(),
			Link:        link,
			GUID:        link,
			Description: i.Description(),
			PubDate:     i.PublishedAt().Format(time.RFC1123Z),
			Categories:  i.Tags(),
		})
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		logger.Warn("rss encode failed", "error", err)
	}
}

var errBadYear = errors.New("Ano inválido")

func (h *Handlers) feedIssues(r *http.Request) ([]*domain.Issue, error) {
	ctx := r.Context()
	now := h.now()
	q := r.URL.Query()
	tag := strings.TrimSpace(q.Get("tag"))
	year := strings.TrimSpace(q.Get("year"))

	var (
		issues []*domain.Issue
		err    error
	)
	switch {
	case year != "":
		y, perr := strconv.Atoi(year)
		if perr != nil || y < 1 || y > 9999 {
			return nil, errBadYear
		}
		from := time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
		issues, err = h.issues.FindByDateRange(ctx, from, from.AddDate(1, 0, 0).Add(-time.Nanosecond))
	case tag != "":
		issues, err = h.issues.FindByTag(ctx, tag)
	default:
		return h.issues.FindPublished(ctx, now)
	}
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Issue, 0, len(issues))
	for _, i := range issues {
		if !i.IsPublished(now) || (tag != "" && !hasTag(i, tag)) {
			continue
		}
		out = append(out, i)
	}
	return out, nil
}

func hasTag(i *domain.Issue, tag string) bool {
	for _, t := range i.Tags() {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}
