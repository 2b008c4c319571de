package content

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/ignite/newsletter/internal/pkg/httpretry"
	"github.com/mmcdole/gofeed"
)

// FeedLoader builds issues from an RSS or Atom feed. Item bodies are taken
// as HTML; issue numbers follow publication order.
type FeedLoader struct {
	url    string
	client httpretry.HTTPDoer
	parser *gofeed.Parser
}

// NewFeedLoader fetches feedURL through client, which is usually a
// *httpretry.RetryClient.
func NewFeedLoader(feedURL string, client httpretry.HTTPDoer) *FeedLoader {
	return &FeedLoader{url: feedURL, client: client, parser: gofeed.NewParser()}
}

func (l *FeedLoader) Load(ctx context.Context) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", l.url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetch feed %s: status %d", l.url, resp.StatusCode)
	}

	feed, err := l.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", l.url, err)
	}

	entries := make([]Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		entries = append(entries, entryFromItem(item))
	}
	return entries, nil
}

func entryFromItem(item *gofeed.Item) Entry {
	body := item.Content
	if body == "" {
		body = item.Description
	}
	e := Entry{
		Slug:        itemSlug(item),
		Title:       item.Title,
		Description: item.Description,
		Body:        body,
		HTML:        true,
		Tags:        append([]string(nil), item.Categories...),
	}
	if item.PublishedParsed != nil {
		e.PublishedAt = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		e.PublishedAt = *item.UpdatedParsed
	}
	if e.Description == body {
		e.Description = ""
	}
	return e
}

// itemSlug uses the last path segment of the item link, falling back to
// the GUID.
func itemSlug(item *gofeed.Item) string {
	if u, err := url.Parse(item.Link); err == nil && u.Path != "" {
		if s := path.Base(strings.TrimSuffix(u.Path, "/")); s != "." && s != "/" {
			return strings.TrimSuffix(s, path.Ext(s))
		}
	}
	return strings.TrimSpace(item.GUID)
}
