package content

import (
	"fmt"
	"path"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type frontMatter struct {
	Title       string    `yaml:"title"`
	Description string    `yaml:"description"`
	PublishedAt time.Time `yaml:"publishedAt"`
	Tags        []string  `yaml:"tags"`
	PreviewText string    `yaml:"previewText"`
	Issue       int       `yaml:"issue"`
	ReadingTime int       `yaml:"readingTime"`
}

// ParseMarkdown reads a markdown document with a YAML front matter block
// delimited by "---" lines.
func ParseMarkdown(slug string, raw []byte) (Entry, error) {
	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	if !strings.HasPrefix(text, "---\n") {
		return Entry{}, fmt.Errorf("%s: missing front matter", slug)
	}
	rest := text[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return Entry{}, fmt.Errorf("%s: unterminated front matter", slug)
	}

	var fm frontMatter
	if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err != nil {
		return Entry{}, fmt.Errorf("%s: front matter: %w", slug, err)
	}

	body := rest[end+len("\n---"):]
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = ""
	}

	return Entry{
		Slug:        slug,
		Title:       fm.Title,
		Description: fm.Description,
		Body:        strings.TrimLeft(body, "\n"),
		PublishedAt: fm.PublishedAt,
		Tags:        fm.Tags,
		PreviewText: fm.PreviewText,
		Number:      fm.Issue,
		ReadingTime: fm.ReadingTime,
	}, nil
}

// isMarkdown reports whether name looks like an issue file.
func isMarkdown(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".md", ".mdx", ".markdown":
		return true
	}
	return false
}

// slugOf strips directories and the extension from name.
func slugOf(name string) string {
	base := path.Base(name)
	return strings.TrimSuffix(base, path.Ext(base))
}
