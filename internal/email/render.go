package email

import (
	"bytes"
	"embed"
	"fmt"
	"html"
	"strings"

	"github.com/ignite/newsletter/internal/domain"
	"github.com/osteele/liquid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	ghtml "github.com/yuin/goldmark/renderer/html"
)

//go:embed templates/*.liquid
var templateFS embed.FS

const (
	tplConfirmation = "confirmation"
	tplWelcome      = "welcome"
	tplNewsletter   = "newsletter"
)

// unsubscribePlaceholder stands in for the recipient's unsubscribe URL in a
// newsletter rendered once for a whole batch.
const unsubscribePlaceholder = "%%UNSUBSCRIBE_URL%%"

// Renderer renders the embedded Liquid email templates.
type Renderer struct {
	templates map[string]*liquid.Template
	siteName  string
	siteURL   string
}

// NewRenderer parses every template up front so syntax errors surface at
// startup.
func NewRenderer(siteName, siteURL string) (*Renderer, error) {
	engine := liquid.NewEngine()
	r := &Renderer{
		templates: make(map[string]*liquid.Template),
		siteName:  siteName,
		siteURL:   strings.TrimRight(siteURL, "/"),
	}
	for _, name := range []string{tplConfirmation, tplWelcome, tplNewsletter} {
		src, err := templateFS.ReadFile("templates/" + name + ".liquid")
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", name, err)
		}
		tpl, serr := engine.ParseTemplate(src)
		if serr != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, serr)
		}
		r.templates[name] = tpl
	}
	return r, nil
}

func (r *Renderer) render(name string, vars liquid.Bindings) (string, error) {
	vars["site_name"] = r.siteName
	vars["site_url"] = r.siteURL
	out, err := r.templates[name].RenderString(vars)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return out, nil
}

func (r *Renderer) Confirmation(to, confirmationURL string) (string, error) {
	return r.render(tplConfirmation, liquid.Bindings{
		"email":            to,
		"confirmation_url": confirmationURL,
	})
}

func (r *Renderer) Welcome(to, unsubscribeURL string) (string, error) {
	return r.render(tplWelcome, liquid.Bindings{
		"email":           to,
		"unsubscribe_url": unsubscribeURL,
	})
}

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM, extension.Typographer),
	goldmark.WithRendererOptions(ghtml.WithUnsafe()),
)

// RenderMarkdown converts an issue body to HTML.
func RenderMarkdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// Newsletter renders an issue with a placeholder where each recipient's
// unsubscribe link goes. Use Personalize to fill it in. Markdown bodies are
// converted here; HTML bodies are used as they are.
func (r *Renderer) Newsletter(issue domain.IssueEmailData, issueURL string) (string, error) {
	body := issue.Content
	if issue.Format != domain.FormatHTML {
		var err error
		if body, err = RenderMarkdown(body); err != nil {
			return "", err
		}
	}
	return r.render(tplNewsletter, liquid.Bindings{
		"title":           issue.Title,
		"preview_text":    issue.PreviewText,
		"issue":           issue.Number,
		"content":         body,
		"issue_url":       issueURL,
		"unsubscribe_url": unsubscribePlaceholder,
	})
}

// Personalize substitutes a recipient's unsubscribe URL into a rendered
// newsletter.
func Personalize(rendered, unsubscribeURL string) string {
	return strings.ReplaceAll(rendered, unsubscribePlaceholder, html.EscapeString(unsubscribeURL))
}
