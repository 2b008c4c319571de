package domain

import (
	"math"
	"regexp"
	"strings"
)

const (
	wordsPerMinute     = 200
	codeCharsPerSecond = 1000
	codeSlowdown       = 3
)

var (
	frontMatterRe = regexp.MustCompile(`(?s)\A---.*?---\n`)
	codeBlockRe   = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRe  = regexp.MustCompile("`[^`]*`")

	markdownRules = []struct {
		re   *regexp.Regexp
		repl string
	}{
		{regexp.MustCompile(`#{1,6}\s`), ""},
		{regexp.MustCompile(`\*\*([^*]+)\*\*`), "$1"},
		{regexp.MustCompile(`\*([^*]+)\*`), "$1"},
		{regexp.MustCompile(`~~([^~]+)~~`), "$1"},
		{regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`), "$1"},
		{regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`), "$1"},
		{regexp.MustCompile(`>\s*`), ""},
		{regexp.MustCompile(`[-*+]\s+`), ""},
		{regexp.MustCompile(`\d+\.\s+`), ""},
	}

	scriptRe = regexp.MustCompile(`(?is)<script\b.*?</script>`)
	styleRe  = regexp.MustCompile(`(?is)<style\b.*?</style>`)
	tagRe    = regexp.MustCompile(`<[^>]*>`)
	entityRe = regexp.MustCompile(`&[^;\s]+;`)
)

// EstimateReadingTime returns whole minutes needed to read a markdown body.
// Prose is read at 200 words per minute; fenced code is read at 1000
// characters per second and weighted three times. Never less than 1.
func EstimateReadingTime(markdown string) int {
	if strings.TrimSpace(markdown) == "" {
		return 1
	}

	text := frontMatterRe.ReplaceAllString(markdown, "")
	codeChars := 0
	for _, block := range codeBlockRe.FindAllString(text, -1) {
		codeChars += len(block)
	}
	text = codeBlockRe.ReplaceAllString(text, "")
	text = inlineCodeRe.ReplaceAllString(text, "")
	for _, rule := range markdownRules {
		text = rule.re.ReplaceAllString(text, rule.repl)
	}

	words := len(strings.Fields(text))
	codeMinutes := float64(codeChars) / codeCharsPerSecond / 60 * codeSlowdown
	return minutes(float64(words)/wordsPerMinute + codeMinutes)
}

// EstimateReadingTimeHTML is EstimateReadingTime for rendered HTML, used for
// content that arrives already rendered (feeds).
func EstimateReadingTimeHTML(html string) int {
	text := scriptRe.ReplaceAllString(html, "")
	text = styleRe.ReplaceAllString(text, "")
	text = tagRe.ReplaceAllString(text, " ")
	text = entityRe.ReplaceAllString(text, " ")
	return minutes(float64(len(strings.Fields(text))) / wordsPerMinute)
}

func minutes(m float64) int {
	return int(math.Max(1, math.Ceil(m)))
}
