package markdown

import (
	"regexp"
	"strings"

	"github.com/russross/blackfriday/v2"
)

var excessNewlines = regexp.MustCompile(`\n{3,}`)

// ToHTML converts markdown to HTML. Raw HTML in the input is dropped.
// Fenced blocks keep their language as a "language-<lang>" class.
func ToHTML(markdown string) string {
	if strings.TrimSpace(markdown) == "" {
		return ""
	}

	renderer := blackfriday.NewHTMLRenderer(blackfriday.HTMLRendererParameters{
		Flags: blackfriday.CommonHTMLFlags | blackfriday.HrefTargetBlank | blackfriday.SkipHTML,
	})

	html := string(blackfriday.Run(
		[]byte(markdown),
		blackfriday.WithExtensions(blackfriday.CommonExtensions),
		blackfriday.WithRenderer(renderer),
	))

	// Clean up extra newlines
	html = excessNewlines.ReplaceAllString(html, "\n\n")

	return strings.TrimSpace(html)
}
