package email

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var blockTags = []string{"p", "div", "br", "li", "tr", "h1", "h2", "h3", "h4", "h5", "h6", "blockquote"}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// HTMLToText renders an HTML body as plain text: scripts and styles
// stripped, block elements separated by line breaks, blank runs collapsed.
func HTMLToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style, head").Remove()

	// Newlines after block elements keep paragraphs apart once the tags go.
	for _, tag := range blockTags {
		doc.Find(tag).AfterHtml("\n")
	}

	text := doc.Text()
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
