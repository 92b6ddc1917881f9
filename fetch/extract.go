package fetch

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

// Extracted is the readable portion of a fetched page.
type Extracted struct {
	Title string
	Text  string
	HTML  string
}

var (
	blankLines   = regexp.MustCompile(`\n\s*\n`)
	runsOfSpaces = regexp.MustCompile(` +`)
)

// ExtractContent pulls the main article out of raw HTML, dropping
// navigation, ads and scripts, and normalizes whitespace in the text.
func ExtractContent(html, pageURL string) (Extracted, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		parsed = nil
	}

	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil {
		return Extracted{}, fmt.Errorf("readability: %w", err)
	}

	text := strings.TrimSpace(article.TextContent)
	text = blankLines.ReplaceAllString(text, "\n\n")
	text = runsOfSpaces.ReplaceAllString(text, " ")

	return Extracted{
		Title: article.Title,
		Text:  text,
		HTML:  article.Content,
	}, nil
}
