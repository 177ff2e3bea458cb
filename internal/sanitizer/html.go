package sanitizer

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// 残留标签，例如实体解码后出现的 "<b>"
var tagPattern = regexp.MustCompile(`<\/?[a-zA-Z][^<>]*>`)

// HTMLToText extracts the visible text of an HTML document. Text nodes are
// joined with single spaces and all whitespace runs collapse to one space.
func HTMLToText(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))

	var (
		chunks []string
		skip   int
	)
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			text := tagPattern.ReplaceAllString(strings.Join(chunks, " "), " ")
			return strings.Join(strings.Fields(text), " ")
		case html.StartTagToken:
			if invisible(z) {
				skip++
			}
		case html.EndTagToken:
			if invisible(z) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				chunks = append(chunks, string(z.Text()))
			}
		}
	}
}

func invisible(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	switch atom.Lookup(name) {
	case atom.Script, atom.Style:
		return true
	}
	return false
}
