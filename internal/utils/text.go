package utils

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// blockBreaks maps block-level elements to the text emitted when they close
var blockBreaks = map[string]string{
	"p":          "\n\n",
	"div":        "\n",
	"li":         "\n",
	"tr":         "\n",
	"h1":         "\n\n",
	"h2":         "\n\n",
	"h3":         "\n\n",
	"h4":         "\n",
	"h5":         "\n",
	"h6":         "\n",
	"blockquote": "\n",
	"ul":         "\n",
	"ol":         "\n",
	"table":      "\n",
}

// CleanHTML converts an HTML message body into plain text
func CleanHTML(body string) string {
	z := html.NewTokenizer(strings.NewReader(body))

	var b strings.Builder
	skipDepth := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}

		switch tt {
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch tag := string(name); {
			case tag == "br":
				b.WriteString("\n")
			case (tag == "script" || tag == "style") && tt == html.StartTagToken:
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				if skipDepth > 0 {
					skipDepth--
				}
				continue
			}
			if br, ok := blockBreaks[tag]; ok {
				b.WriteString(br)
			}
		}
	}

	text := strings.ReplaceAll(b.String(), "\u00a0", " ")
	text = strings.TrimSpace(text)
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}

	return text
}

// Fold returns the Unicode case-folded form of s for caseless comparison.
// Casers are stateful, so each call builds its own.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// ContainsFold reports whether substr is within s, ignoring case
func ContainsFold(s, substr string) bool {
	return strings.Contains(Fold(s), Fold(substr))
}

// TitleCase capitalizes each word of s
func TitleCase(s string) string {
	return cases.Title(language.English).String(s)
}

// TruncateRunes limits s to at most max runes
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
