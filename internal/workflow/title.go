package workflow

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	defaultTitle  = "Untitled Song"
	titleMaxWords = 8
	titleMaxRunes = 60
)

// Extract Unicode letters with optional trailing numbers (e.g., "lofi2025").
var titleWordRE = regexp.MustCompile(`[\p{L}]+[\p{N}]*`)

// titleStopWords are filler words dropped when deriving a title from a prompt.
var titleStopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "about": {}, "with": {}, "and": {},
	"or": {}, "of": {}, "for": {}, "in": {}, "on": {}, "to": {},
	"song": {}, "make": {}, "write": {}, "generate": {},
}

// DeriveTitle turns free-form prompt text into a concise display title:
// stop words are dropped, the first few meaningful words are title-cased,
// and the result is clipped to a sane rune length. Empty or all-filler
// input yields "Untitled Song".
func DeriveTitle(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return defaultTitle
	}
	toks := titleWordRE.FindAllString(strings.ToLower(prompt), -1)
	if len(toks) == 0 {
		return defaultTitle
	}

	titleCaser := cases.Title(language.English)
	out := make([]string, 0, titleMaxWords)
	for _, w := range toks {
		if _, skip := titleStopWords[w]; skip {
			continue
		}
		out = append(out, titleCaser.String(w))
		if len(out) >= titleMaxWords {
			break
		}
	}
	if len(out) == 0 {
		return defaultTitle
	}

	title := strings.Join(out, " ")
	if utf8.RuneCountInString(title) > titleMaxRunes {
		title = string([]rune(title)[:titleMaxRunes])
	}
	return title
}
