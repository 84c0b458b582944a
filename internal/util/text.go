package util

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	htmlTagPattern   = regexp.MustCompile(`<[^>]*>`)
	mdLinkPattern    = regexp.MustCompile(`!?\[([^\]]*)\]\([^)]*\)`)
	mdSymbolsPattern = regexp.MustCompile("[#*_`>~|]+")
)

// Slugify lowercases input and keeps a-z, 0-9 and single hyphens, capped at 80
// characters.
func Slugify(input string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(input) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > 80 {
		slug = strings.TrimRight(slug[:80], "-")
	}
	return slug
}

// StripMarkup removes HTML tags and markdown decoration and collapses whitespace.
func StripMarkup(input string) string {
	out := htmlTagPattern.ReplaceAllString(input, " ")
	out = mdLinkPattern.ReplaceAllString(out, "$1")
	out = mdSymbolsPattern.ReplaceAllString(out, " ")
	return strings.Join(strings.Fields(out), " ")
}

func WordCount(input string) int {
	return len(strings.Fields(StripMarkup(input)))
}

// ReadingTime assumes 200 words per minute and never returns less than one.
func ReadingTime(words int) int {
	minutes := (words + 199) / 200
	if minutes < 1 {
		return 1
	}
	return minutes
}

// TruncateWords cuts input to at most max runes on a word boundary. When the
// input is cut, suffix is appended and counted against max.
func TruncateWords(input string, max int, suffix string) string {
	input = strings.TrimSpace(input)
	if utf8.RuneCountInString(input) <= max {
		return input
	}
	limit := max - utf8.RuneCountInString(suffix)
	if limit <= 0 {
		return string([]rune(suffix)[:max])
	}
	runes := []rune(input)
	cut := limit
	for cut > 0 && !unicode.IsSpace(runes[cut]) {
		cut--
	}
	if cut == 0 {
		cut = limit
	}
	trimmed := strings.TrimRightFunc(string(runes[:cut]), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	return trimmed + suffix
}

// FirstWords returns the first n whitespace separated words.
func FirstWords(input string, n int) string {
	fields := strings.Fields(input)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}
