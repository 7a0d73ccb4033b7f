package relay

import (
	"strings"
	"unicode/utf8"
)

const inlinePreviewRunes = 50

type InlineResult struct {
	Code     string
	Title    string
	Preview  string
	FullText string
}

// OnInlineSearch resolves an inline query to at most one article.
func (s *Service) OnInlineSearch(code string) (InlineResult, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return InlineResult{}, false
	}
	text, ok := s.reg.Get(code)
	s.m.lookup(ok)
	if !ok {
		return InlineResult{}, false
	}
	return InlineResult{
		Code:     code,
		Title:    "Code " + code,
		Preview:  preview(text, inlinePreviewRunes),
		FullText: text,
	}, true
}

// preview keeps the first n runes and appends "..." when text was cut.
func preview(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	r := []rune(text)
	return string(r[:n]) + "..."
}
