// Package fingerprint derives the dedup key shared by postings that describe
// the same opening across sources.
//
//	fingerprint = normalize(company) + "_" + normalize(title)
//
// normalize lowercases, drops seniority qualifiers as whole words and strips
// every non-alphanumeric rune, so "Senior Backend Engineer" and
// "Backend Engineer" collapse to the same key.
package fingerprint

import (
	"strings"
	"unicode"

	"jobmate/match-service/internal/model"
)

var seniority = map[string]bool{
	"senior":    true,
	"junior":    true,
	"lead":      true,
	"staff":     true,
	"principal": true,
}

// Of returns the fingerprint of a posting.
func Of(p *model.Posting) string {
	return Key(p.Company, p.Title)
}

// Key returns the fingerprint for a (company, title) pair.
func Key(company, title string) string {
	return Normalize(company) + "_" + Normalize(title)
}

// Normalize lowercases s, removes seniority words and keeps only letters and
// digits.
func Normalize(s string) string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var b strings.Builder
	for _, w := range words {
		if seniority[w] {
			continue
		}
		b.WriteString(w)
	}
	return b.String()
}
