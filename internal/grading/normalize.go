package grading

import (
	"regexp"
	"strings"
)

// Grading compares source text, not programs. Normalize canonicalizes both
// sides far enough that formatting, comments, statement terminators and quote
// style cannot cause a mismatch; anything beyond that (AST-level equivalence)
// is out of scope.
var (
	blockComments = regexp.MustCompile(`/\*[\s\S]*?\*/`)
	lineComments  = regexp.MustCompile(`//[^\n]*`)
	hashComments  = regexp.MustCompile(`#[^\n]*`)
	whitespace    = regexp.MustCompile(`\s+`)
)

// Normalize canonicalizes source text prior to equality comparison:
// block comments and both line-comment dialects are stripped, all whitespace
// removed, semicolons dropped and double quotes unified to single quotes.
// Normalize is idempotent.
func Normalize(src string) string {
	out := blockComments.ReplaceAllString(src, "")
	out = lineComments.ReplaceAllString(out, "")
	out = hashComments.ReplaceAllString(out, "")
	out = whitespace.ReplaceAllString(out, "")
	out = strings.ReplaceAll(out, ";", "")
	out = strings.ReplaceAll(out, `"`, `'`)
	return strings.TrimSpace(out)
}

// equivalent reports whether two sources normalize to the same non-empty text.
func equivalent(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	return na == nb
}
