package dsl

import (
	"regexp"
	"strings"
)

var unicodeOps = strings.NewReplacer(
	"∧", " and ",
	"∨", " or ",
	"¬", " not ",
	"→", " -> ",
	"⇒", " -> ",
)

// comparisonPattern matches a trailing boolean-irrelevant comparison such as
// "DurataPossesso(s,b) >= 20" or "x = y" and captures everything up to (but
// not including) the comparison operator.
var comparisonPattern = regexp.MustCompile(`^(.*?\S)\s*(<=|>=|≤|≥|=|<|>)\s*\S.*$`)

var whitespacePattern = regexp.MustCompile(`\s+`)

// Sanitize normalizes Unicode logical operators to ASCII, strips trailing
// numeric/string comparisons (the DSL is boolean, not quantitative), and
// collapses whitespace. It operates on raw expression text before parsing.
func Sanitize(raw string) string {
	s := unicodeOps.Replace(raw)
	s = desugarComparisons(s)
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// desugarComparisons strips a single trailing comparison clause, keeping
// only the left-hand boolean/predicate expression. It does not recurse into
// parenthesized sub-expressions; comparisons are expected at the top level
// of a single atom, matching the source material's regex-based approach.
func desugarComparisons(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return s
	}
	// Never touch arrows or keyword-separated compound expressions; only
	// strip a comparison when it trails a single balanced-paren atom.
	if strings.Contains(trimmed, "->") {
		return s
	}
	if m := comparisonPattern.FindStringSubmatch(trimmed); m != nil {
		lhs := strings.TrimSpace(m[1])
		if balancedParens(lhs) {
			return lhs
		}
	}
	return s
}

func balancedParens(s string) bool {
	depth := 0
	for _, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		}
		if depth < 0 {
			return false
		}
	}
	return depth == 0
}
