package dsl

import "strings"

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokLParen
	tokRParen
	tokComma
	tokArrow
	tokIdent
)

type token struct {
	kind tokenKind
	text string
}

// lex tokenizes an already-sanitized expression string. Identifiers are
// `[A-Za-z_][A-Za-z0-9_]*`; everything else is punctuation or whitespace.
func lex(s string) ([]token, error) {
	var toks []token
	i := 0
	n := len(s)
	for i < n {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == ',':
			toks = append(toks, token{tokComma, ","})
			i++
		case c == '-' && i+1 < n && s[i+1] == '>':
			toks = append(toks, token{tokArrow, "->"})
			i += 2
		case isIdentStart(c):
			j := i + 1
			for j < n && isIdentCont(s[j]) {
				j++
			}
			toks = append(toks, token{tokIdent, s[i:j]})
			i = j
		default:
			return nil, parseErrorf("unexpected character %q at offset %d", string(c), i)
		}
	}
	toks = append(toks, token{tokEOF, ""})
	return toks, nil
}

func isIdentStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isIdentCont(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

var reservedKeywords = map[string]bool{
	"and": true, "or": true, "not": true, "implies": true,
	"true": true, "false": true, "forall": true, "exists": true,
}

func isReserved(s string) bool {
	return reservedKeywords[strings.ToLower(s)]
}
