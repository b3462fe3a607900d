// Package scoreline tokenizes and matches the per-subject score lines that
// analysis runs emit, and formats reconciled values back into the same
// grammar:
//
//	<ordinal>. **<Label> <id> - Overall Score **<agg>/<max>** - Q1: Yes Q2: 3.25* ... - <justification>**
//
// Matching is tolerant: emphasis markers, the denominator and surrounding
// punctuation may drift, and the aggregate falls back through progressively
// looser forms.
package scoreline

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokWord tokenKind = iota
	tokNumber
	tokEmph  // "**"
	tokUnit  // "*" or "★"
	tokColon // ":"
	tokSlash // "/"
	tokDash  // a free-standing "-", "–" or "—"
	tokPunct // brackets and parentheses
)

// token is a lexeme with its byte span in the source line.
type token struct {
	kind       tokenKind
	text       string
	start, end int
}

// lex splits line into tokens. Whitespace separates fields; within a field
// the emphasis, unit, colon, slash and bracket characters are split out.
func lex(line string) []token {
	var toks []token
	i := 0
	for i < len(line) {
		r, size := utf8.DecodeRuneInString(line[i:])
		if unicode.IsSpace(r) {
			i += size
			continue
		}
		end := i
		for end < len(line) {
			r2, s2 := utf8.DecodeRuneInString(line[end:])
			if unicode.IsSpace(r2) {
				break
			}
			end += s2
		}
		toks = lexField(toks, line, i, end)
		i = end
	}
	return toks
}

func lexField(toks []token, line string, start, end int) []token {
	field := line[start:end]
	if isDash(field) {
		return append(toks, token{kind: tokDash, text: field, start: start, end: end})
	}
	i := start
	wordStart := -1
	flush := func(at int) {
		if wordStart < 0 {
			return
		}
		text := line[wordStart:at]
		kind := tokWord
		if isNumber(text) {
			kind = tokNumber
		}
		toks = append(toks, token{kind: kind, text: text, start: wordStart, end: at})
		wordStart = -1
	}
	for i < end {
		r, size := utf8.DecodeRuneInString(line[i:])
		var kind tokenKind
		width := size
		special := true
		switch {
		case r == '*' && i+1 < end && line[i+1] == '*':
			kind, width = tokEmph, 2
		case r == '*' || r == '★':
			kind = tokUnit
		case r == ':':
			kind = tokColon
		case r == '/':
			kind = tokSlash
		case r == '[' || r == ']' || r == '(' || r == ')':
			kind = tokPunct
		default:
			special = false
		}
		if !special {
			if wordStart < 0 {
				wordStart = i
			}
			i += size
			continue
		}
		flush(i)
		toks = append(toks, token{kind: kind, text: line[i : i+width], start: i, end: i + width})
		i += width
	}
	flush(end)
	return toks
}

func isDash(s string) bool {
	return s == "-" || s == "–" || s == "—"
}

// isNumber accepts unsigned decimals: digits with an optional fractional part.
func isNumber(s string) bool {
	dot := false
	digits := 0
	for j := 0; j < len(s); j++ {
		switch c := s[j]; {
		case c >= '0' && c <= '9':
			digits++
		case c == '.' && !dot && digits > 0 && j+1 < len(s):
			dot = true
		default:
			return false
		}
	}
	return digits > 0
}

// leadingOrdinal returns the "N" of a line starting with "N. " or "N) ".
// Leading spaces are ignored.
func leadingOrdinal(line string) (string, bool) {
	trimmed := strings.TrimLeft(line, " \t")
	b := []byte(trimmed)
	for j := 0; j < len(b); j++ {
		ch := b[j]
		if ch >= '0' && ch <= '9' {
			continue
		}
		if (ch == '.' || ch == ')') && j > 0 && j+1 < len(b) && b[j+1] == ' ' {
			return string(b[:j]), true
		}
		break
	}
	return "", false
}

// equalFold compares a token's text with want, ignoring case and trailing
// sentence punctuation.
func equalFold(tokText, want string) bool {
	return strings.EqualFold(strings.TrimRight(tokText, ".,;!"), want)
}
