package rulescript

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokAssign   // =
	tokOp       // == != < <= > >= + - * / % && || !
	tokLParen   // (
	tokRParen   // )
	tokLBrace   // {
	tokRBrace   // }
	tokComma    // ,
	tokDot      // .
	tokIf       // if
	tokElse     // else
	tokTrue     // true
	tokFalse    // false
)

type token struct {
	kind tokenKind
	text string
	line int
}

type lexer struct {
	src  string
	pos  int
	line int
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1}
}

// tokenize scans the whole source up front so the parser can peek freely.
func (l *lexer) tokenize() ([]token, error) {
	var toks []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.kind == tokEOF {
			return toks, nil
		}
	}
}

func (l *lexer) next() (token, error) {
	l.skipSpaceAndComments()
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, line: l.line}, nil
	}

	c := l.src[l.pos]
	switch {
	case isIdentStart(rune(c)):
		start := l.pos
		for l.pos < len(l.src) && isIdentPart(rune(l.src[l.pos])) {
			l.pos++
		}
		word := l.src[start:l.pos]
		switch word {
		case "if":
			return token{kind: tokIf, text: word, line: l.line}, nil
		case "else":
			return token{kind: tokElse, text: word, line: l.line}, nil
		case "true":
			return token{kind: tokTrue, text: word, line: l.line}, nil
		case "false":
			return token{kind: tokFalse, text: word, line: l.line}, nil
		}
		return token{kind: tokIdent, text: word, line: l.line}, nil

	case c >= '0' && c <= '9':
		start := l.pos
		seenDot := false
		for l.pos < len(l.src) {
			ch := l.src[l.pos]
			if ch == '.' && !seenDot && l.pos+1 < len(l.src) && l.src[l.pos+1] >= '0' && l.src[l.pos+1] <= '9' {
				seenDot = true
				l.pos++
				continue
			}
			if ch < '0' || ch > '9' {
				break
			}
			l.pos++
		}
		return token{kind: tokNumber, text: l.src[start:l.pos], line: l.line}, nil

	case c == '"' || c == '\'':
		quote := c
		l.pos++
		var sb strings.Builder
		for l.pos < len(l.src) && l.src[l.pos] != quote {
			ch := l.src[l.pos]
			if ch == '\n' {
				return token{}, fmt.Errorf("line %d: unterminated string", l.line)
			}
			if ch == '\\' && l.pos+1 < len(l.src) {
				l.pos++
				switch l.src[l.pos] {
				case 'n':
					sb.WriteByte('\n')
				case 't':
					sb.WriteByte('\t')
				case '\\', '"', '\'':
					sb.WriteByte(l.src[l.pos])
				default:
					return token{}, fmt.Errorf("line %d: unknown escape \\%c", l.line, l.src[l.pos])
				}
				l.pos++
				continue
			}
			sb.WriteByte(ch)
			l.pos++
		}
		if l.pos >= len(l.src) {
			return token{}, fmt.Errorf("line %d: unterminated string", l.line)
		}
		l.pos++ // closing quote
		return token{kind: tokString, text: sb.String(), line: l.line}, nil
	}

	two := ""
	if l.pos+1 < len(l.src) {
		two = l.src[l.pos : l.pos+2]
	}
	switch two {
	case "==", "!=", "<=", ">=", "&&", "||":
		l.pos += 2
		return token{kind: tokOp, text: two, line: l.line}, nil
	}

	l.pos++
	switch c {
	case '=':
		return token{kind: tokAssign, text: "=", line: l.line}, nil
	case '<', '>', '+', '-', '*', '/', '%', '!':
		return token{kind: tokOp, text: string(c), line: l.line}, nil
	case '(':
		return token{kind: tokLParen, text: "(", line: l.line}, nil
	case ')':
		return token{kind: tokRParen, text: ")", line: l.line}, nil
	case '{':
		return token{kind: tokLBrace, text: "{", line: l.line}, nil
	case '}':
		return token{kind: tokRBrace, text: "}", line: l.line}, nil
	case ',':
		return token{kind: tokComma, text: ",", line: l.line}, nil
	case '.':
		return token{kind: tokDot, text: ".", line: l.line}, nil
	}
	return token{}, fmt.Errorf("line %d: unexpected character %q", l.line, c)
}

func (l *lexer) skipSpaceAndComments() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == '\n' {
			l.line++
			l.pos++
			continue
		}
		if c == ' ' || c == '\t' || c == '\r' {
			l.pos++
			continue
		}
		if c == '#' {
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
			continue
		}
		return
	}
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isIdentPart(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
