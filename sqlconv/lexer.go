/*
 * Copyright 2024 Axibase Corporation
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package sqlconv

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenType int

const (
	tokenError tokenType = iota
	tokenEOF
	tokenIdentifier
	tokenQuotedIdentifier
	tokenString
	tokenNumber
	tokenPlaceholder
	tokenComma
	tokenLeftParen
	tokenRightParen
	tokenEquals
	tokenOperator
	tokenPlus
	tokenMinus
	tokenSemicolon
	tokenComment

	// keywordStart is the lower bound of keyword tokens and must not be assigned.
	keywordStart
	tokenInsert
	tokenInto
	tokenValues
	tokenUpdate
	tokenSet
	tokenWhere
	tokenAnd
	tokenOr
	tokenNot
	tokenNull
	tokenTrue
	tokenFalse
	tokenSelect
	tokenDelete
	tokenFrom
	tokenIn
	tokenLike
	tokenBetween
	tokenIs
	// keywordEnd is the upper bound of keyword tokens and must not be assigned.
	keywordEnd
)

var keywords = map[string]tokenType{
	"insert":  tokenInsert,
	"into":    tokenInto,
	"values":  tokenValues,
	"update":  tokenUpdate,
	"set":     tokenSet,
	"where":   tokenWhere,
	"and":     tokenAnd,
	"or":      tokenOr,
	"not":     tokenNot,
	"null":    tokenNull,
	"true":    tokenTrue,
	"false":   tokenFalse,
	"select":  tokenSelect,
	"delete":  tokenDelete,
	"from":    tokenFrom,
	"in":      tokenIn,
	"like":    tokenLike,
	"between": tokenBetween,
	"is":      tokenIs,
}

func isKeyword(t tokenType) bool {
	return t > keywordStart && t < keywordEnd
}

type token struct {
	typ tokenType
	// val is the token text; quotes are removed from strings and quoted identifiers.
	val string
	pos int
}

const eof = -1

// lexer holds the state of the scanner.
type lexer struct {
	input  string
	start  int
	pos    int
	width  int
	depth  int
	tokens []token
}

type stateFn func(*lexer) stateFn

// lex splits the input into tokens. The last token is always tokenEOF or
// tokenError. Comments are dropped.
func lex(input string) []token {
	l := &lexer{input: input}
	for state := lexText; state != nil; {
		state = state(l)
	}
	out := l.tokens[:0]
	for _, t := range l.tokens {
		if t.typ != tokenComment {
			out = append(out, t)
		}
	}
	return out
}

func (l *lexer) next() rune {
	if l.pos >= len(l.input) {
		l.width = 0
		return eof
	}
	r, w := utf8.DecodeRuneInString(l.input[l.pos:])
	l.width = w
	l.pos += w
	return r
}

func (l *lexer) backup() {
	l.pos -= l.width
}

func (l *lexer) peek() rune {
	r := l.next()
	l.backup()
	return r
}

func (l *lexer) ignore() {
	l.start = l.pos
}

func (l *lexer) emit(t tokenType) {
	l.emitValue(t, l.input[l.start:l.pos])
}

func (l *lexer) emitValue(t tokenType, val string) {
	l.tokens = append(l.tokens, token{typ: t, val: val, pos: l.start})
	l.start = l.pos
}

func (l *lexer) errorf(msg string) stateFn {
	l.tokens = append(l.tokens, token{typ: tokenError, val: msg, pos: l.start})
	return nil
}

// lexText scans for the next lexable element.
func lexText(l *lexer) stateFn {
	switch r := l.next(); {
	case r == eof:
		if l.depth > 0 {
			return l.errorf("unclosed left paren")
		}
		l.emit(tokenEOF)
		return nil
	case unicode.IsSpace(r):
		l.ignore()
	case r == ',':
		l.emit(tokenComma)
	case r == '(':
		l.depth++
		l.emit(tokenLeftParen)
	case r == ')':
		l.depth--
		if l.depth < 0 {
			return l.errorf("unexpected right paren")
		}
		l.emit(tokenRightParen)
	case r == '=':
		l.emit(tokenEquals)
	case r == '?':
		l.emit(tokenPlaceholder)
	case r == ';':
		l.emit(tokenSemicolon)
	case r == '+':
		l.emit(tokenPlus)
	case r == '-':
		if l.peek() == '-' {
			return lexLineComment
		}
		l.emit(tokenMinus)
	case r == '/':
		if l.peek() == '*' {
			return lexBlockComment
		}
		l.emit(tokenOperator)
	case r == '*', r == '%':
		l.emit(tokenOperator)
	case r == '<', r == '>', r == '!':
		if p := l.peek(); p == '=' || (r == '<' && p == '>') {
			l.next()
		}
		l.emit(tokenOperator)
	case r == '\'':
		return lexString
	case r == '"', r == '`':
		return lexQuotedIdentifier(r)
	case r == '.' && isDigit(l.peek()), isDigit(r):
		l.backup()
		return lexNumber
	case r == '_' || unicode.IsLetter(r):
		l.backup()
		return lexIdentifier
	default:
		return l.errorf("unrecognized character " + string(r))
	}
	return lexText
}

func lexLineComment(l *lexer) stateFn {
	i := strings.IndexByte(l.input[l.pos:], '\n')
	if i < 0 {
		l.pos = len(l.input)
	} else {
		l.pos += i
	}
	l.emit(tokenComment)
	return lexText
}

func lexBlockComment(l *lexer) stateFn {
	i := strings.Index(l.input[l.pos+1:], "*/")
	if i < 0 {
		return l.errorf("unclosed comment")
	}
	l.pos += i + 3
	l.emit(tokenComment)
	return lexText
}

// lexString scans a single-quoted string. A quote is escaped by doubling it
// or by a preceding backslash.
func lexString(l *lexer) stateFn {
	var b strings.Builder
	for {
		switch r := l.next(); r {
		case eof:
			return l.errorf("unterminated quoted string")
		case '\\':
			if l.peek() == '\'' {
				l.next()
				b.WriteRune('\'')
			} else {
				b.WriteRune(r)
			}
		case '\'':
			if l.peek() != '\'' {
				l.emitValue(tokenString, b.String())
				return lexText
			}
			l.next()
			b.WriteRune('\'')
		default:
			b.WriteRune(r)
		}
	}
}

// lexQuotedIdentifier scans an identifier enclosed in double quotes or
// backticks; the closing character is escaped by doubling it.
func lexQuotedIdentifier(quote rune) stateFn {
	return func(l *lexer) stateFn {
		s, ok := l.scanQuoted(quote)
		if !ok {
			return l.errorf("unterminated quoted identifier")
		}
		l.emitValue(tokenQuotedIdentifier, s)
		return lexText
	}
}

// scanQuoted reads up to the closing quote; the opening quote is already consumed.
func (l *lexer) scanQuoted(quote rune) (string, bool) {
	var b strings.Builder
	for {
		switch r := l.next(); r {
		case eof:
			return "", false
		case quote:
			if l.peek() != quote {
				return b.String(), true
			}
			l.next()
			b.WriteRune(quote)
		default:
			b.WriteRune(r)
		}
	}
}

// lexIdentifier scans a dotted name such as tags.unit. A segment after a dot
// may be double-quoted, as in tags."unit name".
func lexIdentifier(l *lexer) stateFn {
	var b strings.Builder
	for {
		r := l.next()
		switch {
		case r == '_' || unicode.IsLetter(r) || isDigit(r):
			b.WriteRune(r)
		case r == '.':
			b.WriteRune(r)
			if q := l.peek(); q == '"' || q == '`' {
				l.next()
				s, ok := l.scanQuoted(q)
				if !ok {
					return l.errorf("unterminated quoted identifier")
				}
				b.WriteString(s)
			}
		default:
			if r != eof {
				l.backup()
			}
			word := b.String()
			if t, ok := keywords[strings.ToLower(word)]; ok {
				l.emitValue(t, word)
			} else {
				l.emitValue(tokenIdentifier, word)
			}
			return lexText
		}
	}
}

// lexNumber scans a decimal number with an optional fraction and exponent.
// Signs are separate tokens.
func lexNumber(l *lexer) stateFn {
	digits := func() int {
		n := 0
		for isDigit(l.peek()) {
			l.next()
			n++
		}
		return n
	}
	n := digits()
	if l.peek() == '.' {
		l.next()
		n += digits()
	}
	if n == 0 {
		return l.errorf("bad number syntax")
	}
	if p := l.peek(); p == 'e' || p == 'E' {
		l.next()
		if p := l.peek(); p == '+' || p == '-' {
			l.next()
		}
		if digits() == 0 {
			return l.errorf("bad number syntax: " + l.input[l.start:l.pos])
		}
	}
	if p := l.peek(); p == '_' || unicode.IsLetter(p) {
		return l.errorf("bad number syntax: " + l.input[l.start:l.pos+1])
	}
	l.emit(tokenNumber)
	return lexText
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
