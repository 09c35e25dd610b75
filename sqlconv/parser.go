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
	"fmt"
	"strconv"
	"strings"
)

type statementKind int

const (
	insertStatement statementKind = iota + 1
	updateStatement
)

func (k statementKind) String() string {
	if k == updateStatement {
		return "UPDATE"
	}
	return "INSERT"
}

type exprKind int

const (
	exprNull exprKind = iota
	exprNumber
	exprString
	exprBool
	exprPlaceholder
)

// expr is a literal or a placeholder in a value position.
type expr struct {
	kind exprKind
	// text is the literal as written; for numbers it includes the sign.
	text string
	num  float64
	bool bool
	// index is the ordinal of a placeholder, counted from zero in textual order.
	index int
	pos   int
}

// statement is a parsed INSERT or UPDATE. For UPDATE the SET assignments
// and WHERE equalities are flattened into columns and a single row.
type statement struct {
	kind    statementKind
	table   string
	columns []string
	rows    [][]expr
	// params is the number of placeholders.
	params int
}

type parser struct {
	tokens []token
	pos    int
	params int
}

func parse(sql string) (*statement, error) {
	tokens := lex(sql)
	if last := tokens[len(tokens)-1]; last.typ == tokenError {
		return nil, syntaxErrorf(last.pos, "%s", last.val)
	}
	p := &parser{tokens: normalize(tokens)}
	return p.parseStatement()
}

// normalize re-types keyword tokens found in column positions as
// identifiers, so that columns named like keywords need no quoting.
func normalize(tokens []token) []token {
	inColumns := false
	for i := range tokens {
		t := &tokens[i]
		switch {
		case i >= 2 && tokens[0].typ == tokenInsert && t.typ == tokenLeftParen && tokens[i-2].typ == tokenInto:
			inColumns = true
		case inColumns && t.typ == tokenRightParen:
			inColumns = false
		case isKeyword(t.typ) && t.typ != tokenNull && t.typ != tokenTrue && t.typ != tokenFalse &&
			i+1 < len(tokens) && tokens[i+1].typ == tokenEquals && i > 0 && tokens[i-1].typ != tokenEquals:
			t.typ = tokenIdentifier
		case inColumns && isKeyword(t.typ):
			t.typ = tokenIdentifier
		}
	}
	return tokens
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.typ != tokenEOF {
		p.pos++
	}
	return t
}

func (p *parser) accept(typ tokenType) bool {
	if p.peek().typ == typ {
		p.next()
		return true
	}
	return false
}

func (p *parser) expect(typ tokenType, what string) (token, error) {
	t := p.next()
	if t.typ != typ {
		return t, p.unexpected(t, what)
	}
	return t, nil
}

func (p *parser) unexpected(t token, what string) error {
	if t.typ == tokenEOF {
		return syntaxErrorf(t.pos, "expected %s, got end of statement", what)
	}
	return syntaxErrorf(t.pos, "expected %s, got %q", what, t.val)
}

func (p *parser) parseStatement() (*statement, error) {
	var (
		st  *statement
		err error
	)
	switch t := p.next(); t.typ {
	case tokenInsert:
		st, err = p.parseInsert()
	case tokenUpdate:
		st, err = p.parseUpdate()
	case tokenEOF:
		return nil, syntaxErrorf(t.pos, "empty statement")
	default:
		return nil, &Error{Pos: t.pos, Msg: fmt.Sprintf("statement starts with %q", t.val), Err: ErrUnsupportedStatement}
	}
	if err != nil {
		return nil, err
	}
	p.accept(tokenSemicolon)
	if t := p.peek(); t.typ != tokenEOF {
		return nil, p.unexpected(t, "end of statement")
	}
	st.params = p.params
	return st, nil
}

func (p *parser) parseName(what string) (string, error) {
	t := p.next()
	if t.typ != tokenIdentifier && t.typ != tokenQuotedIdentifier {
		return "", p.unexpected(t, what)
	}
	return t.val, nil
}

// parseInsert parses
//
//	INTO table (col, ...) VALUES (expr, ...) [, (expr, ...)]...
func (p *parser) parseInsert() (*statement, error) {
	if _, err := p.expect(tokenInto, "INTO"); err != nil {
		return nil, err
	}
	table, err := p.parseName("table name")
	if err != nil {
		return nil, err
	}
	st := &statement{kind: insertStatement, table: table}
	if _, err := p.expect(tokenLeftParen, "column list"); err != nil {
		return nil, err
	}
	for {
		col, err := p.parseName("column name")
		if err != nil {
			return nil, err
		}
		st.columns = append(st.columns, col)
		if !p.accept(tokenComma) {
			break
		}
	}
	if _, err := p.expect(tokenRightParen, "',' or ')'"); err != nil {
		return nil, err
	}
	if _, err := p.expect(tokenValues, "VALUES"); err != nil {
		return nil, err
	}
	for {
		open, err := p.expect(tokenLeftParen, "'('")
		if err != nil {
			return nil, err
		}
		var row []expr
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			row = append(row, e)
			if !p.accept(tokenComma) {
				break
			}
		}
		if _, err := p.expect(tokenRightParen, "',' or ')'"); err != nil {
			return nil, err
		}
		if len(row) != len(st.columns) {
			return nil, &Error{
				Pos: open.pos,
				Msg: fmt.Sprintf("%d columns, %d values", len(st.columns), len(row)),
				Err: ErrValueCount,
			}
		}
		st.rows = append(st.rows, row)
		if !p.accept(tokenComma) {
			break
		}
	}
	return st, nil
}

// parseUpdate parses
//
//	table SET col = expr [, col = expr]... [WHERE col = expr [AND col = expr]...]
func (p *parser) parseUpdate() (*statement, error) {
	table, err := p.parseName("table name")
	if err != nil {
		return nil, err
	}
	st := &statement{kind: updateStatement, table: table}
	var row []expr
	if _, err := p.expect(tokenSet, "SET"); err != nil {
		return nil, err
	}
	for {
		col, e, err := p.parseAssignment()
		if err != nil {
			return nil, err
		}
		st.columns = append(st.columns, col)
		row = append(row, e)
		if !p.accept(tokenComma) {
			break
		}
	}
	if p.accept(tokenWhere) {
		for {
			if t := p.peek(); t.typ == tokenLeftParen || t.typ == tokenNot {
				return nil, &Error{Pos: t.pos, Msg: fmt.Sprintf("unexpected %q", t.val), Err: ErrUnsupportedWhere}
			}
			col, e, err := p.parseAssignment()
			if err != nil {
				return nil, err
			}
			st.columns = append(st.columns, col)
			row = append(row, e)
			if t := p.peek(); t.typ == tokenOr {
				return nil, &Error{Pos: t.pos, Msg: "OR is not supported", Err: ErrUnsupportedWhere}
			}
			if !p.accept(tokenAnd) {
				break
			}
		}
	}
	st.rows = [][]expr{row}
	return st, nil
}

func (p *parser) parseAssignment() (string, expr, error) {
	col, err := p.parseName("column name")
	if err != nil {
		return "", expr{}, err
	}
	t := p.next()
	switch {
	case t.typ == tokenEquals:
	case t.typ == tokenOperator || t.typ == tokenIn || t.typ == tokenLike || t.typ == tokenBetween || t.typ == tokenIs:
		return "", expr{}, &Error{Pos: t.pos, Msg: fmt.Sprintf("operator %q", t.val), Err: ErrUnsupportedWhere}
	default:
		return "", expr{}, p.unexpected(t, "'='")
	}
	e, err := p.parseExpr()
	return col, e, err
}

func (p *parser) parseExpr() (expr, error) {
	t := p.next()
	switch t.typ {
	case tokenNull:
		return expr{kind: exprNull, text: t.val, pos: t.pos}, nil
	case tokenTrue, tokenFalse:
		return expr{kind: exprBool, text: t.val, bool: t.typ == tokenTrue, pos: t.pos}, nil
	case tokenString:
		return expr{kind: exprString, text: t.val, pos: t.pos}, nil
	case tokenPlaceholder:
		e := expr{kind: exprPlaceholder, text: t.val, index: p.params, pos: t.pos}
		p.params++
		return e, nil
	case tokenPlus, tokenMinus:
		n, err := p.expect(tokenNumber, "number")
		if err != nil {
			return expr{}, err
		}
		text := n.val
		if t.typ == tokenMinus {
			text = "-" + text
		}
		return p.number(text, t.pos)
	case tokenNumber:
		return p.number(t.val, t.pos)
	default:
		return expr{}, p.unexpected(t, "value")
	}
}

func (p *parser) number(text string, pos int) (expr, error) {
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return expr{}, syntaxErrorf(pos, "bad number %q", text)
	}
	return expr{kind: exprNumber, text: strings.TrimPrefix(text, "+"), num: f, pos: pos}, nil
}
