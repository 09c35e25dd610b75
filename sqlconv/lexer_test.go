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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLex(t *testing.T) {
	tests := []struct {
		input string
		want  []token
	}{
		{
			input: `INSERT INTO t (tags."a b", x) VALUES ('it''s', -1.5e3, ?)`,
			want: []token{
				{typ: tokenInsert, val: "INSERT", pos: 0},
				{typ: tokenInto, val: "INTO", pos: 7},
				{typ: tokenIdentifier, val: "t", pos: 12},
				{typ: tokenLeftParen, val: "(", pos: 14},
				{typ: tokenIdentifier, val: "tags.a b", pos: 15},
				{typ: tokenComma, val: ",", pos: 25},
				{typ: tokenIdentifier, val: "x", pos: 27},
				{typ: tokenRightParen, val: ")", pos: 28},
				{typ: tokenValues, val: "VALUES", pos: 30},
				{typ: tokenLeftParen, val: "(", pos: 37},
				{typ: tokenString, val: "it's", pos: 38},
				{typ: tokenComma, val: ",", pos: 45},
				{typ: tokenMinus, val: "-", pos: 47},
				{typ: tokenNumber, val: "1.5e3", pos: 48},
				{typ: tokenComma, val: ",", pos: 53},
				{typ: tokenPlaceholder, val: "?", pos: 55},
				{typ: tokenRightParen, val: ")", pos: 56},
				{typ: tokenEOF, val: "", pos: 57},
			},
		},
		{
			input: "a <> 'x\\'y' -- tail",
			want: []token{
				{typ: tokenIdentifier, val: "a", pos: 0},
				{typ: tokenOperator, val: "<>", pos: 2},
				{typ: tokenString, val: "x'y", pos: 5},
				{typ: tokenEOF, val: "", pos: 20},
			},
		},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, lex(tt.input), tt.input)
	}
}

func TestLexErrors(t *testing.T) {
	for input, msg := range map[string]string{
		"(a":        "unclosed left paren",
		"a)":        "unexpected right paren",
		"'abc":      "unterminated quoted string",
		`"abc`:      "unterminated quoted identifier",
		"/* abc":    "unclosed comment",
		"12abc":     "bad number syntax: 12a",
		"1e+":       "bad number syntax: 1e+",
		"a # b":     "unrecognized character #",
		"tags.\"ab": "unterminated quoted identifier",
	} {
		tokens := lex(input)
		last := tokens[len(tokens)-1]
		require.Equal(t, tokenError, last.typ, input)
		require.Equal(t, msg, last.val, input)
	}
}
