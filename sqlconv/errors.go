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

	"github.com/pkg/errors"
)

// ErrArgument is the root of all errors raised while converting a statement.
var ErrArgument = errors.New("invalid statement")

var (
	// ErrSyntax indicates a malformed statement.
	ErrSyntax = fmt.Errorf("%w: syntax error", ErrArgument)
	// ErrUnsupportedStatement indicates a statement other than INSERT or UPDATE.
	ErrUnsupportedStatement = fmt.Errorf("%w: only INSERT and UPDATE statements are supported", ErrArgument)
	// ErrUnsupportedWhere indicates a WHERE clause that is not a conjunction of equalities.
	ErrUnsupportedWhere = fmt.Errorf("%w: only '=' conditions joined by AND are supported in WHERE", ErrArgument)
	// ErrValueCount indicates that the number of values does not match the column list.
	ErrValueCount = fmt.Errorf("%w: number of values does not match number of columns", ErrArgument)
	// ErrMissingParameters indicates that placeholders have no bound values.
	ErrMissingParameters = fmt.Errorf("%w: parameter values are missing", ErrArgument)
	// ErrTooManyParameters indicates that more values were bound than there are placeholders.
	ErrTooManyParameters = fmt.Errorf("%w: too many parameter values", ErrArgument)
	// ErrInvalidValue indicates a value that cannot be used for its column.
	ErrInvalidValue = fmt.Errorf("%w: invalid value", ErrArgument)
)

// Error is a positioned syntax error.
type Error struct {
	// Pos is the byte offset in the statement.
	Pos int
	// Msg describes the problem.
	Msg string
	// Err is the sentinel the error belongs to, ErrSyntax when nil.
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at position %d: %s", e.cause().Error(), e.Pos, e.Msg)
}

// Unwrap exposes the sentinel error.
func (e *Error) Unwrap() error {
	return e.cause()
}

func (e *Error) cause() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrSyntax
}

func syntaxErrorf(pos int, format string, args ...any) *Error {
	return &Error{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}
