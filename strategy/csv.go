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

package strategy

import (
	"bufio"
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// ErrUnterminatedQuote indicates a quoted field that runs to the end of input.
var ErrUnterminatedQuote = errors.New("unterminated quoted field")

// Reader reads comma-separated records. Unlike encoding/csv it reports
// which fields were quoted and how many bytes each record occupied.
// Fields are separated by commas, records by LF or CRLF. Blank lines are
// skipped. A quote inside an unquoted field is kept literally.
type Reader struct {
	r      *bufio.Reader
	offset int64
	field  bytes.Buffer
}

// NewReader returns a Reader reading from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Offset returns the number of bytes consumed so far, i.e. the offset of
// the next record relative to the start of the input.
func (r *Reader) Offset() int64 {
	return r.offset
}

func (r *Reader) readByte() (byte, error) {
	c, err := r.r.ReadByte()
	if err == nil {
		r.offset++
	}
	return c, err
}

func (r *Reader) peekByte() (byte, bool) {
	b, err := r.r.Peek(1)
	if err != nil {
		return 0, false
	}
	return b[0], true
}

// Read returns the next record and the quoting of each field. It returns
// io.EOF when no records remain.
func (r *Reader) Read() (fields []string, quoted []bool, err error) {
	for {
		fields, quoted, err = r.readRecord()
		if err != nil || fields != nil {
			return fields, quoted, err
		}
	}
}

// Skip discards n records.
func (r *Reader) Skip(n int64) error {
	for ; n > 0; n-- {
		if _, _, err := r.Read(); err != nil {
			return err
		}
	}
	return nil
}

// readRecord returns nil fields and nil error for a blank line.
func (r *Reader) readRecord() ([]string, []bool, error) {
	var (
		fields   []string
		quoted   []bool
		inQuotes bool
		isQuoted bool
		empty    = true
	)
	r.field.Reset()
	push := func() {
		fields = append(fields, r.field.String())
		quoted = append(quoted, isQuoted)
		r.field.Reset()
		isQuoted = false
	}
	for {
		c, err := r.readByte()
		if err == io.EOF {
			if inQuotes {
				return nil, nil, ErrUnterminatedQuote
			}
			if empty {
				return nil, nil, io.EOF
			}
			push()
			return fields, quoted, nil
		}
		if err != nil {
			return nil, nil, errors.Wrap(err, "read csv")
		}
		if inQuotes {
			if c == '"' {
				if next, ok := r.peekByte(); ok && next == '"' {
					_, _ = r.readByte()
					r.field.WriteByte('"')
				} else {
					inQuotes = false
				}
				continue
			}
			r.field.WriteByte(c)
			continue
		}
		switch c {
		case '"':
			empty = false
			if r.field.Len() == 0 && !isQuoted {
				inQuotes, isQuoted = true, true
			} else {
				r.field.WriteByte(c)
			}
		case ',':
			empty = false
			push()
		case '\r':
			if next, ok := r.peekByte(); ok && next == '\n' {
				continue
			}
			empty = false
			r.field.WriteByte(c)
		case '\n':
			if empty {
				return nil, nil, nil
			}
			push()
			return fields, quoted, nil
		default:
			empty = false
			r.field.WriteByte(c)
		}
	}
}
