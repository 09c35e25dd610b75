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

// Package strategy materializes query results and pages through them.
//
// A strategy receives the raw CSV body of a query response in Store, reads
// the header row in OpenToRead and then serves decoded rows in pages via
// Fetch. A page shorter than requested means the result is exhausted.
package strategy

import (
	"io"
	"os"
	"sort"
	"strings"

	"github.com/go-kit/log"
	"github.com/pkg/errors"

	"github.com/axibase/atsd-sdk/go/types"
)

// Built-in strategy names.
const (
	Memory = "memory"
	File   = "file"
	Stream = "stream"
)

var (
	// ErrUnknownStrategy is returned by New for an unregistered name.
	ErrUnknownStrategy = errors.New("unknown result strategy")
	// ErrNotStored indicates OpenToRead or Fetch before Store.
	ErrNotStored = errors.New("result is not stored")
	// ErrNotOpened indicates Fetch before OpenToRead.
	ErrNotOpened = errors.New("result is not opened")
	// ErrRewind indicates a fetch from an offset that was already consumed.
	ErrRewind = errors.New("strategy cannot re-read rows before the current offset")
	// ErrClosed indicates use after Close.
	ErrClosed = errors.New("strategy is closed")
)

// Strategy stores a result body and serves it in pages.
type Strategy interface {
	// Store takes ownership of body. Strategies that materialize the
	// result close body before returning.
	Store(body io.ReadCloser) error
	// OpenToRead reads the header row and returns it. Rows are decoded
	// with columns; when columns is empty every column decodes as Object.
	OpenToRead(columns []types.Column) ([]string, error)
	// Fetch returns up to maxRows rows starting at the zero-based row
	// offset. maxRows <= 0 returns all remaining rows.
	Fetch(offset int64, maxRows int) ([][]any, error)
	// Close releases the strategy resources. It is safe to call more than once.
	Close() error
}

// Options configures a strategy.
type Options struct {
	// TempDir is the directory for spool files, os.TempDir() when empty.
	TempDir string
	// Logger receives debug events, nop when nil.
	Logger log.Logger
}

func (o Options) logger() log.Logger {
	if o.Logger == nil {
		return log.NewNopLogger()
	}
	return o.Logger
}

func (o Options) tempDir() string {
	if o.TempDir == "" {
		return os.TempDir()
	}
	return o.TempDir
}

// Factory creates a strategy.
type Factory func(Options) Strategy

var registry = map[string]Factory{
	Memory: func(Options) Strategy { return NewMemory() },
	File:   func(o Options) Strategy { return NewFile(o) },
	Stream: func(Options) Strategy { return NewStream() },
}

// New creates the strategy registered under name, case-insensitively.
// An empty name selects Memory.
func New(name string, opts Options) (Strategy, error) {
	if name == "" {
		name = Memory
	}
	f, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownStrategy, "%q, expected one of %s", name, strings.Join(Names(), ", "))
	}
	return f(opts), nil
}

// Names returns the registered strategy names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// cursor decodes rows from a Reader and tracks the row index.
type cursor struct {
	reader  *Reader
	columns []types.Column
	// next is the index of the row the reader returns next.
	next int64
	done bool
	// mark, when set, is called with the row index and reader offset
	// before each row is read.
	mark func(row int64, offset int64)
}

// openCursor reads the header row from reader.
func openCursor(reader *Reader, columns []types.Column) (*cursor, []string, error) {
	header, _, err := reader.Read()
	if err == io.EOF {
		return nil, nil, errors.New("result has no header row")
	}
	if err != nil {
		return nil, nil, err
	}
	if len(columns) == 0 {
		columns = make([]types.Column, len(header))
		for i, name := range header {
			columns[i] = types.Column{Index: i + 1, Name: name, Label: name, Nullable: true}
		}
	}
	return &cursor{reader: reader, columns: columns}, header, nil
}

// skipTo advances to the row offset, which must not be behind the cursor.
func (c *cursor) skipTo(offset int64) error {
	for c.next < offset && !c.done {
		if c.mark != nil {
			c.mark(c.next, c.reader.Offset())
		}
		if _, _, err := c.reader.Read(); err != nil {
			if err == io.EOF {
				c.done = true
				return nil
			}
			return err
		}
		c.next++
	}
	return nil
}

// read decodes up to maxRows rows; maxRows <= 0 reads to the end.
func (c *cursor) read(maxRows int) ([][]any, error) {
	var rows [][]any
	for !c.done && (maxRows <= 0 || len(rows) < maxRows) {
		if c.mark != nil {
			c.mark(c.next, c.reader.Offset())
		}
		fields, quoted, err := c.reader.Read()
		if err == io.EOF {
			c.done = true
			break
		}
		if err != nil {
			return rows, err
		}
		rows = append(rows, c.decode(fields, quoted))
		c.next++
	}
	return rows, nil
}

func (c *cursor) decode(fields []string, quoted []bool) []any {
	n := len(c.columns)
	if len(fields) > n {
		n = len(fields)
	}
	row := make([]any, n)
	for i := 0; i < len(fields); i++ {
		if i < len(c.columns) {
			row[i] = c.columns[i].Decode(fields[i], quoted[i])
		} else {
			row[i] = types.Lookup(types.Object).Decode(fields[i], quoted[i])
		}
	}
	return row
}
