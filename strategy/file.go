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
	"io"
	"os"

	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/axibase/atsd-sdk/go/types"
)

// FileStrategy spools the body to a temporary file and parses it lazily.
// Byte offsets of rows are remembered as they are read so earlier pages
// can be fetched again with a seek.
type FileStrategy struct {
	opts   Options
	file   *os.File
	path   string
	cur    *cursor
	base   int64
	rows   []int64
	closed bool
}

// NewFile creates a FileStrategy.
func NewFile(opts Options) *FileStrategy {
	return &FileStrategy{opts: opts}
}

// Path returns the spool file path, empty before Store.
func (f *FileStrategy) Path() string {
	return f.path
}

func (f *FileStrategy) Store(body io.ReadCloser) error {
	if f.closed {
		return ErrClosed
	}
	defer body.Close()
	file, err := os.CreateTemp(f.opts.tempDir(), "atsd-result-*.csv")
	if err != nil {
		return errors.Wrap(err, "create spool file")
	}
	f.file, f.path = file, file.Name()
	n, err := io.Copy(file, body)
	if err != nil {
		_ = f.Close()
		return errors.Wrap(err, "spool result body")
	}
	level.Debug(f.opts.logger()).Log("event", "result spooled", "path", f.path, "bytes", n)
	return nil
}

func (f *FileStrategy) OpenToRead(columns []types.Column) ([]string, error) {
	if f.closed {
		return nil, ErrClosed
	}
	if f.file == nil {
		return nil, ErrNotStored
	}
	if err := f.seek(0); err != nil {
		return nil, err
	}
	cur, header, err := openCursor(f.cur.reader, columns)
	if err != nil {
		return nil, err
	}
	f.cur.columns = cur.columns
	f.rows = f.rows[:0]
	return header, nil
}

// seek positions a fresh reader at the byte offset.
func (f *FileStrategy) seek(offset int64) error {
	if _, err := f.file.Seek(offset, io.SeekStart); err != nil {
		return errors.Wrap(err, "seek spool file")
	}
	var columns []types.Column
	if f.cur != nil {
		columns = f.cur.columns
	}
	f.base = offset
	f.cur = &cursor{reader: NewReader(f.file), columns: columns, mark: f.mark}
	return nil
}

func (f *FileStrategy) mark(row, offset int64) {
	if row == int64(len(f.rows)) {
		f.rows = append(f.rows, f.base+offset)
	}
}

func (f *FileStrategy) Fetch(offset int64, maxRows int) ([][]any, error) {
	if f.closed {
		return nil, ErrClosed
	}
	if offset < 0 {
		return nil, errors.Errorf("negative row offset %d", offset)
	}
	if f.cur == nil || f.cur.columns == nil {
		return nil, ErrNotOpened
	}
	if offset < f.cur.next {
		// Rows before the cursor have all been read, so their offsets are known.
		if err := f.seek(f.rows[offset]); err != nil {
			return nil, err
		}
		f.cur.next = offset
	}
	if err := f.cur.skipTo(offset); err != nil {
		return nil, err
	}
	return f.cur.read(maxRows)
}

// Close closes and deletes the spool file.
func (f *FileStrategy) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	f.cur = nil
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	if rerr := os.Remove(f.path); rerr != nil && !os.IsNotExist(rerr) {
		err = errors.Wrap(rerr, "remove spool file")
	}
	level.Debug(f.opts.logger()).Log("event", "spool file removed", "path", f.path)
	return err
}
