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
	"bytes"
	"io"

	"github.com/pkg/errors"

	"github.com/axibase/atsd-sdk/go/types"
)

// MemoryStrategy drains the body into memory. Any offset can be fetched
// again.
type MemoryStrategy struct {
	data    []byte
	stored  bool
	columns []types.Column
	// start is the offset of the first row after the header.
	start  int64
	cur    *cursor
	closed bool
}

// NewMemory creates a MemoryStrategy.
func NewMemory() *MemoryStrategy {
	return &MemoryStrategy{}
}

func (m *MemoryStrategy) Store(body io.ReadCloser) error {
	if m.closed {
		return ErrClosed
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return errors.Wrap(err, "read result body")
	}
	m.data, m.stored = data, true
	return nil
}

func (m *MemoryStrategy) OpenToRead(columns []types.Column) ([]string, error) {
	if m.closed {
		return nil, ErrClosed
	}
	if !m.stored {
		return nil, ErrNotStored
	}
	reader := NewReader(bytes.NewReader(m.data))
	cur, header, err := openCursor(reader, columns)
	if err != nil {
		return nil, err
	}
	m.cur, m.columns, m.start = cur, cur.columns, reader.Offset()
	return header, nil
}

func (m *MemoryStrategy) Fetch(offset int64, maxRows int) ([][]any, error) {
	if m.closed {
		return nil, ErrClosed
	}
	if offset < 0 {
		return nil, errors.Errorf("negative row offset %d", offset)
	}
	if m.cur == nil {
		return nil, ErrNotOpened
	}
	if offset < m.cur.next {
		m.cur = &cursor{reader: NewReader(bytes.NewReader(m.data[m.start:])), columns: m.columns}
	}
	if err := m.cur.skipTo(offset); err != nil {
		return nil, err
	}
	return m.cur.read(maxRows)
}

func (m *MemoryStrategy) Close() error {
	m.closed, m.data, m.cur = true, nil, nil
	return nil
}
