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

	"github.com/pkg/errors"

	"github.com/axibase/atsd-sdk/go/types"
)

// StreamStrategy parses rows directly from the response body. Offsets
// before the current position cannot be fetched, except that repeating
// the last fetch returns the same page.
type StreamStrategy struct {
	body   io.ReadCloser
	cur    *cursor
	last   [][]any
	lastAt int64
	closed bool
}

// NewStream creates a StreamStrategy.
func NewStream() *StreamStrategy {
	return &StreamStrategy{lastAt: -1}
}

func (s *StreamStrategy) Store(body io.ReadCloser) error {
	if s.closed {
		_ = body.Close()
		return ErrClosed
	}
	s.body = body
	return nil
}

func (s *StreamStrategy) OpenToRead(columns []types.Column) ([]string, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.body == nil {
		return nil, ErrNotStored
	}
	if s.cur != nil {
		return nil, ErrRewind
	}
	cur, header, err := openCursor(NewReader(s.body), columns)
	if err != nil {
		return nil, err
	}
	s.cur = cur
	return header, nil
}

// Fetch blocks until maxRows rows are read or the body ends.
func (s *StreamStrategy) Fetch(offset int64, maxRows int) ([][]any, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if offset < 0 {
		return nil, errors.Errorf("negative row offset %d", offset)
	}
	if s.cur == nil {
		return nil, ErrNotOpened
	}
	if offset == s.lastAt {
		return s.last, nil
	}
	if offset < s.cur.next {
		return nil, ErrRewind
	}
	if err := s.cur.skipTo(offset); err != nil {
		return nil, err
	}
	rows, err := s.cur.read(maxRows)
	if err != nil {
		return nil, err
	}
	s.last, s.lastAt = rows, offset
	return rows, nil
}

func (s *StreamStrategy) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.cur, s.last = nil, nil
	if s.body == nil {
		return nil
	}
	return s.body.Close()
}
