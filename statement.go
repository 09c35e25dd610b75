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

package atsd

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/axibase/atsd-sdk/go/sqlconv"
	"github.com/axibase/atsd-sdk/go/types"
)

// DefaultPageSize is the number of rows Rows.Next fetches at a time.
const DefaultPageSize = 1000

// Statement is a SQL statement bound to a client. A SELECT is run with
// Query; INSERT and UPDATE are converted to commands and run with Exec or
// ExecBatch.
//
// A statement stays registered with its client until Close.
type Statement struct {
	c    *Client
	sql  string
	sctx *StatementContext

	// MaxRows limits the rows a query returns. Zero uses the client default.
	MaxRows int64
	// Timeout overrides the client read timeout for this statement.
	Timeout time.Duration
	// PageSize is the number of rows Rows.Next fetches at a time.
	PageSize int

	mu       sync.Mutex
	provider *DataProvider
	closed   bool
}

// Statement creates a new statement with the given SQL. A statement of a
// closed client is closed and every execution fails with ErrClosed.
func (c *Client) Statement(sql string) *Statement {
	s := &Statement{
		c:        c,
		sql:      sql,
		sctx:     NewStatementContext(c.id, c.seq.Add(1)),
		PageSize: DefaultPageSize,
		closed:   c.closed.Load(),
	}
	if s.closed {
		return s
	}
	c.statements.Set(s.sctx.QueryID(), s)
	if c.closed.Load() {
		// Close may have listed the statements before the Set above.
		_ = s.Close()
	}
	return s
}

// Context returns the statement context.
func (s *Statement) Context() *StatementContext {
	return s.sctx
}

// QueryID returns the id the store knows the statement by.
func (s *Statement) QueryID() string {
	return s.sctx.QueryID()
}

// SQL returns the statement text.
func (s *Statement) SQL() string {
	return s.sql
}

// newProvider replaces the provider of the previous execution.
func (s *Statement) newProvider() (*DataProvider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.c.closed.Load() {
		return nil, ErrClosed
	}
	if s.provider != nil {
		if err := s.provider.Close(); err != nil {
			level.Warn(s.c.logger).Log("event", "previous execution close failed", "queryId", s.QueryID(), "detail", err.Error())
		}
	}
	s.provider = newDataProvider(s.c, s.sctx)
	return s.provider, nil
}

// Query runs a SELECT and returns its rows. The result is stored by the
// client strategy before Query returns.
func (s *Statement) Query(ctx context.Context) (*Rows, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	if sqlconv.IsWrite(s.sql) {
		return nil, ErrNotQuery
	}
	p, err := s.newProvider()
	if err != nil {
		return nil, err
	}
	if err := p.FetchData(ctx, s.sql, s.MaxRows, s.Timeout); err != nil {
		return nil, err
	}
	pageSize := s.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Rows{p: p, pageSize: pageSize}, nil
}

// Exec converts an INSERT or UPDATE into commands, sends them, and returns
// the number of commands the store accepted.
func (s *Statement) Exec(ctx context.Context, params ...any) (int64, error) {
	if s.isClosed() {
		return 0, ErrClosed
	}
	commands, err := s.c.converter.Convert(s.sql, params...)
	if err != nil {
		return 0, err
	}
	return s.send(ctx, commands)
}

// ExecBatch is Exec with one parameter row per command set.
func (s *Statement) ExecBatch(ctx context.Context, rows [][]any) (int64, error) {
	if s.isClosed() {
		return 0, ErrClosed
	}
	commands, err := s.c.converter.ConvertBatch(s.sql, rows)
	if err != nil {
		return 0, err
	}
	if commands == "" {
		return 0, nil
	}
	return s.send(ctx, commands)
}

func (s *Statement) send(ctx context.Context, commands string) (int64, error) {
	p, err := s.newProvider()
	if err != nil {
		return 0, err
	}
	return p.SendData(ctx, commands, s.Timeout)
}

// Cancel cancels the execution in flight. It does nothing when the
// statement is not waiting for the store.
func (s *Statement) Cancel(ctx context.Context) error {
	s.mu.Lock()
	p, closed := s.provider, s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if p == nil {
		return ErrNoRequest
	}
	return p.CancelQuery(ctx)
}

func (s *Statement) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed || s.c.closed.Load()
}

// Close releases the statement and removes it from its client.
func (s *Statement) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.c.statements.Remove(s.QueryID())
	if s.provider == nil {
		return nil
	}
	return s.provider.Close()
}

// Rows pages through a stored query result.
type Rows struct {
	p        *DataProvider
	pageSize int
	offset   int64
	done     bool
}

// Columns returns the result schema. ok is false when the store sent none.
func (r *Rows) Columns() ([]types.Column, bool) {
	return r.p.Columns()
}

// Header returns the CSV header row.
func (r *Rows) Header() []string {
	return r.p.Header()
}

// Next returns the next page of rows, or io.EOF once the result is
// exhausted.
func (r *Rows) Next(ctx context.Context) ([][]any, error) {
	if r.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := r.p.Fetch(r.offset, r.pageSize)
	if err != nil {
		return nil, err
	}
	r.offset += int64(len(rows))
	if len(rows) < r.pageSize {
		r.done = true
		if len(rows) == 0 {
			return nil, io.EOF
		}
	}
	return rows, nil
}

// Fetch returns up to n rows starting at offset without moving Next.
func (r *Rows) Fetch(offset int64, n int) ([][]any, error) {
	return r.p.Fetch(offset, n)
}

// All reads the remaining rows.
func (r *Rows) All(ctx context.Context) ([][]any, error) {
	var all [][]any
	for {
		rows, err := r.Next(ctx)
		if errors.Is(err, io.EOF) {
			return all, nil
		}
		if err != nil {
			return nil, errors.Wrapf(err, "fetch rows at offset %d", r.offset)
		}
		all = append(all, rows...)
	}
}

// Close releases the stored result.
func (r *Rows) Close() error {
	return r.p.Close()
}
