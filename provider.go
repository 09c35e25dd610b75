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
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/axibase/atsd-sdk/go/strategy"
	"github.com/axibase/atsd-sdk/go/types"
)

// State is the lifecycle state of a DataProvider.
type State int32

const (
	StateIdle State = iota
	StateRequestBuilt
	StateFetching
	StateStored
	StateSending
	StateSent
	StateCancelled
	StateClosed
)

var stateNames = [...]string{"idle", "request-built", "fetching", "stored", "sending", "sent", "cancelled", "closed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// StatementContext ties a statement to its query id and collects the
// errors and warnings raised while it runs.
type StatementContext struct {
	// ConnectionID and StatementID identify the statement within a client.
	ConnectionID string
	StatementID  int64

	queryID  string
	revision Revision

	mu       sync.Mutex
	errs     []error
	warnings []error
}

// NewStatementContext creates a context. The query id is derived from the
// connection and statement ids when both are set, and generated otherwise.
func NewStatementContext(connectionID string, statementID int64) *StatementContext {
	sc := &StatementContext{ConnectionID: connectionID, StatementID: statementID}
	if connectionID != "" && statementID > 0 {
		sc.queryID = fmt.Sprintf("%s-%d", connectionID, statementID)
	} else {
		sc.queryID = uuid.NewString()
	}
	return sc
}

// QueryID returns the id sent with queries and used to cancel them.
func (sc *StatementContext) QueryID() string {
	return sc.queryID
}

// Revision returns the store revision seen by the last request.
func (sc *StatementContext) Revision() Revision {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.revision
}

func (sc *StatementContext) setRevision(rev Revision) {
	sc.mu.Lock()
	sc.revision = rev
	sc.mu.Unlock()
}

func (sc *StatementContext) addError(err error) {
	sc.mu.Lock()
	sc.errs = append(sc.errs, err)
	sc.mu.Unlock()
}

func (sc *StatementContext) addWarning(err error) {
	sc.mu.Lock()
	sc.warnings = append(sc.warnings, err)
	sc.mu.Unlock()
}

// Err returns the errors recorded so far, joined, or nil.
func (sc *StatementContext) Err() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return errors.Join(sc.errs...)
}

// Warnings returns the warnings recorded so far.
func (sc *StatementContext) Warnings() []error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return append([]error(nil), sc.warnings...)
}

// DataProvider runs one execution of a statement: it builds the request,
// submits it and hands query results to a strategy.
//
// CancelQuery and Close may be called concurrently with the other methods.
type DataProvider struct {
	c    *Client
	sctx *StatementContext

	state atomic.Int32
	// holding is set while a request is waiting for the store.
	holding atomic.Bool
	proto   atomic.Pointer[protocol]

	// mu guards the stored result.
	mu       sync.Mutex
	strategy strategy.Strategy
	columns  []types.Column
	header   []string
}

func newDataProvider(c *Client, sctx *StatementContext) *DataProvider {
	return &DataProvider{c: c, sctx: sctx}
}

// State returns the current state.
func (p *DataProvider) State() State {
	return State(p.state.Load())
}

func (p *DataProvider) transition(from, to State) error {
	if !p.state.CompareAndSwap(int32(from), int32(to)) {
		cur := p.State()
		if cur == StateClosed {
			return ErrClosed
		}
		if cur == StateCancelled {
			return fmt.Errorf("%w: statement was cancelled", ErrInvalidState)
		}
		return fmt.Errorf("%w: %s, expected %s", ErrInvalidState, cur, from)
	}
	return nil
}

// buildRequest resolves the revision and creates the protocol.
func (p *DataProvider) buildRequest(ctx context.Context, build func(rev Revision) (*Request, error)) (*protocol, error) {
	rev := p.c.Revision(ctx)
	p.sctx.setRevision(rev)
	req, err := build(rev)
	if err != nil {
		return nil, err
	}
	if err := p.transition(StateIdle, StateRequestBuilt); err != nil {
		return nil, err
	}
	proto := p.c.newProtocol(req, rev)
	p.proto.Store(proto)
	return proto, nil
}

// FetchData runs a query and stores its result in the configured strategy.
// A positive timeout overrides the read timeout. maxRows limits the rows
// returned by the store, zero means the client default.
func (p *DataProvider) FetchData(ctx context.Context, sql string, maxRows int64, timeout time.Duration) error {
	if maxRows <= 0 {
		maxRows = p.c.config.MaxRows
	}
	proto, err := p.buildRequest(ctx, func(rev Revision) (*Request, error) {
		return newQueryRequest(p.c.config.Endpoint, sql, maxRows, p.sctx.QueryID(), p.c.embedsSchema(rev), timeout)
	})
	if err != nil {
		return err
	}
	if err := p.transition(StateRequestBuilt, StateFetching); err != nil {
		return err
	}

	p.holding.Store(true)
	resp, err := proto.Submit(ctx, timeout)
	if err != nil {
		p.holding.Store(false)
		p.sctx.addError(err)
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.State() == StateClosed {
		p.holding.Store(false)
		sneakyBodyClose(resp.Body)
		return ErrClosed
	}
	st, err := strategy.New(p.c.config.Strategy, strategy.Options{TempDir: p.c.config.TempDir, Logger: p.c.logger})
	if err != nil {
		p.holding.Store(false)
		sneakyBodyClose(resp.Body)
		p.sctx.addError(err)
		return err
	}
	p.strategy = st
	p.holding.Store(false)
	if err := st.Store(resp.Body); err != nil {
		p.sctx.addError(err)
		return err
	}
	header, err := st.OpenToRead(resp.Columns)
	if err != nil {
		p.sctx.addError(err)
		return err
	}
	p.header, p.columns = header, resp.Columns
	if p.columns == nil {
		p.sctx.addWarning(ErrNoMetadata)
	}
	return p.transition(StateFetching, StateStored)
}

// Columns returns the result schema. ok is false when the store sent no
// schema; rows then decode as Object.
func (p *DataProvider) Columns() (columns []types.Column, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.columns, p.columns != nil
}

// Header returns the CSV header row.
func (p *DataProvider) Header() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.header
}

// Fetch returns up to maxRows rows starting at offset. A page shorter than
// maxRows is the last one.
func (p *DataProvider) Fetch(offset int64, maxRows int) ([][]any, error) {
	switch p.State() {
	case StateStored:
	case StateClosed:
		return nil, ErrClosed
	default:
		return nil, fmt.Errorf("%w: rows are not available in state %s", ErrNoMetadata, p.State())
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.State() == StateClosed {
		return nil, ErrClosed
	}
	rows, err := p.strategy.Fetch(offset, maxRows)
	if err != nil {
		p.sctx.addError(err)
		return nil, err
	}
	p.c.metrics.RowsFetched.Add(float64(len(rows)))
	return rows, nil
}

// SendData posts wire commands and returns the number of commands the
// store accepted.
func (p *DataProvider) SendData(ctx context.Context, commands string, timeout time.Duration) (int64, error) {
	proto, err := p.buildRequest(ctx, func(Revision) (*Request, error) {
		return newCommandRequest(p.c.config.Endpoint, commands, p.sctx.QueryID(), timeout)
	})
	if err != nil {
		return 0, err
	}
	if err := p.transition(StateRequestBuilt, StateSending); err != nil {
		return 0, err
	}

	p.holding.Store(true)
	resp, err := proto.Submit(ctx, timeout)
	if err != nil {
		p.holding.Store(false)
		p.sctx.addError(err)
		return 0, err
	}
	defer sneakyBodyClose(resp.Body)
	data, err := io.ReadAll(resp.Body)
	p.holding.Store(false)
	if err != nil {
		p.sctx.addError(err)
		return 0, err
	}
	if err := p.transition(StateSending, StateSent); err != nil {
		return 0, err
	}
	return affectedCount(data, commands), nil
}

// affectedCount reads the success count of a command response. Stores
// that reply without a body accepted every line.
func affectedCount(body []byte, commands string) int64 {
	if gjson.ValidBytes(body) {
		if n := gjson.GetBytes(body, "success"); n.Exists() {
			return n.Int()
		}
	}
	return int64(strings.Count(commands, "\n"))
}

// CancelQuery cancels the request in flight. It does nothing when no
// request is waiting for the store, and fails with ErrNoRequest before the
// first request.
func (p *DataProvider) CancelQuery(ctx context.Context) error {
	proto := p.proto.Load()
	if proto == nil {
		return ErrNoRequest
	}
	if !p.holding.CompareAndSwap(true, false) {
		return nil
	}
	if !p.state.CompareAndSwap(int32(StateFetching), int32(StateCancelled)) {
		p.state.CompareAndSwap(int32(StateSending), int32(StateCancelled))
	}
	if err := proto.Cancel(ctx); err != nil {
		p.sctx.addWarning(err)
		return err
	}
	return nil
}

// Close cancels a request still waiting for the store and releases the
// strategy. It is safe to call more than once.
func (p *DataProvider) Close() error {
	if State(p.state.Swap(int32(StateClosed))) == StateClosed {
		return nil
	}
	var errs []error
	if p.holding.Load() {
		if err := p.CancelQuery(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	if proto := p.proto.Load(); proto != nil {
		if err := proto.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	// A result still being stored fails once the body is closed above.
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.strategy != nil {
		if err := p.strategy.Close(); err != nil {
			level.Error(p.c.logger).Log("event", "strategy close failed", "queryId", p.sctx.QueryID(), "detail", err.Error())
			errs = append(errs, err)
		}
	}
	return joinErrors(errs)
}

func joinErrors(errs []error) error {
	return errors.Join(errs...)
}
