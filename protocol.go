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
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/axibase/atsd-sdk/go/types"
)

// Response is the successful response to a Request.
type Response struct {
	// Body is the decompressed body. For queries it starts at the CSV
	// header row. Closing it releases the request.
	Body io.ReadCloser
	// Columns is the result schema, nil when the store sent none.
	Columns []types.Column
}

// protocol executes the requests of one statement.
type protocol struct {
	hc          HTTPClient
	endpoint    string
	req         *Request
	rev         Revision
	odbc2       bool
	readTimeout time.Duration
	logger      log.Logger
	metrics     *clientMetrics

	mu sync.Mutex
	// cancel aborts the request in flight.
	cancel context.CancelFunc
	body   io.Closer
}

func (c *Client) newProtocol(req *Request, rev Revision) *protocol {
	return &protocol{
		hc:          c.http,
		endpoint:    c.config.Endpoint,
		req:         req,
		rev:         rev,
		odbc2:       c.config.ODBC2Compatibility,
		readTimeout: c.config.ReadTimeout,
		logger:      c.logger,
		metrics:     c.metrics,
	}
}

// Submit sends the request and returns the response body. A positive
// timeout overrides the request and client read timeouts; it bounds the
// wait for the response and every read of the body.
func (p *protocol) Submit(ctx context.Context, timeout time.Duration) (*Response, error) {
	if timeout <= 0 {
		timeout = p.req.timeout
	}
	if timeout <= 0 {
		timeout = p.readTimeout
	}

	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	idle := newIdleTimer(timeout, cancel)
	label := p.req.kind.String()
	level.Debug(p.logger).Log("event", "request submitted", "endpoint", p.req.url.Path, "queryId", p.req.queryID)

	start := time.Now()
	idle.arm()
	resp, err := p.hc.Post(ctx, p.req.url, p.req.contentType(), strings.NewReader(p.req.body))
	idle.disarm()
	if err != nil {
		p.metrics.observe(label, 0, start)
		idle.stop()
		cancel()
		return nil, idle.wrapErr(err)
	}
	p.metrics.observe(label, resp.StatusCode, start)
	if err := checkStatusCodeOK(resp); err != nil {
		idle.stop()
		cancel()
		return nil, err
	}

	body := &responseBody{
		r:       idleReader{r: resp.Body, idle: idle},
		closers: []io.Closer{resp.Body},
		idle:    idle,
		cancel:  cancel,
	}
	if err := body.decompress(resp.Header.Get("Content-Encoding")); err != nil {
		_ = body.Close()
		return nil, err
	}

	out := &Response{Body: body}
	if p.req.kind == QueryRequest {
		if err := p.readSchema(out, resp.Header); err != nil {
			_ = body.Close()
			return nil, err
		}
	}
	p.mu.Lock()
	p.body = body
	p.mu.Unlock()
	return out, nil
}

// readSchema takes the schema from the body when embedded, otherwise from
// the Link header.
func (p *protocol) readSchema(out *Response, h http.Header) error {
	body := out.Body.(*responseBody)
	var (
		data   []byte
		source string
	)
	if p.req.embed {
		schema, rest, err := splitEmbeddedSchema(body.r)
		if err != nil {
			return err
		}
		body.r = rest
		data, source = schema, "body"
	}
	if data == nil {
		schema, ok, err := headerSchema(h)
		if err != nil {
			return err
		}
		if ok {
			data, source = schema, "header"
		}
	}
	if data == nil {
		level.Debug(p.logger).Log("event", "no result schema", "queryId", p.req.queryID)
		return nil
	}
	columns, err := parseSchema(data, p.odbc2)
	if err != nil {
		return err
	}
	level.Debug(p.logger).Log("event", "result schema", "source", source, "columns", len(columns))
	out.Columns = columns
	return nil
}

// Cancel aborts the request in flight and asks the store to stop the
// query when the store revision supports it. The local request is
// released even when the remote call fails.
func (p *protocol) Cancel(ctx context.Context) error {
	defer p.abort()
	if !p.rev.SupportsCancel() {
		level.Debug(p.logger).Log("event", "remote cancel unsupported", "revision", p.rev.String(), "queryId", p.req.queryID)
		p.metrics.Cancellations.WithLabelValues("local").Inc()
		return nil
	}
	u, err := url.Parse(p.endpoint + cancelPath)
	if err != nil {
		return err
	}
	u.RawQuery = url.Values{"queryId": {p.req.queryID}}.Encode()

	start := time.Now()
	resp, err := p.hc.Get(ctx, u)
	if err != nil {
		p.metrics.observe("cancel", 0, start)
		p.metrics.Cancellations.WithLabelValues("failed").Inc()
		level.Warn(p.logger).Log("event", "cancel failed", "queryId", p.req.queryID, "detail", err.Error())
		return errors.Wrap(&RemoteError{Message: err.Error(), Err: err}, "cancel query")
	}
	p.metrics.observe("cancel", resp.StatusCode, start)
	if err := checkStatusCodeOK(resp); err != nil {
		p.metrics.Cancellations.WithLabelValues("failed").Inc()
		level.Warn(p.logger).Log("event", "cancel failed", "queryId", p.req.queryID, "detail", err.Error())
		return errors.Wrap(err, "cancel query")
	}
	sneakyBodyClose(resp.Body)
	p.metrics.Cancellations.WithLabelValues("remote").Inc()
	level.Info(p.logger).Log("event", "query cancelled", "queryId", p.req.queryID)
	return nil
}

func (p *protocol) abort() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
}

// Close aborts the request and closes the response body.
func (p *protocol) Close() error {
	p.abort()
	p.mu.Lock()
	body := p.body
	p.body = nil
	p.mu.Unlock()
	if body != nil {
		return body.Close()
	}
	return nil
}

// responseBody is a decompressed response body guarded by the idle timer.
type responseBody struct {
	r       io.Reader
	closers []io.Closer
	idle    *idleTimer
	cancel  context.CancelFunc
	once    sync.Once
	err     error
}

func (b *responseBody) decompress(encoding string) error {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return nil
	case "gzip":
		zr, err := gzip.NewReader(b.r)
		if err != nil {
			return b.idle.wrapErr(errors.Wrap(err, "decompress gzip response"))
		}
		b.r, b.closers = zr, append(b.closers, zr)
	case "zstd":
		zr, err := zstd.NewReader(b.r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return errors.Wrap(err, "decompress zstd response")
		}
		rc := zr.IOReadCloser()
		b.r, b.closers = rc, append(b.closers, rc)
	default:
		return errors.Errorf("unsupported content encoding %q", encoding)
	}
	return nil
}

func (b *responseBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && err != io.EOF {
		err = b.idle.wrapErr(err)
	}
	return n, err
}

func (b *responseBody) Close() error {
	b.once.Do(func() {
		b.idle.stop()
		for i := len(b.closers) - 1; i >= 0; i-- {
			if err := b.closers[i].Close(); err != nil && b.err == nil {
				b.err = err
			}
		}
		b.cancel()
	})
	return b.err
}

// idleTimer cancels a request when a single read of the body, or the wait
// for the response, blocks longer than d. It only runs while armed, so time
// spent between reads does not count. A zero d disables it.
type idleTimer struct {
	d      time.Duration
	cancel context.CancelFunc

	mu      sync.Mutex
	t       *time.Timer
	stopped bool
	fired   atomic.Bool
}

func newIdleTimer(d time.Duration, cancel context.CancelFunc) *idleTimer {
	return &idleTimer{d: d, cancel: cancel}
}

// arm starts the countdown for one blocking operation.
func (it *idleTimer) arm() {
	if it.d <= 0 {
		return
	}
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.stopped || it.fired.Load() {
		return
	}
	if it.t == nil {
		it.t = time.AfterFunc(it.d, func() {
			it.fired.Store(true)
			it.cancel()
		})
		return
	}
	it.t.Reset(it.d)
}

// disarm pauses the countdown once the operation returned.
func (it *idleTimer) disarm() {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.t != nil {
		it.t.Stop()
	}
}

// stop disarms the timer for good.
func (it *idleTimer) stop() {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.stopped = true
	if it.t != nil {
		it.t.Stop()
	}
}

// wrapErr reports a transport error, or a timeout if the timer fired.
func (it *idleTimer) wrapErr(err error) error {
	var re *RemoteError
	if errors.As(err, &re) {
		return err
	}
	if it.fired.Load() {
		return &RemoteError{Message: fmt.Sprintf("read timeout of %s exceeded", it.d), Err: context.DeadlineExceeded}
	}
	return &RemoteError{Message: err.Error(), Err: err}
}

// idleReader arms the idle timer for the duration of every read of the
// raw body.
type idleReader struct {
	r    io.Reader
	idle *idleTimer
}

func (r idleReader) Read(p []byte) (int, error) {
	r.idle.arm()
	n, err := r.r.Read(p)
	r.idle.disarm()
	return n, err
}
