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
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	queryPath   = "/api/sql"
	cancelPath  = "/api/sql/cancel"
	commandPath = "/api/v1/command"
	metricsPath = "/api/v1/metrics"
	versionPath = "/version"
)

// RequestKind distinguishes query requests from write requests.
type RequestKind int

const (
	// QueryRequest posts SQL to the query endpoint and reads CSV rows.
	QueryRequest RequestKind = iota + 1
	// CommandRequest posts wire commands to the command endpoint.
	CommandRequest
)

func (k RequestKind) String() string {
	switch k {
	case QueryRequest:
		return "query"
	case CommandRequest:
		return "command"
	default:
		return "unknown"
	}
}

// Request describes one HTTP request of a statement. Its query id is fixed
// at construction; requests have no other identity.
type Request struct {
	kind    RequestKind
	url     *url.URL
	queryID string
	body    string
	limit   int64
	// embed selects the embedded schema delivery.
	embed   bool
	timeout time.Duration
}

// newQueryRequest describes a query. A non-zero timeout overrides the
// client read timeout.
func newQueryRequest(endpoint, sql string, limit int64, queryID string, embed bool, timeout time.Duration) (*Request, error) {
	u, err := url.Parse(endpoint + queryPath)
	if err != nil {
		return nil, err
	}
	format := "HEADER"
	if embed {
		format = "EMBED"
	}
	// Parameters are written in a fixed order.
	var b strings.Builder
	b.WriteString("q=")
	b.WriteString(url.QueryEscape(sql))
	b.WriteString("&format=csv&metadataFormat=")
	b.WriteString(format)
	b.WriteString("&limit=")
	b.WriteString(strconv.FormatInt(limit, 10))
	if queryID != "" {
		b.WriteString("&queryId=")
		b.WriteString(url.QueryEscape(queryID))
	}
	return &Request{
		kind:    QueryRequest,
		url:     u,
		queryID: queryID,
		body:    b.String(),
		limit:   limit,
		embed:   embed,
		timeout: timeout,
	}, nil
}

// newCommandRequest describes a write of line-terminated commands.
func newCommandRequest(endpoint, commands, queryID string, timeout time.Duration) (*Request, error) {
	u, err := url.Parse(endpoint + commandPath)
	if err != nil {
		return nil, err
	}
	return &Request{
		kind:    CommandRequest,
		url:     u,
		queryID: queryID,
		body:    commands,
		timeout: timeout,
	}, nil
}

// Kind returns the request kind.
func (r *Request) Kind() RequestKind { return r.kind }

// QueryID returns the id used to correlate the request with a cancellation.
func (r *Request) QueryID() string { return r.queryID }

// URL returns the target endpoint.
func (r *Request) URL() *url.URL { return r.url }

// Body returns the encoded request body.
func (r *Request) Body() string { return r.body }

// EmbedsSchema reports whether the schema is requested in the body.
func (r *Request) EmbedsSchema() bool { return r.embed }

func (r *Request) contentType() string {
	if r.kind == QueryRequest {
		return "application/x-www-form-urlencoded"
	}
	return "text/plain; charset=utf-8"
}
