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

// Package testkit runs an in-process fake of the store's HTTP API for tests.
package testkit

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

// Column is a result column as the store describes it.
type Column struct {
	Name     string
	Datatype string
	Table    string
	Required bool
}

// Result is the canned answer to one SQL query.
type Result struct {
	Columns []Column
	// CSV is the body without the schema, header row included.
	CSV string
	// Fail makes the store reject the query with HTTP 400 and this message.
	Fail string
	// Block holds the response until the query is cancelled or the client
	// goes away.
	Block bool
	// Encoding compresses the body: "", "gzip" or "zstd".
	Encoding string
	// Delay pauses after the schema before the rows are written.
	Delay time.Duration
}

// Metric is an entry of the metrics listing.
type Metric struct {
	Name           string `json:"name"`
	Label          string `json:"label,omitempty"`
	DataType       string `json:"dataType,omitempty"`
	Enabled        bool   `json:"enabled"`
	LastInsertDate string `json:"lastInsertDate,omitempty"`
}

// Store is a fake store. The zero value of each option is a permissive
// store that knows no queries.
type Store struct {
	t      testing.TB
	Server *httptest.Server

	// Login and Password enable basic authentication when both are set.
	Login, Password string
	// Revision is served by the version endpoint; empty answers 404.
	Revision string
	// Metrics is served by the metrics listing.
	Metrics []Metric
	// CommandReply replaces the JSON reply of the command endpoint.
	CommandReply string

	mu        sync.Mutex
	results   map[string]Result
	queries   []map[string]string
	commands  []string
	cancelled []string
	blocked   map[string]chan struct{}
}

// NewStore starts a fake store. It is closed with the test.
func NewStore(t testing.TB) *Store {
	s := newStore(t)
	s.Server = httptest.NewServer(s.handler())
	t.Cleanup(s.Server.Close)
	return s
}

// NewTLSStore starts a fake store behind a self-signed certificate.
func NewTLSStore(t testing.TB) *Store {
	s := newStore(t)
	s.Server = httptest.NewTLSServer(s.handler())
	t.Cleanup(s.Server.Close)
	return s
}

func newStore(t testing.TB) *Store {
	return &Store{
		t:       t,
		results: make(map[string]Result),
		blocked: make(map[string]chan struct{}),
	}
}

// Endpoint returns the base URL of the store.
func (s *Store) Endpoint() string {
	return s.Server.URL
}

// On registers the result of a query.
func (s *Store) On(sql string, r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[sql] = r
}

// Queries returns the form parameters of the queries received so far.
func (s *Store) Queries() []map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]string(nil), s.queries...)
}

// Commands returns the command lines received so far.
func (s *Store) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Cancelled returns the query ids cancelled so far.
func (s *Store) Cancelled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cancelled...)
}

// WaitBlocked waits until a blocking query with the given id arrives.
func (s *Store) WaitBlocked(queryID string) {
	require.Eventually(s.t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, ok := s.blocked[queryID]
		return ok
	}, 5*time.Second, 5*time.Millisecond)
}

// Schema returns the CSVW JSON describing columns.
func Schema(columns []Column) []byte {
	cols := make([]map[string]any, len(columns))
	for i, c := range columns {
		cols[i] = map[string]any{
			"columnIndex": i + 1,
			"name":        c.Name,
			"titles":      c.Name,
			"datatype":    c.Datatype,
			"table":       c.Table,
			"required":    c.Required,
		}
	}
	data, _ := json.Marshal(map[string]any{
		"@context":    []string{"http://www.w3.org/ns/csvw"},
		"dc:created":  map[string]string{"@value": "2017-06-21T00:00:00.000Z", "@type": "xsd:date"},
		"tableSchema": map[string]any{"columns": cols},
	})
	return data
}

func (s *Store) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/version", s.version)
	mux.HandleFunc("/api/sql", s.query)
	mux.HandleFunc("/api/sql/cancel", s.cancel)
	mux.HandleFunc("/api/v1/command", s.command)
	mux.HandleFunc("/api/v1/metrics", s.metrics)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Login != "" && s.Password != "" {
			login, password, ok := r.BasicAuth()
			if !ok || login != s.Login || password != s.Password {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
		}
		mux.ServeHTTP(w, r)
	})
}

func (s *Store) version(w http.ResponseWriter, _ *http.Request) {
	if s.Revision == "" {
		http.NotFound(w, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"buildInfo": map[string]any{"revisionNumber": s.Revision},
	})
}

func (s *Store) query(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	form := map[string]string{}
	for k := range r.PostForm {
		form[k] = r.PostForm.Get(k)
	}
	sql, queryID := form["q"], form["queryId"]

	s.mu.Lock()
	s.queries = append(s.queries, form)
	res, ok := s.results[sql]
	var unblock chan struct{}
	if ok && res.Block {
		unblock = make(chan struct{})
		s.blocked[queryID] = unblock
	}
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("Table '%s' not found", sql)})
		return
	}
	if res.Fail != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": res.Fail})
		return
	}
	if unblock != nil {
		select {
		case <-unblock:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Query cancelled: " + queryID})
		case <-r.Context().Done():
		}
		return
	}

	schema := base64.StdEncoding.EncodeToString(Schema(res.Columns))
	embed := strings.EqualFold(form["metadataFormat"], "EMBED")
	if !embed && res.Columns != nil {
		w.Header().Set("Link", fmt.Sprintf(`<data:application/csvm+json;base64,%s>; rel="describedBy"; type="application/csvm+json"`, schema))
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	body := res.CSV
	if limit, err := strconv.Atoi(form["limit"]); err == nil && limit > 0 {
		body = limitRows(body, limit)
	}

	var out io.Writer = w
	switch res.Encoding {
	case "gzip":
		w.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(w)
		defer zw.Close()
		out = zw
	case "zstd":
		w.Header().Set("Content-Encoding", "zstd")
		zw, err := zstd.NewWriter(w)
		require.NoError(s.t, err)
		defer zw.Close()
		out = zw
	}
	w.WriteHeader(http.StatusOK)
	if embed && res.Columns != nil {
		_, _ = io.WriteString(out, "#"+schema+"\n")
	}
	if res.Delay > 0 {
		if f, ok := out.(interface{ Flush() error }); ok {
			_ = f.Flush()
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		select {
		case <-time.After(res.Delay):
		case <-r.Context().Done():
			return
		}
	}
	_, _ = io.WriteString(out, body)
}

// limitRows keeps the header row and the first n data rows.
func limitRows(body string, n int) string {
	lines := strings.SplitAfter(body, "\n")
	if len(lines) <= n+1 {
		return body
	}
	return strings.Join(lines[:n+1], "")
}

func (s *Store) cancel(w http.ResponseWriter, r *http.Request) {
	queryID := r.URL.Query().Get("queryId")
	s.mu.Lock()
	s.cancelled = append(s.cancelled, queryID)
	if ch, ok := s.blocked[queryID]; ok {
		close(ch)
		delete(s.blocked, queryID)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"queryId": queryID})
}

func (s *Store) command(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	var n int
	s.mu.Lock()
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		s.commands = append(s.commands, line)
		n++
	}
	reply := s.CommandReply
	s.mu.Unlock()
	if reply != "" {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, reply)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"fail": 0, "success": n, "total": n})
}

func (s *Store) metrics(w http.ResponseWriter, r *http.Request) {
	metrics := s.Metrics
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit > 0 && limit < len(metrics) {
		metrics = metrics[:limit]
	}
	if metrics == nil {
		metrics = []Metric{}
	}
	writeJSON(w, http.StatusOK, metrics)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Context returns a context that is cancelled with the test.
func Context(t testing.TB) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}
