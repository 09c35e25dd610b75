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
	"crypto/tls"
	"crypto/x509"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/axibase/atsd-sdk/go/sqlconv"
)

// HTTPClient is the interface for HTTP client.
type HTTPClient interface {
	// Get sends a GET request to the store.
	Get(context.Context, *url.URL) (*http.Response, error)
	// Post streams body to the store with chunked transfer encoding.
	Post(ctx context.Context, u *url.URL, contentType string, body io.Reader) (*http.Response, error)
}

type httpClient struct {
	client    *http.Client
	transport *http.Transport
	login     string
	password  string
}

// Ensure httpClient implements HTTPClient.
var _ HTTPClient = (*httpClient)(nil)

// newHTTPClient creates the transport shared by all statements of a client.
// Responses are decompressed by the protocol, not by the transport.
func newHTTPClient(cfg *Config, logger log.Logger) (*httpClient, error) {
	tlsConfig, err := newTLSConfig(cfg, logger)
	if err != nil {
		return nil, err
	}
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSClientConfig:     tlsConfig,
		TLSHandshakeTimeout: cfg.ConnectTimeout,
		DisableCompression:  true,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	}
	return &httpClient{
		client:    &http.Client{Transport: transport},
		transport: transport,
		login:     cfg.Login,
		password:  cfg.Password,
	}, nil
}

func newTLSConfig(cfg *Config, logger log.Logger) (*tls.Config, error) {
	tc := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.TrustCertificates {
		level.Warn(logger).Log("event", "certificate verification disabled", "endpoint", cfg.Endpoint)
		tc.InsecureSkipVerify = true
	}
	if len(cfg.CertificateAuthorityPaths) == 0 {
		return tc, nil
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	for _, path := range cfg.CertificateAuthorityPaths {
		pem, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read certificate authority %s", path)
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.Errorf("no certificates found in %s", path)
		}
	}
	tc.RootCAs = pool
	return tc, nil
}

func (c *httpClient) authorize(req *http.Request) {
	if c.login != "" && c.password != "" {
		req.SetBasicAuth(c.login, c.password)
	}
}

func (c *httpClient) Get(ctx context.Context, u *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)
	return c.client.Do(req)
}

func (c *httpClient) Post(ctx context.Context, u *url.URL, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), io.NopCloser(body))
	if err != nil {
		return nil, err
	}
	req.ContentLength = -1
	req.TransferEncoding = []string{"chunked"}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept-Encoding", "gzip, zstd")
	c.authorize(req)
	return c.client.Do(req)
}

func (c *httpClient) close() {
	c.transport.CloseIdleConnections()
}

// Client is a connection to the store. It is safe for concurrent use.
type Client struct {
	config    *Config
	http      HTTPClient
	transport *httpClient
	logger    log.Logger
	metrics   *clientMetrics
	converter *sqlconv.Converter

	id  string
	seq atomic.Int64
	// statements holds open statements by query id until they are closed.
	statements cmap.ConcurrentMap[string, *Statement]

	revMu    sync.Mutex
	revision *Revision
	closed   atomic.Bool
}

// NewClient creates a new client.
func NewClient(config *Config) (*Client, error) {
	cfg := config.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.logger()
	hc, err := newHTTPClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	c := &Client{
		config:    cfg,
		http:      hc,
		transport: hc,
		logger:    logger,
		metrics:   newClientMetrics(cfg.Registerer),
		converter: sqlconv.New(
			sqlconv.WithCacheSize(cfg.StatementCacheSize),
			sqlconv.WithCacheTTL(cfg.StatementCacheTTL),
		),
		id:         uuid.NewString(),
		statements: cmap.New[*Statement](),
	}
	if cfg.Revision != "" {
		rev, err := ParseRevision(cfg.Revision)
		if err != nil {
			return nil, err
		}
		c.revision = &rev
	}
	return c, nil
}

// ID returns the connection id used to derive query ids.
func (c *Client) ID() string {
	return c.id
}

// Close closes all open statements and releases idle connections.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	for _, s := range c.statements.Items() {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.transport.close()
	return joinErrors(errs)
}

// OpenStatements returns the number of statements not yet closed.
func (c *Client) OpenStatements() int {
	return c.statements.Count()
}

// Revision returns the store revision. It is taken from the config or
// requested once from the store. When the request fails the revision is
// unknown and the request is retried on the next call.
func (c *Client) Revision(ctx context.Context) Revision {
	c.revMu.Lock()
	defer c.revMu.Unlock()
	if c.revision != nil {
		return *c.revision
	}
	s, err := fetchRevision(ctx, c.http, c.config.Endpoint)
	if err != nil {
		level.Warn(c.logger).Log("event", "revision discovery failed", "detail", err.Error())
		return Revision{}
	}
	rev, err := ParseRevision(s)
	if err != nil {
		level.Warn(c.logger).Log("event", "revision discovery failed", "detail", err.Error())
		return Revision{}
	}
	level.Debug(c.logger).Log("event", "revision discovered", "revision", rev.String())
	c.revision = &rev
	return rev
}

// embedsSchema decides the schema delivery for a query.
func (c *Client) embedsSchema(rev Revision) bool {
	switch c.config.MetadataFormat {
	case MetadataEmbed:
		return true
	case MetadataHeader:
		return false
	default:
		return rev.EmbedsSchema()
	}
}

// MetricInfo describes a metric, which is queried as a table.
type MetricInfo struct {
	Name           string
	Label          string
	DataType       string
	Enabled        bool
	LastInsertDate string
}

// Metrics lists metrics whose names match expression, e.g. "name like 'cpu*'".
// A non-positive limit returns all matches.
func (c *Client) Metrics(ctx context.Context, expression string, limit int) ([]MetricInfo, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	u, err := url.Parse(c.config.Endpoint + metricsPath)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	if expression != "" {
		q.Set("expression", expression)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	u.RawQuery = q.Encode()

	start := time.Now()
	resp, err := c.http.Get(ctx, u)
	if err != nil {
		c.metrics.observe("metrics", 0, start)
		return nil, &RemoteError{Message: err.Error(), Err: err}
	}
	c.metrics.observe("metrics", resp.StatusCode, start)
	if err := checkStatusCodeOK(resp); err != nil {
		return nil, err
	}
	defer sneakyBodyClose(resp.Body)
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read metrics")
	}
	if !gjson.ValidBytes(data) {
		return nil, errors.New("metrics response is not valid JSON")
	}
	var metrics []MetricInfo
	gjson.ParseBytes(data).ForEach(func(_, m gjson.Result) bool {
		metrics = append(metrics, MetricInfo{
			Name:           m.Get("name").String(),
			Label:          m.Get("label").String(),
			DataType:       m.Get("dataType").String(),
			Enabled:        m.Get("enabled").Bool(),
			LastInsertDate: m.Get("lastInsertDate").String(),
		})
		return true
	})
	return metrics, nil
}
