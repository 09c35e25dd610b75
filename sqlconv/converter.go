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

// Package sqlconv translates INSERT and UPDATE statements into write
// commands of the store's network protocol.
//
// A statement targets either a metric table, whose name is the metric name,
// or the multi-metric table atsd_series, where the metric column names the
// metric of each row. Columns are recognized case-insensitively:
//
//	entity              series entity
//	time                sample time, epoch milliseconds
//	datetime            sample time, ISO-8601 text
//	metric              metric name, atsd_series only
//	value               numeric sample of the metric
//	text                text sample of the metric
//	tags.<key>          series tag
//	entity.tags.<key>   entity tag, entity.<field> entity property
//	metric.tags.<key>   metric tag, metric.<field> metric property
//
// Any other column becomes an extra metric: numeric values are written as
// numeric samples and everything else as text samples.
package sqlconv

import (
	"fmt"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/pkg/errors"

	"github.com/axibase/atsd-sdk/go/command"
	"github.com/axibase/atsd-sdk/go/types"
)

// MultiMetricTable is the table whose rows name their metric in the metric column.
const MultiMetricTable = "atsd_series"

const (
	defaultCacheSize = 256
	defaultCacheTTL  = 10 * time.Minute
)

// Converter converts statements to wire commands. Parsed statements are
// cached by text. A Converter is safe for concurrent use.
type Converter struct {
	cache *ttlcache.Cache[string, *statement]
}

type options struct {
	size uint64
	ttl  time.Duration
}

// Option configures a Converter.
type Option func(*options)

// WithCacheSize sets the number of parsed statements kept. Zero disables caching.
func WithCacheSize(n int) Option {
	return func(o *options) {
		if n < 0 {
			n = 0
		}
		o.size = uint64(n)
	}
}

// WithCacheTTL sets how long a parsed statement stays cached after its last use.
func WithCacheTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
	}
}

// New creates a Converter.
func New(opts ...Option) *Converter {
	o := options{size: defaultCacheSize, ttl: defaultCacheTTL}
	for _, opt := range opts {
		opt(&o)
	}
	c := &Converter{}
	if o.size > 0 {
		// Expired items are evicted lazily on access, so no cleanup goroutine is started.
		c.cache = ttlcache.New[string, *statement](
			ttlcache.WithTTL[string, *statement](o.ttl),
			ttlcache.WithCapacity[string, *statement](o.size),
		)
	}
	return c
}

var defaultConverter = New()

// Convert converts sql with the default Converter.
func Convert(sql string, params ...any) (string, error) {
	return defaultConverter.Convert(sql, params...)
}

// ConvertBatch converts sql for each parameter row with the default Converter.
func ConvertBatch(sql string, rows [][]any) (string, error) {
	return defaultConverter.ConvertBatch(sql, rows)
}

func (c *Converter) prepare(sql string) (*statement, error) {
	if c.cache != nil {
		if item := c.cache.Get(sql); item != nil {
			return item.Value(), nil
		}
	}
	st, err := parse(sql)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.Set(sql, st, ttlcache.DefaultTTL)
	}
	return st, nil
}

// NumInput returns the number of placeholders in sql.
func (c *Converter) NumInput(sql string) (int, error) {
	st, err := c.prepare(sql)
	if err != nil {
		return 0, err
	}
	return st.params, nil
}

// IsWrite reports whether sql starts with INSERT or UPDATE, ignoring
// comments and case. It does not validate the rest of the statement.
func IsWrite(sql string) bool {
	first := lex(sql)[0].typ
	return first == tokenInsert || first == tokenUpdate
}

// Commands converts sql into commands, binding params to placeholders in
// the order they appear.
func (c *Converter) Commands(sql string, params ...any) ([]*command.Command, error) {
	st, err := c.prepare(sql)
	if err != nil {
		return nil, err
	}
	return st.commands(params)
}

// Convert converts sql into wire text, one line per command.
func (c *Converter) Convert(sql string, params ...any) (string, error) {
	cmds, err := c.Commands(sql, params...)
	if err != nil {
		return "", err
	}
	return compose(nil, cmds)
}

// ConvertBatch converts sql once per parameter row and concatenates the
// results. An empty batch converts to an empty string.
func (c *Converter) ConvertBatch(sql string, rows [][]any) (string, error) {
	st, err := c.prepare(sql)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i, params := range rows {
		cmds, err := st.commands(params)
		if err != nil {
			return "", errors.Wrapf(err, "batch row %d", i)
		}
		if _, err := compose(&b, cmds); err != nil {
			return "", errors.Wrapf(err, "batch row %d", i)
		}
	}
	return b.String(), nil
}

func compose(b *strings.Builder, cmds []*command.Command) (string, error) {
	if b == nil {
		b = &strings.Builder{}
	}
	for _, cmd := range cmds {
		line, err := cmd.Compose()
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrArgument, err)
		}
		b.WriteString(line)
	}
	return b.String(), nil
}

func (st *statement) commands(params []any) ([]*command.Command, error) {
	if len(params) < st.params {
		return nil, fmt.Errorf("%w: %d placeholders, %d values", ErrMissingParameters, st.params, len(params))
	}
	if len(params) > st.params {
		return nil, fmt.Errorf("%w: %d placeholders, %d values", ErrTooManyParameters, st.params, len(params))
	}
	var out []*command.Command
	for _, row := range st.rows {
		cmds, err := st.rowCommands(row, params)
		if err != nil {
			return nil, err
		}
		out = append(out, cmds...)
	}
	return out, nil
}

// rowBuilder collects the commands of one row.
type rowBuilder struct {
	multi  bool
	metric string

	series *command.Command
	entity *command.Command
	meta   *command.Command

	value, text any
	hasValue    bool
	hasText     bool
}

func (st *statement) rowCommands(row []expr, params []any) ([]*command.Command, error) {
	b := &rowBuilder{
		multi:  strings.EqualFold(st.table, MultiMetricTable),
		series: command.NewSeries(""),
		entity: command.NewEntity(""),
		meta:   command.NewMetric(""),
	}
	if !b.multi {
		b.metric = st.table
	}
	for i, col := range st.columns {
		v, err := row[i].resolve(params)
		if err != nil {
			return nil, err
		}
		if err := b.bind(col, v); err != nil {
			return nil, err
		}
	}
	return b.build()
}

func (b *rowBuilder) bind(col string, v any) error {
	if v == nil {
		return nil
	}
	lc := strings.ToLower(col)
	switch {
	case lc == "entity":
		s := toString(v)
		b.series = retarget(b.series, command.NewSeries(s))
		b.entity = retarget(b.entity, command.NewEntity(s))
	case lc == "time":
		return b.bindTime(col, v)
	case lc == "datetime":
		if t, ok := v.(time.Time); ok {
			b.series.SetDateTime(types.FormatISO(t))
			return nil
		}
		if _, ok := toNumber(v); ok {
			return b.bindTime(col, v)
		}
		b.series.SetDateTime(toString(v))
	case lc == "metric":
		if !b.multi {
			return invalidValue(col, "metric column is only allowed in "+MultiMetricTable)
		}
		b.metric = toString(v)
		b.meta = retarget(b.meta, command.NewMetric(b.metric))
	case lc == "value":
		b.value, b.hasValue = v, true
	case lc == "text":
		b.text, b.hasText = v, true
	case strings.HasPrefix(lc, "tags."):
		key := col[len("tags."):]
		if key == "" {
			return invalidValue(col, "tag name is empty")
		}
		b.series.Tags.Set(key, toString(v))
	case strings.HasPrefix(lc, "entity."):
		return bindMeta(b.entity, col, col[len("entity."):], v)
	case strings.HasPrefix(lc, "metric."):
		return bindMeta(b.meta, col, col[len("metric."):], v)
	default:
		if n, ok := toValue(v); ok {
			b.series.Values.Set(col, n)
		} else {
			b.series.Texts.Set(col, toString(v))
		}
	}
	return nil
}

func (b *rowBuilder) bindTime(col string, v any) error {
	if t, ok := v.(time.Time); ok {
		b.series.SetTime(t.UnixMilli())
		return nil
	}
	if f, ok := toNumber(v); ok {
		b.series.SetTime(int64(f))
		return nil
	}
	s := toString(v)
	if f, ok := parseNumber(s); ok {
		b.series.SetTime(int64(f))
		return nil
	}
	if _, err := time.Parse(time.RFC3339Nano, s); err != nil {
		return invalidValue(col, fmt.Sprintf("%q is neither epoch milliseconds nor ISO-8601 time", s))
	}
	b.series.SetDateTime(s)
	return nil
}

func bindMeta(cmd *command.Command, col, name string, v any) error {
	if strings.HasPrefix(strings.ToLower(name), "tags.") {
		key := name[len("tags."):]
		if key == "" {
			return invalidValue(col, "tag name is empty")
		}
		cmd.Tags.Set(key, toString(v))
		return nil
	}
	f, ok := command.LookupField(cmd.Kind(), name)
	if !ok {
		return invalidValue(col, fmt.Sprintf("unknown %s property", cmd.Kind()))
	}
	cmd.SetProp(f, toString(v))
	return nil
}

func (b *rowBuilder) build() ([]*command.Command, error) {
	if b.hasValue || b.hasText {
		if b.metric == "" {
			return nil, invalidValue("metric", "metric name is required for value and text columns")
		}
	}
	if b.hasValue {
		n, ok := toValue(b.value)
		if !ok {
			var err error
			if n, err = command.ParseNumber(toString(b.value)); err != nil {
				return nil, invalidValue("value", fmt.Sprintf("%q is not numeric", toString(b.value)))
			}
		}
		b.series.Values.Set(b.metric, n)
	}
	if b.hasText {
		b.series.Texts.Set(b.metric, toString(b.text))
	}

	var out []*command.Command
	hasEntity := b.entity.Tags.Len() > 0 || b.entity.Props.Len() > 0
	hasMeta := b.meta.Tags.Len() > 0 || b.meta.Props.Len() > 0
	if b.series.Values.Len() > 0 || b.series.Texts.Len() > 0 || (!hasEntity && !hasMeta) {
		out = append(out, b.series)
	}
	if hasEntity {
		out = append(out, b.entity)
	}
	if hasMeta {
		if b.meta.Target() == "" {
			b.meta = retarget(b.meta, command.NewMetric(b.metric))
		}
		out = append(out, b.meta)
	}
	return out, nil
}

// retarget moves the fields of cmd onto next, which carries the new target.
func retarget(cmd, next *command.Command) *command.Command {
	if ms, ok := cmd.Time(); ok {
		next.SetTime(ms)
	} else if d := cmd.DateTime(); d != "" {
		next.SetDateTime(d)
	}
	next.Tags, next.Values, next.Texts, next.Props = cmd.Tags, cmd.Values, cmd.Texts, cmd.Props
	return next
}

func invalidValue(col, msg string) error {
	return fmt.Errorf("%w: column %s: %s", ErrInvalidValue, col, msg)
}
