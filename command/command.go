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

// Package command models the write commands of the store's line-oriented
// network protocol and renders them in the wire text format.
package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Kind is the command keyword.
type Kind string

const (
	// Series inserts samples for one entity at one time.
	Series Kind = "series"
	// Entity updates entity properties and tags.
	Entity Kind = "entity"
	// Metric updates metric properties and tags.
	Metric Kind = "metric"
)

// MaxTime is the largest sample time in epoch milliseconds accepted by the
// store, 2105-12-31T23:59:59.999Z.
const MaxTime int64 = 4291747199999

// ErrInvalidCommand indicates that a command cannot be composed.
var ErrInvalidCommand = errors.New("invalid command")

// Field is an entity or metric property.
type Field struct {
	// Name is the property name as used in SQL, e.g. "label".
	Name string
	// Prefix is the wire prefix, e.g. "l".
	Prefix string
	// Quoted forces the value to be quoted on the wire.
	Quoted bool
}

var (
	FieldLabel       = Field{Name: "label", Prefix: "l", Quoted: true}
	FieldDescription = Field{Name: "description", Prefix: "d", Quoted: true}
	FieldUnits       = Field{Name: "units", Prefix: "u", Quoted: true}
	FieldDataType    = Field{Name: "dataType", Prefix: "p"}
	FieldTimeZone    = Field{Name: "timeZone", Prefix: "z", Quoted: true}
	FieldInterpolate = Field{Name: "interpolate", Prefix: "i"}
	FieldEnabled     = Field{Name: "enabled", Prefix: "b"}
)

var kindFields = map[Kind][]Field{
	Entity: {FieldLabel, FieldTimeZone, FieldInterpolate, FieldEnabled},
	Metric: {FieldLabel, FieldDescription, FieldUnits, FieldDataType, FieldTimeZone, FieldInterpolate, FieldEnabled},
}

// LookupField resolves a property name of the given kind, case-insensitively.
func LookupField(kind Kind, name string) (Field, bool) {
	for _, f := range kindFields[kind] {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return Field{}, false
}

// Command is one write command.
type Command struct {
	kind Kind
	// target is the entity name, or the metric name for Metric commands.
	target string

	time     int64
	hasTime  bool
	dateTime string

	Tags   Fields[string]
	Values Fields[Number]
	Texts  Fields[string]
	Props  Fields[string]
}

// NewSeries creates a series command for the entity.
func NewSeries(entity string) *Command {
	return &Command{kind: Series, target: entity}
}

// NewEntity creates an entity command.
func NewEntity(entity string) *Command {
	return &Command{kind: Entity, target: entity}
}

// NewMetric creates a metric command.
func NewMetric(metric string) *Command {
	return &Command{kind: Metric, target: metric}
}

// Kind returns the command keyword.
func (c *Command) Kind() Kind {
	return c.kind
}

// Target returns the entity name, or the metric name for metric commands.
func (c *Command) Target() string {
	return c.target
}

// SetTime sets the sample time in epoch milliseconds and discards any text time.
func (c *Command) SetTime(ms int64) *Command {
	c.time, c.hasTime, c.dateTime = ms, true, ""
	return c
}

// SetDateTime sets the sample time as text and discards any numeric time.
func (c *Command) SetDateTime(s string) *Command {
	c.time, c.hasTime, c.dateTime = 0, false, s
	return c
}

// Time returns the numeric time, if set.
func (c *Command) Time() (int64, bool) {
	return c.time, c.hasTime
}

// DateTime returns the text time, empty if the time is numeric or unset.
func (c *Command) DateTime() string {
	return c.dateTime
}

// SetProp sets an entity or metric property.
func (c *Command) SetProp(f Field, v string) *Command {
	c.Props.Set(f.Name, v)
	return c
}

// Validate checks that the command can be composed.
func (c *Command) Validate() error {
	if strings.TrimSpace(c.target) == "" {
		if c.kind == Metric {
			return invalidf("metric name is required")
		}
		return invalidf("entity is required")
	}
	switch c.kind {
	case Series:
		if !c.hasTime && c.dateTime == "" {
			return invalidf("time or datetime is required")
		}
		if c.hasTime && (c.time <= 0 || c.time > MaxTime) {
			return invalidf("time %d is out of range (0, %d]", c.time, MaxTime)
		}
		if c.Values.Len() == 0 && c.Texts.Len() == 0 {
			return invalidf("at least one numeric or text value is required")
		}
	case Entity, Metric:
		if c.Tags.Len() == 0 && c.Props.Len() == 0 {
			return invalidf("%s command requires tags or properties", c.kind)
		}
	default:
		return invalidf("unknown command kind %q", c.kind)
	}
	return nil
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidCommand, fmt.Sprintf(format, args...))
}

// Compose validates the command and returns its wire representation
// terminated by a line break.
func (c *Command) Compose() (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	var b strings.Builder
	c.writeTo(&b)
	b.WriteByte('\n')
	return b.String(), nil
}

// String returns the wire representation without validation or line break.
func (c *Command) String() string {
	var b strings.Builder
	c.writeTo(&b)
	return b.String()
}

func (c *Command) writeTo(b *strings.Builder) {
	b.WriteString(string(c.kind))
	if c.kind == Metric {
		b.WriteString(" m:")
	} else {
		b.WriteString(" e:")
	}
	b.WriteString(quoteName(c.target))

	if c.kind == Series {
		if c.hasTime {
			b.WriteString(" ms:")
			b.WriteString(strconv.FormatInt(c.time, 10))
		} else if c.dateTime != "" {
			b.WriteString(" d:")
			b.WriteString(quoteName(c.dateTime))
		}
	} else {
		for _, f := range kindFields[c.kind] {
			v, ok := c.Props.Get(f.Name)
			if !ok {
				continue
			}
			b.WriteString(" " + f.Prefix + ":")
			if f.Quoted {
				b.WriteString(quoteValue(v))
			} else {
				b.WriteString(quoteName(v))
			}
		}
	}

	c.Tags.Each(func(k, v string) {
		b.WriteString(" t:" + quoteName(k) + "=" + quoteValue(v))
	})
	c.Values.Each(func(k string, v Number) {
		b.WriteString(" m:" + quoteName(k) + "=" + v.String())
	})
	c.Texts.Each(func(k, v string) {
		b.WriteString(" x:" + quoteName(k) + "=" + quoteValue(v))
	})
}

// quoteName quotes names that would otherwise break the grammar.
func quoteName(s string) string {
	if s == "" || strings.ContainsAny(s, "=\" \t\r\n") {
		return quoteValue(s)
	}
	return s
}

func quoteValue(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
