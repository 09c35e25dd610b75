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

package command

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse reads one wire command. It accepts the output of Compose, with or
// without the trailing line break.
func Parse(line string) (*Command, error) {
	s := &scanner{in: strings.TrimRight(line, "\r\n")}
	kind := Kind(s.word())
	var c *Command
	switch kind {
	case Series, Entity, Metric:
		c = &Command{kind: kind}
	default:
		return nil, fmt.Errorf("%w: unknown command %q", ErrInvalidCommand, kind)
	}

	for s.skipSpaces() {
		prefix, err := s.prefix()
		if err != nil {
			return nil, err
		}
		switch {
		case prefix == "e" && kind != Metric, prefix == "m" && kind == Metric:
			if c.target, err = s.token(); err != nil {
				return nil, err
			}
		case prefix == "ms" && kind == Series:
			v, err := s.token()
			if err != nil {
				return nil, err
			}
			ms, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad time %q", ErrInvalidCommand, v)
			}
			c.SetTime(ms)
		case prefix == "d" && kind == Series:
			v, err := s.token()
			if err != nil {
				return nil, err
			}
			c.SetDateTime(v)
		case prefix == "t", prefix == "m", prefix == "x":
			k, v, err := s.pair()
			if err != nil {
				return nil, err
			}
			switch prefix {
			case "t":
				c.Tags.Set(k, v)
			case "x":
				c.Texts.Set(k, v)
			default:
				n, err := ParseNumber(v)
				if err != nil {
					return nil, fmt.Errorf("%w: bad value %s=%q", ErrInvalidCommand, k, v)
				}
				c.Values.Set(k, n)
			}
		default:
			f, ok := fieldByPrefix(kind, prefix)
			if !ok {
				return nil, fmt.Errorf("%w: unexpected field %q in %s command", ErrInvalidCommand, prefix, kind)
			}
			v, err := s.token()
			if err != nil {
				return nil, err
			}
			c.Props.Set(f.Name, v)
		}
	}
	return c, nil
}

func fieldByPrefix(kind Kind, prefix string) (Field, bool) {
	for _, f := range kindFields[kind] {
		if f.Prefix == prefix {
			return f, true
		}
	}
	return Field{}, false
}

type scanner struct {
	in  string
	pos int
}

func (s *scanner) skipSpaces() bool {
	for s.pos < len(s.in) && s.in[s.pos] == ' ' {
		s.pos++
	}
	return s.pos < len(s.in)
}

func (s *scanner) word() string {
	s.skipSpaces()
	start := s.pos
	for s.pos < len(s.in) && s.in[s.pos] != ' ' {
		s.pos++
	}
	return s.in[start:s.pos]
}

func (s *scanner) prefix() (string, error) {
	i := strings.IndexByte(s.in[s.pos:], ':')
	if i <= 0 {
		return "", fmt.Errorf("%w: expected field prefix at %d", ErrInvalidCommand, s.pos)
	}
	p := s.in[s.pos : s.pos+i]
	s.pos += i + 1
	return p, nil
}

// token reads a bare or quoted token ending at a space, '=' or end of input.
func (s *scanner) token() (string, error) {
	if s.pos < len(s.in) && s.in[s.pos] == '"' {
		return s.quoted()
	}
	start := s.pos
	for s.pos < len(s.in) && s.in[s.pos] != ' ' && s.in[s.pos] != '=' {
		s.pos++
	}
	return s.in[start:s.pos], nil
}

func (s *scanner) quoted() (string, error) {
	var b strings.Builder
	s.pos++
	for s.pos < len(s.in) {
		ch := s.in[s.pos]
		s.pos++
		if ch != '"' {
			b.WriteByte(ch)
			continue
		}
		if s.pos < len(s.in) && s.in[s.pos] == '"' {
			b.WriteByte('"')
			s.pos++
			continue
		}
		return b.String(), nil
	}
	return "", fmt.Errorf("%w: unterminated quoted value", ErrInvalidCommand)
}

func (s *scanner) pair() (string, string, error) {
	k, err := s.token()
	if err != nil {
		return "", "", err
	}
	if s.pos >= len(s.in) || s.in[s.pos] != '=' {
		return "", "", fmt.Errorf("%w: expected '=' after %q", ErrInvalidCommand, k)
	}
	s.pos++
	v, err := s.token()
	if err != nil {
		return "", "", err
	}
	return k, v, nil
}
