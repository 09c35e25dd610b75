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

package sqlconv

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/axibase/atsd-sdk/go/command"
	"github.com/axibase/atsd-sdk/go/types"
)

// numeric is a number literal. The text is kept so that tag values such as
// 007 are written as typed.
type numeric struct {
	text string
	f    float64
}

func (e expr) resolve(params []any) (any, error) {
	switch e.kind {
	case exprNull:
		return nil, nil
	case exprNumber:
		return numeric{text: e.text, f: e.num}, nil
	case exprString:
		return e.text, nil
	case exprBool:
		return e.bool, nil
	case exprPlaceholder:
		if e.index >= len(params) {
			return nil, &Error{Pos: e.pos, Msg: fmt.Sprintf("no value for parameter %d", e.index+1), Err: ErrMissingParameters}
		}
		return deref(params[e.index]), nil
	}
	return nil, syntaxErrorf(e.pos, "unknown expression")
}

// deref unwraps typed nil pointers and pointers to values.
func deref(v any) any {
	switch p := v.(type) {
	case *string:
		if p == nil {
			return nil
		}
		return *p
	case *int64:
		if p == nil {
			return nil
		}
		return *p
	case *float64:
		if p == nil {
			return nil
		}
		return *p
	case *bool:
		if p == nil {
			return nil
		}
		return *p
	case *time.Time:
		if p == nil {
			return nil
		}
		return *p
	case *big.Float:
		if p == nil {
			return nil
		}
	}
	return v
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case numeric:
		return n.f, true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case *big.Float:
		f, _ := n.Float64()
		return f, true
	case *big.Int:
		f, _ := new(big.Float).SetInt(n).Float64()
		return f, true
	}
	return 0, false
}

// toValue converts v into a metric value. Literals, integers and big
// numbers keep their exact decimal text.
func toValue(v any) (command.Number, bool) {
	switch n := v.(type) {
	case numeric:
		num, err := command.ParseNumber(n.text)
		if err != nil {
			return command.Float(n.f), true
		}
		return num, true
	case int:
		return command.Int(int64(n)), true
	case int8:
		return command.Int(int64(n)), true
	case int16:
		return command.Int(int64(n)), true
	case int32:
		return command.Int(int64(n)), true
	case int64:
		return command.Int(n), true
	case uint:
		return command.Uint(uint64(n)), true
	case uint8:
		return command.Uint(uint64(n)), true
	case uint16:
		return command.Uint(uint64(n)), true
	case uint32:
		return command.Uint(uint64(n)), true
	case uint64:
		return command.Uint(n), true
	case *big.Float:
		return command.BigFloat(n), true
	case *big.Int:
		num, _ := command.ParseNumber(n.String())
		return num, true
	}
	if f, ok := toNumber(v); ok {
		return command.Float(f), true
	}
	return command.Number{}, false
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case numeric:
		return s.text
	case bool:
		return strconv.FormatBool(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case int:
		return strconv.Itoa(s)
	case float64:
		return types.FormatNumber(s)
	case float32:
		return types.FormatNumber(float64(s))
	case time.Time:
		return types.FormatISO(s)
	case *big.Float:
		return s.Text('f', -1)
	case fmt.Stringer:
		return s.String()
	}
	return fmt.Sprint(v)
}

func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f, err == nil
}
