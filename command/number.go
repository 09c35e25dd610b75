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
	"math/big"
	"strconv"
	"strings"

	"github.com/axibase/atsd-sdk/go/types"
)

// Number is a metric value. It keeps the decimal text it was created from,
// so integers beyond float64 precision are written unchanged.
type Number struct {
	text string
}

// Float returns the Number for f.
func Float(f float64) Number {
	return Number{text: types.FormatNumber(f)}
}

// Int returns the Number for n.
func Int(n int64) Number {
	return Number{text: strconv.FormatInt(n, 10)}
}

// Uint returns the Number for n.
func Uint(n uint64) Number {
	return Number{text: strconv.FormatUint(n, 10)}
}

// BigFloat returns the Number for f in plain decimal notation.
func BigFloat(f *big.Float) Number {
	return Number{text: f.Text('f', -1)}
}

// ParseNumber validates s as a decimal number and keeps its text. NaN,
// Infinity and -Infinity are accepted as the store spells them.
func ParseNumber(s string) (Number, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "+")
	switch s {
	case "NaN", "Infinity", "-Infinity":
		return Number{text: s}, nil
	}
	if s == "" || strings.Trim(s, "0123456789+-.eE") != "" {
		return Number{}, fmt.Errorf("%w: %q is not a number", ErrInvalidCommand, s)
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return Number{}, fmt.Errorf("%w: %q is not a number", ErrInvalidCommand, s)
	}
	return Number{text: s}, nil
}

// Float64 returns the nearest float64.
func (n Number) Float64() float64 {
	f, _ := strconv.ParseFloat(n.text, 64)
	return f
}

func (n Number) String() string {
	if n.text == "" {
		return "0"
	}
	return n.text
}
