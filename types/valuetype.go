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

// Package types describes the scalar types of the time series store: their
// wire names, SQL type codes and the rules used to decode CSV cells.
package types

import (
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// Kind tags a ValueType.
type Kind int

const (
	// SmallInt is a 16-bit integer.
	SmallInt Kind = iota + 1
	// Integer is a 32-bit integer.
	Integer
	// BigInt is a 64-bit integer.
	BigInt
	// Boolean is a true/false value.
	Boolean
	// Decimal is an arbitrary precision number.
	Decimal
	// Double is a 64-bit float.
	Double
	// Float is a 32-bit float.
	Float
	// String is a text value.
	String
	// Object is an untyped value whose concrete type is inferred from the cell.
	Object
	// Timestamp is an instant in time.
	Timestamp
)

// SQLType is a generic SQL type code as used by ODBC/JDBC drivers.
type SQLType int

const (
	SQLTypeBigInt    SQLType = -5
	SQLTypeBoolean   SQLType = 16
	SQLTypeDecimal   SQLType = 3
	SQLTypeDouble    SQLType = 8
	SQLTypeReal      SQLType = 7
	SQLTypeInteger   SQLType = 4
	SQLTypeObject    SQLType = 2000
	SQLTypeSmallInt  SQLType = 5
	SQLTypeVarchar   SQLType = 12
	SQLTypeTimestamp SQLType = 93
)

// DecodeFunc converts a non-empty CSV cell into a Go value.
type DecodeFunc func(cell string) (any, error)

// ValueType describes one scalar type of the store.
type ValueType struct {
	Kind Kind
	// Name is the type name used in schema metadata.
	Name string
	// SQLType is the generic SQL type code.
	SQLType SQLType
	// Precision is the maximum precision for numbers or the maximum size for text.
	Precision int

	decode   DecodeFunc
	fallback DecodeFunc
	// odbc is the substitute kind under ODBC 2.x compatibility, zero when the type is kept.
	odbc Kind
}

const maxTextSize = 128 * 1024

var valueTypes = map[Kind]*ValueType{
	SmallInt: {
		Kind: SmallInt, Name: "smallint", SQLType: SQLTypeSmallInt, Precision: 5,
		decode: decodeInt(16), fallback: decodeTruncatedInt(16),
	},
	Integer: {
		Kind: Integer, Name: "integer", SQLType: SQLTypeInteger, Precision: 10,
		decode: decodeInt(32), fallback: decodeTruncatedInt(32),
	},
	BigInt: {
		Kind: BigInt, Name: "bigint", SQLType: SQLTypeBigInt, Precision: 19,
		decode: decodeInt(64), fallback: decodeTruncatedInt(64),
		odbc: Double,
	},
	Boolean: {
		Kind: Boolean, Name: "boolean", SQLType: SQLTypeBoolean, Precision: 1,
		decode: decodeBool, fallback: decodeLooseBool,
	},
	Decimal: {
		Kind: Decimal, Name: "decimal", SQLType: SQLTypeDecimal, Precision: 128,
		decode: decodeDecimal, fallback: decodeTrimmed(decodeDecimal),
	},
	Double: {
		Kind: Double, Name: "double", SQLType: SQLTypeDouble, Precision: 15,
		decode: decodeFloat(64), fallback: decodeTrimmed(decodeFloat(64)),
	},
	Float: {
		Kind: Float, Name: "float", SQLType: SQLTypeReal, Precision: 7,
		decode: decodeFloat(32), fallback: decodeTrimmed(decodeFloat(32)),
	},
	String: {
		Kind: String, Name: "string", SQLType: SQLTypeVarchar, Precision: maxTextSize,
		decode: decodeString,
	},
	Object: {
		Kind: Object, Name: "java_object", SQLType: SQLTypeObject, Precision: maxTextSize,
		decode: decodeObject,
		odbc:   String,
	},
	Timestamp: {
		Kind: Timestamp, Name: "xsd:dateTimeStamp", SQLType: SQLTypeTimestamp, Precision: len(ISOLayout) - 6,
		decode: decodeTimestamp, fallback: decodeLooseTimestamp,
	},
}

// aliases maps alternative schema names onto kinds.
var aliases = map[string]Kind{
	"short":     SmallInt,
	"int":       Integer,
	"long":      BigInt,
	"bool":      Boolean,
	"number":    Decimal,
	"real":      Float,
	"varchar":   String,
	"text":      String,
	"object":    Object,
	"timestamp": Timestamp,
	"datetime":  Timestamp,
}

// Lookup returns the ValueType for the given kind, or nil if the kind is unknown.
func Lookup(k Kind) *ValueType {
	return valueTypes[k]
}

// ByName resolves a schema datatype name. Unknown names resolve to Object
// and ok is false.
func ByName(name string) (vt *ValueType, ok bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, t := range valueTypes {
		if strings.ToLower(t.Name) == n {
			return t, true
		}
	}
	if k, found := aliases[n]; found {
		return valueTypes[k], true
	}
	return valueTypes[Object], false
}

// Compatible returns the type to report to callers. Under ODBC 2.x
// compatibility some types are substituted by the closest ODBC 2.x type.
func (vt *ValueType) Compatible(odbc2 bool) *ValueType {
	if !odbc2 || vt.odbc == 0 {
		return vt
	}
	return valueTypes[vt.odbc]
}

// String implements fmt.Stringer.
func (vt *ValueType) String() string {
	return vt.Name
}

// Decode converts a CSV cell into a Go value. An empty cell is always nil.
// The fallback decoder is tried only when the primary one fails, and nil is
// returned when both fail. quoted reports whether the cell was quoted in the
// source, which keeps quoted numeric-looking text in Object columns as text.
func (vt *ValueType) Decode(cell string, quoted bool) any {
	if cell == "" {
		return nil
	}
	if vt.Kind == Object && quoted {
		return cell
	}
	v, err := vt.decode(cell)
	if err == nil {
		return v
	}
	if vt.fallback == nil {
		return nil
	}
	v, err = vt.fallback(cell)
	if err != nil {
		return nil
	}
	return v
}

func decodeInt(bits int) DecodeFunc {
	return func(cell string) (any, error) {
		n, err := strconv.ParseInt(cell, 10, bits)
		if err != nil {
			return nil, err
		}
		return sizedInt(n, bits), nil
	}
}

// decodeTruncatedInt accepts any finite number in range and drops the fraction.
func decodeTruncatedInt(bits int) DecodeFunc {
	return func(cell string) (any, error) {
		f, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
		if err != nil {
			return nil, err
		}
		f = math.Trunc(f)
		limit := math.Ldexp(1, bits-1)
		if math.IsNaN(f) || f < -limit || f >= limit {
			return nil, strconv.ErrRange
		}
		return sizedInt(int64(f), bits), nil
	}
}

func sizedInt(n int64, bits int) any {
	switch bits {
	case 16:
		return int16(n)
	case 32:
		return int32(n)
	default:
		return n
	}
}

func decodeFloat(bits int) DecodeFunc {
	return func(cell string) (any, error) {
		f, err := strconv.ParseFloat(cell, bits)
		if err != nil {
			return nil, err
		}
		if bits == 32 {
			return float32(f), nil
		}
		return f, nil
	}
}

func decodeTrimmed(decode DecodeFunc) DecodeFunc {
	return func(cell string) (any, error) {
		return decode(strings.TrimSpace(cell))
	}
}

func decodeDecimal(cell string) (any, error) {
	d, ok := new(big.Float).SetPrec(0).SetString(cell)
	if !ok {
		return nil, strconv.ErrSyntax
	}
	return d, nil
}

func decodeBool(cell string) (any, error) {
	return strconv.ParseBool(cell)
}

func decodeLooseBool(cell string) (any, error) {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "y", "yes", "on":
		return true, nil
	case "n", "no", "off":
		return false, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil || math.IsNaN(f) {
		return nil, strconv.ErrSyntax
	}
	return f != 0, nil
}

func decodeString(cell string) (any, error) {
	return cell, nil
}

// decodeObject infers the narrowest type of an unquoted cell.
func decodeObject(cell string) (any, error) {
	if n, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return n, nil
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		return f, nil
	}
	return cell, nil
}

func decodeTimestamp(cell string) (any, error) {
	t, err := time.Parse(time.RFC3339, cell)
	if err != nil {
		return nil, err
	}
	return t.UTC(), nil
}

func decodeLooseTimestamp(cell string) (any, error) {
	cell = strings.TrimSpace(cell)
	if ms, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return ParseTime(cell, time.UTC)
}
