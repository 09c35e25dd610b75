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

package types

import (
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDecodeEmptyIsNull(t *testing.T) {
	for k := SmallInt; k <= Timestamp; k++ {
		vt := Lookup(k)
		require.NotNil(t, vt, "kind %d", k)
		require.Nil(t, vt.Decode("", false), vt.Name)
		require.Nil(t, vt.Decode("", true), vt.Name)
	}
}

func TestDecodePrimary(t *testing.T) {
	ts := time.Date(2017, 6, 21, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		kind     Kind
		cell     string
		expected any
	}{
		{SmallInt, "12", int16(12)},
		{Integer, "-7", int32(-7)},
		{BigInt, "9007199254740993", int64(9007199254740993)},
		{Boolean, "true", true},
		{Double, "24.5", 24.5},
		{Float, "1.5", float32(1.5)},
		{String, "Celcius", "Celcius"},
		{Object, "42", int64(42)},
		{Object, "4.2", 4.2},
		{Object, "abc", "abc"},
		{Timestamp, "2017-06-21T00:00:00.000Z", ts},
	}
	for _, c := range cases {
		require.Equal(t, c.expected, Lookup(c.kind).Decode(c.cell, false), "%s %q", Lookup(c.kind).Name, c.cell)
	}

	d := Lookup(Decimal).Decode("123.25", false)
	require.IsType(t, &big.Float{}, d)
	f, _ := d.(*big.Float).Float64()
	require.Equal(t, 123.25, f)
}

func TestDecodeFallback(t *testing.T) {
	cases := []struct {
		kind     Kind
		cell     string
		expected any
	}{
		{SmallInt, "12.9", int16(12)},
		{Integer, "1e3", int32(1000)},
		{BigInt, "3.0", int64(3)},
		{Boolean, "1", true},
		{Boolean, "no", false},
		{Double, " 2.5 ", 2.5},
		{Float, " 0.5", float32(0.5)},
		{Timestamp, "1498003200000", time.Date(2017, 6, 21, 0, 0, 0, 0, time.UTC)},
		{Timestamp, "2017-06-21 00:00:00", time.Date(2017, 6, 21, 0, 0, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		require.Equal(t, c.expected, Lookup(c.kind).Decode(c.cell, false), "%s %q", Lookup(c.kind).Name, c.cell)
	}
}

func TestDecodeBothFailIsNull(t *testing.T) {
	cases := []struct {
		kind Kind
		cell string
	}{
		{SmallInt, "40000"},
		{Integer, "abc"},
		{BigInt, "NaN"},
		{Boolean, "maybe"},
		{Decimal, "1,5"},
		{Double, "x1"},
		{Float, "--"},
		{Timestamp, "yesterday"},
	}
	for _, c := range cases {
		require.NotPanics(t, func() {
			require.Nil(t, Lookup(c.kind).Decode(c.cell, false), "%s %q", Lookup(c.kind).Name, c.cell)
		})
	}
}

func TestDecodeQuotedObjectKeepsText(t *testing.T) {
	obj := Lookup(Object)
	require.Equal(t, "0042", obj.Decode("0042", true))
	require.Equal(t, int64(42), obj.Decode("0042", false))
	// quoting does not matter for typed columns
	require.Equal(t, 42.0, Lookup(Double).Decode("42", true))
}

func TestByName(t *testing.T) {
	vt, ok := ByName("xsd:dateTimeStamp")
	require.True(t, ok)
	require.Equal(t, Timestamp, vt.Kind)

	vt, ok = ByName("BIGINT")
	require.True(t, ok)
	require.Equal(t, SQLTypeBigInt, vt.SQLType)

	vt, ok = ByName("long")
	require.True(t, ok)
	require.Equal(t, BigInt, vt.Kind)

	vt, ok = ByName("geometry")
	require.False(t, ok)
	require.Equal(t, Object, vt.Kind)
}

func TestCompatible(t *testing.T) {
	require.Equal(t, Double, Lookup(BigInt).Compatible(true).Kind)
	require.Equal(t, BigInt, Lookup(BigInt).Compatible(false).Kind)
	require.Equal(t, String, Lookup(Object).Compatible(true).Kind)
	require.Equal(t, Integer, Lookup(Integer).Compatible(true).Kind)
}

func TestColumnDecodeWithoutType(t *testing.T) {
	c := &Column{Name: "value"}
	require.Equal(t, 1.5, c.Decode("1.5", false))
	require.Equal(t, "1.5", c.Decode("1.5", true))
}

func TestFormatTime(t *testing.T) {
	ts := time.Date(2017, 6, 21, 3, 4, 5, 6e6, time.UTC)
	require.Equal(t, "2017-06-21T03:04:05.006Z", FormatISO(ts))

	loc := time.FixedZone("UTC+3", 3*3600)
	require.Equal(t, "2017-06-21 06:04", FormatTime(ts, loc, "2006-01-02 15:04"))
	require.Equal(t, "2017-06-21T03:04:05.006Z", FormatTime(ts, nil, ""))
}

func TestParseTime(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	got, err := ParseTime("2017-06-21 03:00:00", loc)
	require.NoError(t, err)
	require.Equal(t, time.Date(2017, 6, 21, 0, 0, 0, 0, time.UTC), got.UTC())

	got, err = ParseTime("2017-06-21T00:00:00Z", loc)
	require.NoError(t, err)
	require.Equal(t, time.Date(2017, 6, 21, 0, 0, 0, 0, time.UTC), got.UTC())

	_, err = ParseTime("21/06/2017", nil)
	require.Error(t, err)
}

func TestFormatNumber(t *testing.T) {
	require.Equal(t, "24.5", FormatNumber(24.5))
	require.Equal(t, "25", FormatNumber(25))
	require.Equal(t, "-0.001", FormatNumber(-0.001))
	require.Equal(t, "NaN", FormatNumber(math.NaN()))
	require.Equal(t, "Infinity", FormatNumber(math.Inf(1)))
	require.Equal(t, "1E+21", FormatNumber(1e21))
}
