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
	"errors"
	"math/big"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/require"

	"github.com/axibase/atsd-sdk/go/command"
)

func TestConvertInsert(t *testing.T) {
	out, err := Convert("INSERT INTO temperature (entity, datetime, value, text, tags.unit) " +
		"VALUES ('sensor-01','2017-06-21T00:00:00Z',24.5,null,'Celcius')")
	require.NoError(t, err)
	require.Equal(t, "series e:sensor-01 d:2017-06-21T00:00:00Z t:unit=\"Celcius\" m:temperature=24.5\n", out)
}

func TestConvertPlaceholders(t *testing.T) {
	out, err := Convert("insert into temperature (Entity, TIME, value, text) values (?, ?, ?, ?)",
		"e1", int64(1500000000000), 20, "warm")
	require.NoError(t, err)
	require.Equal(t, "series e:e1 ms:1500000000000 m:temperature=20 x:temperature=\"warm\"\n", out)

	out, err = Convert("INSERT INTO temperature (entity, datetime, value) VALUES (?, ?, ?)",
		"e1", time.Date(2017, 6, 21, 0, 0, 0, 0, time.UTC), -1.5)
	require.NoError(t, err)
	require.Equal(t, "series e:e1 d:2017-06-21T00:00:00.000Z m:temperature=-1.5\n", out)
}

func TestConvertKeepsNumberPrecision(t *testing.T) {
	out, err := Convert("INSERT INTO t (entity, time, value) VALUES ('e', 1, 9007199254740993)")
	require.NoError(t, err)
	require.Equal(t, "series e:e ms:1 m:t=9007199254740993\n", out)

	out, err = Convert("INSERT INTO t (entity, time, value, extra) VALUES (?, 1, ?, ?)",
		"e", int64(9007199254740993), uint64(18446744073709551615))
	require.NoError(t, err)
	require.Equal(t, "series e:e ms:1 m:extra=18446744073709551615 m:t=9007199254740993\n", out)

	exact, _, err := big.ParseFloat("12345678901234567890.125", 10, 128, big.ToNearestEven)
	require.NoError(t, err)
	out, err = Convert("INSERT INTO t (entity, time, value) VALUES ('e', 1, ?)", exact)
	require.NoError(t, err)
	require.Equal(t, "series e:e ms:1 m:t=12345678901234567890.125\n", out)

	out, err = Convert("INSERT INTO t (entity, time, value) VALUES ('e', 1, '9007199254740993')")
	require.NoError(t, err)
	require.Equal(t, "series e:e ms:1 m:t=9007199254740993\n", out)
}

func TestConvertUpdate(t *testing.T) {
	out, err := Convert("UPDATE temperature SET value = 21.5, tags.unit = 'C' " +
		"WHERE entity = 'sensor-01' AND time = 1500000000000")
	require.NoError(t, err)
	require.Equal(t, "series e:sensor-01 ms:1500000000000 t:unit=\"C\" m:temperature=21.5\n", out)

	out, err = Convert("UPDATE temperature SET entity.label = ? WHERE entity = ?", "Sensor 1", "sensor-01")
	require.NoError(t, err)
	require.Equal(t, "entity e:sensor-01 l:\"Sensor 1\"\n", out)
}

func TestConvertUnsupportedWhere(t *testing.T) {
	for _, sql := range []string{
		"UPDATE t SET value = 1 WHERE entity = 'a' OR entity = 'b'",
		"UPDATE t SET value = 1 WHERE entity = 'a' AND time > 5",
		"UPDATE t SET value = 1 WHERE entity IN ('a')",
		"UPDATE t SET value = 1 WHERE NOT entity = 'a'",
		"UPDATE t SET value = 1 WHERE (entity = 'a')",
	} {
		_, err := Convert(sql)
		require.ErrorIs(t, err, ErrUnsupportedWhere, sql)
		require.ErrorIs(t, err, ErrArgument, sql)
	}
}

func TestConvertUnsupportedStatement(t *testing.T) {
	for _, sql := range []string{
		"SELECT * FROM temperature",
		"DELETE FROM temperature",
		"CREATE TABLE t (a int)",
	} {
		_, err := Convert(sql)
		require.ErrorIs(t, err, ErrUnsupportedStatement, sql)
		require.ErrorIs(t, err, ErrArgument, sql)
	}
}

func TestConvertErrors(t *testing.T) {
	_, err := Convert("INSERT INTO t (entity, time, value) VALUES ('e', 1)")
	require.ErrorIs(t, err, ErrValueCount)

	_, err = Convert("INSERT INTO t (entity, time, value) VALUES (?, ?, ?)", "e", 1)
	require.ErrorIs(t, err, ErrMissingParameters)

	_, err = Convert("INSERT INTO t (entity, time, value) VALUES ('e', 1, 2)", 5)
	require.ErrorIs(t, err, ErrTooManyParameters)

	_, err = Convert("INSERT INTO t (entity, time, value) VALUES ('e', 1, 'abc')")
	require.ErrorIs(t, err, ErrInvalidValue)

	_, err = Convert("INSERT INTO t (entity, time, metric) VALUES ('e', 1, 'm')")
	require.ErrorIs(t, err, ErrInvalidValue)

	_, err = Convert("INSERT INTO t (entity, time, entity.colour) VALUES ('e', 1, 'red')")
	require.ErrorIs(t, err, ErrInvalidValue)

	_, err = Convert("INSERT INTO t (time, value) VALUES (1, 2)")
	require.ErrorIs(t, err, command.ErrInvalidCommand)
	require.ErrorIs(t, err, ErrArgument)

	_, err = Convert("")
	require.ErrorIs(t, err, ErrSyntax)

	_, err = Convert("INSERT INTO t (entity, time) VALUES ('unterminated, 1)")
	require.ErrorIs(t, err, ErrSyntax)
}

func TestSyntaxErrorPosition(t *testing.T) {
	_, err := Convert("INSERT INTO t (entity, time) VALUES ('e' 1)")
	var serr *Error
	require.True(t, errors.As(err, &serr))
	require.Equal(t, 41, serr.Pos)
	require.ErrorIs(t, err, ErrSyntax)
}

func TestConvertMultiMetricTable(t *testing.T) {
	out, err := Convert("INSERT INTO atsd_series (entity, time, metric, value, cpu_busy, status) " +
		"VALUES ('e1', 1000, 'mem', 5, 12, 'ok')")
	require.NoError(t, err)
	require.Equal(t, "series e:e1 ms:1000 m:cpu_busy=12 m:mem=5 x:status=\"ok\"\n", out)

	_, err = Convert("INSERT INTO atsd_series (entity, time, value) VALUES ('e1', 1000, 5)")
	require.ErrorIs(t, err, ErrInvalidValue)
}

func TestConvertExtraColumns(t *testing.T) {
	out, err := Convert("INSERT INTO t (entity, time, value, status, load) VALUES ('e', 1, 2, null, ?)", "high")
	require.NoError(t, err)
	require.Equal(t, "series e:e ms:1 m:t=2 x:load=\"high\"\n", out)

	out, err = Convert("INSERT INTO t (entity, time, value, tags.code) VALUES ('e', 1, 2, 007)")
	require.NoError(t, err)
	require.Equal(t, "series e:e ms:1 t:code=\"007\" m:t=2\n", out)
}

func TestConvertKeywordColumns(t *testing.T) {
	out, err := Convert("INSERT INTO t (entity, time, set, values) VALUES ('e', 1, 2, 3)")
	require.NoError(t, err)
	require.Equal(t, "series e:e ms:1 m:set=2 m:values=3\n", out)

	out, err = Convert("UPDATE t SET set = 2 WHERE entity = 'e' AND time = 1")
	require.NoError(t, err)
	require.Equal(t, "series e:e ms:1 m:set=2\n", out)
}

func TestConvertQuotedIdentifiers(t *testing.T) {
	out, err := Convert(`INSERT INTO "cpu busy" (entity, time, value, tags."unit name", ` + "`x y`" + `) VALUES ('e1', 1000, 5, 'pct', 'z')`)
	require.NoError(t, err)
	require.Equal(t, "series e:e1 ms:1000 t:\"unit name\"=\"pct\" m:\"cpu busy\"=5 x:\"x y\"=\"z\"\n", out)
}

func TestConvertEntityAndMetricColumns(t *testing.T) {
	out, err := Convert("INSERT INTO temperature (entity.tags.site, entity, time, value, metric.units, metric.tags.kind) " +
		"VALUES ('svl', 'e1', 1000, 1, 'C', 'sensor')")
	require.NoError(t, err)
	require.Equal(t, "series e:e1 ms:1000 m:temperature=1\n"+
		"entity e:e1 t:site=\"svl\"\n"+
		"metric m:temperature u:\"C\" t:kind=\"sensor\"\n", out)
}

func TestConvertMultiRowValues(t *testing.T) {
	out, err := Convert("INSERT INTO t (entity, time, value) VALUES ('a', 1, ?), ('b', 2, ?);", 10, 20)
	require.NoError(t, err)
	require.Equal(t, "series e:a ms:1 m:t=10\nseries e:b ms:2 m:t=20\n", out)
}

func TestConvertComments(t *testing.T) {
	out, err := Convert("-- load\nINSERT INTO t (entity, time, value) /* c */ VALUES ('e1', 1, 2)")
	require.NoError(t, err)
	require.Equal(t, "series e:e1 ms:1 m:t=2\n", out)
}

func TestConvertBatch(t *testing.T) {
	f := gofakeit.New(7)
	rows := make([][]any, 25)
	for i := range rows {
		rows[i] = []any{
			f.Word() + "-" + strconv.Itoa(i),
			int64(1500000000000 + i),
			f.Float64Range(-100, 100),
		}
	}

	out, err := ConvertBatch("INSERT INTO temperature (entity, time, value) VALUES (?, ?, ?)", rows)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(out, "\n"))

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, len(rows))
	for i, line := range lines {
		cmd, err := command.Parse(line)
		require.NoError(t, err)
		require.Equal(t, rows[i][0], cmd.Target())
		ms, ok := cmd.Time()
		require.True(t, ok)
		require.Equal(t, rows[i][1], ms)
		v, ok := cmd.Values.Get("temperature")
		require.True(t, ok)
		require.Equal(t, rows[i][2], v.Float64())
	}

	out, err = ConvertBatch("INSERT INTO temperature (entity, time, value) VALUES (?, ?, ?)", nil)
	require.NoError(t, err)
	require.Empty(t, out)

	_, err = ConvertBatch("INSERT INTO temperature (entity, time, value) VALUES (?, ?, ?)", [][]any{{"e", 1, 2}, {"e"}})
	require.ErrorIs(t, err, ErrMissingParameters)
	require.Contains(t, err.Error(), "batch row 1")
}

func TestConverterCache(t *testing.T) {
	for _, c := range []*Converter{New(), New(WithCacheSize(0)), New(WithCacheSize(1), WithCacheTTL(time.Millisecond))} {
		for range 3 {
			n, err := c.NumInput("INSERT INTO t (entity, time, value) VALUES (?, 1, ?)")
			require.NoError(t, err)
			require.Equal(t, 2, n)

			out, err := c.Convert("INSERT INTO t (entity, time, value) VALUES (?, 1, ?)", "e", 3)
			require.NoError(t, err)
			require.Equal(t, "series e:e ms:1 m:t=3\n", out)
		}
	}
}

func TestIsWrite(t *testing.T) {
	require.True(t, IsWrite("  insert into t (entity) values ('e')"))
	require.True(t, IsWrite("/* batch */ UPDATE t SET value = 1"))
	require.False(t, IsWrite("SELECT 1"))
	require.False(t, IsWrite(""))
	require.False(t, IsWrite("'unterminated"))
}
