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
	"encoding/base64"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/axibase/atsd-sdk/go/internal/testkit"
	"github.com/axibase/atsd-sdk/go/types"
)

func TestSplitEmbeddedSchema(t *testing.T) {
	schema := testkit.Schema(seriesColumns)
	rows := seriesCSV(200)
	body := "#" + base64.StdEncoding.EncodeToString(schema) + "\n" + rows

	data, rest, err := splitEmbeddedSchema(strings.NewReader(body))
	require.NoError(t, err)
	require.JSONEq(t, string(schema), string(data))
	out, err := io.ReadAll(rest)
	require.NoError(t, err)
	require.Equal(t, rows, string(out))
}

func TestSplitEmbeddedSchemaAbsent(t *testing.T) {
	for _, body := range []string{"", "#e", "entity,value\r\ne1,1\r\n", "#comment\n"} {
		data, rest, err := splitEmbeddedSchema(strings.NewReader(body))
		require.NoError(t, err)
		require.Nil(t, data)
		out, err := io.ReadAll(rest)
		require.NoError(t, err)
		require.Equal(t, body, string(out))
	}
}

func TestSplitEmbeddedSchemaCorrupt(t *testing.T) {
	_, _, err := splitEmbeddedSchema(strings.NewReader("#eyJ!!!\nentity\r\n"))
	require.Error(t, err)
}

func TestHeaderSchema(t *testing.T) {
	schema := testkit.Schema(seriesColumns)
	h := http.Header{}
	h.Add("Link", `<https://atsd.example.com/api/sql/meta>; rel="help"`)
	h.Add("Link", `<data:application/csvm+json;base64,`+base64.StdEncoding.EncodeToString(schema)+`>; rel="describedBy"; type="application/csvm+json"`)

	data, ok, err := headerSchema(h)
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, string(schema), string(data))

	_, ok, err = headerSchema(http.Header{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestParseSchema(t *testing.T) {
	data := []byte(`{"tableSchema":{"columns":[
		{"columnIndex":1,"name":"entity","titles":["Entity"],"datatype":"string","required":true},
		{"columnIndex":2,"name":"time","datatype":{"base":"long"},"table":"cpu_busy"},
		{"name":"tags","datatype":"java_object"},
		{"name":"level","datatype":"geometry"}
	]}}`)

	columns, err := parseSchema(data, false)
	require.NoError(t, err)
	require.Len(t, columns, 4)
	require.Equal(t, "Entity", columns[0].Label)
	require.False(t, columns[0].Nullable)
	require.Equal(t, types.BigInt, columns[1].Type.Kind)
	require.Equal(t, "cpu_busy", columns[1].Table)
	require.Equal(t, "time", columns[1].Label)
	require.Equal(t, 3, columns[2].Index)
	require.Equal(t, types.Object, columns[2].Type.Kind)
	require.Equal(t, types.Object, columns[3].Type.Kind)

	columns, err = parseSchema(data, true)
	require.NoError(t, err)
	require.Equal(t, types.Double, columns[1].Type.Kind)
	require.Equal(t, types.String, columns[2].Type.Kind)

	_, err = parseSchema([]byte(`{"columns":[]}`), false)
	require.Error(t, err)
	_, err = parseSchema([]byte(`not json`), false)
	require.Error(t, err)
}
