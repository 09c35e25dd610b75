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
	"bufio"
	"encoding/base64"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/axibase/atsd-sdk/go/types"
)

// schemaMarker starts a body whose first line is the Base64 encoded JSON
// schema: '#' followed by the encoding of `{"`.
const schemaMarker = "#eyJ"

const linkDataPrefix = "data:application/csvm+json;base64,"

// parseSchema reads the columns of a CSVW table schema.
func parseSchema(data []byte, odbc2 bool) ([]types.Column, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("schema is not valid JSON")
	}
	cols := gjson.GetBytes(data, "tableSchema.columns")
	if !cols.IsArray() {
		return nil, errors.New("schema has no tableSchema.columns")
	}
	var columns []types.Column
	for i, c := range cols.Array() {
		name := c.Get("name").String()
		label := c.Get("titles")
		if label.IsArray() {
			label = label.Get("0")
		}
		dt := c.Get("datatype")
		if dt.IsObject() {
			dt = dt.Get("base")
		}
		vt, _ := types.ByName(dt.String())
		index := int(c.Get("columnIndex").Int())
		if index == 0 {
			index = i + 1
		}
		col := types.Column{
			Index:    index,
			Name:     name,
			Label:    label.String(),
			Table:    c.Get("table").String(),
			Type:     vt.Compatible(odbc2),
			Nullable: !c.Get("required").Bool(),
		}
		if col.Label == "" {
			col.Label = name
		}
		columns = append(columns, col)
	}
	return columns, nil
}

// headerSchema extracts the schema from a Link header with
// rel="describedBy" and a Base64 data URI target.
func headerSchema(h http.Header) ([]byte, bool, error) {
	for _, v := range h.Values("Link") {
		for v != "" {
			i := strings.IndexByte(v, '<')
			if i < 0 {
				break
			}
			j := strings.IndexByte(v[i:], '>')
			if j < 0 {
				break
			}
			target := v[i+1 : i+j]
			v = v[i+j+1:]
			params := v
			if k := strings.IndexByte(v, '<'); k >= 0 {
				params = v[:k]
			}
			if !strings.Contains(strings.ToLower(params), `rel="describedby"`) ||
				!strings.HasPrefix(target, linkDataPrefix) {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(target[len(linkDataPrefix):])
			if err != nil {
				return nil, false, errors.Wrap(err, "decode schema header")
			}
			return data, true, nil
		}
	}
	return nil, false, nil
}

// splitEmbeddedSchema reads the schema line from the start of body, if
// present. The returned reader continues exactly after the line break and
// serves the remaining bytes unchanged, including those already buffered.
func splitEmbeddedSchema(body io.Reader) ([]byte, io.Reader, error) {
	br := bufio.NewReader(body)
	peek, err := br.Peek(len(schemaMarker))
	if err != nil || string(peek) != schemaMarker {
		// A short body has no schema; the reader still replays it.
		return nil, br, nil
	}
	line, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, nil, errors.Wrap(err, "read schema line")
	}
	enc := strings.TrimRight(line[1:], "\r\n")
	data, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return nil, nil, errors.Wrap(err, "decode embedded schema")
	}
	return data, br, nil
}
