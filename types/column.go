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

// Column describes one column of a query result.
type Column struct {
	// Index is the 1-based position of the column.
	Index int `json:"columnIndex"`
	// Name is the column name.
	Name string `json:"name"`
	// Label is the display title, defaults to Name.
	Label string `json:"titles"`
	// Table is the table (metric) the column belongs to.
	Table string `json:"table"`
	// Type is the value type of the column.
	Type *ValueType `json:"-"`
	// Nullable reports whether the column can hold nulls.
	Nullable bool `json:"-"`
}

// Decode converts a cell of this column. Columns without a type decode as
// Object.
func (c *Column) Decode(cell string, quoted bool) any {
	t := c.Type
	if t == nil {
		t = valueTypes[Object]
	}
	return t.Decode(cell, quoted)
}
