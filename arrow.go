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
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/axibase/atsd-sdk/go/types"
)

// ArrowSchema maps result columns onto an Arrow schema. Decimal and Double
// become float64, Object becomes utf8.
func ArrowSchema(columns []types.Column) *arrow.Schema {
	fields := make([]arrow.Field, len(columns))
	for i := range columns {
		fields[i] = arrow.Field{
			Name:     columns[i].Name,
			Type:     arrowType(columns[i].Type),
			Nullable: true,
		}
	}
	return arrow.NewSchema(fields, nil)
}

func arrowType(vt *types.ValueType) arrow.DataType {
	if vt == nil {
		return arrow.BinaryTypes.String
	}
	switch vt.Kind {
	case types.SmallInt:
		return arrow.PrimitiveTypes.Int16
	case types.Integer:
		return arrow.PrimitiveTypes.Int32
	case types.BigInt:
		return arrow.PrimitiveTypes.Int64
	case types.Boolean:
		return arrow.FixedWidthTypes.Boolean
	case types.Float:
		return arrow.PrimitiveTypes.Float32
	case types.Decimal, types.Double:
		return arrow.PrimitiveTypes.Float64
	case types.Timestamp:
		return arrow.FixedWidthTypes.Timestamp_ms
	default:
		return arrow.BinaryTypes.String
	}
}

// RecordFromRows builds an Arrow record from decoded rows. The caller must
// release the record.
func RecordFromRows(columns []types.Column, rows [][]any) (arrow.Record, error) {
	schema := ArrowSchema(columns)
	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()

	for r, row := range rows {
		for i := range columns {
			var v any
			if i < len(row) {
				v = row[i]
			}
			if err := appendValue(b.Field(i), v); err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", r, columns[i].Name, err)
			}
		}
	}
	return b.NewRecord(), nil
}

func appendValue(fb array.Builder, v any) error {
	if v == nil {
		fb.AppendNull()
		return nil
	}
	switch b := fb.(type) {
	case *array.Int16Builder:
		n, ok := v.(int16)
		if !ok {
			return typeMismatch(v, "int16")
		}
		b.Append(n)
	case *array.Int32Builder:
		n, ok := v.(int32)
		if !ok {
			return typeMismatch(v, "int32")
		}
		b.Append(n)
	case *array.Int64Builder:
		n, ok := v.(int64)
		if !ok {
			return typeMismatch(v, "int64")
		}
		b.Append(n)
	case *array.BooleanBuilder:
		x, ok := v.(bool)
		if !ok {
			return typeMismatch(v, "bool")
		}
		b.Append(x)
	case *array.Float32Builder:
		f, ok := v.(float32)
		if !ok {
			return typeMismatch(v, "float32")
		}
		b.Append(f)
	case *array.Float64Builder:
		switch f := v.(type) {
		case float64:
			b.Append(f)
		case *big.Float:
			x, _ := f.Float64()
			b.Append(x)
		default:
			return typeMismatch(v, "float64")
		}
	case *array.TimestampBuilder:
		t, ok := v.(time.Time)
		if !ok {
			return typeMismatch(v, "time.Time")
		}
		b.Append(arrow.Timestamp(t.UnixMilli()))
	case *array.StringBuilder:
		switch s := v.(type) {
		case string:
			b.Append(s)
		case time.Time:
			b.Append(types.FormatISO(s))
		case float64:
			b.Append(types.FormatNumber(s))
		default:
			b.Append(fmt.Sprint(s))
		}
	default:
		return fmt.Errorf("unsupported arrow builder %T", fb)
	}
	return nil
}

func typeMismatch(v any, want string) error {
	return fmt.Errorf("value %v of type %T is not %s", v, v, want)
}

// ToArrowRecord reads the remaining rows into one Arrow record. Results
// without a schema export every column as utf8.
func (r *Rows) ToArrowRecord(ctx context.Context) (arrow.Record, error) {
	columns, ok := r.Columns()
	if !ok {
		header := r.Header()
		columns = make([]types.Column, len(header))
		for i, name := range header {
			columns[i] = types.Column{Index: i + 1, Name: name, Label: name, Nullable: true}
		}
	}
	rows, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	return RecordFromRows(columns, rows)
}

// WriteArrowIPC writes records to w as a base64 encoded Arrow IPC stream.
func WriteArrowIPC(w io.Writer, schema *arrow.Schema, records ...arrow.Record) (err error) {
	encoder := base64.NewEncoder(base64.StdEncoding, w)
	defer func() {
		err = errors.Join(err, encoder.Close())
	}()

	writer := ipc.NewWriter(encoder, ipc.WithSchema(schema))
	defer func() {
		err = errors.Join(err, writer.Close())
	}()

	for _, rec := range records {
		if err := writer.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

// ReadArrowIPC decodes a stream written by WriteArrowIPC. The caller must
// release the records.
func ReadArrowIPC(r io.Reader) ([]arrow.Record, error) {
	reader, err := ipc.NewReader(base64.NewDecoder(base64.StdEncoding, r), ipc.WithDelayReadSchema(true))
	if err != nil {
		return nil, err
	}
	defer reader.Release()

	records := make([]arrow.Record, 0)
	for reader.Next() {
		rec := reader.Record()
		rec.Retain()
		records = append(records, rec)
	}
	return records, reader.Err()
}
