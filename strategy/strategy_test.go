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

package strategy

import (
	"fmt"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/axibase/atsd-sdk/go/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// result builds a body with a header and n rows: e<i>,<i>,"t <i>".
func result(n int) io.ReadCloser {
	var b strings.Builder
	b.WriteString("entity,value,text\r\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "e%d,%d,\"t %d\"\r\n", i, i, i)
	}
	return io.NopCloser(strings.NewReader(b.String()))
}

func open(t *testing.T, name string, n int) Strategy {
	t.Helper()
	s, err := New(name, Options{TempDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	require.NoError(t, s.Store(result(n)))
	header, err := s.OpenToRead(nil)
	require.NoError(t, err)
	require.Equal(t, []string{"entity", "value", "text"}, header)
	return s
}

func requireRows(t *testing.T, rows [][]any, from, n int) {
	t.Helper()
	require.Len(t, rows, n)
	for i, row := range rows {
		k := from + i
		require.Equal(t, []any{fmt.Sprintf("e%d", k), int64(k), fmt.Sprintf("t %d", k)}, row)
	}
}

func TestShortPageMeansEnd(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			s := open(t, name, 37)
			rows, err := s.Fetch(0, 50)
			require.NoError(t, err)
			requireRows(t, rows, 0, 37)
		})
	}
}

func TestPaging(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			s := open(t, name, 37)
			var offset int64
			for _, want := range []int{10, 10, 10, 7} {
				rows, err := s.Fetch(offset, 10)
				require.NoError(t, err)
				requireRows(t, rows, int(offset), want)
				offset += int64(len(rows))
			}
		})
	}
}

func TestFetchAll(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			s := open(t, name, 12)
			rows, err := s.Fetch(0, 0)
			require.NoError(t, err)
			requireRows(t, rows, 0, 12)
		})
	}
}

func TestSkipAhead(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			s := open(t, name, 37)
			rows, err := s.Fetch(30, 5)
			require.NoError(t, err)
			requireRows(t, rows, 30, 5)

			rows, err = s.Fetch(100, 5)
			require.NoError(t, err)
			require.Empty(t, rows)
		})
	}
}

func TestRefetchEarlierOffset(t *testing.T) {
	for _, name := range []string{Memory, File} {
		t.Run(name, func(t *testing.T) {
			s := open(t, name, 37)
			_, err := s.Fetch(0, 50)
			require.NoError(t, err)

			rows, err := s.Fetch(5, 10)
			require.NoError(t, err)
			requireRows(t, rows, 5, 10)

			rows, err = s.Fetch(0, 3)
			require.NoError(t, err)
			requireRows(t, rows, 0, 3)
		})
	}
}

func TestStreamReplayAndRewind(t *testing.T) {
	s := open(t, Stream, 37)
	first, err := s.Fetch(0, 10)
	require.NoError(t, err)
	requireRows(t, first, 0, 10)

	again, err := s.Fetch(0, 10)
	require.NoError(t, err)
	require.Equal(t, first, again)

	rows, err := s.Fetch(10, 10)
	require.NoError(t, err)
	requireRows(t, rows, 10, 10)

	_, err = s.Fetch(0, 10)
	require.ErrorIs(t, err, ErrRewind)
}

func TestQuotedObjectKeepsText(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			s, err := New(name, Options{TempDir: t.TempDir()})
			require.NoError(t, err)
			defer s.Close()

			body := "a,b,c\n\"42\",42,\n\"1.5\",1.5,x,extra\n"
			require.NoError(t, s.Store(io.NopCloser(strings.NewReader(body))))
			_, err = s.OpenToRead(nil)
			require.NoError(t, err)

			rows, err := s.Fetch(0, 10)
			require.NoError(t, err)
			require.Equal(t, [][]any{
				{"42", int64(42), nil},
				{"1.5", 1.5, "x", "extra"},
			}, rows)
		})
	}
}

func TestTypedColumns(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	require.NoError(t, s.Store(io.NopCloser(strings.NewReader("v,n\n2.5,abc\n,\n"))))
	_, err := s.OpenToRead([]types.Column{
		{Index: 1, Name: "v", Type: types.Lookup(types.Double)},
		{Index: 2, Name: "n", Type: types.Lookup(types.Integer)},
	})
	require.NoError(t, err)

	rows, err := s.Fetch(0, 10)
	require.NoError(t, err)
	require.Equal(t, [][]any{{2.5, nil}, {nil, nil}}, rows)
}

func TestFileRemovedOnClose(t *testing.T) {
	dir := t.TempDir()
	s := NewFile(Options{TempDir: dir})
	require.NoError(t, s.Store(result(3)))
	require.FileExists(t, s.Path())
	require.Equal(t, dir, s.Path()[:len(dir)])

	require.NoError(t, s.Close())
	_, err := os.Stat(s.Path())
	require.True(t, os.IsNotExist(err))
	require.NoError(t, s.Close())

	_, err = s.Fetch(0, 1)
	require.ErrorIs(t, err, ErrClosed)
}

func TestLifecycleErrors(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			s, err := New(name, Options{TempDir: t.TempDir()})
			require.NoError(t, err)

			_, err = s.OpenToRead(nil)
			require.ErrorIs(t, err, ErrNotStored)

			require.NoError(t, s.Store(result(1)))
			_, err = s.Fetch(0, 1)
			require.ErrorIs(t, err, ErrNotOpened)

			_, err = s.OpenToRead(nil)
			require.NoError(t, err)
			_, err = s.Fetch(-1, 1)
			require.Error(t, err)

			require.NoError(t, s.Close())
			require.NoError(t, s.Close())
			_, err = s.Fetch(0, 1)
			require.ErrorIs(t, err, ErrClosed)
		})
	}
}

func TestEmptyBody(t *testing.T) {
	s := NewMemory()
	defer s.Close()
	require.NoError(t, s.Store(io.NopCloser(strings.NewReader(""))))
	_, err := s.OpenToRead(nil)
	require.Error(t, err)
}

func TestNew(t *testing.T) {
	s, err := New("", Options{})
	require.NoError(t, err)
	require.IsType(t, &MemoryStrategy{}, s)

	s, err = New("FILE", Options{})
	require.NoError(t, err)
	require.IsType(t, &FileStrategy{}, s)

	s, err = New("stream", Options{})
	require.NoError(t, err)
	require.IsType(t, &StreamStrategy{}, s)

	_, err = New("tape", Options{})
	require.ErrorIs(t, err, ErrUnknownStrategy)
	require.Equal(t, []string{"file", "memory", "stream"}, Names())
}
