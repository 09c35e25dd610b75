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
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/axibase/atsd-sdk/go/internal/testkit"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

func newTestClient(t *testing.T, store *testkit.Store, opts ...func(*Config)) *Client {
	t.Helper()
	cfg := &Config{
		Endpoint: store.Endpoint(),
		Login:    store.Login,
		Password: store.Password,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	c, err := NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, c.Close()) })
	return c
}

var seriesColumns = []testkit.Column{
	{Name: "entity", Datatype: "string", Table: "cpu_busy", Required: true},
	{Name: "datetime", Datatype: "xsd:dateTimeStamp", Table: "cpu_busy", Required: true},
	{Name: "value", Datatype: "double", Table: "cpu_busy"},
}

// seriesCSV builds n rows of cpu_busy samples one minute apart.
func seriesCSV(n int) string {
	var b strings.Builder
	b.WriteString("entity,datetime,value\r\n")
	start := time.Date(2017, 6, 21, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		ts := start.Add(time.Duration(i) * time.Minute).Format("2006-01-02T15:04:05.000Z")
		fmt.Fprintf(&b, "nurswgvml%03d,%s,%d.5\r\n", i%7, ts, i)
	}
	return b.String()
}
