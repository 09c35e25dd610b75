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

package itcases

import (
	"context"
	"testing"

	"github.com/gkampitakis/go-snaps/snaps"
	"github.com/stretchr/testify/require"
)

func TestQueryUnknownTable(t *testing.T) {
	c := NewClient(t)
	defer c.Close()

	ctx := context.Background()

	s := c.Statement(`SELECT entity, value FROM "atsd_sdk_no_such_metric" WHERE time > now - 1 * MINUTE`)
	defer s.Close()
	_, err := s.Query(ctx)
	require.Error(t, err)
	snaps.MatchSnapshot(t, err.Error())
}

func TestQuerySyntaxError(t *testing.T) {
	c := NewClient(t)
	defer c.Close()

	ctx := context.Background()

	s := c.Statement("SELECT FROM WHERE")
	defer s.Close()
	_, err := s.Query(ctx)
	require.Error(t, err)
	snaps.MatchSnapshot(t, err.Error())
}
