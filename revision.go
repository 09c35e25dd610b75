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
	"io"
	"net/url"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

var (
	// embeddedSchemaSince is the first revision that can embed the schema in the body.
	embeddedSchemaSince = semver.MustParse("16620")
	// cancelSince is the first revision with the query cancel endpoint.
	cancelSince = semver.MustParse("16855")
)

// Revision is the build revision of the store. The zero value is an
// unknown revision, which supports neither embedded schema nor cancel.
type Revision struct {
	v *semver.Version
}

// ParseRevision parses a revision number such as "16855".
func ParseRevision(s string) (Revision, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Revision{}, nil
	}
	v, err := semver.NewVersion(s)
	if err != nil {
		return Revision{}, errors.Wrapf(err, "invalid revision %q", s)
	}
	return Revision{v: v}, nil
}

// Known reports whether the revision was resolved.
func (r Revision) Known() bool {
	return r.v != nil
}

func (r Revision) String() string {
	if r.v == nil {
		return "unknown"
	}
	return r.v.Original()
}

// EmbedsSchema reports whether the store can embed the schema in the body.
func (r Revision) EmbedsSchema() bool {
	return r.v != nil && !r.v.LessThan(embeddedSchemaSince)
}

// SupportsCancel reports whether the store has the cancel endpoint.
func (r Revision) SupportsCancel() bool {
	return r.v != nil && !r.v.LessThan(cancelSince)
}

// fetchRevision requests the revision from the version endpoint.
func fetchRevision(ctx context.Context, hc HTTPClient, endpoint string) (string, error) {
	u, err := url.Parse(endpoint + versionPath)
	if err != nil {
		return "", err
	}
	resp, err := hc.Get(ctx, u)
	if err != nil {
		return "", errors.Wrap(err, "request version")
	}
	if err := checkStatusCodeOK(resp); err != nil {
		return "", err
	}
	defer sneakyBodyClose(resp.Body)
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return "", errors.Wrap(err, "read version")
	}
	rev := gjson.GetBytes(data, "buildInfo.revisionNumber")
	if !rev.Exists() {
		return "", errors.New("version response has no buildInfo.revisionNumber")
	}
	return rev.String(), nil
}
