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
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

var (
	// ErrUnauthorized is returned when the store rejects the credentials.
	ErrUnauthorized = errors.New("authentication failed: check login and password")
	// ErrNoRequest is returned by CancelQuery before any request was issued.
	ErrNoRequest = errors.New("no request has been issued")
	// ErrNoMetadata is returned when rows are fetched before column metadata is known.
	ErrNoMetadata = errors.New("result metadata is not available")
	// ErrClosed is returned when a closed statement or client is used.
	ErrClosed = errors.New("closed")
	// ErrInvalidState is returned when an operation is not allowed in the current provider state.
	ErrInvalidState = errors.New("invalid statement state")
	// ErrNotQuery is returned when Query is called with an INSERT or UPDATE statement.
	ErrNotQuery = errors.New("statement is not a query")
)

// RemoteError is a failed request to the store.
type RemoteError struct {
	// StatusCode is the HTTP status, zero when no response was received.
	StatusCode int
	// Message is the error reported by the store or the transport.
	Message string
	// Err is the transport error, if any.
	Err error
}

// Unwrap returns the transport error.
func (e *RemoteError) Unwrap() error {
	return e.Err
}

func (e *RemoteError) Error() string {
	if e.StatusCode == 0 {
		return "remote request failed: " + e.Message
	}
	return fmt.Sprintf("remote request failed: %d: %s", e.StatusCode, e.Message)
}

// maxErrorBody limits how much of an error body is read.
const maxErrorBody = 64 << 10

// checkStatusCodeOK classifies a response. On failure the body is consumed
// and closed.
func checkStatusCodeOK(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized:
		sneakyBodyClose(resp.Body)
		return ErrUnauthorized
	}
	defer sneakyBodyClose(resp.Body)
	return parseErrorBody(resp.StatusCode, resp.Body)
}

// parseErrorBody builds a RemoteError from a JSON body of the form
// {"error": "..."}. Other bodies are used as the message verbatim.
func parseErrorBody(status int, body io.Reader) error {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	msg := strings.TrimSpace(string(data))
	if err != nil {
		return &RemoteError{StatusCode: status, Message: msg}
	}
	if gjson.ValidBytes(data) {
		if e := gjson.GetBytes(data, "error"); e.Exists() {
			msg = e.String()
		}
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &RemoteError{StatusCode: status, Message: msg}
}

// sneakyBodyClose closes the body and ignores the error.
// This is useful to close the HTTP response body when we don't care about the error.
func sneakyBodyClose(body io.ReadCloser) {
	if body != nil {
		_ = body.Close()
	}
}
