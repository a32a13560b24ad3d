// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil bounds HTTP response body reads. ReadResponse,
// DecodeResponse and ErrorBody are for JSON API responses from the
// signing service and for error bodies from object storage endpoints;
// artifact downloads are streamed with io.Copy instead.
package netutil

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// MaxResponseSize is the bound on API response body reads: 4 MiB.
// Signing service responses are a few hundred bytes.
const MaxResponseSize int64 = 4 << 20

// maxErrorBody is how much of an error response is kept for messages.
const maxErrorBody = 512

// ReadResponse reads an API response body up to MaxResponseSize bytes.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// DecodeResponse reads an API response body (up to MaxResponseSize
// bytes) and JSON-decodes it into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// ErrorBody returns the start of an error response body, trimmed, for
// diagnostic messages. Read errors are ignored.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
	return strings.TrimSpace(string(data))
}
