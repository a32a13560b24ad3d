// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

func TestReadResponse(t *testing.T) {
	t.Run("normal body", func(t *testing.T) {
		data, err := ReadResponse(bytes.NewReader([]byte(`{"signingRequestId":"r-1"}`)))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(data) != `{"signingRequestId":"r-1"}` {
			t.Fatalf("got %q", data)
		}
	})

	t.Run("read error propagates", func(t *testing.T) {
		if _, err := ReadResponse(&failReader{}); err == nil {
			t.Fatal("expected error from failing reader")
		}
	})
}

func TestDecodeResponse(t *testing.T) {
	t.Run("valid JSON", func(t *testing.T) {
		var result struct {
			SigningRequest struct {
				Status string `json:"status"`
			} `json:"signingRequest"`
		}
		body := bytes.NewReader([]byte(`{"signingRequest":{"status":"inProgress"}}`))
		if err := DecodeResponse(body, &result); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.SigningRequest.Status != "inProgress" {
			t.Fatalf("status: got %q", result.SigningRequest.Status)
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		if err := DecodeResponse(bytes.NewReader([]byte(`not json`)), &struct{}{}); err == nil {
			t.Fatal("expected error for invalid JSON")
		}
	})
}

func TestErrorBody(t *testing.T) {
	t.Run("trims", func(t *testing.T) {
		if got := ErrorBody(bytes.NewReader([]byte("access denied\n"))); got != "access denied" {
			t.Fatalf("got %q", got)
		}
	})

	t.Run("truncates", func(t *testing.T) {
		got := ErrorBody(strings.NewReader(strings.Repeat("x", 4096)))
		if len(got) != maxErrorBody {
			t.Fatalf("got %d bytes, want %d", len(got), maxErrorBody)
		}
	})

	t.Run("read error returns empty", func(t *testing.T) {
		if got := ErrorBody(&failReader{}); got != "" {
			t.Fatalf("expected empty from failing reader, got %q", got)
		}
	})
}

// failReader always returns an error on Read.
type failReader struct{}

func (*failReader) Read([]byte) (int, error) {
	return 0, fmt.Errorf("simulated read failure")
}
