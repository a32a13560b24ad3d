// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// ReadFile reads a secret from path, trimming surrounding whitespace.
// An empty secret is an error.
func ReadFile(path string) (*Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	buffer, err := fromRaw(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return buffer, nil
}

// Read reads a secret from r until EOF, trimming surrounding
// whitespace. An empty secret is an error.
func Read(r io.Reader) (*Buffer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		Zero(data)
		return nil, fmt.Errorf("reading secret: %w", err)
	}
	return fromRaw(data)
}

func fromRaw(data []byte) (*Buffer, error) {
	defer Zero(data)
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("secret is empty")
	}
	return NewFromBytes(trimmed)
}
