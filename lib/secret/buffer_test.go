// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	buffer, err := New(64)
	if err != nil {
		t.Fatalf("New(64): %v", err)
	}
	defer buffer.Close()

	if buffer.Len() != 64 {
		t.Errorf("Len = %d, want 64", buffer.Len())
	}
	for index, value := range buffer.Bytes() {
		if value != 0 {
			t.Fatalf("byte %d = %d, want zero", index, value)
		}
	}

	for _, size := range []int{0, -1} {
		if _, err := New(size); err == nil {
			t.Errorf("New(%d) should fail", size)
		}
	}
}

func TestNewFromBytesZerosSource(t *testing.T) {
	source := []byte("app-specific-password")
	buffer, err := NewFromBytes(source)
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	defer buffer.Close()

	if buffer.String() != "app-specific-password" {
		t.Errorf("String = %q", buffer.String())
	}
	if !buffer.Equal([]byte("app-specific-password")) || buffer.Equal([]byte("other")) {
		t.Error("Equal gave the wrong answer")
	}
	for index, value := range source {
		if value != 0 {
			t.Fatalf("source byte %d not zeroed", index)
		}
	}
}

func TestCloseIsIdempotentAndPanicsOnRead(t *testing.T) {
	buffer, err := NewFromBytes([]byte("key"))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := buffer.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("Bytes after Close should panic")
		}
	}()
	buffer.Bytes()
}

func TestRead(t *testing.T) {
	buffer, err := Read(strings.NewReader("  hunter2\n"))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	defer buffer.Close()
	if buffer.String() != "hunter2" {
		t.Errorf("Read = %q", buffer.String())
	}

	if _, err := Read(strings.NewReader(" \n\t")); err == nil {
		t.Error("whitespace-only secret should fail")
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.txt")
	if err := os.WriteFile(path, []byte("AGE-SECRET-KEY-1EXAMPLE\n"), 0600); err != nil {
		t.Fatal(err)
	}
	buffer, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	defer buffer.Close()
	if buffer.String() != "AGE-SECRET-KEY-1EXAMPLE" {
		t.Errorf("ReadFile = %q", buffer.String())
	}

	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("missing file should fail")
	}
}
