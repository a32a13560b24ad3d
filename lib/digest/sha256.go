// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// SHA256 is a raw SHA-256 digest.
type SHA256 [32]byte

// String returns the lowercase hex encoding used in sidecar files.
func (d SHA256) String() string { return hex.EncodeToString(d[:]) }

// HashFile streams the file at path through SHA-256.
func HashFile(path string) (SHA256, error) {
	file, err := os.Open(path)
	if err != nil {
		return SHA256{}, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return SHA256{}, fmt.Errorf("hashing %s: %w", path, err)
	}

	var digest SHA256
	copy(digest[:], hasher.Sum(nil))
	return digest, nil
}

// ParseSHA256 parses a 64-character hex digest.
func ParseSHA256(text string) (SHA256, error) {
	var digest SHA256
	decoded, err := hex.DecodeString(text)
	if err != nil {
		return digest, fmt.Errorf("parsing sha256 digest: %w", err)
	}
	if len(decoded) != len(digest) {
		return digest, fmt.Errorf("sha256 digest is %d bytes, want %d", len(decoded), len(digest))
	}
	copy(digest[:], decoded)
	return digest, nil
}
