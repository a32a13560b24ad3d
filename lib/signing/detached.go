// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signing

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"github.com/bureau-foundation/shipwright/lib/digest"
)

// SignatureExtension is appended to an artifact path to name its
// detached signature.
const SignatureExtension = ".sig"

// ErrBadSignature is returned when a detached signature does not match.
var ErrBadSignature = errors.New("detached signature does not match")

// detachedMessage is what gets signed: a domain prefix and the SHA-256
// of the artifact, so signatures cannot be replayed across uses.
func detachedMessage(path string) ([]byte, error) {
	sum, err := digest.HashFile(path)
	if err != nil {
		return nil, err
	}
	return append([]byte("shipwright-artifact-v1\x00"), sum[:]...), nil
}

// SignDetached writes a base64 Ed25519 signature of path to
// "<path>.sig" and returns the signature path.
func SignDetached(path string, key ed25519.PrivateKey) (string, error) {
	if len(key) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("signing key is %d bytes, want %d", len(key), ed25519.PrivateKeySize)
	}
	message, err := detachedMessage(path)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	signature := ed25519.Sign(key, message)
	signaturePath := path + SignatureExtension
	encoded := base64.StdEncoding.EncodeToString(signature) + "\n"
	if err := os.WriteFile(signaturePath, []byte(encoded), 0o644); err != nil {
		return "", err
	}
	return signaturePath, nil
}

// VerifyDetached checks the signature at "<path>.sig" against key.
func VerifyDetached(path string, key ed25519.PublicKey) error {
	encoded, err := os.ReadFile(path + SignatureExtension)
	if err != nil {
		return err
	}
	signature, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(encoded)))
	if err != nil {
		return fmt.Errorf("decoding signature for %s: %w", path, err)
	}
	message, err := detachedMessage(path)
	if err != nil {
		return fmt.Errorf("hashing %s: %w", path, err)
	}
	if !ed25519.Verify(key, message, signature) {
		return fmt.Errorf("%w: %s", ErrBadSignature, path)
	}
	return nil
}
