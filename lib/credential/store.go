// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"

	"github.com/bureau-foundation/shipwright/lib/secret"
)

// Extension is the file suffix of sealed credentials.
const Extension = ".age"

// ErrNotFound is returned when no sealed file exists for a reference.
var ErrNotFound = errors.New("credential not found")

var referencePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateReference rejects references that are not plain file names.
func ValidateReference(reference string) error {
	if !referencePattern.MatchString(reference) {
		return fmt.Errorf("invalid credential reference %q: want letters, digits, '.', '_' or '-'", reference)
	}
	return nil
}

// Store opens sealed credentials in one directory.
type Store struct {
	dir        string
	identities []age.Identity
}

// Open returns a store over dir using the age identities in
// identityPath. The identity file is read through locked memory.
func Open(dir, identityPath string) (*Store, error) {
	identityBuffer, err := secret.ReadFile(identityPath)
	if err != nil {
		return nil, fmt.Errorf("reading identity: %w", err)
	}
	defer identityBuffer.Close()

	identities, err := age.ParseIdentities(bytes.NewReader(identityBuffer.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("parsing identity %s: %w", identityPath, err)
	}
	return &Store{dir: dir, identities: identities}, nil
}

// Path returns the sealed file path for reference.
func (s *Store) Path(reference string) string {
	return filepath.Join(s.dir, reference+Extension)
}

// Read decrypts reference into a locked buffer. The caller must Close
// it.
func (s *Store) Read(reference string) (*secret.Buffer, error) {
	if err := ValidateReference(reference); err != nil {
		return nil, err
	}
	file, err := os.Open(s.Path(reference))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, reference)
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader, err := age.Decrypt(armor.NewReader(file), s.identities...)
	if err != nil {
		return nil, fmt.Errorf("decrypting %s: %w", reference, err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("reading %s: %w", reference, err)
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("credential %s is empty", reference)
	}
	return secret.NewFromBytes(plaintext)
}

// NotaryCredential authenticates notarytool submissions.
type NotaryCredential struct {
	AppleID  string `json:"apple_id"`
	Password string `json:"password"`
	TeamID   string `json:"team_id,omitempty"`
}

// Notary decodes reference as a JSON [NotaryCredential].
func (s *Store) Notary(reference string) (NotaryCredential, error) {
	buffer, err := s.Read(reference)
	if err != nil {
		return NotaryCredential{}, err
	}
	defer buffer.Close()

	var credential NotaryCredential
	if err := json.Unmarshal(buffer.Bytes(), &credential); err != nil {
		return NotaryCredential{}, fmt.Errorf("decoding notary credential %s: %w", reference, err)
	}
	if credential.AppleID == "" || credential.Password == "" {
		return NotaryCredential{}, fmt.Errorf("notary credential %s needs apple_id and password", reference)
	}
	return credential, nil
}

// SigningKey decodes reference as a base64 Ed25519 seed (32 bytes) or
// private key (64 bytes).
func (s *Store) SigningKey(reference string) (ed25519.PrivateKey, error) {
	buffer, err := s.Read(reference)
	if err != nil {
		return nil, err
	}
	defer buffer.Close()

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(buffer.String()))
	if err != nil {
		return nil, fmt.Errorf("decoding signing key %s: %w", reference, err)
	}
	defer secret.Zero(raw)
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize]), nil
	default:
		return nil, fmt.Errorf("signing key %s is %d bytes, want %d or %d", reference, len(raw), ed25519.SeedSize, ed25519.PrivateKeySize)
	}
}

// Seal encrypts plaintext to recipients and writes it as reference in
// dir, replacing any previous file atomically. Returns the file path.
func Seal(dir, reference string, plaintext []byte, recipientKeys []string) (string, error) {
	if err := ValidateReference(reference); err != nil {
		return "", err
	}
	if len(recipientKeys) == 0 {
		return "", fmt.Errorf("at least one recipient is required")
	}
	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return "", fmt.Errorf("parsing recipient %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	var sealed bytes.Buffer
	armored := armor.NewWriter(&sealed)
	writer, err := age.Encrypt(armored, recipients...)
	if err != nil {
		return "", fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return "", fmt.Errorf("encrypting: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalizing encryption: %w", err)
	}
	if err := armored.Close(); err != nil {
		return "", fmt.Errorf("finalizing armor: %w", err)
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	path := filepath.Join(dir, reference+Extension)
	temporary := path + ".tmp"
	if err := os.WriteFile(temporary, sealed.Bytes(), 0600); err != nil {
		return "", err
	}
	if err := os.Rename(temporary, path); err != nil {
		os.Remove(temporary)
		return "", err
	}
	return path, nil
}

// Recipients returns the X25519 public keys of the identities in
// identityPath, so a host can seal credentials to itself.
func Recipients(identityPath string) ([]string, error) {
	identityBuffer, err := secret.ReadFile(identityPath)
	if err != nil {
		return nil, fmt.Errorf("reading identity: %w", err)
	}
	defer identityBuffer.Close()

	identities, err := age.ParseIdentities(bytes.NewReader(identityBuffer.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("parsing identity %s: %w", identityPath, err)
	}
	var keys []string
	for _, identity := range identities {
		if x25519, ok := identity.(*age.X25519Identity); ok {
			keys = append(keys, x25519.Recipient().String())
		}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%s contains no X25519 identities", identityPath)
	}
	return keys, nil
}
