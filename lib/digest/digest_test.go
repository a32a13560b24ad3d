// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package digest

import (
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"
)

func TestHashFile(t *testing.T) {
	content := []byte("shipwright dmg bytes")
	path := filepath.Join(t.TempDir(), "Q.dmg")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if want := SHA256(sha256.Sum256(content)); got != want {
		t.Errorf("HashFile = %s, want %s", got, want)
	}

	parsed, err := ParseSHA256(got.String())
	if err != nil {
		t.Fatalf("ParseSHA256: %v", err)
	}
	if parsed != got {
		t.Errorf("ParseSHA256(String()) = %s, want %s", parsed, got)
	}
}

func TestHashFileMissing(t *testing.T) {
	if _, err := HashFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("HashFile should fail for a missing file")
	}
}

func TestParseSHA256Rejects(t *testing.T) {
	for _, input := range []string{"zz", "abcd", ""} {
		if _, err := ParseSHA256(input); err == nil {
			t.Errorf("ParseSHA256(%q) should fail", input)
		}
	}
}

func buildTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
}

func TestFingerprintTreeIsContentAddressed(t *testing.T) {
	files := map[string]string{
		"Contents/Info.plist":      "<plist/>",
		"Contents/MacOS/q_desktop": "binary",
		"Contents/Resources/a.txt": "a",
	}
	first := filepath.Join(t.TempDir(), "Q.app")
	second := filepath.Join(t.TempDir(), "Other.app")
	buildTree(t, first, files)
	buildTree(t, second, files)

	firstPrint, err := FingerprintPath(first)
	if err != nil {
		t.Fatalf("FingerprintPath: %v", err)
	}
	secondPrint, err := FingerprintPath(second)
	if err != nil {
		t.Fatalf("FingerprintPath: %v", err)
	}
	if firstPrint != secondPrint {
		t.Errorf("identical trees fingerprint differently: %s vs %s", firstPrint, secondPrint)
	}

	if err := os.WriteFile(filepath.Join(second, "Contents/_CodeSignature"), []byte("sig"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	changed, err := FingerprintPath(second)
	if err != nil {
		t.Fatalf("FingerprintPath: %v", err)
	}
	if changed == firstPrint {
		t.Error("adding a file did not change the fingerprint")
	}
}

func TestFingerprintSensitiveToPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qterm")
	if err := os.WriteFile(path, []byte("shim"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	before, err := FingerprintPath(path)
	if err != nil {
		t.Fatalf("FingerprintPath: %v", err)
	}
	if err := os.Chmod(path, 0o755); err != nil {
		t.Fatalf("Chmod: %v", err)
	}
	after, err := FingerprintPath(path)
	if err != nil {
		t.Fatalf("FingerprintPath: %v", err)
	}
	if before == after {
		t.Error("chmod +x did not change the fingerprint")
	}
	if before.IsZero() {
		t.Error("fingerprint should not be zero")
	}
}
