// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scoped

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func assertMissing(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("%s still exists (stat error: %v)", path, err)
	}
}

func TestWithRemovesOnSuccess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "desktop", "manifest.json")
	err := With(path, []byte(`{"kind":"dmg"}`), func(got string) error {
		data, err := os.ReadFile(got)
		if err != nil {
			return err
		}
		if string(data) != `{"kind":"dmg"}` {
			t.Errorf("content = %q", data)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("With: %v", err)
	}
	assertMissing(t, path)
}

func TestWithRemovesOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "build-config.json")
	failure := errors.New("packager exited 1")
	err := With(path, []byte("{}"), func(string) error { return failure })
	if !errors.Is(err, failure) {
		t.Fatalf("With error = %v, want %v", err, failure)
	}
	assertMissing(t, path)
}

func TestWithRemovesOnPanic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		_ = With(path, []byte("{}"), func(string) error { panic("boom") })
	}()
	assertMissing(t, path)
}

func TestWriteRemovesPartialFile(t *testing.T) {
	original := writeContent
	t.Cleanup(func() { writeContent = original })
	errNoSpace := errors.New("no space left on device")
	writeContent = func(file *os.File, data []byte) error {
		if _, err := file.Write(data[:len(data)/2]); err != nil {
			return err
		}
		return errNoSpace
	}

	path := filepath.Join(t.TempDir(), "settings.json")
	file, err := Write(path, []byte(`{"format":"ULFO"}`))
	if !errors.Is(err, errNoSpace) {
		t.Fatalf("Write error = %v, want %v", err, errNoSpace)
	}
	if file != nil {
		t.Error("Write returned a file alongside its error")
	}
	assertMissing(t, path)
}

func TestReleaseIdempotent(t *testing.T) {
	file, err := Write(filepath.Join(t.TempDir(), "x"), []byte("x"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := file.Release(); err != nil {
		t.Fatalf("first Release: %v", err)
	}
	if err := file.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
}

func TestReleaseToleratesExternalRemoval(t *testing.T) {
	file, err := Write(filepath.Join(t.TempDir(), "x"), []byte("x"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := os.Remove(file.Path()); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := file.Release(); err != nil {
		t.Errorf("Release after external removal: %v", err)
	}
}

func TestPatchRestoresOriginal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "package.json")
	if err := os.WriteFile(path, []byte(`{"version":"0.0.0"}`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var set Set
	if err := set.Patch(path, []byte(`{"version":"1.4.2"}`)); err != nil {
		t.Fatalf("Patch: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != `{"version":"1.4.2"}` {
		t.Fatalf("patched content = %q", data)
	}
	if err := set.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	data, _ = os.ReadFile(path)
	if string(data) != `{"version":"0.0.0"}` {
		t.Errorf("restored content = %q", data)
	}
	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0o600 {
		t.Errorf("restored mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestSetReleaseInto(t *testing.T) {
	directory := t.TempDir()
	run := func() (err error) {
		var transient Set
		defer transient.ReleaseInto(&err)
		if _, err := transient.Write(filepath.Join(directory, "manifest.json"), []byte("{}")); err != nil {
			return err
		}
		if _, err := transient.Write(filepath.Join(directory, "build-config.json"), []byte("{}")); err != nil {
			return err
		}
		return errors.New("packaging failed")
	}

	if err := run(); err == nil || err.Error() != "packaging failed" {
		t.Fatalf("run error = %v", err)
	}
	assertMissing(t, filepath.Join(directory, "manifest.json"))
	assertMissing(t, filepath.Join(directory, "build-config.json"))
}
