// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fsutil copies files and directory trees between pipeline
// inputs and the staging directory. Copies preserve permission bits
// and symlinks (application bundles carry framework symlinks that must
// not be flattened).
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// CopyFile copies the regular file src to dst, creating parent
// directories and preserving the permission bits. dst is replaced if
// it exists.
func CopyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("copy %s: not a regular file", src)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("prepare %s: %w", dst, err)
	}

	source, err := os.Open(src)
	if err != nil {
		return err
	}
	defer source.Close()

	// Remove first so a read-only destination does not block the copy.
	if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("replace %s: %w", dst, err)
	}
	destination, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(destination, source); err != nil {
		destination.Close()
		return fmt.Errorf("copy %s: %w", filepath.Base(src), err)
	}
	if err := destination.Close(); err != nil {
		return err
	}
	// OpenFile honors the umask; restore the exact bits.
	return os.Chmod(dst, info.Mode().Perm())
}

// CopyTree copies the directory src into dst, merging with whatever dst
// already contains. Symlinks are recreated, not followed.
func CopyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("copy %s: not a directory", src)
	}

	return filepath.WalkDir(src, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		relative, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, relative)

		switch {
		case entry.IsDir():
			entryInfo, err := entry.Info()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			return os.Chmod(target, entryInfo.Mode().Perm()|0o700)
		case entry.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			return os.Symlink(link, target)
		case entry.Type().IsRegular():
			return CopyFile(path, target)
		default:
			return fmt.Errorf("copy %s: unsupported file type %s", path, entry.Type())
		}
	})
}

// ReplaceTree removes dst and copies src in its place.
func ReplaceTree(src, dst string) error {
	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("remove %s: %w", dst, err)
	}
	return CopyTree(src, dst)
}

// ResetDir removes path and recreates it empty.
func ResetDir(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("reset %s: %w", path, err)
	}
	return os.MkdirAll(path, 0o755)
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Exists reports whether path exists. Broken symlinks count as
// existing.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
