// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package objstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/shipwright/lib/fsutil"
)

// FileStore keeps objects as files under Root.
type FileStore struct {
	Root string
}

func (s *FileStore) path(key string) (string, error) {
	if !filepath.IsLocal(filepath.FromSlash(key)) {
		return "", fmt.Errorf("object key %q escapes the store", key)
	}
	return filepath.Join(s.Root, filepath.FromSlash(key)), nil
}

// Put copies source next to the object and renames it into place.
func (s *FileStore) Put(ctx context.Context, key, source string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	destination, err := s.path(key)
	if err != nil {
		return err
	}
	temporary := destination + ".partial"
	if err := fsutil.CopyFile(source, temporary); err != nil {
		os.Remove(temporary)
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	if err := os.Rename(temporary, destination); err != nil {
		os.Remove(temporary)
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

// Get copies the object to destination.
func (s *FileStore) Get(ctx context.Context, key, destination string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	source, err := s.path(key)
	if err != nil {
		return err
	}
	if !fsutil.Exists(source) {
		return fmt.Errorf("%w: %s", ErrNotFound, s.URL(key))
	}
	return fsutil.CopyFile(source, destination)
}

// Exists reports whether the object file exists.
func (s *FileStore) Exists(ctx context.Context, key string) (bool, error) {
	source, err := s.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(source)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// DeletePrefix removes the directory for prefix.
func (s *FileStore) DeletePrefix(ctx context.Context, prefix string) error {
	directory, err := s.path(prefix)
	if err != nil {
		return err
	}
	return os.RemoveAll(directory)
}

// URL returns the file:// URL of key.
func (s *FileStore) URL(key string) string {
	return "file://" + filepath.ToSlash(filepath.Join(s.Root, filepath.FromSlash(key)))
}
