// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package scoped manages transient files whose lifetime is bounded by
// one pipeline stage: the bundle manifest, the packaging tool config,
// the disk image settings file, a temporarily patched package.json.
//
// A scoped file is released on every exit path of the stage that
// acquired it. Callers either use [With] for a single file around a
// single call, or acquire into a [Set] and defer [Set.Release]. Release
// errors are joined with the stage's own error so a cleanup failure is
// reported without hiding the failure that caused it.
package scoped

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// File is a transient file acquired by a stage.
type File struct {
	path string

	// original holds the previous content for files acquired with
	// Patch; Release restores it instead of removing the file.
	original []byte
	mode     fs.FileMode
	restore  bool

	mu       sync.Mutex
	released bool
}

// writeContent fills a freshly opened transient file.
var writeContent = func(file *os.File, data []byte) error {
	_, err := file.Write(data)
	return err
}

// Write creates path (and missing parent directories) containing data.
// An existing file at path is overwritten and removed on release. A
// failed write removes whatever was written.
func Write(path string, data []byte) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating directory for %s: %w", path, err)
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("writing %s: %w", path, err)
	}
	err = writeContent(file, data)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		if removeErr := os.Remove(path); removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
			err = errors.Join(err, removeErr)
		}
		return nil, fmt.Errorf("writing %s: %w", path, err)
	}
	return &File{path: path}, nil
}

// Patch replaces the content of an existing file. Release writes the
// original content back.
func Patch(path string, data []byte) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("patching %s: %w", path, err)
	}
	original, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, info.Mode().Perm()); err != nil {
		return nil, fmt.Errorf("writing %s: %w", path, err)
	}
	return &File{path: path, original: original, mode: info.Mode().Perm(), restore: true}, nil
}

// Path returns the file's location.
func (f *File) Path() string { return f.path }

// Release removes the file (or restores a patched file). Idempotent;
// a file that is already gone is not an error.
func (f *File) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return nil
	}
	f.released = true

	if f.restore {
		current, err := os.ReadFile(f.path)
		if err == nil && bytes.Equal(current, f.original) {
			return nil
		}
		if err := os.WriteFile(f.path, f.original, f.mode); err != nil {
			return fmt.Errorf("restoring %s: %w", f.path, err)
		}
		return nil
	}

	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing transient file %s: %w", f.path, err)
	}
	return nil
}

// With writes data to path, calls fn, and removes path before
// returning, including when fn fails or panics.
func With(path string, data []byte, fn func(path string) error) (err error) {
	file, err := Write(path, data)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, file.Release())
	}()
	return fn(file.Path())
}

// Set collects the scoped files of one stage so they can be released
// together.
type Set struct {
	mu    sync.Mutex
	files []*File
}

// Write acquires a new transient file into the set.
func (s *Set) Write(path string, data []byte) (string, error) {
	file, err := Write(path, data)
	if err != nil {
		return "", err
	}
	s.add(file)
	return file.Path(), nil
}

// Patch acquires a patched file into the set.
func (s *Set) Patch(path string, data []byte) error {
	file, err := Patch(path, data)
	if err != nil {
		return err
	}
	s.add(file)
	return nil
}

func (s *Set) add(file *File) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = append(s.files, file)
}

// Release releases every file in reverse acquisition order and joins
// the errors.
func (s *Set) Release() error {
	s.mu.Lock()
	files := s.files
	s.files = nil
	s.mu.Unlock()

	var errs []error
	for index := len(files) - 1; index >= 0; index-- {
		if err := files[index].Release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ReleaseInto releases the set and joins the result into *err. Meant
// for deferred use:
//
//	var transient scoped.Set
//	defer transient.ReleaseInto(&err)
func (s *Set) ReleaseInto(err *error) {
	*err = errors.Join(*err, s.Release())
}
