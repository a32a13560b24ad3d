// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/shipwright/lib/fsutil"
)

// ErrMissingResource is returned when an input file or directory a
// bundle is built from does not exist.
var ErrMissingResource = errors.New("missing bundle resource")

// ErrInvalidBundle is returned when a directory does not have the
// structure of an application bundle.
var ErrInvalidBundle = errors.New("invalid bundle")

// HelperSpec describes the nested helper bundle.
type HelperSpec struct {
	// Name is the bundle directory name, e.g. "InputMethod.app".
	Name string

	// Executable is the compiled binary, installed as
	// Contents/MacOS/<ExecutableName>.
	Executable     string
	ExecutableName string

	InfoPlist string
	Resources string

	// OutputDir receives the bundle.
	OutputDir string
}

// AssembleHelper builds the helper bundle and returns its path. Every
// input must exist; nothing is written when one is missing.
func AssembleHelper(ctx context.Context, spec HelperSpec) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	for _, input := range []string{spec.Executable, spec.InfoPlist} {
		if _, err := os.Stat(input); err != nil {
			return "", fmt.Errorf("%w: helper input %s", ErrMissingResource, input)
		}
	}
	if !fsutil.IsDir(spec.Resources) {
		return "", fmt.Errorf("%w: helper resource directory %s", ErrMissingResource, spec.Resources)
	}

	path := filepath.Join(spec.OutputDir, spec.Name)
	if err := os.RemoveAll(path); err != nil {
		return "", err
	}
	contents := filepath.Join(path, "Contents")
	if err := fsutil.CopyFile(spec.Executable, filepath.Join(contents, "MacOS", spec.ExecutableName)); err != nil {
		return "", fmt.Errorf("assembling helper: %w", err)
	}
	if err := fsutil.CopyFile(spec.InfoPlist, filepath.Join(contents, "Info.plist")); err != nil {
		return "", fmt.Errorf("assembling helper: %w", err)
	}
	if err := fsutil.CopyTree(spec.Resources, filepath.Join(contents, "Resources")); err != nil {
		return "", fmt.Errorf("assembling helper: %w", err)
	}
	return path, VerifyStructure(path)
}

// VerifyStructure checks that path is a bundle directory with a
// readable Info.plist and at least one executable in Contents/MacOS.
func VerifyStructure(path string) error {
	if !fsutil.IsDir(path) {
		return fmt.Errorf("%w: %s is not a directory", ErrInvalidBundle, path)
	}
	if _, _, err := ReadPlist(filepath.Join(path, "Contents", "Info.plist")); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidBundle, path, err)
	}
	entries, err := os.ReadDir(filepath.Join(path, "Contents", "MacOS"))
	if err != nil || len(entries) == 0 {
		return fmt.Errorf("%w: %s has no executable", ErrInvalidBundle, path)
	}
	return nil
}
