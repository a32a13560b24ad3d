// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/shipwright/lib/fsutil"
	"github.com/bureau-foundation/shipwright/lib/schema/release"
)

// Verify checks that bundle is eligible for signing: it is a bundle,
// Contents/Helpers holds exactly one helper bundle (bundle.Helper),
// every resource tree is present, and Info.plist carries patch. On
// success it sets bundle.MetadataPatched.
func Verify(bundle *release.AppBundle, patch PlistPatch) error {
	if err := VerifyStructure(bundle.Path); err != nil {
		return err
	}

	helpersDir := filepath.Join(bundle.Path, "Contents", "Helpers")
	entries, err := os.ReadDir(helpersDir)
	if err != nil {
		return fmt.Errorf("%w: %s has no helpers: %v", ErrInvalidBundle, bundle.Path, err)
	}
	var helpers []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".app") {
			helpers = append(helpers, filepath.Join(helpersDir, entry.Name()))
		}
	}
	if len(helpers) != 1 {
		return fmt.Errorf("%w: %s embeds %d helper bundles, want exactly 1", ErrInvalidBundle, bundle.Path, len(helpers))
	}
	if helpers[0] != bundle.Helper {
		return fmt.Errorf("%w: embedded helper is %s, want %s", ErrInvalidBundle, helpers[0], bundle.Helper)
	}
	if err := VerifyStructure(bundle.Helper); err != nil {
		return fmt.Errorf("embedded helper: %w", err)
	}

	if len(bundle.ResourceTrees) == 0 {
		return fmt.Errorf("%w: %s has no resource trees", ErrInvalidBundle, bundle.Path)
	}
	resources := filepath.Join(bundle.Path, "Contents", "Resources")
	for _, tree := range bundle.ResourceTrees {
		if filepath.Dir(tree) != resources || !fsutil.IsDir(tree) {
			return fmt.Errorf("%w: resource tree %s missing from %s", ErrInvalidBundle, filepath.Base(tree), resources)
		}
	}

	values, _, err := ReadPlist(filepath.Join(bundle.Path, "Contents", "Info.plist"))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBundle, err)
	}
	if !patch.Applied(values) {
		return fmt.Errorf("%w: %s metadata is not patched", ErrInvalidBundle, bundle.Path)
	}
	bundle.MetadataPatched = true
	return nil
}
