// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fstree lays out the Linux install tree: binaries under
// usr/bin, hicolor icons, and the headless and desktop overlay trees.
// It only composes files; nothing is signed or compiled here.
package fstree

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/bureau-foundation/shipwright/lib/fsutil"
	"github.com/bureau-foundation/shipwright/lib/schema/release"
)

// Spec describes one install tree.
type Spec struct {
	// Root receives the tree.
	Root string

	// Binaries are installed in every variant.
	Binaries []release.Binary

	// Desktop is the desktop shell binary. It is installed, and its
	// path looked at, only when Headless is false.
	Desktop release.Binary

	// IconDir holds <r>x<r>.png for every resolution. Icons are
	// desktop assets.
	IconDir     string
	IconName    string
	Resolutions []int

	// HeadlessOverlay is copied onto the root in every variant,
	// DesktopOverlay only when Headless is false.
	HeadlessOverlay string
	DesktopOverlay  string

	Headless bool
}

// BinDir is the binary directory under the tree root.
const BinDir = "usr/bin"

// IconPath is where the icon of one resolution is installed.
func IconPath(root, name string, resolution int) string {
	size := strconv.Itoa(resolution) + "x" + strconv.Itoa(resolution)
	return filepath.Join(root, "usr", "share", "icons", "hicolor", size, "apps", name+".png")
}

// Build lays out spec.
func Build(spec Spec) (release.Tree, error) {
	tree := release.Tree{Root: spec.Root, Headless: spec.Headless}
	binDir := filepath.Join(spec.Root, filepath.FromSlash(BinDir))

	install := func(binary release.Binary) error {
		destination := filepath.Join(binDir, binary.Name)
		if err := fsutil.CopyFile(binary.Path, destination); err != nil {
			return fmt.Errorf("installing %s: %w", binary.Name, err)
		}
		tree.Binaries = append(tree.Binaries, destination)
		return nil
	}

	for _, binary := range spec.Binaries {
		if err := install(binary); err != nil {
			return release.Tree{}, err
		}
	}
	if err := overlay(spec.HeadlessOverlay, spec.Root); err != nil {
		return release.Tree{}, err
	}
	if spec.Headless {
		return tree, nil
	}

	if err := install(spec.Desktop); err != nil {
		return release.Tree{}, err
	}
	if err := overlay(spec.DesktopOverlay, spec.Root); err != nil {
		return release.Tree{}, err
	}
	for _, resolution := range spec.Resolutions {
		source := filepath.Join(spec.IconDir, fmt.Sprintf("%dx%d.png", resolution, resolution))
		if err := fsutil.CopyFile(source, IconPath(spec.Root, spec.IconName, resolution)); err != nil {
			return release.Tree{}, fmt.Errorf("installing %dpx icon: %w", resolution, err)
		}
	}
	return tree, nil
}

func overlay(source, root string) error {
	if source == "" {
		return nil
	}
	if !fsutil.IsDir(source) {
		return fmt.Errorf("overlay %s is not a directory", source)
	}
	if err := fsutil.CopyTree(source, root); err != nil {
		return fmt.Errorf("applying overlay %s: %w", source, err)
	}
	return nil
}
