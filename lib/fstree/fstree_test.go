// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fstree

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/shipwright/lib/schema/release"
)

var resolutions = []int{16, 22, 24, 32, 48, 64, 128, 256, 512}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		t.Fatal(err)
	}
}

func newSpec(t *testing.T, headless bool) Spec {
	t.Helper()
	source := t.TempDir()
	writeFile(t, filepath.Join(source, "bin", "q"), "cli")
	writeFile(t, filepath.Join(source, "bin", "qterm"), "shim")
	writeFile(t, filepath.Join(source, "bin", "q-desktop"), "desktop")
	for _, resolution := range resolutions {
		writeFile(t, filepath.Join(source, "icons", fmt.Sprintf("%dx%d.png", resolution, resolution)), "png")
	}
	writeFile(t, filepath.Join(source, "minimal", "usr", "share", "q", "README"), "headless")
	writeFile(t, filepath.Join(source, "desktop", "usr", "share", "applications", "q-desktop.desktop"), "[Desktop Entry]")

	return Spec{
		Root: filepath.Join(t.TempDir(), "build"),
		Binaries: []release.Binary{
			{Name: "q", Path: filepath.Join(source, "bin", "q")},
			{Name: "qterm", Path: filepath.Join(source, "bin", "qterm")},
		},
		Desktop:         release.Binary{Name: "q-desktop", Path: filepath.Join(source, "bin", "q-desktop")},
		IconDir:         filepath.Join(source, "icons"),
		IconName:        "q",
		Resolutions:     resolutions,
		HeadlessOverlay: filepath.Join(source, "minimal"),
		DesktopOverlay:  filepath.Join(source, "desktop"),
		Headless:        headless,
	}
}

// desktopFiles lists every desktop-only file a full tree contains.
func desktopFiles(root string) []string {
	files := []string{
		filepath.Join(root, "usr", "bin", "q-desktop"),
		filepath.Join(root, "usr", "share", "applications", "q-desktop.desktop"),
	}
	for _, resolution := range resolutions {
		files = append(files, IconPath(root, "q", resolution))
	}
	return files
}

func TestBuildFull(t *testing.T) {
	spec := newSpec(t, false)
	tree, err := Build(spec)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if tree.Headless || len(tree.Binaries) != 3 {
		t.Errorf("tree = %+v", tree)
	}
	for _, path := range append(desktopFiles(spec.Root),
		filepath.Join(spec.Root, "usr", "bin", "q"),
		filepath.Join(spec.Root, "usr", "bin", "qterm"),
		filepath.Join(spec.Root, "usr", "share", "q", "README"),
	) {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("missing %s: %v", path, err)
		}
	}
	info, err := os.Stat(filepath.Join(spec.Root, "usr", "bin", "q"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0o111 == 0 {
		t.Error("installed binary lost its executable bit")
	}
}

func TestBuildHeadless(t *testing.T) {
	spec := newSpec(t, true)
	// A headless build must not need the desktop binary at all.
	spec.Desktop.Path = filepath.Join(t.TempDir(), "never-built")
	spec.IconDir = filepath.Join(t.TempDir(), "no-icons")

	tree, err := Build(spec)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !tree.Headless || len(tree.Binaries) != 2 {
		t.Errorf("tree = %+v", tree)
	}
	for _, path := range desktopFiles(spec.Root) {
		if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("headless tree contains %s", path)
		}
	}
	if _, err := os.Stat(filepath.Join(spec.Root, "usr", "share", "q", "README")); err != nil {
		t.Errorf("headless overlay not applied: %v", err)
	}
	if _, err := os.Stat(filepath.Join(spec.Root, "usr", "share", "icons")); !errors.Is(err, fs.ErrNotExist) {
		t.Error("headless tree has an icon directory")
	}
}

func TestBuildMissingDesktopBinary(t *testing.T) {
	spec := newSpec(t, false)
	spec.Desktop.Path = filepath.Join(t.TempDir(), "never-built")
	if _, err := Build(spec); err == nil {
		t.Fatal("Build succeeded without the desktop binary")
	}
}

func TestBuildMissingOverlay(t *testing.T) {
	spec := newSpec(t, true)
	spec.HeadlessOverlay = filepath.Join(t.TempDir(), "missing")
	if _, err := Build(spec); err == nil {
		t.Fatal("Build succeeded without the headless overlay")
	}
}
