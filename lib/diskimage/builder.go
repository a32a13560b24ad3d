// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package diskimage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bureau-foundation/shipwright/lib/bundle"
	"github.com/bureau-foundation/shipwright/lib/digest"
	"github.com/bureau-foundation/shipwright/lib/fsutil"
	"github.com/bureau-foundation/shipwright/lib/schema/release"
	"github.com/bureau-foundation/shipwright/lib/scoped"
	"github.com/bureau-foundation/shipwright/lib/toolexec"
)

// ErrUnchanged is returned by [Builder.Rebundle] when the rebuilt image
// is byte-identical to the image as first built.
var ErrUnchanged = errors.New("disk image unchanged by rebundle")

// DefaultMountRoot is where images are attached.
const DefaultMountRoot = "/Volumes"

// Builder drives the image tools.
type Builder struct {
	Runner toolexec.Runner
	Logger *slog.Logger

	// MountRoot is where Rebundle attaches the writable image.
	// Default: /Volumes.
	MountRoot string

	// TempDir holds the writable intermediate image. Default: the
	// directory of the image being rebundled.
	TempDir string
}

// Build produces the image described by spec from app, replacing any
// image already at spec.Path.
func (b *Builder) Build(ctx context.Context, app release.AppBundle, spec release.DiskImageSpec) (release.DiskImage, error) {
	if spec.Path == "" || spec.VolumeName == "" {
		return release.DiskImage{}, fmt.Errorf("disk image spec needs a path and a volume name")
	}
	if !slices.Contains(spec.Files, app.Path) {
		return release.DiskImage{}, fmt.Errorf("disk image spec does not include %s", app.Path)
	}
	for _, file := range spec.Files {
		if !fsutil.Exists(file) {
			return release.DiskImage{}, fmt.Errorf("%w: disk image content %s", bundle.ErrMissingResource, file)
		}
	}
	settings, err := renderSettings(spec)
	if err != nil {
		return release.DiskImage{}, err
	}

	if err := os.Remove(spec.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return release.DiskImage{}, fmt.Errorf("removing previous image: %w", err)
	}

	settingsPath := filepath.Join(filepath.Dir(spec.Path), "."+imageStem(spec.Path)+".settings.json")
	err = scoped.With(settingsPath, settings, func(settingsPath string) error {
		command := toolexec.Command{
			Name: "dmgbuild",
			Args: []string{"-s", settingsPath, spec.VolumeName, spec.Path},
		}
		b.Logger.Info("building disk image", "path", spec.Path, "volume", spec.VolumeName, "format", spec.Format)
		if _, err := b.Runner.Run(ctx, command); err != nil {
			return fmt.Errorf("building disk image: %w", err)
		}
		return nil
	})
	if err != nil {
		return release.DiskImage{}, err
	}

	if !fsutil.Exists(spec.Path) {
		return release.DiskImage{}, fmt.Errorf("%w: image tool produced no image at %s", bundle.ErrMissingResource, spec.Path)
	}
	built, err := digest.FingerprintPath(spec.Path)
	if err != nil {
		return release.DiskImage{}, err
	}
	return release.DiskImage{Path: spec.Path, App: app.Path, Unsigned: built.String()}, nil
}

// Rebundle replaces the bundle inside image with app, which has
// usually just been signed, and rewrites the image compressed
// read-only at its original path. The result must differ from the
// image as first built; an image already rebundled from the same
// signed bundle by an earlier attempt is accepted.
func (b *Builder) Rebundle(ctx context.Context, app release.AppBundle, image release.DiskImage) (result release.DiskImage, err error) {
	baseline := image.Unsigned
	if baseline == "" {
		before, err := digest.FingerprintPath(image.Path)
		if err != nil {
			return release.DiskImage{}, err
		}
		baseline = before.String()
	}

	mountRoot := b.MountRoot
	if mountRoot == "" {
		mountRoot = DefaultMountRoot
	}
	mount := filepath.Join(mountRoot, imageStem(image.Path))
	if fsutil.IsDir(mount) {
		b.Logger.Warn("detaching stale mount", "mount", mount)
		if err := b.hdiutil(ctx, "detach", mount); err != nil {
			return release.DiskImage{}, err
		}
	}

	tempDir := b.TempDir
	if tempDir == "" {
		tempDir = filepath.Dir(image.Path)
	}
	writable := filepath.Join(tempDir, imageStem(image.Path)+"-rw.dmg")
	if err := removeIfExists(writable); err != nil {
		return release.DiskImage{}, err
	}
	defer func() {
		err = errors.Join(err, removeIfExists(writable))
	}()

	b.Logger.Info("rebundling disk image", "image", image.Path, "app", app.Path)
	if err := b.hdiutil(ctx, "convert", image.Path, "-format", "UDRW", "-o", writable); err != nil {
		return release.DiskImage{}, err
	}
	if err := b.hdiutil(ctx, "attach", writable, "-mountpoint", mount, "-nobrowse"); err != nil {
		return release.DiskImage{}, err
	}
	attached := true
	defer func() {
		if attached {
			err = errors.Join(err, b.hdiutil(context.WithoutCancel(ctx), "detach", mount, "-force"))
		}
	}()

	if err := os.RemoveAll(filepath.Join(mount, filepath.Base(app.Path))); err != nil {
		return release.DiskImage{}, fmt.Errorf("removing previous bundle from image: %w", err)
	}
	if _, err := b.Runner.Run(ctx, toolexec.Command{Name: "cp", Args: []string{"-R", app.Path, mount}}); err != nil {
		return release.DiskImage{}, fmt.Errorf("copying bundle into image: %w", err)
	}
	if err := b.hdiutil(ctx, "detach", mount); err != nil {
		return release.DiskImage{}, err
	}
	attached = false

	if err := os.Remove(image.Path); err != nil {
		return release.DiskImage{}, fmt.Errorf("removing previous image: %w", err)
	}
	if err := b.hdiutil(ctx, "convert", writable, "-format", "UDZO", "-o", image.Path); err != nil {
		return release.DiskImage{}, err
	}

	after, err := digest.FingerprintPath(image.Path)
	if err != nil {
		return release.DiskImage{}, err
	}
	if after.String() == baseline {
		return release.DiskImage{}, fmt.Errorf("%w: %s", ErrUnchanged, image.Path)
	}
	b.Logger.Info("rebundled disk image", "image", image.Path, "fingerprint", after.String()[:16])
	return release.DiskImage{Path: image.Path, App: app.Path, Unsigned: baseline}, nil
}

func (b *Builder) hdiutil(ctx context.Context, args ...string) error {
	if _, err := b.Runner.Run(ctx, toolexec.Command{Name: "hdiutil", Args: args}); err != nil {
		return fmt.Errorf("hdiutil %s: %w", args[0], err)
	}
	return nil
}

func imageStem(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".dmg")
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
