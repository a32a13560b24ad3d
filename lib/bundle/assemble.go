// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bureau-foundation/shipwright/lib/fsutil"
	"github.com/bureau-foundation/shipwright/lib/schema/release"
	"github.com/bureau-foundation/shipwright/lib/scoped"
	"github.com/bureau-foundation/shipwright/lib/toolchain"
	"github.com/bureau-foundation/shipwright/lib/toolexec"
)

// AppSpec describes one application bundle.
type AppSpec struct {
	// AppName names the staged bundle "<AppName>.app".
	AppName string

	// DesktopDir is the desktop package; the packaging tool runs
	// there and the transient files are written there.
	DesktopDir string

	Triple   release.TargetTriple
	Features []string

	// TargetDir and PackagerBundle locate the packaging tool output:
	// <TargetDir>/<Triple>/release/bundle/macos/<PackagerBundle>.
	TargetDir      string
	PackagerBundle string

	StagingDir string

	// ExternalBinaries are the binaries bundled next to the main
	// executable. Their "-<Triple>" suffix is stripped in the
	// packaging config.
	ExternalBinaries []release.Binary

	Manifest Manifest
	Plist    PlistPatch

	// Helper is an assembled helper bundle.
	Helper string

	// Resources maps a directory name under Contents/Resources to the
	// tree copied there.
	Resources map[string]string
}

// BundlePath is where the bundle is staged.
func (s AppSpec) BundlePath() string {
	return filepath.Join(s.StagingDir, s.AppName+".app")
}

func (s AppSpec) packagerOutput() string {
	return filepath.Join(s.TargetDir, string(s.Triple), "release", "bundle", "macos", s.PackagerBundle)
}

// Assembler runs the packaging tool.
type Assembler struct {
	Runner toolexec.Runner
	Env    toolchain.Environment
	Logger *slog.Logger
}

// Assemble builds the application bundle described by spec.
func (a *Assembler) Assemble(ctx context.Context, spec AppSpec) (release.AppBundle, error) {
	if err := VerifyStructure(spec.Helper); err != nil {
		return release.AppBundle{}, fmt.Errorf("helper bundle: %w", err)
	}
	for name, source := range spec.Resources {
		if !fsutil.IsDir(source) {
			return release.AppBundle{}, fmt.Errorf("%w: resource tree %s at %s", ErrMissingResource, name, source)
		}
	}

	if err := a.runPackager(ctx, spec); err != nil {
		return release.AppBundle{}, err
	}

	output := spec.packagerOutput()
	if !fsutil.IsDir(output) {
		return release.AppBundle{}, fmt.Errorf("%w: packaging tool produced no bundle at %s", ErrMissingResource, output)
	}
	path := spec.BundlePath()
	if err := fsutil.ReplaceTree(output, path); err != nil {
		return release.AppBundle{}, fmt.Errorf("staging bundle: %w", err)
	}

	if err := PatchInfoPlist(filepath.Join(path, "Contents", "Info.plist"), spec.Plist); err != nil {
		return release.AppBundle{}, err
	}

	helperName := filepath.Base(spec.Helper)
	embedded := filepath.Join(path, "Contents", "Helpers", helperName)
	if err := fsutil.ReplaceTree(spec.Helper, embedded); err != nil {
		return release.AppBundle{}, fmt.Errorf("embedding helper: %w", err)
	}

	names := slices.Sorted(maps.Keys(spec.Resources))
	trees := make([]string, 0, len(names))
	for _, name := range names {
		destination := filepath.Join(path, "Contents", "Resources", name)
		if err := fsutil.ReplaceTree(spec.Resources[name], destination); err != nil {
			return release.AppBundle{}, fmt.Errorf("copying %s: %w", name, err)
		}
		trees = append(trees, destination)
	}

	bundle := release.AppBundle{
		Path:          path,
		Helper:        embedded,
		ResourceTrees: trees,
	}
	if err := Verify(&bundle, spec.Plist); err != nil {
		return release.AppBundle{}, err
	}
	a.Logger.Info("assembled application bundle", "path", path, "helper", helperName, "resources", names)
	return bundle, nil
}

// runPackager writes the manifest and packaging config, runs the
// packaging tool and removes both files on every exit path.
func (a *Assembler) runPackager(ctx context.Context, spec AppSpec) (err error) {
	var transient scoped.Set
	defer transient.ReleaseInto(&err)

	manifest, err := json.Marshal(spec.Manifest)
	if err != nil {
		return err
	}
	if _, err := transient.Write(filepath.Join(spec.DesktopDir, ManifestFile), manifest); err != nil {
		return err
	}

	config := PackagingConfig{Resources: []string{ManifestFile}}
	suffix := "-" + string(spec.Triple)
	for _, binary := range spec.ExternalBinaries {
		config.ExternalBinaries = append(config.ExternalBinaries, strings.TrimSuffix(binary.Path, suffix))
	}
	encodedConfig, err := json.Marshal(config)
	if err != nil {
		return err
	}
	if _, err := transient.Write(filepath.Join(spec.DesktopDir, PackagingConfigFile), encodedConfig); err != nil {
		return err
	}

	args := []string{"build", "--config", PackagingConfigFile, "--target", string(spec.Triple)}
	if len(spec.Features) > 0 {
		args = append(args, "--features", strings.Join(spec.Features, ","))
	}
	command := toolexec.Command{
		Name: "cargo-tauri",
		Args: args,
		Dir:  spec.DesktopDir,
		Env:  a.Env.With(map[string]string{"BUILD_DIR": spec.StagingDir}),
	}
	a.Logger.Info("running packaging tool", "command", command.String())
	if _, err := a.Runner.Run(ctx, command); err != nil {
		return fmt.Errorf("packaging tool: %w", err)
	}
	return nil
}
