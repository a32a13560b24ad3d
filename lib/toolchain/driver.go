// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package toolchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bureau-foundation/shipwright/lib/fsutil"
	"github.com/bureau-foundation/shipwright/lib/schema/release"
	"github.com/bureau-foundation/shipwright/lib/toolexec"
)

// ErrMissingArchitecture is returned when a merge input or output lacks
// an expected architecture.
var ErrMissingArchitecture = errors.New("missing architecture")

// Driver runs the compiler and post-link tools.
type Driver struct {
	Runner toolexec.Runner
	Env    Environment

	// WorkDir is the cargo workspace root.
	WorkDir string

	// TargetDir is the compiler output directory, normally
	// <WorkDir>/target.
	TargetDir string

	// StagingDir receives merged and staged binaries.
	StagingDir string

	// Musl builds through cross instead of cargo.
	Musl bool

	Logger *slog.Logger
}

// BuildRequest names one package build.
type BuildRequest struct {
	Package string

	// OutputName is the shipped binary name. Default: Package.
	OutputName string

	Features []string
	Targets  []release.TargetTriple
	Release  bool
}

func (r BuildRequest) outputName() string {
	if r.OutputName != "" {
		return r.OutputName
	}
	return r.Package
}

// Profile returns the cargo profile directory name.
func Profile(releaseProfile bool) string {
	if releaseProfile {
		return "release"
	}
	return "debug"
}

func (d *Driver) cargo() string {
	if d.Musl {
		return "cross"
	}
	return "cargo"
}

// ArtifactPath returns where cargo writes package's binary for triple.
func (d *Driver) ArtifactPath(triple release.TargetTriple, releaseProfile bool, pkg string) string {
	return filepath.Join(d.TargetDir, string(triple), Profile(releaseProfile), pkg)
}

// Build compiles request.Package for every target in one invocation and
// returns one artifact per triple, in request order.
func (d *Driver) Build(ctx context.Context, request BuildRequest) ([]release.CompiledArtifact, error) {
	if len(request.Targets) == 0 {
		return nil, fmt.Errorf("build %s: no targets", request.Package)
	}

	args := []string{"build", "--locked", "--package", request.Package}
	if request.Release {
		args = append(args, "--release")
	}
	for _, triple := range request.Targets {
		args = append(args, "--target", string(triple))
	}
	if len(request.Features) > 0 {
		args = append(args, "--features", strings.Join(request.Features, ","))
	}

	d.Logger.Info("compiling", "package", request.Package, "targets", request.Targets, "features", request.Features)
	if _, err := d.Runner.Run(ctx, toolexec.Command{
		Name: d.cargo(),
		Args: args,
		Dir:  d.WorkDir,
		Env:  d.Env,
	}); err != nil {
		return nil, fmt.Errorf("compiling %s: %w", request.Package, err)
	}

	artifacts := make([]release.CompiledArtifact, 0, len(request.Targets))
	for _, triple := range request.Targets {
		artifacts = append(artifacts, release.CompiledArtifact{
			Package: request.Package,
			Path:    d.ArtifactPath(triple, request.Release, request.Package),
			Triple:  triple,
		})
	}
	return artifacts, nil
}

// UniversalPath is where Merge writes the universal binary for name.
func (d *Driver) UniversalPath(name string) string {
	return filepath.Join(d.StagingDir, name+"-"+string(release.UniversalDarwin))
}

// Merge combines per-architecture artifacts into one universal binary.
// Every artifact must exist on disk and every arch in want must be
// covered by exactly one artifact; the merged output is checked with
// lipo -archs before it is returned.
func (d *Driver) Merge(ctx context.Context, name string, artifacts []release.CompiledArtifact, want []release.Arch) (release.UniversalBinary, error) {
	covered := make(map[release.Arch]bool, len(artifacts))
	for _, artifact := range artifacts {
		if _, err := os.Stat(artifact.Path); err != nil {
			return release.UniversalBinary{}, fmt.Errorf("merging %s: input for %s: %w", name, artifact.Triple, err)
		}
		arch, err := artifact.Triple.Arch()
		if err != nil {
			return release.UniversalBinary{}, fmt.Errorf("merging %s: %w", name, err)
		}
		if covered[arch] {
			return release.UniversalBinary{}, fmt.Errorf("merging %s: %s supplied twice", name, arch)
		}
		covered[arch] = true
	}
	for _, arch := range want {
		if !covered[arch] {
			return release.UniversalBinary{}, fmt.Errorf("merging %s: %w %s among inputs", name, ErrMissingArchitecture, arch)
		}
	}

	output := d.UniversalPath(name)
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return release.UniversalBinary{}, err
	}
	args := []string{"-create", "-output", output}
	for _, artifact := range artifacts {
		args = append(args, artifact.Path)
	}
	if _, err := d.Runner.Run(ctx, toolexec.Command{Name: "lipo", Args: args}); err != nil {
		return release.UniversalBinary{}, fmt.Errorf("merging %s: %w", name, err)
	}

	merged, err := d.Architectures(ctx, output)
	if err != nil {
		return release.UniversalBinary{}, fmt.Errorf("merging %s: %w", name, err)
	}
	for _, arch := range want {
		if !slices.Contains(merged, arch) {
			return release.UniversalBinary{}, fmt.Errorf("merged %s: %w %s (lipo reports %v)", name, ErrMissingArchitecture, arch, merged)
		}
	}

	d.Logger.Info("merged universal binary", "name", name, "path", output, "architectures", merged)
	return release.UniversalBinary{
		Name:          name,
		Path:          output,
		Architectures: merged,
		Inputs:        slices.Clone(artifacts),
	}, nil
}

// Architectures returns the architectures lipo reports for path.
func (d *Driver) Architectures(ctx context.Context, path string) ([]release.Arch, error) {
	result, err := d.Runner.Run(ctx, toolexec.Command{Name: "lipo", Args: []string{"-archs", path}})
	if err != nil {
		return nil, fmt.Errorf("reading architectures of %s: %w", path, err)
	}
	var architectures []release.Arch
	for _, field := range strings.Fields(result.Stdout) {
		arch, err := release.ParseArch(field)
		if err != nil {
			// lipo also reports slices we do not build (arm64e, i386).
			continue
		}
		architectures = append(architectures, arch)
	}
	return architectures, nil
}

// Stage copies a single-architecture artifact to
// <staging>/bin/<outputName>.
func (d *Driver) Stage(artifact release.CompiledArtifact, outputName string) (release.Binary, error) {
	destination := filepath.Join(d.StagingDir, "bin", outputName)
	if err := fsutil.CopyFile(artifact.Path, destination); err != nil {
		return release.Binary{}, fmt.Errorf("staging %s: %w", outputName, err)
	}
	return release.Binary{Name: outputName, Path: destination}, nil
}

// Compile builds one package for target and returns the binary the
// rest of the pipeline consumes: merged on macOS, staged on Linux.
func (d *Driver) Compile(ctx context.Context, target release.BuildTarget, request BuildRequest) (release.Binary, error) {
	request.Targets = target.Triples()
	artifacts, err := d.Build(ctx, request)
	if err != nil {
		return release.Binary{}, err
	}

	if target.Platform == release.PlatformMacOS {
		universal, err := d.Merge(ctx, request.outputName(), artifacts, target.Architectures)
		if err != nil {
			return release.Binary{}, err
		}
		return release.Binary{Name: universal.Name, Path: universal.Path}, nil
	}
	return d.Stage(artifacts[0], request.outputName())
}
