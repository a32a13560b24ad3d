// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package assets builds and collects the web asset trees that ship
// inside the desktop application: the dashboard and autocomplete
// frontends, the editor extension package, and the theme collection.
//
// The web bundler itself is an external collaborator. This package
// invokes it for its outputs and copies those outputs into staging, so
// later stages read assets only from staging.
package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/shipwright/lib/fsutil"
	"github.com/bureau-foundation/shipwright/lib/scoped"
	"github.com/bureau-foundation/shipwright/lib/toolexec"
)

// ErrMissingOutput is returned when an expected bundler output does
// not exist.
var ErrMissingOutput = errors.New("missing asset output")

// Request describes one asset collection.
type Request struct {
	// Version is stamped into the extension's package.json for the
	// duration of the build.
	Version string

	// Build runs the bundler. When false, outputs must already exist.
	Build bool

	// DashboardDist and AutocompleteDist are the bundler output
	// directories.
	DashboardDist    string
	AutocompleteDist string

	// ExtensionDir is the editor extension package. Empty skips the
	// extension.
	ExtensionDir string

	// ThemesRepository is cloned into staging. Empty skips themes.
	ThemesRepository string
}

// Output locates the collected trees in staging.
type Output struct {
	Dashboard    string `json:"dashboard"`
	Autocomplete string `json:"autocomplete"`

	// Themes is the theme directory inside the cloned repository.
	Themes string `json:"themes,omitempty"`

	// Extension is the packaged editor extension.
	Extension string `json:"extension,omitempty"`
}

// Trees returns the resource trees copied into an application bundle,
// keyed by their directory name under Contents/Resources.
func (o Output) Trees() map[string]string {
	trees := map[string]string{
		"dashboard":    o.Dashboard,
		"autocomplete": o.Autocomplete,
	}
	if o.Themes != "" {
		trees["themes"] = o.Themes
	}
	return trees
}

// Fetcher runs the bundler in WorkDir and copies its outputs into
// StagingDir.
type Fetcher struct {
	Runner     toolexec.Runner
	WorkDir    string
	StagingDir string
	Logger     *slog.Logger
}

// Fetch builds (when requested) and collects every asset tree.
func (f *Fetcher) Fetch(ctx context.Context, request Request) (output Output, err error) {
	if request.Build {
		if err := f.build(ctx, request); err != nil {
			return Output{}, err
		}
	}

	output.Dashboard = filepath.Join(f.StagingDir, "dashboard")
	if err := collectTree(request.DashboardDist, output.Dashboard); err != nil {
		return Output{}, err
	}
	output.Autocomplete = filepath.Join(f.StagingDir, "autocomplete")
	if err := collectTree(request.AutocompleteDist, output.Autocomplete); err != nil {
		return Output{}, err
	}

	if request.ExtensionDir != "" && request.Build {
		name, err := packageName(filepath.Join(request.ExtensionDir, "package.json"))
		if err != nil {
			return Output{}, err
		}
		packaged := filepath.Join(request.ExtensionDir, fmt.Sprintf("%s-%s.vsix", name, request.Version))
		output.Extension = filepath.Join(f.StagingDir, "editor-extension.vsix")
		if err := fsutil.CopyFile(packaged, output.Extension); err != nil {
			return Output{}, fmt.Errorf("%w: editor extension: %w", ErrMissingOutput, err)
		}
	}

	if request.ThemesRepository != "" {
		clone := filepath.Join(f.StagingDir, "themes")
		if err := os.RemoveAll(clone); err != nil {
			return Output{}, err
		}
		f.Logger.Info("cloning themes", "repository", request.ThemesRepository)
		if _, err := f.Runner.Run(ctx, toolexec.Command{
			Name: "git",
			Args: []string{"clone", "--depth", "1", request.ThemesRepository, clone},
		}); err != nil {
			return Output{}, fmt.Errorf("cloning themes: %w", err)
		}
		output.Themes = filepath.Join(clone, "themes")
		if !fsutil.IsDir(output.Themes) {
			return Output{}, fmt.Errorf("%w: %s has no themes directory", ErrMissingOutput, request.ThemesRepository)
		}
	}

	f.Logger.Info("collected assets", "dashboard", output.Dashboard, "autocomplete", output.Autocomplete, "themes", output.Themes)
	return output, nil
}

// build runs the bundler with the extension version patched in. The
// patch is reverted on every exit path.
func (f *Fetcher) build(ctx context.Context, request Request) (err error) {
	var transient scoped.Set
	defer transient.ReleaseInto(&err)

	if _, err := f.run(ctx, "install", "--frozen-lockfile"); err != nil {
		return err
	}

	if request.ExtensionDir != "" {
		manifestPath := filepath.Join(request.ExtensionDir, "package.json")
		patched, err := withVersion(manifestPath, request.Version)
		if err != nil {
			return err
		}
		if err := transient.Patch(manifestPath, patched); err != nil {
			return err
		}
	}

	if _, err := f.run(ctx, "build"); err != nil {
		return err
	}
	if _, err := f.run(ctx, "test", "--", "--run"); err != nil {
		return err
	}
	return nil
}

func (f *Fetcher) run(ctx context.Context, args ...string) (toolexec.Result, error) {
	command := toolexec.Command{Name: "pnpm", Args: args, Dir: f.WorkDir}
	f.Logger.Info("running web bundler", "command", command.String())
	result, err := f.Runner.Run(ctx, command)
	if err != nil {
		return result, fmt.Errorf("web asset build: %w", err)
	}
	return result, nil
}

func collectTree(source, destination string) error {
	if !fsutil.IsDir(source) {
		return fmt.Errorf("%w: %s", ErrMissingOutput, source)
	}
	if err := fsutil.ReplaceTree(source, destination); err != nil {
		return fmt.Errorf("collecting %s: %w", source, err)
	}
	return nil
}

// withVersion returns the package.json at path with its version field
// replaced. Other fields are carried through unchanged.
func withVersion(path, version string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var manifest map[string]json.RawMessage
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	encodedVersion, err := json.Marshal(version)
	if err != nil {
		return nil, err
	}
	manifest["version"] = encodedVersion
	patched, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(patched, '\n'), nil
}

func packageName(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var manifest struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return "", fmt.Errorf("parsing %s: %w", path, err)
	}
	if manifest.Name == "" {
		return "", fmt.Errorf("%s has no name", path)
	}
	return manifest.Name, nil
}
