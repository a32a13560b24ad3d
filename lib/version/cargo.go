// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

type cargoManifest struct {
	Package struct {
		Version string `toml:"version"`
	} `toml:"package"`
	Workspace struct {
		Package struct {
			Version string `toml:"version"`
		} `toml:"package"`
	} `toml:"workspace"`
}

// CargoVersion returns the product version declared in the Cargo.toml
// at path. A [package] version takes precedence over an inherited
// [workspace.package] version.
func CargoVersion(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading cargo manifest: %w", err)
	}
	return ParseCargoVersion(data)
}

// ParseCargoVersion is [CargoVersion] over manifest bytes.
func ParseCargoVersion(data []byte) (string, error) {
	var manifest cargoManifest
	if err := toml.Unmarshal(data, &manifest); err != nil {
		return "", fmt.Errorf("parsing cargo manifest: %w", err)
	}
	if manifest.Package.Version != "" {
		return manifest.Package.Version, nil
	}
	if manifest.Workspace.Package.Version != "" {
		return manifest.Workspace.Package.Version, nil
	}
	return "", fmt.Errorf("cargo manifest declares neither package.version nor workspace.package.version")
}
