// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"encoding/json"
	"time"

	"github.com/bureau-foundation/shipwright/lib/version"
)

// ManifestFile is the name of the bundle manifest resource.
const ManifestFile = "manifest.json"

// PackagingConfigFile is the packaging tool config written next to the
// desktop package.
const PackagingConfigFile = "build-config.json"

// Manifest is bundled into the application so the product can tell how
// it was installed and which channel it follows.
type Manifest struct {
	ManagedBy      string `json:"managed_by"`
	PackagedAt     string `json:"packaged_at"`
	PackagedBy     string `json:"packaged_by"`
	Variant        string `json:"variant"`
	Version        string `json:"version"`
	Kind           string `json:"kind"`
	DefaultChannel string `json:"default_channel"`
}

// NewManifest returns the manifest for a disk image install of build.
func NewManifest(build version.BuildInfo, packagedBy, channel string, packagedAt time.Time) Manifest {
	return Manifest{
		ManagedBy:      "dmg",
		PackagedAt:     packagedAt.UTC().Format(time.RFC3339Nano),
		PackagedBy:     packagedBy,
		Variant:        build.Variant,
		Version:        build.Version,
		Kind:           "dmg",
		DefaultChannel: channel,
	}
}

// PackagingConfig is the packaging tool's declarative input: which
// external binaries to bundle and which resources to include.
type PackagingConfig struct {
	// ExternalBinaries are paths without their target triple suffix;
	// the packaging tool appends "-<triple>" itself.
	ExternalBinaries []string
	Resources        []string
}

// MarshalJSON renders the config in the packaging tool's nesting.
func (c PackagingConfig) MarshalJSON() ([]byte, error) {
	type bundleSection struct {
		ExternalBin []string `json:"externalBin"`
		Resources   []string `json:"resources"`
	}
	type tauriSection struct {
		Bundle bundleSection `json:"bundle"`
	}
	return json.Marshal(struct {
		Tauri tauriSection `json:"tauri"`
	}{tauriSection{bundleSection{
		ExternalBin: nonNil(c.ExternalBinaries),
		Resources:   nonNil(c.Resources),
	}}})
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
