// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package release

import "fmt"

// CompiledArtifact is one binary produced by one compiler invocation
// for one target triple.
type CompiledArtifact struct {
	Package string       `json:"package"`
	Path    string       `json:"path"`
	Triple  TargetTriple `json:"triple"`
}

// UniversalBinary is the fat-binary merge of two or more
// CompiledArtifacts sharing a logical name. Downstream stages use it
// in place of its inputs.
type UniversalBinary struct {
	Name          string             `json:"name"`
	Path          string             `json:"path"`
	Architectures []Arch             `json:"architectures"`
	Inputs        []CompiledArtifact `json:"inputs"`
}

// Binary is a stage-ready executable: either a staged single-arch
// artifact or a universal binary.
type Binary struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// ArtifactKind classifies artifacts for signing and publishing.
type ArtifactKind string

const (
	KindHelperBundle ArtifactKind = "helper-bundle"
	KindApp          ArtifactKind = "app"
	KindDiskImage    ArtifactKind = "disk-image"
	KindArchive      ArtifactKind = "archive"
	KindTree         ArtifactKind = "tree"
)

// ParseArtifactKind parses a kind name.
func ParseArtifactKind(name string) (ArtifactKind, error) {
	switch kind := ArtifactKind(name); kind {
	case KindHelperBundle, KindApp, KindDiskImage, KindArchive, KindTree:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown artifact kind %q", name)
	}
}

// Signable reports whether the external signing service accepts the
// kind. The set is closed: helper bundles, apps and disk images.
func (k ArtifactKind) Signable() bool {
	switch k {
	case KindHelperBundle, KindApp, KindDiskImage:
		return true
	default:
		return false
	}
}

// PublishedArtifact is a final artifact with its content checksum. The
// checksum lives in a sibling sidecar file, never inside the artifact.
type PublishedArtifact struct {
	Path        string       `json:"path"`
	Kind        ArtifactKind `json:"kind"`
	Checksum    string       `json:"checksum"`
	SidecarPath string       `json:"sidecar_path"`

	// RemoteKeys lists the object keys written to the staging
	// location. Empty when no staging location is configured.
	RemoteKeys []string `json:"remote_keys,omitempty"`
}

// AppBundle is an assembled macOS application bundle. It is eligible
// for signing only once it carries exactly one embedded helper bundle,
// every frontend resource tree, and patched metadata.
type AppBundle struct {
	Path string `json:"path"`

	// Helper is the embedded helper bundle inside Contents/Helpers.
	Helper string `json:"helper"`

	// ResourceTrees are the directories copied into Contents/Resources.
	ResourceTrees []string `json:"resource_trees"`

	MetadataPatched bool `json:"metadata_patched"`
}

// DiskImage is a built disk image and the bundle it packages.
type DiskImage struct {
	Path string `json:"path"`
	App  string `json:"app"`

	// Unsigned is the fingerprint of the image as first built from the
	// unsigned bundle. Rebundles are compared against it.
	Unsigned string `json:"unsigned,omitempty"`
}

// Tree is a laid-out Linux install tree.
type Tree struct {
	Root     string   `json:"root"`
	Binaries []string `json:"binaries"`
	Headless bool     `json:"headless"`
}

// Archive is one packaged Linux archive.
type Archive struct {
	Path   string `json:"path"`
	Format string `json:"format"`

	// SignaturePath is the detached signature, when one was made.
	SignaturePath string `json:"signature_path,omitempty"`
}
