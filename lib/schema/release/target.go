// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package release

import (
	"fmt"
	"slices"
	"strings"
)

// Platform is the operating system a release is built for.
type Platform string

const (
	PlatformMacOS Platform = "macos"
	PlatformLinux Platform = "linux"
)

// ParsePlatform parses a platform name. "darwin" is accepted as an
// alias for macos so runtime.GOOS can be passed directly.
func ParsePlatform(name string) (Platform, error) {
	switch strings.ToLower(name) {
	case "macos", "darwin":
		return PlatformMacOS, nil
	case "linux":
		return PlatformLinux, nil
	default:
		return "", fmt.Errorf("unsupported platform %q", name)
	}
}

// Arch is a processor architecture in toolchain spelling.
type Arch string

const (
	ArchX86_64  Arch = "x86_64"
	ArchAArch64 Arch = "aarch64"
)

// ParseArch accepts toolchain, Go and lipo spellings.
func ParseArch(name string) (Arch, error) {
	switch name {
	case "x86_64", "amd64":
		return ArchX86_64, nil
	case "aarch64", "arm64":
		return ArchAArch64, nil
	default:
		return "", fmt.Errorf("unsupported architecture %q", name)
	}
}

// LipoName returns the architecture name as reported by lipo -archs.
func (a Arch) LipoName() string {
	if a == ArchAArch64 {
		return "arm64"
	}
	return string(a)
}

// TargetTriple is a compiler target triple such as
// "aarch64-apple-darwin" or "x86_64-unknown-linux-musl".
type TargetTriple string

// UniversalDarwin is the pseudo-triple recorded in manifests for merged
// macOS binaries. It is never passed to the compiler.
const UniversalDarwin TargetTriple = "universal-apple-darwin"

// Triple returns the compiler triple for platform and arch.
func Triple(platform Platform, arch Arch, musl bool) TargetTriple {
	if platform == PlatformMacOS {
		return TargetTriple(string(arch) + "-apple-darwin")
	}
	libc := "gnu"
	if musl {
		libc = "musl"
	}
	return TargetTriple(string(arch) + "-unknown-linux-" + libc)
}

// Arch returns the architecture component of the triple.
func (t TargetTriple) Arch() (Arch, error) {
	head, _, found := strings.Cut(string(t), "-")
	if !found {
		return "", fmt.Errorf("malformed target triple %q", t)
	}
	return ParseArch(head)
}

// BuildTarget describes what one pipeline invocation builds. It is
// immutable once the pipeline starts.
type BuildTarget struct {
	Platform      Platform
	Architectures []Arch

	// Musl selects the musl libc triples on Linux.
	Musl bool

	// Headless excludes the desktop shell and its assets.
	Headless bool

	// Features maps a package name to the feature flags it is compiled
	// with. The same map is used for tests and release builds.
	Features map[string][]string

	// Environment holds toolchain environment overrides applied on top
	// of the release environment.
	Environment map[string]string
}

// Validate reports structural problems with the target.
func (b BuildTarget) Validate() error {
	switch b.Platform {
	case PlatformMacOS, PlatformLinux:
	default:
		return fmt.Errorf("unsupported platform %q", b.Platform)
	}
	if len(b.Architectures) == 0 {
		return fmt.Errorf("build target for %s declares no architectures", b.Platform)
	}
	seen := make(map[Arch]bool, len(b.Architectures))
	for _, arch := range b.Architectures {
		if _, err := ParseArch(string(arch)); err != nil {
			return err
		}
		if seen[arch] {
			return fmt.Errorf("architecture %s declared twice", arch)
		}
		seen[arch] = true
	}
	if b.Platform == PlatformLinux && len(b.Architectures) > 1 {
		return fmt.Errorf("linux builds do not cross-compile architectures (got %d)", len(b.Architectures))
	}
	return nil
}

// Triples returns one compiler triple per declared architecture, in
// declaration order.
func (b BuildTarget) Triples() []TargetTriple {
	triples := make([]TargetTriple, 0, len(b.Architectures))
	for _, arch := range b.Architectures {
		triples = append(triples, Triple(b.Platform, arch, b.Musl))
	}
	return triples
}

// Universal reports whether outputs must be merged into a universal
// binary.
func (b BuildTarget) Universal() bool {
	return b.Platform == PlatformMacOS && len(b.Architectures) >= 2
}

// ManifestTriple is the triple recorded in build metadata: the
// universal pseudo-triple for macOS, the single triple otherwise.
func (b BuildTarget) ManifestTriple() TargetTriple {
	if b.Platform == PlatformMacOS {
		return UniversalDarwin
	}
	return b.Triples()[0]
}

// FeatureList returns the features for pkg, or nil.
func (b BuildTarget) FeatureList(pkg string) []string {
	return b.Features[pkg]
}

// AllFeatures returns the de-duplicated union of every package's
// features in sorted order, as used for workspace-wide test runs.
func (b BuildTarget) AllFeatures() []string {
	var all []string
	for _, features := range b.Features {
		for _, feature := range features {
			if !slices.Contains(all, feature) {
				all = append(all, feature)
			}
		}
	}
	slices.Sort(all)
	return all
}
