// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package release

import (
	"slices"
	"testing"
)

func TestTriple(t *testing.T) {
	tests := []struct {
		platform Platform
		arch     Arch
		musl     bool
		want     TargetTriple
	}{
		{PlatformMacOS, ArchAArch64, false, "aarch64-apple-darwin"},
		{PlatformMacOS, ArchX86_64, true, "x86_64-apple-darwin"},
		{PlatformLinux, ArchX86_64, false, "x86_64-unknown-linux-gnu"},
		{PlatformLinux, ArchAArch64, true, "aarch64-unknown-linux-musl"},
	}
	for _, test := range tests {
		if got := Triple(test.platform, test.arch, test.musl); got != test.want {
			t.Errorf("Triple(%s, %s, %v) = %s, want %s", test.platform, test.arch, test.musl, got, test.want)
		}
		arch, err := test.want.Arch()
		if err != nil {
			t.Fatalf("%s.Arch: %v", test.want, err)
		}
		if arch != test.arch {
			t.Errorf("%s.Arch = %s, want %s", test.want, arch, test.arch)
		}
	}
}

func TestBuildTargetValidate(t *testing.T) {
	tests := []struct {
		name    string
		target  BuildTarget
		wantErr bool
	}{
		{"macos universal", BuildTarget{Platform: PlatformMacOS, Architectures: []Arch{ArchX86_64, ArchAArch64}}, false},
		{"linux single", BuildTarget{Platform: PlatformLinux, Architectures: []Arch{ArchX86_64}}, false},
		{"no architectures", BuildTarget{Platform: PlatformLinux}, true},
		{"duplicate", BuildTarget{Platform: PlatformMacOS, Architectures: []Arch{ArchX86_64, ArchX86_64}}, true},
		{"linux multi", BuildTarget{Platform: PlatformLinux, Architectures: []Arch{ArchX86_64, ArchAArch64}}, true},
		{"windows", BuildTarget{Platform: "windows", Architectures: []Arch{ArchX86_64}}, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.target.Validate()
			if (err != nil) != test.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, test.wantErr)
			}
		})
	}
}

func TestBuildTargetManifestTriple(t *testing.T) {
	macos := BuildTarget{Platform: PlatformMacOS, Architectures: []Arch{ArchX86_64, ArchAArch64}}
	if !macos.Universal() {
		t.Error("two-arch macOS target should be universal")
	}
	if got := macos.ManifestTriple(); got != UniversalDarwin {
		t.Errorf("ManifestTriple = %s, want %s", got, UniversalDarwin)
	}

	linux := BuildTarget{Platform: PlatformLinux, Architectures: []Arch{ArchAArch64}, Musl: true}
	if linux.Universal() {
		t.Error("linux target should not be universal")
	}
	if got := linux.ManifestTriple(); got != "aarch64-unknown-linux-musl" {
		t.Errorf("ManifestTriple = %s", got)
	}
}

func TestAllFeaturesDeduplicates(t *testing.T) {
	target := BuildTarget{Features: map[string][]string{
		"cli":     {"cli/gamma", "shared"},
		"desktop": {"desktop/gamma", "shared"},
	}}
	want := []string{"cli/gamma", "desktop/gamma", "shared"}
	if got := target.AllFeatures(); !slices.Equal(got, want) {
		t.Errorf("AllFeatures = %v, want %v", got, want)
	}
}

func TestSignable(t *testing.T) {
	for _, kind := range []ArtifactKind{KindHelperBundle, KindApp, KindDiskImage} {
		if !kind.Signable() {
			t.Errorf("%s should be signable", kind)
		}
	}
	for _, kind := range []ArtifactKind{KindArchive, KindTree} {
		if kind.Signable() {
			t.Errorf("%s should not be signable", kind)
		}
	}
}
