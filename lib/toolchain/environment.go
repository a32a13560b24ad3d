// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package toolchain

import (
	"maps"
	"slices"
	"strings"

	"github.com/bureau-foundation/shipwright/lib/schema/release"
	"github.com/bureau-foundation/shipwright/lib/version"
)

// Environment is the set of variables overlaid on the base environment
// of every compiler invocation.
type Environment map[string]string

// EnvironmentOptions are the inputs to [ReleaseEnvironment].
type EnvironmentOptions struct {
	Platform release.Platform
	Release  bool

	// DeploymentTarget is MACOSX_DEPLOYMENT_TARGET on macOS.
	DeploymentTarget string

	// Linker, when set, is passed to the linker driver as -fuse-ld.
	Linker string

	// IdentityPrefix prefixes the build identity variables.
	IdentityPrefix string

	Build version.BuildInfo

	// Overrides are applied last.
	Overrides map[string]string
}

// ReleaseEnvironment computes the compiler environment. Release builds
// disable incremental compilation, enable thin LTO and keep frame
// pointers; Linux release builds also compress debug sections.
func ReleaseEnvironment(options EnvironmentOptions) Environment {
	environment := Environment{
		"CARGO_NET_GIT_FETCH_WITH_CLI": "true",
	}

	if options.Release {
		rustflags := []string{"-C force-frame-pointers=yes"}
		if options.Linker != "" {
			rustflags = append(rustflags, "-C link-arg=-fuse-ld="+options.Linker)
		}
		if options.Platform == release.PlatformLinux {
			rustflags = append(rustflags, "-C link-arg=-Wl,--compress-debug-sections=zlib")
		}
		environment["CARGO_INCREMENTAL"] = "0"
		environment["CARGO_PROFILE_RELEASE_LTO"] = "thin"
		environment["RUSTFLAGS"] = strings.Join(rustflags, " ")
	}

	if options.Platform == release.PlatformMacOS && options.DeploymentTarget != "" {
		environment["MACOSX_DEPLOYMENT_TARGET"] = options.DeploymentTarget
	}

	prefix := options.IdentityPrefix
	environment[prefix+"TARGET_TRIPLE"] = options.Build.Triple
	environment[prefix+"VARIANT"] = options.Build.Variant
	environment[prefix+"HASH"] = options.Build.Hash
	environment[prefix+"DATETIME"] = options.Build.DateTime()

	maps.Copy(environment, options.Overrides)
	return environment
}

// With returns a copy of e with overrides applied.
func (e Environment) With(overrides map[string]string) Environment {
	combined := maps.Clone(e)
	if combined == nil {
		combined = Environment{}
	}
	maps.Copy(combined, overrides)
	return combined
}

// Keys returns the variable names in sorted order.
func (e Environment) Keys() []string {
	return slices.Sorted(maps.Keys(e))
}
