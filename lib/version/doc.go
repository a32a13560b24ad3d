// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides version information for shipwright itself
// and for the product it releases.
//
// # Shipwright build information
//
// Four package-level variables are injected at build time via
// -ldflags -X. Unset commit, dirty flag and time fall back to the VCS
// stamp embedded by the go command:
//
//   - [GitCommit] -- short git SHA of the build
//   - [GitDirty] -- "true" if there were uncommitted changes
//   - [BuildTime] -- UTC timestamp of the build
//   - [Version] -- semantic version string (set manually for releases)
//
// [Info] and [Full] format them for the version command.
//
// # Product build identity
//
// [CargoVersion] reads the product version from the workspace manifest
// ([package].version, falling back to [workspace.package].version).
// [ResolveHash] determines the source revision from an explicit
// override or git. [BuildInfo] gathers version, hash, time, variant
// and target triple; it is recorded in manifests, BUILD-INFO files and
// the compiler environment.
package version
