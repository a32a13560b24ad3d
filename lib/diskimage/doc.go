// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package diskimage packages an application bundle into a macOS disk
// image.
//
// [Builder.Build] renders a [release.DiskImageSpec] into the image
// tool's JSON settings file, which exists only for the duration of the
// tool call, and replaces any image already at the target path.
//
// [Builder.Rebundle] swaps a signed bundle into an existing image: the
// image is converted to a writable intermediate, mounted, updated,
// detached and compressed back to the original path. Rebundling that
// leaves the image byte-identical is an error, because it means the
// image still carries the bundle it was first built from.
package diskimage
