// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the two configuration inputs of a release run.
//
// The project file (shipwright.yaml) describes the product being
// released: display names, cargo package names, bundle identifiers,
// resource paths, icon resolutions, disk image layout and archive
// formats. It is loaded from a single path given either by the
// SHIPWRIGHT_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There is no discovery and no fallback file.
//
// The invocation options blob ([Options]) carries per-run toggles:
// signing scope, output bucket, stage, headless. It is JSON extended
// with comments and trailing commas, stripped with tidwall/jsonc before
// decoding. Every field is optional; omission disables the stage the
// field would configure.
//
// Key exports:
//
//   - [Project] and [Default], [Load], [LoadFile]
//   - [Project.Validate] returning human-readable issues
//   - [Options], [ParseOptions], [ReadOptions]
//   - [Options.SigningEnabled] and [Options.Stage] helpers
package config
