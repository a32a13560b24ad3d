// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bundle assembles macOS application bundles.
//
// Assembly is two applications of the same contract. [AssembleHelper]
// lays out the nested helper bundle from a compiled binary, a property
// list and a resource directory. [Assembler.Assemble] then produces the
// application: it writes the bundle manifest and packaging config as
// scoped transient files, runs the packaging tool, copies its output
// into staging, patches Info.plist, embeds the helper and copies the
// frontend resource trees into Contents/Resources.
//
// The Info.plist patch edits individual keys of the packaging tool's
// output rather than regenerating the file, and is idempotent: applying
// it to an already patched bundle leaves identical values and no
// duplicate URL type entries.
//
// [Verify] checks the invariant a bundle must satisfy before signing:
// exactly one embedded helper, every resource tree, patched metadata.
package bundle
