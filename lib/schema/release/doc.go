// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package release defines the typed values passed between release
// pipeline stages: build targets and target triples, compiled and
// merged binaries, artifact kinds, and published artifacts.
//
// Stages never inspect each other's working directories. Each stage
// returns one of these values and the next stage consumes it, so the
// path handed to signing is exactly the path the bundle assembler
// produced.
package release
