// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline runs a release build as an ordered list of stages.
//
// macOS runs prepare, compile, test, assets, bundle, diskimage, sign and
// publish; Linux runs prepare, compile, test, tree, archive and publish.
// Each stage reads the outputs earlier stages recorded in [State] and
// adds its own. After every completed stage the state is appended to a
// CBOR journal in the staging directory, so a failed run can resume at
// the failed stage with [Pipeline.Run]'s from argument.
//
// A failure is returned as a [StageError] whose [Class] maps to a
// process exit code. A [ResultLog] mirrors progress as JSON lines for
// CI consumers. An exclusive lock beside the staging directory keeps
// two runs from sharing it.
package pipeline
