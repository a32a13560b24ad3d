// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package toolsim simulates the external tools of a release build on
// the local filesystem, for tests. Each simulator is a
// [toolexec.Handler] registered on a [toolexec.Recorder]; it parses the
// same arguments the real tool would and produces the files the real
// tool would leave behind, so pipeline stages can be exercised end to
// end without a compiler, Xcode or network.
//
// [Install] registers every simulator at once. Individual handlers can
// be replaced afterwards to inject failures.
package toolsim
