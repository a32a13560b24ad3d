// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package toolexec runs the external tools the release pipeline drives:
// the compiler, lipo, the bundle packager, dmgbuild, hdiutil, notarytool,
// git, pnpm and the aws CLI.
//
// Every invocation carries its environment explicitly in [Command.Env].
// Nothing in the pipeline mutates the process environment; [Exec]
// starts from a base environment captured once by main and overlays the
// command's map on top of it.
//
// Binary resolution checks PATH first, then each configured fallback
// directory in order, so toolchains installed outside PATH (rustup
// proxies, Xcode command line tools) are found without exporting
// anything.
//
// [Recorder] is an in-memory Runner for tests. It records every command
// and dispatches to per-binary handlers that simulate the tool's side
// effects on the local filesystem.
package toolexec
