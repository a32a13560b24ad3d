// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package toolchain drives the compiler for a release build.
//
// The compiler environment is an explicit [Environment] value computed
// once per run by [ReleaseEnvironment] and passed to every invocation;
// nothing here reads or mutates the process environment.
//
// [Driver.Build] issues one cargo invocation covering every target
// triple of a package. On macOS the per-triple outputs are merged with
// lipo into a universal binary ([Driver.Merge]); on Linux the single
// output is copied into staging ([Driver.Stage]). [Driver.Compile]
// performs the whole sequence for one package.
package toolchain
