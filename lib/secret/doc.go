// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds signing material (age identities, notarization
// passwords, archive signing keys) in memory outside the Go heap.
//
// [Buffer] is an anonymous mmap region locked into RAM with mlock. On
// Linux it is also excluded from core dumps (MADV_DONTDUMP); other
// platforms rely on mlock alone. Close zeros, unlocks and unmaps it.
// Access after Close panics.
//
// [ReadFile] and [Read] load a secret from disk or a stream into a
// Buffer, trimming surrounding whitespace and zeroing the heap copy.
package secret
