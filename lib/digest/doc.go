// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package digest computes content digests for release artifacts.
//
// Two digests serve two audiences:
//
//   - [HashFile] is the SHA-256 of a file's bytes. It is what the
//     publisher writes into the ".sha256" sidecar next to every final
//     artifact, so anyone can verify a download with sha256sum.
//   - [Fingerprint] is a BLAKE3 keyed digest over a file or a whole
//     directory tree (relative paths, permission bits, symlink targets
//     and file contents). The pipeline uses it internally to prove that
//     an artifact actually changed: a signed bundle must fingerprint
//     differently from the unsigned one, and a rebundled disk image
//     differently from the image it replaced.
package digest
