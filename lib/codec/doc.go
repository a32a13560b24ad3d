// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides shipwright's CBOR encoding configuration.
//
// JSON is used where another program reads the bytes: the packaging
// tool's config, the bundle manifest, the signing service API, CLI
// output and the run result log. CBOR is used for shipwright's own
// on-disk state: the signing journal and the pipeline journal in the
// staging directory that resumed runs read back.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2), so the
// same journal entry always produces identical bytes. Times encode as
// RFC 3339 text to keep journals readable with any CBOR diagnostic
// tool.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Journals are CBOR sequences (RFC 8742): entries are appended with
// [NewEncoder] and read back one at a time with [NewDecoder] until
// io.EOF.
package codec
