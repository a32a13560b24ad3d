// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package secret

// Darwin has no per-mapping core dump exclusion; mlock still keeps the
// region out of swap.
func excludeFromDumps([]byte) error { return nil }
