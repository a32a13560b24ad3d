// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func excludeFromDumps(data []byte) error {
	if err := unix.Madvise(data, unix.MADV_DONTDUMP); err != nil {
		return fmt.Errorf("secret: madvise(MADV_DONTDUMP) failed: %w", err)
	}
	return nil
}
