// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned when another run holds the staging directory.
var ErrLocked = errors.New("staging directory is in use by another run")

// stagingLock is an exclusive advisory lock on a staging directory.
// The lock file sits next to the directory, so clearing the directory
// does not release it.
type stagingLock struct {
	file *os.File
}

// lockPath is the lock file guarding staging.
func lockPath(staging string) string {
	clean := filepath.Clean(staging)
	return filepath.Join(filepath.Dir(clean), "."+filepath.Base(clean)+".lock")
}

// acquireLock takes the lock without blocking.
func acquireLock(staging string) (*stagingLock, error) {
	path := lockPath(staging)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening staging lock: %w", err)
	}
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, staging)
		}
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	return &stagingLock{file: file}, nil
}

// Release drops the lock. The lock file is left in place; removing it
// would race a second run that already opened it.
func (l *stagingLock) Release() error {
	if l == nil {
		return nil
	}
	return errors.Join(unix.Flock(int(l.file.Fd()), unix.LOCK_UN), l.file.Close())
}
