// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package digest

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// Fingerprint identifies the content of a file or directory tree.
type Fingerprint [32]byte

func (f Fingerprint) String() string { return hex.EncodeToString(f[:]) }

// IsZero reports whether f is the zero value (no fingerprint taken).
func (f Fingerprint) IsZero() bool { return f == Fingerprint{} }

// fingerprintKey is the BLAKE3 key for artifact fingerprints: the ASCII
// domain name, zero-padded to 32 bytes. Changing it changes every
// fingerprint.
var fingerprintKey = [32]byte{
	's', 'h', 'i', 'p', 'w', 'r', 'i', 'g', 'h', 't', '.', 'f', 'i', 'n', 'g', 'e',
	'r', 'p', 'r', 'i', 'n', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Record types written into the hash stream.
const (
	recordFile    byte = 'f'
	recordDir     byte = 'd'
	recordSymlink byte = 'l'
)

// FingerprintPath fingerprints a regular file or a directory tree.
// Directory entries are visited in lexical order, so the result
// depends only on content, never on filesystem enumeration order.
// Modification times and ownership are excluded.
func FingerprintPath(root string) (Fingerprint, error) {
	hasher, err := blake3.NewKeyed(fingerprintKey[:])
	if err != nil {
		return Fingerprint{}, fmt.Errorf("initializing fingerprint hasher: %w", err)
	}

	info, err := os.Lstat(root)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("fingerprinting %s: %w", root, err)
	}
	if !info.IsDir() {
		if err := writeEntry(hasher, root, ".", info); err != nil {
			return Fingerprint{}, err
		}
		return sum(hasher), nil
	}

	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		relative, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		return writeEntry(hasher, path, filepath.ToSlash(relative), info)
	})
	if err != nil {
		return Fingerprint{}, fmt.Errorf("fingerprinting %s: %w", root, err)
	}
	return sum(hasher), nil
}

func writeEntry(hasher *blake3.Hasher, path, relative string, info fs.FileInfo) error {
	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		target, err := os.Readlink(path)
		if err != nil {
			return err
		}
		writeHeader(hasher, recordSymlink, relative, 0)
		writeString(hasher, target)
	case info.IsDir():
		writeHeader(hasher, recordDir, relative, uint32(info.Mode().Perm()))
	case info.Mode().IsRegular():
		writeHeader(hasher, recordFile, relative, uint32(info.Mode().Perm()))
		var size [8]byte
		binary.BigEndian.PutUint64(size[:], uint64(info.Size()))
		hasher.Write(size[:])
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		if _, err := io.Copy(hasher, file); err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
	default:
		return fmt.Errorf("%s: unsupported file type %v", path, info.Mode().Type())
	}
	return nil
}

// writeHeader writes a record type, the length-prefixed relative path,
// and the permission bits. Length prefixes keep "a"+"bc" distinct from
// "ab"+"c".
func writeHeader(hasher *blake3.Hasher, record byte, relative string, mode uint32) {
	hasher.Write([]byte{record})
	writeString(hasher, relative)
	var modeBytes [4]byte
	binary.BigEndian.PutUint32(modeBytes[:], mode)
	hasher.Write(modeBytes[:])
}

func writeString(hasher *blake3.Hasher, value string) {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(value)))
	hasher.Write(length[:])
	hasher.Write([]byte(value))
}

func sum(hasher *blake3.Hasher) Fingerprint {
	var fingerprint Fingerprint
	copy(fingerprint[:], hasher.Sum(nil))
	return fingerprint
}
