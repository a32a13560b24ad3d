// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signing

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bureau-foundation/shipwright/lib/codec"
	"github.com/bureau-foundation/shipwright/lib/schema/release"
)

// JournalEntry records one state an artifact reached.
type JournalEntry struct {
	Artifact  string               `cbor:"artifact"`
	Kind      release.ArtifactKind `cbor:"kind"`
	State     release.SigningState `cbor:"state"`
	Time      time.Time            `cbor:"time"`
	RequestID string               `cbor:"request_id,omitempty"`
	Error     string               `cbor:"error,omitempty"`
}

// Journal is an append-only CBOR sequence of [JournalEntry] values.
// A nil *Journal discards entries.
type Journal struct {
	Path string

	mu sync.Mutex
}

// Record appends entry.
func (j *Journal) Record(entry JournalEntry) (err error) {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(j.Path), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(j.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening signing journal: %w", err)
	}
	defer func() {
		err = errors.Join(err, file.Close())
	}()
	if err := codec.NewEncoder(file).Encode(entry); err != nil {
		return fmt.Errorf("writing signing journal: %w", err)
	}
	return nil
}

// Entries returns every entry in order. A missing journal is empty. A
// truncated final entry, left by an interrupted write, is dropped.
func (j *Journal) Entries() ([]JournalEntry, error) {
	if j == nil {
		return nil, nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.Open(j.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entries []JournalEntry
	decoder := codec.NewDecoder(file)
	for {
		var entry JournalEntry
		err := decoder.Decode(&entry)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return entries, nil
		}
		if err != nil {
			return entries, fmt.Errorf("reading signing journal %s: %w", j.Path, err)
		}
		entries = append(entries, entry)
	}
}

// States returns the last state recorded for each artifact path.
func (j *Journal) States() (map[string]release.SigningState, error) {
	entries, err := j.Entries()
	if err != nil {
		return nil, err
	}
	states := make(map[string]release.SigningState, len(entries))
	for _, entry := range entries {
		states[entry.Artifact] = entry.State
	}
	return states, nil
}
