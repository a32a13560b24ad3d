// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/shipwright/lib/assets"
	"github.com/bureau-foundation/shipwright/lib/codec"
	"github.com/bureau-foundation/shipwright/lib/schema/release"
	"github.com/bureau-foundation/shipwright/lib/version"
)

// JournalFile is the stage journal inside the staging directory.
const JournalFile = ".shipwright-journal.cbor"

// SigningJournalFile is the signing journal inside the staging
// directory.
const SigningJournalFile = ".signing-journal.cbor"

// State is every output a run has produced so far. Each stage reads
// the fields earlier stages filled in and fills in its own.
type State struct {
	RunID    string            `cbor:"run_id"`
	Platform release.Platform  `cbor:"platform"`
	Build    version.BuildInfo `cbor:"build"`

	// Binaries maps a role (cli, shim, desktop, helper) to its
	// compiled binary.
	Binaries map[string]release.Binary `cbor:"binaries,omitempty"`

	Assets    assets.Output               `cbor:"assets"`
	Helper    string                      `cbor:"helper,omitempty"`
	App       release.AppBundle           `cbor:"app"`
	Image     release.DiskImage           `cbor:"image"`
	Tree      release.Tree                `cbor:"tree"`
	Archives  []release.Archive           `cbor:"archives,omitempty"`
	Signing   []release.SigningResult     `cbor:"signing,omitempty"`
	Published []release.PublishedArtifact `cbor:"published,omitempty"`
}

// journalEntry is written after each completed stage and carries the
// state as of that point.
type journalEntry struct {
	RunID string    `cbor:"run_id"`
	Stage Stage     `cbor:"stage"`
	Time  time.Time `cbor:"time"`
	State State     `cbor:"state"`
}

// journal is the append-only CBOR sequence of completed stages.
type journal struct {
	path string
}

func (j journal) record(entry journalEntry) (err error) {
	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening stage journal: %w", err)
	}
	defer func() {
		err = errors.Join(err, file.Close())
	}()
	if err := codec.NewEncoder(file).Encode(entry); err != nil {
		return fmt.Errorf("writing stage journal: %w", err)
	}
	return file.Sync()
}

// entries reads every complete entry. A truncated final entry is
// dropped.
func (j journal) entries() ([]journalEntry, error) {
	file, err := os.Open(j.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entries []journalEntry
	decoder := codec.NewDecoder(file)
	for {
		var entry journalEntry
		err := decoder.Decode(&entry)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return entries, nil
		}
		if err != nil {
			return entries, fmt.Errorf("reading stage journal %s: %w", j.path, err)
		}
		entries = append(entries, entry)
	}
}

// resume returns the state to continue from before stage. Every stage
// ahead of it must have completed in a single earlier run.
func (j journal) resume(stages []Stage, from Stage) (State, error) {
	entries, err := j.entries()
	if err != nil {
		return State{}, err
	}
	if len(entries) == 0 {
		return State{}, fmt.Errorf("no stage journal at %s; run the full pipeline first", j.path)
	}
	last := entries[len(entries)-1]
	completed := make(map[Stage]bool)
	for _, entry := range entries {
		if entry.RunID == last.RunID {
			completed[entry.Stage] = true
		}
	}
	for _, stage := range stages {
		if stage == from {
			return last.State, nil
		}
		if !completed[stage] {
			return State{}, fmt.Errorf("cannot resume from %s: stage %s has not completed", from, stage)
		}
	}
	return State{}, fmt.Errorf("stage %s is not part of this pipeline", from)
}
