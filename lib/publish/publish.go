// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package publish writes checksum sidecars for final artifacts and
// uploads artifacts and sidecars to the staging location.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/shipwright/lib/digest"
	"github.com/bureau-foundation/shipwright/lib/objstore"
	"github.com/bureau-foundation/shipwright/lib/schema/release"
)

// SidecarExtension is appended to an artifact's name to name its
// checksum file.
const SidecarExtension = ".sha256"

// StagingPrefix is the key prefix artifacts are uploaded under.
const StagingPrefix = "staging"

// ErrChecksumMismatch is returned by [Verify] when an artifact does not
// match its sidecar.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// SidecarPath returns the checksum sidecar path for an artifact.
func SidecarPath(path string) string {
	return path + SidecarExtension
}

// Checksum writes the SHA-256 of the file at path to its sidecar and
// returns the hex digest. The sidecar holds the bare digest.
func Checksum(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s is not a regular file", path)
	}
	sum, err := digest.HashFile(path)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(SidecarPath(path), []byte(sum.String()), 0o644); err != nil {
		return "", fmt.Errorf("writing checksum sidecar: %w", err)
	}
	return sum.String(), nil
}

// Verify checks the file at path against its sidecar.
func Verify(path string) error {
	recorded, err := os.ReadFile(SidecarPath(path))
	if err != nil {
		return err
	}
	want, err := digest.ParseSHA256(strings.TrimSpace(string(recorded)))
	if err != nil {
		return fmt.Errorf("%s: %w", SidecarPath(path), err)
	}
	got, err := digest.HashFile(path)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: %s is %s, sidecar says %s", ErrChecksumMismatch, filepath.Base(path), got, want)
	}
	return nil
}

// Artifact is one final artifact to publish.
type Artifact struct {
	Path string
	Kind release.ArtifactKind

	// Attachments are uploaded next to the artifact, e.g. a detached
	// signature.
	Attachments []string
}

// Publisher checksums artifacts and, when Store is set, uploads them.
type Publisher struct {
	// Store is the staging location. Nil skips uploading.
	Store  objstore.Store
	Logger *slog.Logger
}

// Publish writes a sidecar for every artifact and uploads artifact,
// sidecar and attachments as independent objects under staging/.
// Every artifact is checksummed before any upload starts.
func (p *Publisher) Publish(ctx context.Context, artifacts []Artifact) ([]release.PublishedArtifact, error) {
	published := make([]release.PublishedArtifact, 0, len(artifacts))
	for _, artifact := range artifacts {
		checksum, err := Checksum(artifact.Path)
		if err != nil {
			return published, fmt.Errorf("checksumming %s: %w", artifact.Path, err)
		}
		p.Logger.Info("wrote checksum", "artifact", filepath.Base(artifact.Path), "sha256", checksum)
		published = append(published, release.PublishedArtifact{
			Path:        artifact.Path,
			Kind:        artifact.Kind,
			Checksum:    checksum,
			SidecarPath: SidecarPath(artifact.Path),
		})
	}

	if p.Store == nil {
		p.Logger.Info("no staging location configured, skipping upload")
		return published, nil
	}
	for index, artifact := range artifacts {
		files := append([]string{artifact.Path, SidecarPath(artifact.Path)}, artifact.Attachments...)
		for _, file := range files {
			key := objstore.Join(StagingPrefix, filepath.Base(file))
			if err := p.Store.Put(ctx, key, file); err != nil {
				return published, fmt.Errorf("uploading %s: %w", filepath.Base(file), err)
			}
			published[index].RemoteKeys = append(published[index].RemoteKeys, key)
			p.Logger.Info("uploaded", "file", filepath.Base(file), "url", p.Store.URL(key))
		}
	}
	return published, nil
}
