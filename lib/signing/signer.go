// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/shipwright/lib/objstore"
	"github.com/bureau-foundation/shipwright/lib/schema/release"
)

// Object storage layout of the signing exchange.
const (
	PreSignedPrefix = "pre-signed/"
	SignedPrefix    = "signed/"
	PackageKey      = PreSignedPrefix + "package.tar.gz"
	SignedKey       = SignedPrefix + "signed.zip"
)

// Signer code-signs artifacts through the signing service. Packages are
// exchanged through Store, which is rooted at the scope's bucket.
type Signer struct {
	Store   objstore.Store
	Service *Service
	Poller  *Poller

	// Identifier and TeamID are written into every manifest.
	Identifier string
	TeamID     string

	// WorkDir holds packages while they are in flight.
	WorkDir string

	Logger *slog.Logger
}

// Sign replaces the artifact at request.Path with its signed form.
// requested is called with the request ID once the service has
// accepted the request.
func (s *Signer) Sign(ctx context.Context, request release.SigningRequest, requested func(id string)) (err error) {
	name := filepath.Base(request.Path)
	logger := s.Logger.With("artifact", name, "kind", request.Kind)

	manifest, err := NewManifest(request.Kind, name, s.Identifier, s.TeamID)
	if err != nil {
		return err
	}
	manifest.Profile = ProfileFor(request.Scope)
	if err := ensureWorkDir(s.WorkDir); err != nil {
		return err
	}

	packagePath := filepath.Join(s.WorkDir, "."+name+".package.tar.gz")
	signedPath := filepath.Join(s.WorkDir, "."+name+".signed.zip")
	defer func() {
		err = errors.Join(err, removeIfExists(packagePath), removeIfExists(signedPath))
	}()

	if err := BuildPackage(request.Path, manifest, packagePath); err != nil {
		return fmt.Errorf("building signing package for %s: %w", name, err)
	}

	for _, prefix := range []string{SignedPrefix, PreSignedPrefix} {
		if err := s.Store.DeletePrefix(ctx, prefix); err != nil {
			return fmt.Errorf("clearing %s: %w", s.Store.URL(prefix), err)
		}
	}
	if err := s.Store.Put(ctx, PackageKey, packagePath); err != nil {
		return fmt.Errorf("uploading signing package: %w", err)
	}
	logger.Info("signing package uploaded", "url", s.Store.URL(PackageKey))

	id, err := s.Service.Create(ctx, manifest)
	if err != nil {
		return fmt.Errorf("creating signing request for %s: %w", name, err)
	}
	if requested != nil {
		requested(id)
	}
	start := StartRequest{
		IAMRole: request.Scope.RoleARN(),
		S3Location: S3Location{
			Bucket:         request.Scope.Bucket,
			SourceKey:      PackageKey,
			DestinationKey: SignedKey,
		},
		Queue: request.Scope.Queue,
	}
	if err := s.Service.Start(ctx, id, start); err != nil {
		return fmt.Errorf("starting signing request %s: %w", id, err)
	}
	logger.Info("signing request started", "request_id", id)

	err = s.Poller.Poll(ctx, "signing request "+id, func(ctx context.Context) (Outcome, error) {
		status, err := s.Service.Status(ctx, id)
		if err != nil {
			return Pending, err
		}
		switch status {
		case StatusSuccess:
			return Succeeded, nil
		case StatusFailure:
			return Failed, nil
		case StatusCreated, StatusProcessing, StatusInProgress:
			return Pending, nil
		default:
			return Pending, fmt.Errorf("unknown signing status %q", status)
		}
	})
	if err != nil {
		return err
	}

	if err := s.Store.Get(ctx, SignedKey, signedPath); err != nil {
		return fmt.Errorf("downloading signed package: %w", err)
	}
	if err := ExtractPayload(signedPath, request.Path); err != nil {
		return fmt.Errorf("unpacking signed %s: %w", name, err)
	}
	logger.Info("artifact signed", "request_id", id)
	return nil
}

// ensureWorkDir creates the in-flight directory.
func ensureWorkDir(path string) error {
	if path == "" {
		return errors.New("signing work directory not set")
	}
	return os.MkdirAll(path, 0o755)
}
