// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/shipwright/lib/clock"
	"github.com/bureau-foundation/shipwright/lib/diskimage"
	"github.com/bureau-foundation/shipwright/lib/schema/release"
)

// CodeSigner signs one artifact in place. [Signer] is the production
// implementation.
type CodeSigner interface {
	Sign(ctx context.Context, request release.SigningRequest, requested func(id string)) error
}

// Notarizer notarizes and staples one signed artifact in place.
// [Notary] is the production implementation.
type Notarizer interface {
	Notarize(ctx context.Context, path string, kind release.ArtifactKind, submitted func(id string)) error
}

// Rebundler rebuilds a disk image from its (now signed) bundle.
// [diskimage.Builder] is the production implementation.
type Rebundler interface {
	Rebundle(ctx context.Context, app release.AppBundle, image release.DiskImage) (release.DiskImage, error)
}

// Client drives artifacts through signing and notarization, enforcing
// the state order and journaling each state reached.
type Client struct {
	Signer  CodeSigner
	Notary  Notarizer
	Journal *Journal
	Clock   clock.Clock
	Logger  *slog.Logger
}

// tracker holds one artifact's position in the protocol.
type tracker struct {
	client  *Client
	request release.SigningRequest
	state   release.SigningState
}

func (t *tracker) advance(next release.SigningState, requestID string, cause error) error {
	if err := t.state.Next(next); err != nil {
		return err
	}
	t.state = next
	entry := JournalEntry{
		Artifact:  t.request.Path,
		Kind:      t.request.Kind,
		State:     next,
		Time:      t.client.Clock.Now().UTC(),
		RequestID: requestID,
	}
	if cause != nil {
		entry.Error = cause.Error()
	}
	if err := t.client.Journal.Record(entry); err != nil {
		t.client.Logger.Warn("recording signing state failed", "artifact", t.request.Path, "state", next, "error", err)
	}
	return nil
}

// fail moves the artifact to failed and returns the terminal result.
func (t *tracker) fail(cause error) (release.SigningResult, error) {
	if err := t.advance(release.StateFailed, "", cause); err != nil {
		cause = errors.Join(cause, err)
	}
	return release.SigningResult{
		Path:  t.request.Path,
		Kind:  t.request.Kind,
		State: release.StateFailed,
		Error: cause.Error(),
	}, cause
}

// SignAndNotarize signs request.Path, then notarizes and staples it.
// The result is always terminal: notarized, or failed with the error
// that stopped it.
func (c *Client) SignAndNotarize(ctx context.Context, request release.SigningRequest) (release.SigningResult, error) {
	if !request.Kind.Signable() {
		return release.SigningResult{}, fmt.Errorf("artifact kind %s is not signed", request.Kind)
	}
	t := &tracker{client: c, request: request, state: release.StateUnsigned}
	if err := t.client.Journal.Record(JournalEntry{
		Artifact: request.Path,
		Kind:     request.Kind,
		State:    release.StateUnsigned,
		Time:     c.Clock.Now().UTC(),
	}); err != nil {
		c.Logger.Warn("recording signing state failed", "artifact", request.Path, "error", err)
	}

	var stateErr error
	err := c.Signer.Sign(ctx, request, func(id string) {
		stateErr = t.advance(release.StateSigningRequested, id, nil)
	})
	if err == nil {
		err = stateErr
	}
	if err == nil && t.state != release.StateSigningRequested {
		err = errors.New("signer finished without submitting a request")
	}
	if err != nil {
		return t.fail(fmt.Errorf("signing %s: %w", request.Path, err))
	}
	if err := t.advance(release.StateSigned, "", nil); err != nil {
		return t.fail(err)
	}

	err = c.Notary.Notarize(ctx, request.Path, request.Kind, func(id string) {
		stateErr = t.advance(release.StateNotarizationRequested, id, nil)
	})
	if err == nil {
		err = stateErr
	}
	if err == nil && t.state != release.StateNotarizationRequested {
		err = errors.New("notary finished without submitting")
	}
	if err != nil {
		return t.fail(fmt.Errorf("notarizing %s: %w", request.Path, err))
	}
	if err := t.advance(release.StateNotarized, "", nil); err != nil {
		return t.fail(err)
	}
	return release.SigningResult{Path: request.Path, Kind: request.Kind, State: release.StateNotarized}, nil
}

// SignDiskImage signs and notarizes app, rebuilds image from the
// signed app, then signs and notarizes the image. Nothing after a
// failure is attempted.
func (c *Client) SignDiskImage(ctx context.Context, app release.AppBundle, image release.DiskImage, scope release.SigningScope, rebundler Rebundler) (release.DiskImage, []release.SigningResult, error) {
	var results []release.SigningResult

	appResult, err := c.SignAndNotarize(ctx, release.SigningRequest{Path: app.Path, Kind: release.KindApp, Scope: scope})
	results = append(results, appResult)
	if err != nil {
		return image, results, err
	}

	rebuilt, err := rebundler.Rebundle(ctx, app, image)
	if errors.Is(err, diskimage.ErrUnchanged) {
		err = fmt.Errorf("%w: signing %s left the image contents unchanged", err, app.Path)
	}
	if err != nil {
		return image, results, fmt.Errorf("rebundling %s: %w", image.Path, err)
	}
	c.Logger.Info("disk image rebuilt from signed bundle", "image", rebuilt.Path)

	imageResult, err := c.SignAndNotarize(ctx, release.SigningRequest{Path: rebuilt.Path, Kind: release.KindDiskImage, Scope: scope})
	results = append(results, imageResult)
	return rebuilt, results, err
}
