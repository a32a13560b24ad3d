// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/shipwright/lib/credential"
	"github.com/bureau-foundation/shipwright/lib/schema/release"
	"github.com/bureau-foundation/shipwright/lib/toolexec"
)

// PasswordVariable carries the notarization password to notarytool,
// which reads it through "@env:" so it never appears on a command line.
const PasswordVariable = "SHIPWRIGHT_NOTARY_PASSWORD"

// notarytool statuses.
const (
	NotaryInProgress = "In Progress"
	NotaryAccepted   = "Accepted"
	NotaryInvalid    = "Invalid"
	NotaryRejected   = "Rejected"
)

// CredentialSource resolves stored credential references.
type CredentialSource interface {
	Notary(reference string) (credential.NotaryCredential, error)
}

// Notary notarizes signed artifacts with notarytool, staples the
// ticket, and verifies the result with the system assessment policy.
type Notary struct {
	Runner      toolexec.Runner
	Credentials CredentialSource

	// Reference names the notarization credential.
	Reference string

	// TeamID is used when the credential carries none.
	TeamID string

	Poller  *Poller
	WorkDir string
	Logger  *slog.Logger
}

type notaryAuth struct {
	appleID  string
	password string
	teamID   string
}

func (a notaryAuth) args() []string {
	return []string{"--apple-id", a.appleID, "--password", "@env:" + PasswordVariable, "--team-id", a.teamID}
}

func (a notaryAuth) env() map[string]string {
	return map[string]string{PasswordVariable: a.password}
}

// Notarize submits the artifact at path, waits for acceptance, staples
// it and verifies it. submitted is called with the submission ID.
func (n *Notary) Notarize(ctx context.Context, path string, kind release.ArtifactKind, submitted func(id string)) (err error) {
	name := filepath.Base(path)
	logger := n.Logger.With("artifact", name, "kind", kind)

	auth, err := n.auth()
	if err != nil {
		return err
	}

	upload := path
	if kind != release.KindDiskImage {
		if err := ensureWorkDir(n.WorkDir); err != nil {
			return err
		}
		upload = filepath.Join(n.WorkDir, "."+strings.TrimSuffix(name, filepath.Ext(name))+".notarize.zip")
		defer func() {
			err = errors.Join(err, removeIfExists(upload))
		}()
		if err := n.run(ctx, "ditto", "-c", "-k", "--sequesterRsrc", "--keepParent", path, upload); err != nil {
			return fmt.Errorf("zipping %s for notarization: %w", name, err)
		}
	}

	var submission struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	}
	if err := n.notarytool(ctx, auth, &submission, "submit", upload, "--no-wait"); err != nil {
		return fmt.Errorf("submitting %s for notarization: %w", name, err)
	}
	if submission.ID == "" {
		return fmt.Errorf("notarytool returned no submission ID for %s", name)
	}
	if submitted != nil {
		submitted(submission.ID)
	}
	logger.Info("submitted for notarization", "submission_id", submission.ID)

	err = n.Poller.Poll(ctx, "notarization "+submission.ID, func(ctx context.Context) (Outcome, error) {
		var info struct {
			Status string `json:"status"`
		}
		if err := n.notarytool(ctx, auth, &info, "info", submission.ID); err != nil {
			var exitError *toolexec.ExitError
			if errors.As(err, &exitError) {
				return Pending, Transient(err)
			}
			return Pending, err
		}
		switch info.Status {
		case NotaryAccepted:
			return Succeeded, nil
		case NotaryInvalid, NotaryRejected:
			return Failed, nil
		case NotaryInProgress:
			return Pending, nil
		default:
			return Pending, fmt.Errorf("unknown notarization status %q", info.Status)
		}
	})
	if errors.Is(err, ErrDenied) {
		n.logRejection(ctx, auth, logger, submission.ID)
		return err
	}
	if err != nil {
		return err
	}

	if err := n.run(ctx, "xcrun", "stapler", "staple", path); err != nil {
		return fmt.Errorf("stapling %s: %w", name, err)
	}
	if err := n.Verify(ctx, path, kind); err != nil {
		return err
	}
	logger.Info("artifact notarized", "submission_id", submission.ID)
	return nil
}

// Verify assesses path against the system policy.
func (n *Notary) Verify(ctx context.Context, path string, kind release.ArtifactKind) error {
	args := []string{"-a", "-v", path}
	if kind == release.KindDiskImage {
		args = []string{"-a", "-t", "open", "--context", "context:primary-signature", "-v", path}
	}
	if _, err := n.Runner.Run(ctx, toolexec.Command{Name: "spctl", Args: args}); err != nil {
		return fmt.Errorf("verifying %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (n *Notary) auth() (notaryAuth, error) {
	if n.Credentials == nil || n.Reference == "" {
		return notaryAuth{}, errors.New("no notarization credential configured")
	}
	stored, err := n.Credentials.Notary(n.Reference)
	if err != nil {
		return notaryAuth{}, fmt.Errorf("resolving notarization credential: %w", err)
	}
	auth := notaryAuth{appleID: stored.AppleID, password: stored.Password, teamID: stored.TeamID}
	if auth.teamID == "" {
		auth.teamID = n.TeamID
	}
	if auth.teamID == "" {
		return notaryAuth{}, fmt.Errorf("notarization credential %s has no team ID and none is configured", n.Reference)
	}
	return auth, nil
}

func (n *Notary) run(ctx context.Context, name string, args ...string) error {
	_, err := n.Runner.Run(ctx, toolexec.Command{Name: name, Args: args})
	return err
}

// notarytool runs one notarytool subcommand and decodes its JSON output.
func (n *Notary) notarytool(ctx context.Context, auth notaryAuth, result any, subcommand string, args ...string) error {
	command := toolexec.Command{
		Name: "xcrun",
		Args: append(append(append([]string{"notarytool", subcommand}, args...), auth.args()...), "--output-format", "json"),
		Env:  auth.env(),
	}
	output, err := n.Runner.Run(ctx, command)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(output.Stdout), result); err != nil {
		return fmt.Errorf("decoding notarytool %s output: %w", subcommand, err)
	}
	return nil
}

// logRejection fetches the notarization log for a rejected submission.
func (n *Notary) logRejection(ctx context.Context, auth notaryAuth, logger *slog.Logger, id string) {
	command := toolexec.Command{
		Name: "xcrun",
		Args: append([]string{"notarytool", "log", id}, auth.args()...),
		Env:  auth.env(),
	}
	output, err := n.Runner.Run(ctx, command)
	if err != nil {
		logger.Warn("fetching notarization log failed", "submission_id", id, "error", err)
		return
	}
	logger.Error("notarization rejected", "submission_id", id, "log", strings.TrimSpace(output.Stdout))
}
