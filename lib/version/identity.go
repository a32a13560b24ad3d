// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/bureau-foundation/shipwright/lib/toolexec"
)

// UnknownHash is recorded when no source revision can be determined.
const UnknownHash = "unknown"

// BuildInfo identifies one product build. It is computed once at the
// start of a run and threaded to every stage that records it.
type BuildInfo struct {
	Version string
	Hash    string
	Time    time.Time
	Variant string
	Triple  string
}

// DateTime formats Time the way it is recorded in manifests and
// BUILD-INFO files.
func (b BuildInfo) DateTime() string {
	return b.Time.UTC().Format(time.RFC3339)
}

// ResolveHash returns the source revision: override when non-empty
// (CI systems export the revision they checked out), otherwise
// "git rev-parse HEAD" in dir. A failing git is logged and yields
// [UnknownHash]; the revision is informational and never blocks a
// build.
func ResolveHash(ctx context.Context, runner toolexec.Runner, dir, override string, logger *slog.Logger) string {
	if override = strings.TrimSpace(override); override != "" {
		return override
	}
	result, err := runner.Run(ctx, toolexec.Command{
		Name: "git",
		Args: []string{"rev-parse", "HEAD"},
		Dir:  dir,
	})
	if err != nil {
		logger.Warn("could not determine source revision", "error", err)
		return UnknownHash
	}
	hash := strings.TrimSpace(result.Stdout)
	if hash == "" {
		return UnknownHash
	}
	return hash
}
