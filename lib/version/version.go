// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

// These variables are set via -ldflags -X at build time. Unset values
// are filled from the VCS stamp the go command embeds.
var (
	// GitCommit is the short git SHA of the build.
	GitCommit = ""

	// GitDirty is "true" when the tree had uncommitted changes.
	GitDirty = ""

	// BuildTime is the UTC timestamp of the build.
	BuildTime = ""

	// Version is the semantic version, set for releases.
	Version = "0.1.0-dev"
)

var stampOnce sync.Once

// stamp fills unset build variables from debug.ReadBuildInfo.
func stamp() {
	stampOnce.Do(func() {
		settings := map[string]string{}
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, setting := range info.Settings {
				settings[setting.Key] = setting.Value
			}
		}
		if GitCommit == "" {
			GitCommit = settings["vcs.revision"]
			if len(GitCommit) > 12 {
				GitCommit = GitCommit[:12]
			}
		}
		if GitDirty == "" {
			GitDirty = settings["vcs.modified"]
		}
		if BuildTime == "" {
			BuildTime = settings["vcs.time"]
		}
		for _, value := range []*string{&GitCommit, &BuildTime} {
			if *value == "" {
				*value = "unknown"
			}
		}
	})
}

// Info returns "<version> (<commit>[-dirty], <time>)".
func Info() string {
	stamp()
	dirty := ""
	if GitDirty == "true" {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, GitCommit, dirty, BuildTime)
}

// Full returns [Info] followed by the Go version and host platform.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
