// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework behind the shipwright binary:
// a tree of [Command] values dispatched by name, pflag flag sets bound
// from tagged parameter structs, typo suggestions for unknown commands
// and flags, and the process-wide logger.
//
// Commands return errors. main prints them, except for errors that
// implement ExitCode() int, which carry their own exit status and have
// already reported themselves.
package cli
