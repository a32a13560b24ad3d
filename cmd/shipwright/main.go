// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command shipwright builds, packages, signs and publishes product
// releases. See "shipwright --help".
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/shipwright/cmd/shipwright/cli"
	"github.com/bureau-foundation/shipwright/cmd/shipwright/commands"
)

// debugEnvironmentVariable enables debug-level logging when non-empty.
const debugEnvironmentVariable = "SHIPWRIGHT_DEBUG"

func main() {
	if err := run(); err != nil {
		// Errors carrying an exit code (a failed stage, a failed
		// verification) have already been reported.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := cli.NewCommandLogger(os.Getenv(debugEnvironmentVariable) != "")
	return commands.Root().Execute(ctx, os.Args[1:], logger)
}
