// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testgate runs the verification suite that must pass before a
// release produces any artifact.
//
// The suite is compiled and run with the release build's feature flags
// and compiler environment, so what is tested is what ships. Any
// failure is final: there are no retries, and a flaky test fails the
// build.
package testgate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bureau-foundation/shipwright/lib/schema/release"
	"github.com/bureau-foundation/shipwright/lib/toolchain"
	"github.com/bureau-foundation/shipwright/lib/toolexec"
)

// Step names one part of the gate.
type Step string

const (
	StepBuildTests Step = "build-tests"
	StepTest       Step = "test"
	StepLint       Step = "lint"
	StepEndToEnd   Step = "e2e"
)

// Failure reports the step that failed.
type Failure struct {
	Step Step
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("test gate %s failed: %v", f.Step, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Request configures one gate run.
type Request struct {
	// Features is the workspace-wide union of release features.
	Features []string

	// Targets restricts compilation; empty uses the host target.
	Targets []release.TargetTriple

	// Exclude lists workspace packages left out of the suite.
	Exclude []string

	// Lints runs clippy after the tests; DenyWarnings makes warnings
	// fatal.
	Lints        bool
	DenyWarnings bool

	// EndToEnd is an external command run last, consumed as
	// pass/fail.
	EndToEnd []string
}

type plannedStep struct {
	step    Step
	command toolexec.Command
}

// Gate runs the suite.
type Gate struct {
	Runner  toolexec.Runner
	Env     toolchain.Environment
	WorkDir string
	Logger  *slog.Logger
}

// Run executes each step in order and stops at the first failure.
func (g *Gate) Run(ctx context.Context, request Request) error {
	steps := []plannedStep{
		{StepBuildTests, g.cargo(request, "build", "--tests", "--locked", "--workspace")},
		{StepTest, g.cargo(request, "test", "--locked", "--workspace")},
	}
	if request.Lints {
		lint := g.cargo(request, "clippy", "--locked", "--workspace")
		if request.DenyWarnings {
			lint.Args = append(lint.Args, "--", "-D", "warnings")
		}
		steps = append(steps, plannedStep{StepLint, lint})
	}
	if len(request.EndToEnd) > 0 {
		steps = append(steps, plannedStep{StepEndToEnd, toolexec.Command{
			Name: request.EndToEnd[0],
			Args: request.EndToEnd[1:],
			Dir:  g.WorkDir,
			Env:  g.Env,
		}})
	}

	for _, step := range steps {
		g.Logger.Info("running test gate step", "step", step.step, "command", step.command.String())
		if _, err := g.Runner.Run(ctx, step.command); err != nil {
			return &Failure{Step: step.step, Err: err}
		}
	}
	g.Logger.Info("test gate passed", "steps", len(steps))
	return nil
}

func (g *Gate) cargo(request Request, args ...string) toolexec.Command {
	for _, triple := range request.Targets {
		args = append(args, "--target", string(triple))
	}
	for _, pkg := range request.Exclude {
		args = append(args, "--exclude", pkg)
	}
	if len(request.Features) > 0 {
		args = append(args, "--features", strings.Join(request.Features, ","))
	}
	return toolexec.Command{Name: "cargo", Args: args, Dir: g.WorkDir, Env: g.Env}
}
