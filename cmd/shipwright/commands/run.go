// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/shipwright/cmd/shipwright/cli"
	"github.com/bureau-foundation/shipwright/lib/clock"
	"github.com/bureau-foundation/shipwright/lib/config"
	"github.com/bureau-foundation/shipwright/lib/pipeline"
	"github.com/bureau-foundation/shipwright/lib/schema/release"
)

type runParams struct {
	Project projectFlags
	targetFlags

	Options   string `flag:"options" desc:"invocation options blob (JSONC); - reads stdin"`
	From      string `flag:"from" desc:"resume at this stage using the outputs journaled by the last run"`
	Results   string `flag:"results" desc:"write one JSON line per stage to this file"`
	Hash      string `flag:"hash" desc:"source revision (default: $CODEBUILD_SOURCE_VERSION, then git rev-parse HEAD)"`
	MountRoot string `flag:"mount-root" desc:"where disk images are attached while rebundling" default:"/Volumes"`
}

func runCommand() *cli.Command {
	var params runParams

	return &cli.Command{
		Name:    "run",
		Summary: "Run the release pipeline",
		Description: `Run every stage for the target platform in order. A failed stage stops
the run; the exit code names the failure class (2 build, 3 packaging,
4 signing, 5 publish) and --from resumes at the failed stage.

Only one run may use a staging directory at a time.`,
		Usage: "shipwright run [flags]",
		Examples: []cli.Example{
			{
				Description: "Unsigned Linux build with archives in the staging directory",
				Command:     "shipwright run --platform linux",
			},
			{
				Description: "Signed macOS release with options on stdin",
				Command:     "shipwright run --platform macos --options - < options.jsonc",
			},
			{
				Description: "Retry signing after a service outage",
				Command:     "shipwright run --platform macos --options options.jsonc --from sign",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("run", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			return runPipeline(ctx, &params, logger)
		},
	}
}

func runPipeline(ctx context.Context, params *runParams, logger *slog.Logger) error {
	project, err := params.Project.load()
	if err != nil {
		return err
	}
	options, err := config.ReadOptions(params.Options, stdin)
	if err != nil {
		return err
	}
	target, err := params.buildTarget(project, options)
	if err != nil {
		return err
	}

	var from pipeline.Stage
	if params.From != "" {
		from, err = pipeline.ParseStage(params.From, target.Platform)
		if err != nil {
			return err
		}
	}

	hash := params.Hash
	if hash == "" {
		hash = os.Getenv(HashEnvironmentVariable)
	}

	var results *pipeline.ResultLog
	if params.Results != "" {
		results, err = pipeline.NewResultLog(params.Results, logger)
		if err != nil {
			return err
		}
		defer results.Close()
	}

	run := &pipeline.Pipeline{
		Project:      project,
		Options:      options,
		Target:       target,
		Runner:       newRunner(logger, project.Toolchain.FallbackDirs),
		Clock:        clock.Real(),
		Logger:       logger.With("command", "run"),
		Credentials:  newStoreCredentials(project),
		HashOverride: hash,
		MountRoot:    params.MountRoot,
		Results:      results,
	}

	state, err := run.Run(ctx, from)
	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		fmt.Fprintf(os.Stderr, "error: %v\n\nRe-run from the failed stage with:\n  shipwright run --platform %s --from %s\n",
			stageErr, target.Platform, stageErr.Stage)
		return stageErr
	}
	if err != nil {
		return err
	}

	printSummary(state, target.Platform)
	return nil
}

func printSummary(state *pipeline.State, platform release.Platform) {
	summary := state.Summary()
	fmt.Fprintf(stdout, "%s %s (%s)\n", platform, state.Build.Version, state.Build.Hash)
	for _, path := range state.Artifacts() {
		fmt.Fprintf(stdout, "%s  %s\n", summary[path], path)
	}
	if len(summary) == 0 {
		fmt.Fprintln(stdout, "no artifacts published")
	}
}
