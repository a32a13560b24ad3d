// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/shipwright/cmd/shipwright/cli"
	"github.com/bureau-foundation/shipwright/lib/schema/release"
	"github.com/bureau-foundation/shipwright/lib/toolchain"
)

type mergeParams struct {
	cli.JSONOutput
	Name          string   `flag:"name" desc:"name of the merged binary (default: the first input's base name)"`
	OutputDir     string   `flag:"output-dir" desc:"directory the universal binary is written to" default:"."`
	Architectures []string `flag:"arch" desc:"architectures the output must contain" default:"x86_64,aarch64"`
}

func mergeCommand() *cli.Command {
	var params mergeParams

	return &cli.Command{
		Name:    "merge",
		Summary: "Merge per-architecture binaries into a universal binary",
		Description: `Combine single-architecture macOS binaries with lipo and check that the
result reports every required architecture. Each input is
<target-triple>=<path>.`,
		Usage: "shipwright merge [flags] <triple>=<path>...",
		Examples: []cli.Example{
			{
				Description: "Merge the CLI built for both architectures",
				Command: "shipwright merge --name q --output-dir build " +
					"x86_64-apple-darwin=target/x86_64-apple-darwin/release/q_cli " +
					"aarch64-apple-darwin=target/aarch64-apple-darwin/release/q_cli",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("merge", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			artifacts, err := parseArtifacts(args)
			if err != nil {
				return err
			}
			want, err := parseArchitectures(params.Architectures)
			if err != nil {
				return err
			}
			name := params.Name
			if name == "" {
				name = filepath.Base(artifacts[0].Path)
			}

			driver := &toolchain.Driver{
				Runner:     newRunner(logger, nil),
				StagingDir: params.OutputDir,
				Logger:     logger.With("command", "merge"),
			}
			universal, err := driver.Merge(ctx, name, artifacts, want)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(stdout, universal); done {
				return err
			}
			fmt.Fprintf(stdout, "%s %v\n", universal.Path, universal.Architectures)
			return nil
		},
	}
}

type archsParams struct {
	cli.JSONOutput
}

func archsCommand() *cli.Command {
	var params archsParams

	return &cli.Command{
		Name:    "archs",
		Summary: "List the architectures in a binary",
		Usage:   "shipwright archs [flags] <binary>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("archs", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one binary is required")
			}
			driver := &toolchain.Driver{Runner: newRunner(logger, nil), Logger: logger}
			architectures, err := driver.Architectures(ctx, args[0])
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(stdout, architectures); done {
				return err
			}
			for _, arch := range architectures {
				fmt.Fprintln(stdout, arch)
			}
			return nil
		},
	}
}

func parseArtifacts(args []string) ([]release.CompiledArtifact, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("at least one <triple>=<path> input is required")
	}
	artifacts := make([]release.CompiledArtifact, 0, len(args))
	for _, arg := range args {
		triple, path, ok := strings.Cut(arg, "=")
		if !ok || triple == "" || path == "" {
			return nil, fmt.Errorf("input %q is not <triple>=<path>", arg)
		}
		if _, err := release.TargetTriple(triple).Arch(); err != nil {
			return nil, fmt.Errorf("input %q: %w", arg, err)
		}
		artifacts = append(artifacts, release.CompiledArtifact{
			Package: filepath.Base(path),
			Path:    path,
			Triple:  release.TargetTriple(triple),
		})
	}
	return artifacts, nil
}

func parseArchitectures(names []string) ([]release.Arch, error) {
	architectures := make([]release.Arch, 0, len(names))
	for _, name := range names {
		arch, err := release.ParseArch(name)
		if err != nil {
			return nil, err
		}
		architectures = append(architectures, arch)
	}
	return architectures, nil
}
