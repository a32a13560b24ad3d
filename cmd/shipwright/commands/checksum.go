// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/shipwright/cmd/shipwright/cli"
	"github.com/bureau-foundation/shipwright/lib/publish"
)

type checksumParams struct {
	cli.JSONOutput
	Verify bool `flag:"verify" desc:"check files against their existing sidecars instead of writing them"`
}

type checksumResult struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256,omitempty"`
	Error  string `json:"error,omitempty"`
}

func checksumCommand() *cli.Command {
	var params checksumParams

	return &cli.Command{
		Name:    "checksum",
		Summary: "Write or verify checksum sidecars",
		Description: `Write a <file>.sha256 sidecar holding the bare hex SHA-256 digest of
each file, as publish does for every artifact. With --verify, compare
each file against its sidecar and exit 1 if any differ.`,
		Usage: "shipwright checksum [flags] <file>...",
		Examples: []cli.Example{
			{
				Description: "Verify a downloaded disk image",
				Command:     "shipwright checksum --verify Q.dmg",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("checksum", &params)
		},
		Run: func(_ context.Context, args []string, logger *slog.Logger) error {
			if len(args) == 0 {
				return fmt.Errorf("at least one file is required")
			}

			results := make([]checksumResult, 0, len(args))
			failed := 0
			for _, path := range args {
				result := checksumResult{Path: path}
				var err error
				if params.Verify {
					err = publish.Verify(path)
				} else {
					result.SHA256, err = publish.Checksum(path)
				}
				if err != nil {
					result.Error = err.Error()
					failed++
					logger.Debug("checksum failed", "path", path, "error", err)
				}
				results = append(results, result)
			}

			if done, err := params.EmitJSON(stdout, results); done {
				if err != nil {
					return err
				}
			} else {
				for _, result := range results {
					switch {
					case result.Error != "":
						fmt.Fprintf(stdout, "%s: FAILED (%s)\n", result.Path, result.Error)
					case params.Verify:
						fmt.Fprintf(stdout, "%s: OK\n", result.Path)
					default:
						fmt.Fprintf(stdout, "%s  %s\n", result.SHA256, result.Path)
					}
				}
			}
			if failed > 0 {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}
