// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/shipwright/cmd/shipwright/cli"
	"github.com/bureau-foundation/shipwright/lib/config"
	"github.com/bureau-foundation/shipwright/lib/pipeline"
)

type planParams struct {
	cli.JSONOutput
	Project projectFlags
	targetFlags

	Options string `flag:"options" desc:"invocation options blob (JSONC); - reads stdin"`
}

// planRow is one stage in --json output.
type planRow struct {
	Index    int    `json:"index"`
	Stage    string `json:"stage"`
	Class    string `json:"class"`
	ExitCode int    `json:"exit_code"`
	Skip     string `json:"skip,omitempty"`
	Note     string `json:"note"`
}

func planCommand() *cli.Command {
	var params planParams

	return &cli.Command{
		Name:    "plan",
		Summary: "Show the stages a run would execute",
		Description: `Resolve the project, target and invocation options the way run does and
print each stage with its failure class and what it will produce. Stages
that will be skipped, such as sign without a complete signing block, say
why. Nothing is built.`,
		Usage: "shipwright plan [flags]",
		Examples: []cli.Example{
			{
				Description: "Check which signing fields are missing",
				Command:     "shipwright plan --platform macos --options options.jsonc",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("plan", &params)
		},
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
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
			if issues := project.Validate(target.Platform); len(issues) > 0 {
				return fmt.Errorf("invalid project configuration:\n  %s", strings.Join(issues, "\n  "))
			}

			planned := (&pipeline.Pipeline{Project: project, Options: options, Target: target}).Plan()
			if done, err := params.EmitJSON(stdout, planRows(planned)); done {
				return err
			}
			fmt.Fprintf(stdout, "%s %v (%s)\n\n", target.Platform, target.Architectures, options.Stage())
			return renderPlan(stdout, lipgloss.NewRenderer(stdout), planned)
		},
	}
}

func planRows(planned []pipeline.PlannedStage) []planRow {
	rows := make([]planRow, 0, len(planned))
	for index, stage := range planned {
		rows = append(rows, planRow{
			Index:    index,
			Stage:    string(stage.Stage),
			Class:    string(stage.Class),
			ExitCode: stage.Class.ExitCode(),
			Skip:     stage.Skip,
			Note:     stage.Note,
		})
	}
	return rows
}

// renderPlan writes the stage table. Without color support it falls
// back to plain tab-aligned columns.
func renderPlan(w io.Writer, renderer *lipgloss.Renderer, planned []pipeline.PlannedStage) error {
	if renderer.ColorProfile() == termenv.Ascii {
		tw := tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "#\tSTAGE\tCLASS\tSTATUS\tNOTE")
		for index, stage := range planned {
			status, note := "run", stage.Note
			if stage.Skip != "" {
				status, note = "skip", stage.Skip
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", index+1, stage.Stage, stage.Class, status, note)
		}
		return tw.Flush()
	}

	stageWidth := len("STAGE")
	for _, stage := range planned {
		stageWidth = max(stageWidth, len(stage.Stage))
	}
	header := renderer.NewStyle().Bold(true).Underline(true)
	index := renderer.NewStyle().Faint(true).Width(3)
	name := renderer.NewStyle().Bold(true).Width(stageWidth + 2)
	class := renderer.NewStyle().Foreground(lipgloss.Color("12")).Width(len("packaging") + 2)
	run := renderer.NewStyle().Foreground(lipgloss.Color("10")).Width(6)
	skip := renderer.NewStyle().Foreground(lipgloss.Color("11")).Width(6)
	note := renderer.NewStyle()
	skipNote := renderer.NewStyle().Italic(true).Faint(true)

	lines := []string{lipgloss.JoinHorizontal(lipgloss.Top,
		index.Inherit(header).Render("#"),
		name.Inherit(header).Render("STAGE"),
		class.UnsetForeground().Inherit(header).Render("CLASS"),
		run.UnsetForeground().Inherit(header).Render("RUN"),
		header.Render("NOTE"),
	)}
	for position, stage := range planned {
		status, detail := run.Render("run"), note.Render(stage.Note)
		if stage.Skip != "" {
			status, detail = skip.Render("skip"), skipNote.Render(stage.Skip)
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top,
			index.Render(strconv.Itoa(position+1)),
			name.Render(string(stage.Stage)),
			class.Render(string(stage.Class)),
			status,
			detail,
		))
	}
	_, err := fmt.Fprintln(w, strings.Join(lines, "\n"))
	return err
}
