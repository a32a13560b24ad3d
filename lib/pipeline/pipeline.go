// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/bureau-foundation/shipwright/lib/clock"
	"github.com/bureau-foundation/shipwright/lib/config"
	"github.com/bureau-foundation/shipwright/lib/credential"
	"github.com/bureau-foundation/shipwright/lib/fsutil"
	"github.com/bureau-foundation/shipwright/lib/schema/release"
	"github.com/bureau-foundation/shipwright/lib/toolexec"
)

// Credentials opens the sealed secrets a run needs: the notarization
// credential and the archive signing key.
type Credentials interface {
	Notary(reference string) (credential.NotaryCredential, error)
	SigningKey(reference string) (ed25519.PrivateKey, error)
}

// Pipeline is one configured release build.
type Pipeline struct {
	Project *config.Project
	Options *config.Options
	Target  release.BuildTarget

	Runner toolexec.Runner
	Clock  clock.Clock
	Logger *slog.Logger

	// Credentials is required when signing is enabled or an archive
	// signing key is configured.
	Credentials Credentials

	// HTTPClient talks to the signing service and http(s) object
	// stores. Default: http.DefaultClient.
	HTTPClient *http.Client

	// HashOverride is the source revision exported by CI. Empty runs
	// git.
	HashOverride string

	// MountRoot is where disk images are attached while rebundling.
	MountRoot string

	// Results receives the JSONL result log. Nil disables it.
	Results *ResultLog
}

// PlannedStage is one row of [Pipeline.Plan].
type PlannedStage struct {
	Stage Stage
	Class Class

	// Skip says why the stage will do nothing. Empty when it runs.
	Skip string

	// Note describes what the stage produces.
	Note string
}

// Plan describes the stages a run would execute.
func (p *Pipeline) Plan() []PlannedStage {
	stages := Stages(p.Target.Platform)
	planned := make([]PlannedStage, 0, len(stages))
	for _, stage := range stages {
		row := PlannedStage{Stage: stage, Class: classOf(stage), Skip: p.skipReason(stage)}
		switch stage {
		case StagePrepare:
			row.Note = "resolve version and source revision; reset " + p.stagingDir()
		case StageCompile:
			row.Note = "packages " + strings.Join(p.packageNames(), ", ") + " for " + joinTriples(p.Target.Triples())
		case StageTest:
			row.Note = "workspace tests"
			if p.Project.Test.Lints {
				row.Note += " and lints"
			}
		case StageAssets:
			row.Note = "dashboard and autocomplete trees"
			if p.Project.Assets.Enabled {
				row.Note = "build and collect " + row.Note
			}
		case StageBundle:
			row.Note = p.Project.Product.AppName + ".app with " + p.Project.Paths.HelperBundle
		case StageDiskImage:
			row.Note = p.Project.Product.DiskImageName + ".dmg"
		case StageSign:
			row.Note = "sign and notarize app and disk image"
		case StageTree:
			row.Note = "install tree"
			if p.Target.Headless {
				row.Note += " (headless)"
			}
		case StageArchive:
			row.Note = strings.Join(p.Project.Linux.ArchiveFormats, ", ")
			if p.Options.ArchiveSigningKey != "" {
				row.Note += " with detached signatures"
			}
		case StagePublish:
			row.Note = "checksum sidecars"
			if p.Options.OutputBucket != "" {
				row.Note += "; upload to " + p.Options.OutputBucket
			}
		}
		planned = append(planned, row)
	}
	return planned
}

func (p *Pipeline) skipReason(stage Stage) string {
	if stage == StageSign && !p.Options.SigningEnabled() {
		return "signing not configured (missing " + strings.Join(p.Options.MissingSigning(), ", ") + ")"
	}
	return ""
}

func joinTriples(triples []release.TargetTriple) string {
	names := make([]string, len(triples))
	for index, triple := range triples {
		names[index] = string(triple)
	}
	return strings.Join(names, ", ")
}

// Run executes the pipeline. When from is empty or the first stage
// the staging directory is reset; otherwise the run resumes at from
// with the outputs journaled by the last run. A failed stage returns a
// *StageError.
func (p *Pipeline) Run(ctx context.Context, from Stage) (state *State, err error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	stages := Stages(p.Target.Platform)
	if from == "" {
		from = stages[0]
	}
	start := slices.Index(stages, from)
	if start < 0 {
		return nil, fmt.Errorf("stage %s does not run on %s", from, p.Target.Platform)
	}

	staging := p.stagingDir()
	lock, err := acquireLock(staging)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = errors.Join(err, lock.Release())
	}()

	stageJournal := journal{path: filepath.Join(staging, JournalFile)}
	current := State{}
	if start == 0 {
		if err := fsutil.ResetDir(staging); err != nil {
			return nil, fmt.Errorf("resetting staging directory: %w", err)
		}
		current = State{RunID: uuid.NewString(), Platform: p.Target.Platform}
	} else {
		current, err = stageJournal.resume(stages, from)
		if err != nil {
			return nil, err
		}
		if current.Platform != p.Target.Platform {
			return nil, fmt.Errorf("cannot resume a %s run as %s", current.Platform, p.Target.Platform)
		}
	}

	logger := p.Logger.With("run", current.RunID)
	if p.Options.Signing != nil && !p.Options.SigningEnabled() {
		logger.Warn("signing configuration incomplete; artifacts will be unsigned", "missing", p.Options.MissingSigning())
	}
	logger.Info("pipeline starting", "platform", p.Target.Platform, "from", from, "stages", stages[start:])
	p.Results.writeStart(current.RunID, string(p.Target.Platform), stages[start:])
	began := p.Clock.Now()

	for index := start; index < len(stages); index++ {
		stage := stages[index]
		stageLogger := logger.With("stage", stage)
		stageStart := p.Clock.Now()

		skip := p.skipReason(stage)
		var stageErr error
		if skip == "" {
			stageErr = p.runStage(ctx, stage, &current, stageLogger)
		} else {
			stageLogger.Info("stage skipped", "reason", skip)
		}
		if stageErr == nil {
			stageErr = stageJournal.record(journalEntry{
				RunID: current.RunID,
				Stage: stage,
				Time:  p.Clock.Now(),
				State: current,
			})
		}
		elapsed := p.Clock.Now().Sub(stageStart)

		if stageErr != nil {
			failure := &StageError{Stage: stage, Class: classOf(stage), Err: stageErr}
			var classified *classError
			if errors.As(stageErr, &classified) {
				failure.Class = classified.class
			}
			p.Results.writeStage(index, stage, StatusFailed, elapsed, stageErr.Error())
			p.Results.writeFailed(failure, p.Clock.Now().Sub(began))
			stageLogger.Error("stage failed", "class", failure.Class, "error", stageErr, "resume", "--from "+string(stage))
			return &current, failure
		}
		if skip != "" {
			p.Results.writeStage(index, stage, StatusSkipped, elapsed, skip)
		} else {
			p.Results.writeStage(index, stage, StatusOK, elapsed, "")
			stageLogger.Info("stage complete", "duration", elapsed)
		}
	}

	artifacts := make([]string, 0, len(current.Published))
	for _, published := range current.Published {
		artifacts = append(artifacts, published.Path)
	}
	p.Results.writeComplete(p.Clock.Now().Sub(began), artifacts)
	logger.Info("pipeline complete", "artifacts", artifacts, "duration", p.Clock.Now().Sub(began))
	return &current, nil
}

// check rejects configurations no stage could run with.
func (p *Pipeline) check() error {
	if p.Project == nil || p.Options == nil {
		return errors.New("pipeline needs a project and options")
	}
	if err := p.Target.Validate(); err != nil {
		return err
	}
	if p.Target.Platform == release.PlatformMacOS && p.Target.Headless {
		return errors.New("headless builds are linux-only")
	}
	if issues := p.Project.Validate(p.Target.Platform); len(issues) > 0 {
		return fmt.Errorf("invalid project configuration:\n  %s", strings.Join(issues, "\n  "))
	}
	return nil
}

func (p *Pipeline) runStage(ctx context.Context, stage Stage, state *State, logger *slog.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch stage {
	case StagePrepare:
		return p.prepare(ctx, state, logger)
	case StageCompile:
		return p.compile(ctx, state, logger)
	case StageTest:
		return p.test(ctx, state, logger)
	case StageAssets:
		return p.fetchAssets(ctx, state, logger)
	case StageBundle:
		return p.assembleBundle(ctx, state, logger)
	case StageDiskImage:
		return p.buildDiskImage(ctx, state, logger)
	case StageSign:
		return p.sign(ctx, state, logger)
	case StageTree:
		return p.buildTree(ctx, state, logger)
	case StageArchive:
		return p.packageArchives(ctx, state, logger)
	case StagePublish:
		return p.publish(ctx, state, logger)
	default:
		return fmt.Errorf("unknown stage %q", stage)
	}
}

func (p *Pipeline) stagingDir() string {
	return p.Project.Path(p.Project.Paths.Staging)
}

// classError overrides the class of a stage failure, as when a helper
// bundle is rejected by the signing service during the bundle stage.
type classError struct {
	class Class
	err   error
}

func (e *classError) Error() string { return e.err.Error() }

func (e *classError) Unwrap() error { return e.err }

func withClass(class Class, err error) error {
	if err == nil {
		return nil
	}
	return &classError{class: class, err: err}
}
