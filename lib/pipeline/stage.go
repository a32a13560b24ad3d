// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"fmt"
	"slices"
	"strings"

	"github.com/bureau-foundation/shipwright/lib/schema/release"
)

// Stage names one step of a run.
type Stage string

const (
	StagePrepare   Stage = "prepare"
	StageCompile   Stage = "compile"
	StageTest      Stage = "test"
	StageAssets    Stage = "assets"
	StageBundle    Stage = "bundle"
	StageTree      Stage = "tree"
	StageDiskImage Stage = "diskimage"
	StageSign      Stage = "sign"
	StageArchive   Stage = "archive"
	StagePublish   Stage = "publish"
)

// Stages returns the stages that run for platform, in order.
func Stages(platform release.Platform) []Stage {
	if platform == release.PlatformMacOS {
		return []Stage{StagePrepare, StageCompile, StageTest, StageAssets, StageBundle, StageDiskImage, StageSign, StagePublish}
	}
	return []Stage{StagePrepare, StageCompile, StageTest, StageTree, StageArchive, StagePublish}
}

// ParseStage parses a stage name valid for platform.
func ParseStage(name string, platform release.Platform) (Stage, error) {
	stages := Stages(platform)
	if slices.Contains(stages, Stage(name)) {
		return Stage(name), nil
	}
	names := make([]string, len(stages))
	for index, stage := range stages {
		names[index] = string(stage)
	}
	return "", fmt.Errorf("unknown %s stage %q (want one of %s)", platform, name, strings.Join(names, ", "))
}

// Class groups failures by what went wrong.
type Class string

const (
	ClassBuild     Class = "build"
	ClassPackaging Class = "packaging"
	ClassSigning   Class = "signing"
	ClassPublish   Class = "publish"
)

// ExitCode is the process exit code for failures of this class.
func (c Class) ExitCode() int {
	switch c {
	case ClassBuild:
		return 2
	case ClassPackaging:
		return 3
	case ClassSigning:
		return 4
	case ClassPublish:
		return 5
	default:
		return 1
	}
}

// classOf returns the class a failure in stage belongs to.
func classOf(stage Stage) Class {
	switch stage {
	case StagePrepare, StageCompile, StageTest:
		return ClassBuild
	case StageSign:
		return ClassSigning
	case StagePublish:
		return ClassPublish
	default:
		return ClassPackaging
	}
}

// StageError is the error a failed run returns.
type StageError struct {
	Stage Stage
	Class Class
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed (%s): %v", e.Stage, e.Class, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ExitCode implements the CLI's exit code interface.
func (e *StageError) ExitCode() int { return e.Class.ExitCode() }
