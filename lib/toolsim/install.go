// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package toolsim

import (
	"github.com/bureau-foundation/shipwright/lib/toolexec"
)

// Layout tells the simulators where the real tools would read and
// write.
type Layout struct {
	// TargetDir is the compiler output directory.
	TargetDir string

	// PackagerBundle is the bundle directory the packaging tool writes.
	PackagerBundle string

	Web WebLayout

	// GitHead is reported by git rev-parse HEAD.
	GitHead string

	// S3Root stores simulated s3:// objects.
	S3Root string
}

// Tools holds the stateful simulators registered by [Install].
type Tools struct {
	Images       *DiskImages
	Notarization *Notarization
}

// Install registers every simulator on recorder.
func Install(recorder *toolexec.Recorder, layout Layout) *Tools {
	tools := &Tools{
		Images:       NewDiskImages(),
		Notarization: NewNotarization(),
	}
	cargo := Cargo(layout.TargetDir)
	recorder.Handle("cargo", cargo)
	recorder.Handle("cross", cargo)
	recorder.Handle("lipo", Lipo())
	recorder.Handle("cargo-tauri", CargoTauri(layout.TargetDir, layout.PackagerBundle))
	recorder.Handle("pnpm", Pnpm(layout.Web))
	recorder.Handle("git", Git(layout.GitHead))
	recorder.Handle("dmgbuild", tools.Images.Dmgbuild())
	recorder.Handle("hdiutil", tools.Images.Hdiutil())
	recorder.Handle("cp", tools.Images.Cp())
	recorder.Handle("ditto", tools.Notarization.Ditto())
	recorder.Handle("xcrun", tools.Notarization.Xcrun())
	recorder.Handle("spctl", tools.Notarization.Spctl())
	if layout.S3Root != "" {
		recorder.Handle("aws", AWS(layout.S3Root))
	}
	return tools
}
