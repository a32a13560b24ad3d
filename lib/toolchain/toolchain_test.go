// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package toolchain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/shipwright/lib/schema/release"
	"github.com/bureau-foundation/shipwright/lib/toolexec"
	"github.com/bureau-foundation/shipwright/lib/toolsim"
	"github.com/bureau-foundation/shipwright/lib/version"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDriver(t *testing.T) (*Driver, *toolexec.Recorder) {
	t.Helper()
	root := t.TempDir()
	recorder := toolexec.NewRecorder()
	recorder.Handle("cargo", toolsim.Cargo(filepath.Join(root, "target")))
	recorder.Handle("cross", toolsim.Cargo(filepath.Join(root, "target")))
	recorder.Handle("lipo", toolsim.Lipo())
	return &Driver{
		Runner:     recorder,
		Env:        Environment{"CARGO_INCREMENTAL": "0"},
		WorkDir:    root,
		TargetDir:  filepath.Join(root, "target"),
		StagingDir: filepath.Join(root, "build"),
		Logger:     testLogger(),
	}, recorder
}

var macTarget = release.BuildTarget{
	Platform:      release.PlatformMacOS,
	Architectures: []release.Arch{release.ArchX86_64, release.ArchAArch64},
}

func TestReleaseEnvironment(t *testing.T) {
	build := version.BuildInfo{
		Version: "1.2.3",
		Hash:    "abc123",
		Time:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Variant: "full",
		Triple:  string(release.UniversalDarwin),
	}

	mac := ReleaseEnvironment(EnvironmentOptions{
		Platform:         release.PlatformMacOS,
		Release:          true,
		DeploymentTarget: "10.13",
		IdentityPrefix:   "AMAZON_Q_BUILD_",
		Build:            build,
		Overrides:        map[string]string{"CARGO_PROFILE_RELEASE_LTO": "fat"},
	})
	want := map[string]string{
		"CARGO_NET_GIT_FETCH_WITH_CLI": "true",
		"CARGO_INCREMENTAL":            "0",
		"CARGO_PROFILE_RELEASE_LTO":    "fat",
		"RUSTFLAGS":                    "-C force-frame-pointers=yes",
		"MACOSX_DEPLOYMENT_TARGET":     "10.13",
		"AMAZON_Q_BUILD_TARGET_TRIPLE": "universal-apple-darwin",
		"AMAZON_Q_BUILD_VARIANT":       "full",
		"AMAZON_Q_BUILD_HASH":          "abc123",
		"AMAZON_Q_BUILD_DATETIME":      "2026-01-02T03:04:05Z",
	}
	for key, value := range want {
		if mac[key] != value {
			t.Errorf("mac %s = %q, want %q", key, mac[key], value)
		}
	}
	if len(mac) != len(want) {
		t.Errorf("mac environment has extra keys: %v", mac.Keys())
	}

	linux := ReleaseEnvironment(EnvironmentOptions{
		Platform:       release.PlatformLinux,
		Release:        true,
		Linker:         "mold",
		IdentityPrefix: "BUILD_",
		Build:          build,
	})
	if got := linux["RUSTFLAGS"]; got != "-C force-frame-pointers=yes -C link-arg=-fuse-ld=mold -C link-arg=-Wl,--compress-debug-sections=zlib" {
		t.Errorf("linux RUSTFLAGS = %q", got)
	}
	if _, set := linux["MACOSX_DEPLOYMENT_TARGET"]; set {
		t.Error("linux environment should not set MACOSX_DEPLOYMENT_TARGET")
	}

	debug := ReleaseEnvironment(EnvironmentOptions{Platform: release.PlatformLinux, IdentityPrefix: "BUILD_", Build: build})
	for _, key := range []string{"RUSTFLAGS", "CARGO_INCREMENTAL", "CARGO_PROFILE_RELEASE_LTO"} {
		if _, set := debug[key]; set {
			t.Errorf("debug environment sets %s", key)
		}
	}
}

func TestEnvironmentWithDoesNotMutate(t *testing.T) {
	base := Environment{"A": "1"}
	derived := base.With(map[string]string{"B": "2"})
	if _, set := base["B"]; set {
		t.Error("With mutated the receiver")
	}
	if derived["A"] != "1" || derived["B"] != "2" {
		t.Errorf("derived = %v", derived)
	}
}

func TestBuildSingleInvocation(t *testing.T) {
	driver, recorder := newDriver(t)
	ctx := context.Background()

	artifacts, err := driver.Build(ctx, BuildRequest{
		Package:  "q_cli",
		Features: []string{"q_cli/gamma"},
		Targets:  macTarget.Triples(),
		Release:  true,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	calls := recorder.CallsTo("cargo")
	if len(calls) != 1 {
		t.Fatalf("cargo invoked %d times, want 1", len(calls))
	}
	want := "build --locked --package q_cli --release --target x86_64-apple-darwin --target aarch64-apple-darwin --features q_cli/gamma"
	if got := strings.Join(calls[0].Args, " "); got != want {
		t.Errorf("cargo args = %q\nwant %q", got, want)
	}
	if calls[0].Env["CARGO_INCREMENTAL"] != "0" || calls[0].Dir != driver.WorkDir {
		t.Errorf("cargo env/dir not passed explicitly: %+v", calls[0])
	}

	if len(artifacts) != 2 {
		t.Fatalf("got %d artifacts", len(artifacts))
	}
	for _, artifact := range artifacts {
		wantPath := filepath.Join(driver.TargetDir, string(artifact.Triple), "release", "q_cli")
		if artifact.Path != wantPath {
			t.Errorf("artifact path = %q, want %q", artifact.Path, wantPath)
		}
		if _, err := os.Stat(artifact.Path); err != nil {
			t.Errorf("artifact missing: %v", err)
		}
	}
}

func TestBuildFailure(t *testing.T) {
	driver, recorder := newDriver(t)
	recorder.Handle("cargo", func(ctx context.Context, command toolexec.Command) (toolexec.Result, error) {
		return toolexec.Result{}, toolexec.Fail(command, 101, "error[E0308]: mismatched types")
	})

	_, err := driver.Build(context.Background(), BuildRequest{Package: "q_cli", Targets: macTarget.Triples()})
	if toolexec.ExitCode(err) != 101 {
		t.Fatalf("Build error = %v, want exit 101", err)
	}
}

func TestCompileMergesUniversal(t *testing.T) {
	driver, recorder := newDriver(t)

	binary, err := driver.Compile(context.Background(), macTarget, BuildRequest{
		Package:    "q_cli",
		OutputName: "q",
		Release:    true,
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if binary.Path != filepath.Join(driver.StagingDir, "q-universal-apple-darwin") {
		t.Errorf("universal path = %q", binary.Path)
	}

	// The universal binary reports both architectures (round trip).
	architectures, err := driver.Architectures(context.Background(), binary.Path)
	if err != nil {
		t.Fatalf("Architectures: %v", err)
	}
	if !slices.Equal(architectures, []release.Arch{release.ArchX86_64, release.ArchAArch64}) {
		t.Errorf("architectures = %v", architectures)
	}

	lipoCalls := recorder.CallsTo("lipo")
	if len(lipoCalls) < 2 || lipoCalls[0].Args[0] != "-create" {
		t.Fatalf("unexpected lipo calls: %+v", lipoCalls)
	}
}

func TestMergeMissingInput(t *testing.T) {
	driver, _ := newDriver(t)
	ctx := context.Background()

	artifacts, err := driver.Build(ctx, BuildRequest{Package: "figterm", Targets: macTarget.Triples(), Release: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(artifacts[1].Path); err != nil {
		t.Fatal(err)
	}

	_, err = driver.Merge(ctx, "qterm", artifacts, macTarget.Architectures)
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Merge with missing input error = %v", err)
	}
	if _, statErr := os.Stat(driver.UniversalPath("qterm")); statErr == nil {
		t.Error("a universal binary was produced from incomplete inputs")
	}
}

func TestMergeMissingArchitecture(t *testing.T) {
	driver, _ := newDriver(t)
	ctx := context.Background()

	artifacts, err := driver.Build(ctx, BuildRequest{
		Package: "figterm",
		Targets: []release.TargetTriple{"x86_64-apple-darwin"},
		Release: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = driver.Merge(ctx, "qterm", artifacts, macTarget.Architectures)
	if !errors.Is(err, ErrMissingArchitecture) {
		t.Fatalf("Merge error = %v, want ErrMissingArchitecture", err)
	}
}

func TestMergeDetectsThinOutput(t *testing.T) {
	driver, recorder := newDriver(t)
	ctx := context.Background()
	artifacts, err := driver.Build(ctx, BuildRequest{Package: "q_cli", Targets: macTarget.Triples(), Release: true})
	if err != nil {
		t.Fatal(err)
	}

	// A lipo that silently drops a slice.
	simulated := toolsim.Lipo()
	recorder.Handle("lipo", func(ctx context.Context, command toolexec.Command) (toolexec.Result, error) {
		if command.Args[0] == "-archs" {
			return toolexec.Result{Stdout: "x86_64\n"}, nil
		}
		return simulated(ctx, command)
	})

	_, err = driver.Merge(ctx, "q", artifacts, macTarget.Architectures)
	if !errors.Is(err, ErrMissingArchitecture) {
		t.Fatalf("Merge error = %v, want ErrMissingArchitecture", err)
	}
}

func TestCompileStagesLinux(t *testing.T) {
	driver, recorder := newDriver(t)
	driver.Musl = true
	target := release.BuildTarget{
		Platform:      release.PlatformLinux,
		Architectures: []release.Arch{release.ArchAArch64},
		Musl:          true,
	}

	binary, err := driver.Compile(context.Background(), target, BuildRequest{Package: "q_cli", OutputName: "q", Release: true})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if binary.Path != filepath.Join(driver.StagingDir, "bin", "q") {
		t.Errorf("staged path = %q", binary.Path)
	}
	info, err := os.Stat(binary.Path)
	if err != nil || info.Mode().Perm()&0o111 == 0 {
		t.Errorf("staged binary not executable: %v %v", info, err)
	}
	if len(recorder.CallsTo("cross")) != 1 || len(recorder.CallsTo("cargo")) != 0 {
		t.Errorf("musl build should use cross: %v", recorder.Names())
	}
	if len(recorder.CallsTo("lipo")) != 0 {
		t.Error("linux build must not merge")
	}
	if got := recorder.CallsTo("cross")[0].Args; !slices.Contains(got, "aarch64-unknown-linux-musl") {
		t.Errorf("cross args = %v", got)
	}
}
