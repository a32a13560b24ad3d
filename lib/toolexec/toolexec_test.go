// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package toolexec

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func writeScript(t *testing.T, directory, name, body string) string {
	t.Helper()
	path := filepath.Join(directory, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestMergeEnvOverridesAndSorts(t *testing.T) {
	got := MergeEnv(
		[]string{"PATH=/usr/bin", "CARGO_INCREMENTAL=1", "HOME=/root"},
		map[string]string{"CARGO_INCREMENTAL": "0", "RUSTFLAGS": "-C force-frame-pointers=yes"},
	)
	want := []string{
		"CARGO_INCREMENTAL=0",
		"HOME=/root",
		"PATH=/usr/bin",
		"RUSTFLAGS=-C force-frame-pointers=yes",
	}
	if !slices.Equal(got, want) {
		t.Errorf("MergeEnv = %v, want %v", got, want)
	}
}

func TestFindBinaryFallback(t *testing.T) {
	pathDirectory := t.TempDir()
	fallback := t.TempDir()
	writeScript(t, fallback, "lipo", "exit 0")

	runner := &Exec{BaseEnv: []string{"PATH=" + pathDirectory}, FallbackDirs: []string{fallback}}
	got, err := runner.FindBinary("lipo")
	if err != nil {
		t.Fatalf("FindBinary: %v", err)
	}
	if want := filepath.Join(fallback, "lipo"); got != want {
		t.Errorf("FindBinary = %q, want %q", got, want)
	}

	if _, err := runner.FindBinary("cargo"); err == nil {
		t.Error("FindBinary should fail for a missing binary")
	}
}

func TestExecPassesExplicitEnvironment(t *testing.T) {
	directory := t.TempDir()
	writeScript(t, directory, "show-env", `printf '%s' "$CARGO_PROFILE_RELEASE_LTO"`)

	runner := &Exec{BaseEnv: []string{"PATH=" + directory}}
	result, err := runner.Run(context.Background(), Command{
		Name: "show-env",
		Env:  map[string]string{"CARGO_PROFILE_RELEASE_LTO": "thin"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Stdout != "thin" {
		t.Errorf("stdout = %q, want %q", result.Stdout, "thin")
	}
	if os.Getenv("CARGO_PROFILE_RELEASE_LTO") == "thin" {
		t.Error("Run leaked the command environment into the process")
	}
}

func TestExecNonZeroExit(t *testing.T) {
	directory := t.TempDir()
	writeScript(t, directory, "broken", "echo 'linker failed' >&2; exit 3")

	runner := &Exec{BaseEnv: []string{"PATH=" + directory}}
	_, err := runner.Run(context.Background(), Command{Name: "broken", Args: []string{"--release"}})
	var exitError *ExitError
	if !errors.As(err, &exitError) {
		t.Fatalf("Run error = %v, want *ExitError", err)
	}
	if exitError.Code != 3 {
		t.Errorf("Code = %d, want 3", exitError.Code)
	}
	if !strings.Contains(err.Error(), "linker failed") {
		t.Errorf("error %q should include stderr", err)
	}
	if ExitCode(err) != 3 {
		t.Errorf("ExitCode = %d, want 3", ExitCode(err))
	}
}

func TestRecorderDispatch(t *testing.T) {
	recorder := NewRecorder()
	recorder.Handle("lipo", func(ctx context.Context, command Command) (Result, error) {
		return Result{Stdout: "x86_64 arm64\n"}, nil
	})
	recorder.Handle("cargo", func(ctx context.Context, command Command) (Result, error) {
		return Result{}, Fail(command, 101, "test failed")
	})

	result, err := recorder.Run(context.Background(), Command{Name: "lipo", Args: []string{"-archs", "bin"}})
	if err != nil || result.Stdout != "x86_64 arm64\n" {
		t.Fatalf("lipo = %q, %v", result.Stdout, err)
	}
	if _, err := recorder.Run(context.Background(), Command{Name: "cargo"}); ExitCode(err) != 101 {
		t.Errorf("cargo exit = %d, want 101", ExitCode(err))
	}
	if _, err := recorder.Run(context.Background(), Command{Name: "git"}); err != nil {
		t.Errorf("unhandled command should succeed, got %v", err)
	}

	if got, want := recorder.Names(), []string{"lipo", "cargo", "git"}; !slices.Equal(got, want) {
		t.Errorf("Names = %v, want %v", got, want)
	}
	if calls := recorder.CallsTo("lipo"); len(calls) != 1 || calls[0].String() != "lipo -archs bin" {
		t.Errorf("CallsTo(lipo) = %v", calls)
	}
}
