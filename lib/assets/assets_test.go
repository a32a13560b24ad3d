// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package assets

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/bureau-foundation/shipwright/lib/toolexec"
	"github.com/bureau-foundation/shipwright/lib/toolsim"
)

const extensionManifest = `{
  "name": "q-companion",
  "version": "0.0.0",
  "publisher": "example"
}
`

type fixture struct {
	fetcher  *Fetcher
	recorder *toolexec.Recorder
	request  Request
	manifest string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	layout := toolsim.WebLayout{
		DashboardDist:    filepath.Join(root, "apps", "dashboard", "dist"),
		AutocompleteDist: filepath.Join(root, "apps", "autocomplete", "dist"),
		ExtensionDir:     filepath.Join(root, "extensions", "vscode"),
	}
	manifest := filepath.Join(layout.ExtensionDir, "package.json")
	if err := os.MkdirAll(layout.ExtensionDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(manifest, []byte(extensionManifest), 0o644); err != nil {
		t.Fatal(err)
	}

	recorder := toolexec.NewRecorder()
	recorder.Handle("pnpm", toolsim.Pnpm(layout))
	recorder.Handle("git", toolsim.Git("cafebabe"))

	return fixture{
		fetcher: &Fetcher{
			Runner:     recorder,
			WorkDir:    root,
			StagingDir: filepath.Join(root, "build"),
			Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		},
		recorder: recorder,
		manifest: manifest,
		request: Request{
			Version:          "1.7.0",
			Build:            true,
			DashboardDist:    layout.DashboardDist,
			AutocompleteDist: layout.AutocompleteDist,
			ExtensionDir:     layout.ExtensionDir,
			ThemesRepository: "https://example.com/themes.git",
		},
	}
}

func TestFetchBuildsAndCollects(t *testing.T) {
	fixture := newFixture(t)

	output, err := fixture.fetcher.Fetch(context.Background(), fixture.request)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	for _, path := range []string{
		filepath.Join(output.Dashboard, "index.html"),
		filepath.Join(output.Autocomplete, "assets", "main.js"),
		filepath.Join(output.Themes, "dark.json"),
		output.Extension,
	} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected %s: %v", path, err)
		}
	}

	// The extension was packaged with the release version...
	data, err := os.ReadFile(output.Extension)
	if err != nil || string(data) != "vsix 1.7.0\n" {
		t.Errorf("extension = %q, %v", data, err)
	}
	// ...and package.json is back to its original bytes.
	restored, err := os.ReadFile(fixture.manifest)
	if err != nil || string(restored) != extensionManifest {
		t.Errorf("package.json not restored: %q", restored)
	}

	var pnpmArgs []string
	for _, call := range fixture.recorder.CallsTo("pnpm") {
		pnpmArgs = append(pnpmArgs, call.String())
	}
	want := []string{"pnpm install --frozen-lockfile", "pnpm build", "pnpm test -- --run"}
	if !slices.Equal(pnpmArgs, want) {
		t.Errorf("pnpm calls = %v, want %v", pnpmArgs, want)
	}
	trees := output.Trees()
	if len(trees) != 3 || trees["themes"] != output.Themes {
		t.Errorf("Trees = %v", trees)
	}
}

func TestFetchRestoresManifestOnFailure(t *testing.T) {
	fixture := newFixture(t)
	fixture.recorder.Handle("pnpm", func(ctx context.Context, command toolexec.Command) (toolexec.Result, error) {
		if command.Args[0] == "test" {
			return toolexec.Result{}, toolexec.Fail(command, 1, "1 test failed")
		}
		return toolexec.Result{}, nil
	})

	_, err := fixture.fetcher.Fetch(context.Background(), fixture.request)
	if toolexec.ExitCode(err) != 1 {
		t.Fatalf("Fetch error = %v", err)
	}
	restored, readErr := os.ReadFile(fixture.manifest)
	if readErr != nil || string(restored) != extensionManifest {
		t.Errorf("package.json not restored after failure: %q", restored)
	}
}

func TestFetchMissingOutput(t *testing.T) {
	fixture := newFixture(t)
	fixture.request.Build = false

	_, err := fixture.fetcher.Fetch(context.Background(), fixture.request)
	if !errors.Is(err, ErrMissingOutput) {
		t.Fatalf("Fetch error = %v, want ErrMissingOutput", err)
	}
	if len(fixture.recorder.CallsTo("pnpm")) != 0 {
		t.Error("bundler ran although Build was false")
	}
}
