// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package diskimage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/bureau-foundation/shipwright/lib/config"
	"github.com/bureau-foundation/shipwright/lib/schema/release"
	"github.com/bureau-foundation/shipwright/lib/toolexec"
	"github.com/bureau-foundation/shipwright/lib/toolsim"
)

type fixture struct {
	staging  string
	mounts   string
	app      release.AppBundle
	spec     release.DiskImageSpec
	recorder *toolexec.Recorder
	builder  *Builder
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	staging := filepath.Join(root, "build")
	app := release.AppBundle{Path: filepath.Join(staging, "Amazon Q.app")}
	if err := toolsim.WriteBundle(app.Path, "q_desktop"); err != nil {
		t.Fatal(err)
	}

	images := toolsim.NewDiskImages()
	recorder := toolexec.NewRecorder()
	recorder.Handle("dmgbuild", images.Dmgbuild())
	recorder.Handle("hdiutil", images.Hdiutil())
	recorder.Handle("cp", images.Cp())

	mounts := filepath.Join(root, "Volumes")
	return fixture{
		staging:  staging,
		mounts:   mounts,
		app:      app,
		spec:     NewSpec(config.Default().DiskImage, "Amazon Q", filepath.Join(staging, "Amazon Q.dmg"), "", app),
		recorder: recorder,
		builder: &Builder{
			Runner:    recorder,
			Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
			MountRoot: mounts,
		},
	}
}

func assertNoSettingsFile(t *testing.T, staging string) {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(staging, ".*.settings.json"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("settings file left behind: %v", matches)
	}
}

func sign(t *testing.T, app string) {
	t.Helper()
	path := filepath.Join(app, "Contents", "_CodeSignature", "CodeResources")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("signed\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestNewSpecDefaults(t *testing.T) {
	spec := NewSpec(config.Default().DiskImage, "Amazon Q", "/out/Amazon Q.dmg", "/res", release.AppBundle{Path: "/build/Amazon Q.app"})
	if spec.Format != "ULFO" || spec.TextSize != 12 || spec.IconSize != 160 {
		t.Errorf("format/text/icon = %s/%d/%d", spec.Format, spec.TextSize, spec.IconSize)
	}
	if spec.Window != (release.Rect{X: 100, Y: 100, Width: 660, Height: 400}) {
		t.Errorf("window = %+v", spec.Window)
	}
	if spec.IconLocations["Amazon Q.app"] != (release.Point{X: 180, Y: 170}) || spec.IconLocations["Applications"] != (release.Point{X: 480, Y: 170}) {
		t.Errorf("icon locations = %v", spec.IconLocations)
	}
	if spec.Background != "/res/background.png" || spec.Icon != "/res/VolumeIcon.icns" {
		t.Errorf("background/icon = %s %s", spec.Background, spec.Icon)
	}
}

func TestRenderSettings(t *testing.T) {
	spec := NewSpec(config.Default().DiskImage, "Amazon Q", "/out/Amazon Q.dmg", "", release.AppBundle{Path: "/build/Amazon Q.app"})
	data, err := renderSettings(spec)
	if err != nil {
		t.Fatal(err)
	}
	var decoded settingsFile
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	want := []settingsEntry{
		{X: 180, Y: 170, Type: "file", Path: "/build/Amazon Q.app"},
		{X: 480, Y: 170, Type: "link", Path: "/Applications", Name: "Applications"},
	}
	if !slices.Equal(decoded.Contents, want) {
		t.Errorf("contents = %+v, want %+v", decoded.Contents, want)
	}
	if decoded.Title != "Amazon Q" || decoded.Window.Size.Width != 660 {
		t.Errorf("settings = %+v", decoded)
	}

	delete(spec.IconLocations, "Applications")
	if _, err := renderSettings(spec); err == nil {
		t.Error("a link without an icon location should be rejected")
	}
}

func TestBuild(t *testing.T) {
	fixture := newFixture(t)

	image, err := fixture.builder.Build(context.Background(), fixture.app, fixture.spec)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if image.Path != fixture.spec.Path || image.App != fixture.app.Path {
		t.Errorf("image = %+v", image)
	}
	contents, err := toolsim.ReadImage(image.Path)
	if err != nil {
		t.Fatal(err)
	}
	if contents.Format != "ULFO" || contents.Volume != "Amazon Q" {
		t.Errorf("format/volume = %q/%q", contents.Format, contents.Volume)
	}
	if contents.Files["Applications"] != "-> /Applications" {
		t.Errorf("Applications link = %q", contents.Files["Applications"])
	}
	if _, ok := contents.Files["Amazon Q.app/Contents/Info.plist"]; !ok {
		t.Errorf("bundle missing from image: %v", contents.Files)
	}
	assertNoSettingsFile(t, fixture.staging)

	// A second build replaces the first image instead of failing on it.
	if _, err := fixture.builder.Build(context.Background(), fixture.app, fixture.spec); err != nil {
		t.Fatalf("second Build: %v", err)
	}
	assertNoSettingsFile(t, fixture.staging)
}

func TestBuildFailureReleasesSettings(t *testing.T) {
	fixture := newFixture(t)
	var settingsSeen bool
	fixture.recorder.Handle("dmgbuild", func(ctx context.Context, command toolexec.Command) (toolexec.Result, error) {
		_, err := os.Stat(command.Args[1])
		settingsSeen = err == nil
		return toolexec.Result{}, toolexec.Fail(command, 1, "hdiutil create failed")
	})

	_, err := fixture.builder.Build(context.Background(), fixture.app, fixture.spec)
	if toolexec.ExitCode(err) != 1 {
		t.Fatalf("Build error = %v", err)
	}
	if !settingsSeen {
		t.Error("settings file was not present during the tool call")
	}
	assertNoSettingsFile(t, fixture.staging)
}

func TestBuildMissingApp(t *testing.T) {
	fixture := newFixture(t)
	if err := os.RemoveAll(fixture.app.Path); err != nil {
		t.Fatal(err)
	}
	if _, err := fixture.builder.Build(context.Background(), fixture.app, fixture.spec); err == nil {
		t.Fatal("Build succeeded without the bundle")
	}
	if len(fixture.recorder.Calls()) != 0 {
		t.Error("image tool ran without its input")
	}
}

func TestRebundleAfterSigning(t *testing.T) {
	fixture := newFixture(t)
	ctx := context.Background()
	image, err := fixture.builder.Build(ctx, fixture.app, fixture.spec)
	if err != nil {
		t.Fatal(err)
	}
	unsigned, err := os.ReadFile(image.Path)
	if err != nil {
		t.Fatal(err)
	}

	sign(t, fixture.app.Path)
	rebundled, err := fixture.builder.Rebundle(ctx, fixture.app, image)
	if err != nil {
		t.Fatalf("Rebundle: %v", err)
	}
	signed, err := os.ReadFile(rebundled.Path)
	if err != nil {
		t.Fatal(err)
	}
	if string(signed) == string(unsigned) {
		t.Fatal("image built from the signed bundle is identical to the unsigned one")
	}

	contents, err := toolsim.ReadImage(rebundled.Path)
	if err != nil {
		t.Fatal(err)
	}
	if contents.Format != "UDZO" {
		t.Errorf("format = %q, want UDZO", contents.Format)
	}
	if contents.Files["Amazon Q.app/Contents/_CodeSignature/CodeResources"] != "signed\n" {
		t.Errorf("signed bundle not in image: %v", contents.Files)
	}
	if contents.Files["Applications"] != "-> /Applications" {
		t.Error("Applications link lost by rebundle")
	}

	if _, err := os.Stat(filepath.Join(fixture.staging, "Amazon Q-rw.dmg")); !errors.Is(err, os.ErrNotExist) {
		t.Error("writable intermediate image left behind")
	}
	if _, err := os.Stat(filepath.Join(fixture.mounts, "Amazon Q")); !errors.Is(err, os.ErrNotExist) {
		t.Error("image left attached")
	}

	var verbs []string
	for _, call := range fixture.recorder.CallsTo("hdiutil") {
		verbs = append(verbs, call.Args[0]+":"+flagOrEmpty(call.Args, "-format"))
	}
	want := []string{"convert:UDRW", "attach:", "detach:", "convert:UDZO"}
	if !slices.Equal(verbs, want) {
		t.Errorf("hdiutil calls = %v, want %v", verbs, want)
	}
}

func TestRebundleUnchangedImage(t *testing.T) {
	fixture := newFixture(t)
	ctx := context.Background()
	image, err := fixture.builder.Build(ctx, fixture.app, fixture.spec)
	if err != nil {
		t.Fatal(err)
	}
	if image.Unsigned == "" {
		t.Fatal("Build did not record the unsigned fingerprint")
	}
	sign(t, fixture.app.Path)
	if image, err = fixture.builder.Rebundle(ctx, fixture.app, image); err != nil {
		t.Fatal(err)
	}

	// Without a recorded baseline the image on disk is the baseline,
	// and it already holds this bundle.
	_, err = fixture.builder.Rebundle(ctx, fixture.app, release.DiskImage{Path: image.Path, App: image.App})
	if !errors.Is(err, ErrUnchanged) {
		t.Fatalf("Rebundle error = %v, want ErrUnchanged", err)
	}
}

func TestRebundleRepeatedAfterSigning(t *testing.T) {
	fixture := newFixture(t)
	ctx := context.Background()
	built, err := fixture.builder.Build(ctx, fixture.app, fixture.spec)
	if err != nil {
		t.Fatal(err)
	}
	sign(t, fixture.app.Path)
	first, err := fixture.builder.Rebundle(ctx, fixture.app, built)
	if err != nil {
		t.Fatal(err)
	}
	if first.Unsigned != built.Unsigned {
		t.Errorf("Unsigned = %s, want %s carried from Build", first.Unsigned, built.Unsigned)
	}

	// A retried signing stage rebundles the same signed bundle into an
	// image that already holds it.
	second, err := fixture.builder.Rebundle(ctx, fixture.app, first)
	if err != nil {
		t.Fatalf("repeated Rebundle: %v", err)
	}
	contents, err := toolsim.ReadImage(second.Path)
	if err != nil {
		t.Fatal(err)
	}
	if contents.Files["Amazon Q.app/Contents/_CodeSignature/CodeResources"] != "signed\n" {
		t.Errorf("signed bundle not in image: %v", contents.Files)
	}
}

func TestRebundleDetachesStaleMount(t *testing.T) {
	fixture := newFixture(t)
	ctx := context.Background()
	image, err := fixture.builder.Build(ctx, fixture.app, fixture.spec)
	if err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(fixture.mounts, "Amazon Q")
	if err := os.MkdirAll(stale, 0o755); err != nil {
		t.Fatal(err)
	}
	sign(t, fixture.app.Path)

	if _, err := fixture.builder.Rebundle(ctx, fixture.app, image); err != nil {
		t.Fatalf("Rebundle: %v", err)
	}
	calls := fixture.recorder.CallsTo("hdiutil")
	if len(calls) == 0 || calls[0].Args[0] != "detach" || calls[0].Args[1] != stale {
		t.Errorf("first hdiutil call = %v, want detach of the stale mount", calls)
	}
}

func TestRebundleCopyFailureDetaches(t *testing.T) {
	fixture := newFixture(t)
	ctx := context.Background()
	image, err := fixture.builder.Build(ctx, fixture.app, fixture.spec)
	if err != nil {
		t.Fatal(err)
	}
	fixture.recorder.Handle("cp", func(ctx context.Context, command toolexec.Command) (toolexec.Result, error) {
		return toolexec.Result{}, toolexec.Fail(command, 1, "No space left on device")
	})

	if _, err := fixture.builder.Rebundle(ctx, fixture.app, image); err == nil {
		t.Fatal("Rebundle succeeded despite copy failure")
	}
	calls := fixture.recorder.CallsTo("hdiutil")
	last := calls[len(calls)-1]
	if last.Args[0] != "detach" || !strings.HasSuffix(last.Args[1], "Amazon Q") {
		t.Errorf("last hdiutil call = %v, want detach", last.Args)
	}
	if _, err := os.Stat(image.Path); err != nil {
		t.Errorf("original image removed after a failed rebundle: %v", err)
	}
}

func flagOrEmpty(args []string, flag string) string {
	for index := 0; index < len(args)-1; index++ {
		if args[index] == flag {
			return args[index+1]
		}
	}
	return ""
}
