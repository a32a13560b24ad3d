// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signing

import (
	"context"
	"crypto/ed25519"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/bureau-foundation/shipwright/lib/clock"
	"github.com/bureau-foundation/shipwright/lib/codec"
	"github.com/bureau-foundation/shipwright/lib/diskimage"
	"github.com/bureau-foundation/shipwright/lib/schema/release"
)

// events records the order of signing operations across fakes.
type events struct {
	log []string
}

func (e *events) add(event string) { e.log = append(e.log, event) }

type fakeSigner struct {
	events *events
	fail   map[string]error
}

func (f *fakeSigner) Sign(ctx context.Context, request release.SigningRequest, requested func(string)) error {
	name := filepath.Base(request.Path)
	f.events.add("sign " + name)
	requested("req-" + name)
	return f.fail[name]
}

type fakeNotary struct {
	events *events
	fail   map[string]error
}

func (f *fakeNotary) Notarize(ctx context.Context, path string, kind release.ArtifactKind, submitted func(string)) error {
	name := filepath.Base(path)
	f.events.add("notarize " + name)
	submitted("sub-" + name)
	return f.fail[name]
}

type fakeRebundler struct {
	events *events
	err    error
}

func (f *fakeRebundler) Rebundle(ctx context.Context, app release.AppBundle, image release.DiskImage) (release.DiskImage, error) {
	f.events.add("rebundle " + filepath.Base(image.Path))
	return image, f.err
}

func newClient(t *testing.T) (*Client, *events, *fakeSigner, *fakeNotary) {
	t.Helper()
	log := &events{}
	signer := &fakeSigner{events: log, fail: map[string]error{}}
	notary := &fakeNotary{events: log, fail: map[string]error{}}
	return &Client{
		Signer:  signer,
		Notary:  notary,
		Journal: &Journal{Path: filepath.Join(t.TempDir(), "signing.journal")},
		Clock:   clock.Fake(epoch),
		Logger:  discardLogger(),
	}, log, signer, notary
}

func journalStates(t *testing.T, journal *Journal, artifact string) []release.SigningState {
	t.Helper()
	entries, err := journal.Entries()
	if err != nil {
		t.Fatal(err)
	}
	var states []release.SigningState
	for _, entry := range entries {
		if entry.Artifact == artifact {
			states = append(states, entry.State)
		}
	}
	return states
}

func TestSignAndNotarize(t *testing.T) {
	client, log, _, _ := newClient(t)
	request := release.SigningRequest{Path: "/staging/Helper.app", Kind: release.KindHelperBundle, Scope: testScope}

	result, err := client.SignAndNotarize(context.Background(), request)
	if err != nil {
		t.Fatalf("SignAndNotarize: %v", err)
	}
	if result.State != release.StateNotarized || result.Error != "" {
		t.Errorf("result = %+v", result)
	}
	if !slices.Equal(log.log, []string{"sign Helper.app", "notarize Helper.app"}) {
		t.Errorf("events = %v", log.log)
	}
	want := []release.SigningState{
		release.StateUnsigned,
		release.StateSigningRequested,
		release.StateSigned,
		release.StateNotarizationRequested,
		release.StateNotarized,
	}
	if got := journalStates(t, client.Journal, request.Path); !slices.Equal(got, want) {
		t.Errorf("journal = %v, want %v", got, want)
	}
	entries, _ := client.Journal.Entries()
	if entries[1].RequestID != "req-Helper.app" || entries[3].RequestID != "sub-Helper.app" {
		t.Errorf("request IDs not journaled: %+v", entries)
	}
}

func TestSignAndNotarizeSigningFailure(t *testing.T) {
	client, log, signer, _ := newClient(t)
	signer.fail["Q.app"] = ErrDenied
	request := release.SigningRequest{Path: "/staging/Q.app", Kind: release.KindApp, Scope: testScope}

	result, err := client.SignAndNotarize(context.Background(), request)
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("SignAndNotarize = %v, want ErrDenied", err)
	}
	if result.State != release.StateFailed || result.Error == "" {
		t.Errorf("result = %+v", result)
	}
	if slices.Contains(log.log, "notarize Q.app") {
		t.Error("notarized after signing failed")
	}
	states, err := client.Journal.States()
	if err != nil {
		t.Fatal(err)
	}
	if states[request.Path] != release.StateFailed {
		t.Errorf("last journaled state = %s", states[request.Path])
	}
}

func TestSignAndNotarizeRejectsUnsignableKind(t *testing.T) {
	client, log, _, _ := newClient(t)
	_, err := client.SignAndNotarize(context.Background(), release.SigningRequest{Path: "/staging/q.tar.gz", Kind: release.KindArchive})
	if err == nil {
		t.Fatal("archive accepted for signing")
	}
	if len(log.log) != 0 {
		t.Errorf("events = %v", log.log)
	}
}

func TestSignDiskImageOrder(t *testing.T) {
	client, log, _, _ := newClient(t)
	app := release.AppBundle{Path: "/staging/Q.app"}
	image := release.DiskImage{Path: "/staging/Q.dmg", App: app.Path}

	rebuilt, results, err := client.SignDiskImage(context.Background(), app, image, testScope, &fakeRebundler{events: log})
	if err != nil {
		t.Fatalf("SignDiskImage: %v", err)
	}
	want := []string{"sign Q.app", "notarize Q.app", "rebundle Q.dmg", "sign Q.dmg", "notarize Q.dmg"}
	if !slices.Equal(log.log, want) {
		t.Errorf("events = %v, want %v", log.log, want)
	}
	if rebuilt.Path != image.Path {
		t.Errorf("rebuilt = %+v", rebuilt)
	}
	if len(results) != 2 || results[0].Kind != release.KindApp || results[1].Kind != release.KindDiskImage {
		t.Errorf("results = %+v", results)
	}
}

func TestSignDiskImageStopsOnAppFailure(t *testing.T) {
	client, log, _, notary := newClient(t)
	notary.fail["Q.app"] = ErrTimeout
	app := release.AppBundle{Path: "/staging/Q.app"}

	_, results, err := client.SignDiskImage(context.Background(), app, release.DiskImage{Path: "/staging/Q.dmg"}, testScope, &fakeRebundler{events: log})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("SignDiskImage = %v, want ErrTimeout", err)
	}
	if !slices.Equal(log.log, []string{"sign Q.app", "notarize Q.app"}) {
		t.Errorf("events = %v", log.log)
	}
	if len(results) != 1 || results[0].State != release.StateFailed {
		t.Errorf("results = %+v", results)
	}
}

func TestSignDiskImageUnchangedRebundle(t *testing.T) {
	client, log, _, _ := newClient(t)
	app := release.AppBundle{Path: "/staging/Q.app"}
	rebundler := &fakeRebundler{events: log, err: diskimage.ErrUnchanged}

	_, _, err := client.SignDiskImage(context.Background(), app, release.DiskImage{Path: "/staging/Q.dmg"}, testScope, rebundler)
	if !errors.Is(err, diskimage.ErrUnchanged) {
		t.Fatalf("SignDiskImage = %v, want ErrUnchanged", err)
	}
	if slices.Contains(log.log, "sign Q.dmg") {
		t.Error("unchanged image was signed")
	}
}

func TestJournalDropsTruncatedEntry(t *testing.T) {
	journal := &Journal{Path: filepath.Join(t.TempDir(), "nested", "signing.journal")}
	for _, state := range []release.SigningState{release.StateUnsigned, release.StateSigningRequested} {
		if err := journal.Record(JournalEntry{Artifact: "Q.app", Kind: release.KindApp, State: state, Time: epoch}); err != nil {
			t.Fatal(err)
		}
	}
	partial, err := codec.Marshal(JournalEntry{Artifact: "Q.app", State: release.StateSigned})
	if err != nil {
		t.Fatal(err)
	}
	file, err := os.OpenFile(journal.Path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		t.Fatal(err)
	}
	file.Write(partial[:len(partial)/2])
	file.Close()

	entries, err := journal.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 2 || entries[1].State != release.StateSigningRequested || !entries[0].Time.Equal(epoch) {
		t.Errorf("entries = %+v", entries)
	}
}

func TestJournalMissingIsEmpty(t *testing.T) {
	journal := &Journal{Path: filepath.Join(t.TempDir(), "absent")}
	states, err := journal.States()
	if err != nil || len(states) != 0 {
		t.Errorf("States = %v, %v", states, err)
	}
	var discard *Journal
	if err := discard.Record(JournalEntry{}); err != nil {
		t.Errorf("nil journal Record: %v", err)
	}
}

func TestDetachedSignature(t *testing.T) {
	public, private, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	archive := filepath.Join(t.TempDir(), "q.tar.gz")
	if err := os.WriteFile(archive, []byte("archive bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	signature, err := SignDetached(archive, private)
	if err != nil {
		t.Fatalf("SignDetached: %v", err)
	}
	if signature != archive+".sig" {
		t.Errorf("signature path = %s", signature)
	}
	if err := VerifyDetached(archive, public); err != nil {
		t.Fatalf("VerifyDetached: %v", err)
	}

	if err := os.WriteFile(archive, []byte("tampered"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := VerifyDetached(archive, public); !errors.Is(err, ErrBadSignature) {
		t.Errorf("VerifyDetached after tampering = %v, want ErrBadSignature", err)
	}

	if _, err := SignDetached(archive, private[:10]); err == nil {
		t.Error("short key accepted")
	}
}
