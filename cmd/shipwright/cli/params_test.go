// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestBindFlags_BasicTypes(t *testing.T) {
	type params struct {
		Platform string        `flag:"platform" desc:"target platform"`
		Musl     bool          `flag:"musl,m" desc:"musl triples"`
		Count    int           `flag:"count" desc:"number of items"`
		Timeout  time.Duration `flag:"timeout" desc:"request timeout"`
		Archs    []string      `flag:"arch" desc:"architectures"`
		Untagged string
	}

	var p params
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := BindFlags(&p, flagSet); err != nil {
		t.Fatalf("BindFlags: %v", err)
	}

	err := flagSet.Parse([]string{
		"--platform", "linux",
		"-m",
		"--count", "42",
		"--timeout", "30s",
		"--arch", "x86_64,aarch64",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if p.Platform != "linux" {
		t.Errorf("Platform = %q, want %q", p.Platform, "linux")
	}
	if !p.Musl {
		t.Error("Musl = false, want true")
	}
	if p.Count != 42 {
		t.Errorf("Count = %d, want 42", p.Count)
	}
	if p.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", p.Timeout)
	}
	if len(p.Archs) != 2 || p.Archs[0] != "x86_64" || p.Archs[1] != "aarch64" {
		t.Errorf("Archs = %v, want [x86_64 aarch64]", p.Archs)
	}
	if p.Untagged != "" {
		t.Errorf("Untagged = %q, want empty", p.Untagged)
	}
}

func TestBindFlags_Defaults(t *testing.T) {
	type params struct {
		Platform string        `flag:"platform" desc:"platform" default:"macos"`
		Count    int           `flag:"count" desc:"count" default:"8"`
		Timeout  time.Duration `flag:"timeout" desc:"timeout" default:"10s"`
		Verify   bool          `flag:"verify" desc:"verify" default:"true"`
		Formats  []string      `flag:"format" desc:"formats" default:"tar.gz,zip"`
	}

	var p params
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := BindFlags(&p, flagSet); err != nil {
		t.Fatalf("BindFlags: %v", err)
	}
	if err := flagSet.Parse(nil); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if p.Platform != "macos" {
		t.Errorf("Platform = %q, want %q", p.Platform, "macos")
	}
	if p.Count != 8 {
		t.Errorf("Count = %d, want 8", p.Count)
	}
	if p.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", p.Timeout)
	}
	if !p.Verify {
		t.Error("Verify = false, want true")
	}
	if len(p.Formats) != 2 || p.Formats[0] != "tar.gz" || p.Formats[1] != "zip" {
		t.Errorf("Formats = %v, want [tar.gz zip]", p.Formats)
	}
}

type configBinder struct {
	Path string
}

func (c *configBinder) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.Path, "config", "", "project file")
}

func TestBindFlags_FlagBinder(t *testing.T) {
	type params struct {
		Config configBinder
		JSONOutput
		From string `flag:"from" desc:"resume stage"`
	}

	var p params
	flagSet := FlagsFromParams("run", &p)
	if err := flagSet.Parse([]string{"--config", "/src/shipwright.yaml", "--json", "--from", "sign"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Config.Path != "/src/shipwright.yaml" {
		t.Errorf("Config.Path = %q", p.Config.Path)
	}
	if !p.OutputJSON {
		t.Error("OutputJSON = false, want true (embedded JSONOutput)")
	}
	if p.From != "sign" {
		t.Errorf("From = %q, want sign", p.From)
	}
}

func TestBindFlags_Errors(t *testing.T) {
	var notPointer struct{}
	if err := BindFlags(notPointer, pflag.NewFlagSet("test", pflag.ContinueOnError)); err == nil {
		t.Error("BindFlags(struct) = nil, want error")
	}

	type badDefault struct {
		Count int `flag:"count" default:"many"`
	}
	if err := BindFlags(&badDefault{}, pflag.NewFlagSet("test", pflag.ContinueOnError)); err == nil {
		t.Error("BindFlags with unparseable default = nil, want error")
	}

	type unsupported struct {
		Rate float32 `flag:"rate"`
	}
	err := BindFlags(&unsupported{}, pflag.NewFlagSet("test", pflag.ContinueOnError))
	if err == nil || !strings.Contains(err.Error(), "unsupported type") {
		t.Errorf("BindFlags(float32) = %v, want unsupported type error", err)
	}
}

func TestFlagsFromParams_PanicsOnInvalidParams(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("FlagsFromParams did not panic")
		}
	}()
	FlagsFromParams("test", "not a struct")
}

func TestEmitJSON(t *testing.T) {
	var output JSONOutput
	var buffer bytes.Buffer

	done, err := output.EmitJSON(&buffer, []string{"a"})
	if done || err != nil || buffer.Len() != 0 {
		t.Fatalf("EmitJSON without --json = (%v, %v), wrote %q", done, err, buffer.String())
	}

	output.OutputJSON = true
	var rows []string
	done, err = output.EmitJSON(&buffer, rows)
	if !done || err != nil {
		t.Fatalf("EmitJSON = (%v, %v)", done, err)
	}
	if strings.TrimSpace(buffer.String()) != "[]" {
		t.Errorf("nil slice encoded as %q, want []", buffer.String())
	}
}
