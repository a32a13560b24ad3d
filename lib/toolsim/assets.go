// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package toolsim

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/shipwright/lib/toolexec"
)

// WebLayout locates the bundler outputs Pnpm produces.
type WebLayout struct {
	DashboardDist    string
	AutocompleteDist string

	// ExtensionDir holds package.json. On build, Pnpm packages
	// <name>-<version>.vsix using the version present in package.json
	// at that moment.
	ExtensionDir string
}

// Pnpm simulates pnpm install/build/test.
func Pnpm(layout WebLayout) toolexec.Handler {
	return func(ctx context.Context, command toolexec.Command) (toolexec.Result, error) {
		if len(command.Args) == 0 || command.Args[0] != "build" {
			return toolexec.Result{}, nil
		}
		for _, dist := range []string{layout.DashboardDist, layout.AutocompleteDist} {
			if dist == "" {
				continue
			}
			if err := writeFile(filepath.Join(dist, "index.html"), "<html></html>\n", 0o644); err != nil {
				return toolexec.Result{}, err
			}
			if err := writeFile(filepath.Join(dist, "assets", "main.js"), "console.log(1)\n", 0o644); err != nil {
				return toolexec.Result{}, err
			}
		}
		if layout.ExtensionDir != "" {
			data, err := os.ReadFile(filepath.Join(layout.ExtensionDir, "package.json"))
			if err != nil {
				return toolexec.Result{}, toolexec.Fail(command, 1, err.Error())
			}
			var manifest struct {
				Name    string `json:"name"`
				Version string `json:"version"`
			}
			if err := json.Unmarshal(data, &manifest); err != nil {
				return toolexec.Result{}, toolexec.Fail(command, 1, err.Error())
			}
			packaged := filepath.Join(layout.ExtensionDir, fmt.Sprintf("%s-%s.vsix", manifest.Name, manifest.Version))
			if err := writeFile(packaged, "vsix "+manifest.Version+"\n", 0o644); err != nil {
				return toolexec.Result{}, err
			}
		}
		return toolexec.Result{}, nil
	}
}

// Git simulates git clone (a repository with a themes/ directory) and
// git rev-parse HEAD.
func Git(head string) toolexec.Handler {
	return func(ctx context.Context, command toolexec.Command) (toolexec.Result, error) {
		if len(command.Args) == 0 {
			return toolexec.Result{}, nil
		}
		switch command.Args[0] {
		case "clone":
			destination := command.Args[len(command.Args)-1]
			if err := writeFile(filepath.Join(destination, "themes", "dark.json"), `{"name":"dark"}`+"\n", 0o644); err != nil {
				return toolexec.Result{}, err
			}
			return toolexec.Result{}, writeFile(filepath.Join(destination, "README.md"), "themes\n", 0o644)
		case "rev-parse":
			return toolexec.Result{Stdout: head + "\n"}, nil
		}
		return toolexec.Result{}, nil
	}
}
