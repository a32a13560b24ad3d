// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package toolsim

import (
	"context"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/shipwright/lib/toolexec"
)

// BasicInfoPlist is the property list the packaging simulator writes.
const BasicInfoPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>CFBundleExecutable</key>
	<string>q_desktop</string>
	<key>CFBundleIdentifier</key>
	<string>com.example.desktop</string>
	<key>CFBundleName</key>
	<string>q_desktop</string>
	<key>CFBundleShortVersionString</key>
	<string>1.0.0</string>
</dict>
</plist>
`

// WriteBundle creates a minimal application bundle at path.
func WriteBundle(path, executable string) error {
	contents := filepath.Join(path, "Contents")
	if err := writeFile(filepath.Join(contents, "Info.plist"), BasicInfoPlist, 0o644); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(contents, "MacOS", executable), "binary "+executable+"\n", 0o755); err != nil {
		return err
	}
	return os.MkdirAll(filepath.Join(contents, "Resources"), 0o755)
}

// CargoTauri simulates the packaging tool. It fails like the real tool
// when its config file is absent from the working directory, copies
// the manifest resource into the bundle, and writes the bundle under
// <targetDir>/<triple>/release/bundle/macos/<bundleName>.
func CargoTauri(targetDir, bundleName string) toolexec.Handler {
	return func(ctx context.Context, command toolexec.Command) (toolexec.Result, error) {
		config := flagValue(command.Args, "--config")
		if _, err := os.Stat(filepath.Join(command.Dir, config)); err != nil {
			return toolexec.Result{}, toolexec.Fail(command, 1, "failed to read config: "+config)
		}
		manifest, err := os.ReadFile(filepath.Join(command.Dir, "manifest.json"))
		if err != nil {
			return toolexec.Result{}, toolexec.Fail(command, 1, "resource manifest.json not found")
		}

		triple := flagValue(command.Args, "--target")
		bundle := filepath.Join(targetDir, triple, "release", "bundle", "macos", bundleName)
		if err := os.RemoveAll(bundle); err != nil {
			return toolexec.Result{}, err
		}
		if err := WriteBundle(bundle, "q_desktop"); err != nil {
			return toolexec.Result{}, err
		}
		return toolexec.Result{}, writeFile(filepath.Join(bundle, "Contents", "Resources", "manifest.json"), string(manifest), 0o644)
	}
}
