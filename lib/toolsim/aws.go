// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package toolsim

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/shipwright/lib/fsutil"
	"github.com/bureau-foundation/shipwright/lib/toolexec"
)

// AWS simulates aws s3 cp, ls and rm --recursive, storing the object
// s3://<bucket>/<key> at <root>/<bucket>/<key>.
func AWS(root string) toolexec.Handler {
	local := func(url string) (string, bool) {
		rest, found := strings.CutPrefix(url, "s3://")
		if !found {
			return "", false
		}
		return filepath.Join(root, filepath.FromSlash(rest)), true
	}
	return func(ctx context.Context, command toolexec.Command) (toolexec.Result, error) {
		if len(command.Args) < 3 || command.Args[0] != "s3" {
			return toolexec.Result{}, toolexec.Fail(command, 252, "unsupported aws command")
		}
		arguments := positional(command.Args[2:])
		switch command.Args[1] {
		case "cp":
			if len(arguments) != 2 {
				return toolexec.Result{}, toolexec.Fail(command, 252, "usage: aws s3 cp <source> <destination>")
			}
			source, destination := arguments[0], arguments[1]
			if path, ok := local(source); ok {
				source = path
			}
			if path, ok := local(destination); ok {
				destination = path
				if strings.HasSuffix(arguments[1], "/") {
					destination = filepath.Join(destination, filepath.Base(source))
				}
			}
			if !fsutil.Exists(source) {
				return toolexec.Result{}, toolexec.Fail(command, 1, "The user-provided path "+arguments[0]+" does not exist.")
			}
			return toolexec.Result{}, fsutil.CopyFile(source, destination)
		case "ls":
			path, _ := local(arguments[0])
			if !fsutil.Exists(path) {
				return toolexec.Result{}, toolexec.Fail(command, 1, "")
			}
			return toolexec.Result{Stdout: "2026-01-01 00:00:00 1 " + filepath.Base(path) + "\n"}, nil
		case "rm":
			path, _ := local(arguments[0])
			return toolexec.Result{}, os.RemoveAll(path)
		}
		return toolexec.Result{}, toolexec.Fail(command, 252, "unsupported aws s3 verb "+command.Args[1])
	}
}
