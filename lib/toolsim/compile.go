// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package toolsim

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/shipwright/lib/toolexec"
)

// Cargo simulates cargo build by writing one fake binary per --target
// under targetDir. The binary records its package and triple so Lipo
// can recover the architecture. Other subcommands succeed silently.
func Cargo(targetDir string) toolexec.Handler {
	return func(ctx context.Context, command toolexec.Command) (toolexec.Result, error) {
		if len(command.Args) == 0 || command.Args[0] != "build" || hasFlag(command.Args, "--tests") {
			return toolexec.Result{}, nil
		}
		pkg := flagValue(command.Args, "--package")
		profile := "debug"
		if hasFlag(command.Args, "--release") {
			profile = "release"
		}
		for _, triple := range flagValues(command.Args, "--target") {
			path := filepath.Join(targetDir, triple, profile, pkg)
			content := fmt.Sprintf("binary package=%s triple=%s features=%s\n", pkg, triple, flagValue(command.Args, "--features"))
			if err := writeFile(path, content, 0o755); err != nil {
				return toolexec.Result{}, err
			}
		}
		return toolexec.Result{}, nil
	}
}

// Lipo simulates lipo -create and lipo -archs.
func Lipo() toolexec.Handler {
	return func(ctx context.Context, command toolexec.Command) (toolexec.Result, error) {
		switch {
		case hasFlag(command.Args, "-create"):
			output := flagValue(command.Args, "-output")
			var builder strings.Builder
			builder.WriteString("universal\n")
			for _, input := range positional(command.Args, "-output") {
				data, err := os.ReadFile(input)
				if err != nil {
					return toolexec.Result{}, toolexec.Fail(command, 1, "can't open input file: "+input)
				}
				triple := field(string(data), "triple")
				arch, _, _ := strings.Cut(triple, "-")
				if arch == "aarch64" {
					arch = "arm64"
				}
				builder.WriteString("arch=" + arch + "\n")
			}
			return toolexec.Result{}, writeFile(output, builder.String(), 0o755)
		case hasFlag(command.Args, "-archs"):
			path := command.Args[len(command.Args)-1]
			data, err := os.ReadFile(path)
			if err != nil {
				return toolexec.Result{}, toolexec.Fail(command, 1, "can't open input file: "+path)
			}
			var architectures []string
			for _, line := range strings.Split(string(data), "\n") {
				if arch, found := strings.CutPrefix(line, "arch="); found {
					architectures = append(architectures, arch)
				}
			}
			return toolexec.Result{Stdout: strings.Join(architectures, " ") + "\n"}, nil
		}
		return toolexec.Result{}, nil
	}
}

func writeFile(path, content string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), mode)
}

// field extracts key=value from space-separated text.
func field(text, key string) string {
	for _, token := range strings.Fields(text) {
		if value, found := strings.CutPrefix(token, key+"="); found {
			return value
		}
	}
	return ""
}

func hasFlag(args []string, flag string) bool {
	for _, arg := range args {
		if arg == flag {
			return true
		}
	}
	return false
}

func flagValue(args []string, flag string) string {
	values := flagValues(args, flag)
	if len(values) == 0 {
		return ""
	}
	return values[len(values)-1]
}

func flagValues(args []string, flag string) []string {
	var values []string
	for index := 0; index < len(args)-1; index++ {
		if args[index] == flag {
			values = append(values, args[index+1])
		}
	}
	return values
}

// positional returns the arguments that are neither flags nor the value
// of one of valueFlags.
func positional(args []string, valueFlags ...string) []string {
	var result []string
	for index := 0; index < len(args); index++ {
		arg := args[index]
		if hasFlag(valueFlags, arg) {
			index++
			continue
		}
		if strings.HasPrefix(arg, "-") {
			continue
		}
		result = append(result, arg)
	}
	return result
}
