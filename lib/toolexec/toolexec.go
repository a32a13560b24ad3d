// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// Command is one external tool invocation.
type Command struct {
	// Name is the binary name ("cargo", "lipo") or an absolute path.
	Name string
	Args []string

	// Dir is the working directory. Empty means the runner's current
	// directory.
	Dir string

	// Env overlays the runner's base environment for this invocation
	// only.
	Env map[string]string

	// Stdout, when set, receives the tool's standard output as it is
	// produced instead of it being captured into Result.Stdout.
	Stdout io.Writer
}

// String renders the command line for logs and error messages.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result holds the captured output of a successful invocation.
type Result struct {
	Stdout string
	Stderr string
}

// Runner executes commands. Implementations return *ExitError when the
// tool ran and exited non-zero.
type Runner interface {
	Run(ctx context.Context, command Command) (Result, error)
}

// ExitError reports a tool that exited with a non-zero status.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: exit status %d: %s", e.Command, e.Code, e.Stderr)
	}
	return fmt.Sprintf("%s: exit status %d", e.Command, e.Code)
}

// ExitCode returns the exit code of a failed command, or -1 when err is
// not an *ExitError.
func ExitCode(err error) int {
	var exitError *ExitError
	if errors.As(err, &exitError) {
		return exitError.Code
	}
	return -1
}

// Exec runs commands as child processes.
type Exec struct {
	// BaseEnv is the environment every command starts from, in
	// os.Environ format. main captures it once at startup.
	BaseEnv []string

	// FallbackDirs are searched, in order, when a binary is not on
	// the PATH found in BaseEnv.
	FallbackDirs []string

	Logger *slog.Logger
}

// NewExec returns an Exec whose base environment is a snapshot of the
// current process environment.
func NewExec(logger *slog.Logger, fallbackDirs ...string) *Exec {
	return &Exec{
		BaseEnv:      os.Environ(),
		FallbackDirs: fallbackDirs,
		Logger:       logger,
	}
}

// FindBinary resolves name to an absolute path.
func (e *Exec) FindBinary(name string) (string, error) {
	if filepath.IsAbs(name) {
		return name, nil
	}
	for _, directory := range filepath.SplitList(lookupEnv(e.BaseEnv, "PATH")) {
		if directory == "" {
			continue
		}
		candidate := filepath.Join(directory, name)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}
	for _, directory := range e.FallbackDirs {
		candidate := filepath.Join(directory, name)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s not found on PATH or in %s", name, strings.Join(e.FallbackDirs, ", "))
}

// Run executes command and returns its captured output.
func (e *Exec) Run(ctx context.Context, command Command) (Result, error) {
	binaryPath, err := e.FindBinary(command.Name)
	if err != nil {
		return Result{}, err
	}

	var stdout, stderr bytes.Buffer
	process := exec.CommandContext(ctx, binaryPath, command.Args...)
	process.Dir = command.Dir
	process.Env = MergeEnv(e.BaseEnv, command.Env)
	process.Stderr = &stderr
	if command.Stdout != nil {
		process.Stdout = command.Stdout
	} else {
		process.Stdout = &stdout
	}

	if e.Logger != nil {
		e.Logger.Debug("running tool", "command", command.String(), "dir", command.Dir)
	}

	if err := process.Run(); err != nil {
		stderrText := strings.TrimSpace(stderr.String())
		var processExit *exec.ExitError
		if errors.As(err, &processExit) {
			return Result{}, &ExitError{
				Command: command.String(),
				Code:    processExit.ExitCode(),
				Stderr:  stderrText,
			}
		}
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("%s: %w", command.String(), ctx.Err())
		}
		return Result{}, fmt.Errorf("%s: %w", command.String(), err)
	}

	return Result{Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

// MergeEnv overlays overrides on base and returns the result in
// os.Environ format with keys sorted, so identical inputs always
// produce an identical child environment.
func MergeEnv(base []string, overrides map[string]string) []string {
	merged := make(map[string]string, len(base)+len(overrides))
	for _, entry := range base {
		key, value, found := strings.Cut(entry, "=")
		if !found {
			continue
		}
		merged[key] = value
	}
	for key, value := range overrides {
		merged[key] = value
	}

	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	environment := make([]string, 0, len(keys))
	for _, key := range keys {
		environment = append(environment, key+"="+merged[key])
	}
	return environment
}

func lookupEnv(environment []string, key string) string {
	prefix := key + "="
	for index := len(environment) - 1; index >= 0; index-- {
		if strings.HasPrefix(environment[index], prefix) {
			return environment[index][len(prefix):]
		}
	}
	return ""
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Mode()&0o111 != 0
}
