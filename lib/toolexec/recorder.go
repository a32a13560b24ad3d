// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package toolexec

import (
	"context"
	"slices"
	"sync"
)

// Handler simulates one external tool.
type Handler func(ctx context.Context, command Command) (Result, error)

// Recorder is a Runner that records every command and dispatches to a
// registered Handler by binary name. Commands without a handler
// succeed with empty output.
type Recorder struct {
	mu       sync.Mutex
	calls    []Command
	handlers map[string]Handler
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{handlers: make(map[string]Handler)}
}

// Handle registers handler for the named binary, replacing any
// previous handler.
func (r *Recorder) Handle(name string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
}

// Run records command and invokes its handler.
func (r *Recorder) Run(ctx context.Context, command Command) (Result, error) {
	r.mu.Lock()
	command.Args = slices.Clone(command.Args)
	r.calls = append(r.calls, command)
	handler := r.handlers[command.Name]
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if handler == nil {
		return Result{}, nil
	}
	result, err := handler(ctx, command)
	if err == nil && command.Stdout != nil && result.Stdout != "" {
		if _, writeErr := command.Stdout.Write([]byte(result.Stdout)); writeErr != nil {
			return Result{}, writeErr
		}
		result.Stdout = ""
	}
	return result, err
}

// Calls returns every recorded command in order.
func (r *Recorder) Calls() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// CallsTo returns the recorded commands for one binary.
func (r *Recorder) CallsTo(name string) []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matching []Command
	for _, call := range r.calls {
		if call.Name == name {
			matching = append(matching, call)
		}
	}
	return matching
}

// Names returns the binary name of each recorded command, in order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.calls))
	for _, call := range r.calls {
		names = append(names, call.Name)
	}
	return names
}

// Fail returns an *ExitError for use in handlers.
func Fail(command Command, code int, stderr string) error {
	return &ExitError{Command: command.String(), Code: code, Stderr: stderr}
}
