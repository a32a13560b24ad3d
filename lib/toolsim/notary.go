// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package toolsim

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zip"

	"github.com/bureau-foundation/shipwright/lib/fsutil"
	"github.com/bureau-foundation/shipwright/lib/toolexec"
)

// Notarization simulates ditto, xcrun notarytool, xcrun stapler and
// spctl. A submission is accepted when the submitted artifact carries
// the simulated signing service's signature.
type Notarization struct {
	// PendingPolls is how many info calls answer "In Progress".
	PendingPolls int

	// Reject makes every submission invalid.
	Reject bool

	mu          sync.Mutex
	zips        map[string]string
	submissions map[string]*submission
	accepted    map[string]bool
}

type submission struct {
	path   string
	signed bool
	polls  int
}

// NewNotarization returns a simulator with no submissions.
func NewNotarization() *Notarization {
	return &Notarization{
		zips:        map[string]string{},
		submissions: map[string]*submission{},
		accepted:    map[string]bool{},
	}
}

// Submissions returns the number of submissions made.
func (n *Notarization) Submissions() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.submissions)
}

// Ditto simulates ditto -c -k --keepParent <source> <zip>.
func (n *Notarization) Ditto() toolexec.Handler {
	return func(ctx context.Context, command toolexec.Command) (toolexec.Result, error) {
		arguments := positional(command.Args)
		if len(arguments) != 2 || !hasFlag(command.Args, "-c") || !hasFlag(command.Args, "--keepParent") {
			return toolexec.Result{}, toolexec.Fail(command, 1, "usage: ditto -c -k --keepParent source archive")
		}
		source, output := arguments[0], arguments[1]
		if !fsutil.Exists(source) {
			return toolexec.Result{}, toolexec.Fail(command, 1, source+": No such file or directory")
		}
		if err := zipTree(output, source, filepath.Base(source)); err != nil {
			return toolexec.Result{}, err
		}
		n.mu.Lock()
		n.zips[output] = source
		n.mu.Unlock()
		return toolexec.Result{}, nil
	}
}

// Xcrun simulates the notarytool and stapler subcommands.
func (n *Notarization) Xcrun() toolexec.Handler {
	return func(ctx context.Context, command toolexec.Command) (toolexec.Result, error) {
		if len(command.Args) < 2 {
			return toolexec.Result{}, toolexec.Fail(command, 64, "usage")
		}
		switch command.Args[0] {
		case "notarytool":
			if err := authenticated(command); err != nil {
				return toolexec.Result{}, err
			}
			return n.notarytool(command)
		case "stapler":
			return toolexec.Result{}, n.staple(command)
		}
		return toolexec.Result{}, toolexec.Fail(command, 72, "unable to find utility "+command.Args[0])
	}
}

// authenticated requires --apple-id, --team-id and a password that
// resolves, directly or through "@env:".
func authenticated(command toolexec.Command) error {
	password := flagValue(command.Args, "--password")
	if variable, found := strings.CutPrefix(password, "@env:"); found {
		password = command.Env[variable]
	}
	if flagValue(command.Args, "--apple-id") == "" || flagValue(command.Args, "--team-id") == "" || password == "" {
		return toolexec.Fail(command, 1, "Error: missing credentials")
	}
	return nil
}

func (n *Notarization) notarytool(command toolexec.Command) (toolexec.Result, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(command.Args) < 3 {
		return toolexec.Result{}, toolexec.Fail(command, 64, "usage: notarytool <command> <target>")
	}
	verb, target := command.Args[1], command.Args[2]
	switch verb {
	case "submit":
		signed, err := n.submittedSigned(target)
		if err != nil {
			return toolexec.Result{}, toolexec.Fail(command, 1, err.Error())
		}
		path := target
		if source, ok := n.zips[target]; ok {
			path = source
		}
		id := fmt.Sprintf("sub-%d", len(n.submissions)+1)
		n.submissions[id] = &submission{path: path, signed: signed}
		return jsonResult(map[string]string{"id": id, "message": "Successfully uploaded file"})
	case "info":
		sub, ok := n.submissions[target]
		if !ok {
			return toolexec.Result{}, toolexec.Fail(command, 1, "submission not found")
		}
		status := "Accepted"
		switch {
		case sub.polls < n.PendingPolls:
			sub.polls++
			status = "In Progress"
		case n.Reject || !sub.signed:
			status = "Invalid"
		default:
			n.accepted[sub.path] = true
		}
		return jsonResult(map[string]string{"id": target, "status": status})
	case "log":
		return toolexec.Result{Stdout: `{"status": "Invalid", "issues": [{"message": "The binary is not signed."}]}` + "\n"}, nil
	}
	return toolexec.Result{}, toolexec.Fail(command, 64, "unknown notarytool command "+verb)
}

// submittedSigned checks the signature of a submitted dmg, or of the
// bundle inside a submitted zip.
func (n *Notarization) submittedSigned(path string) (bool, error) {
	if !strings.HasSuffix(path, ".zip") {
		if !fsutil.Exists(path) {
			return false, fmt.Errorf("%s does not exist", path)
		}
		return Signed(path), nil
	}
	reader, err := zip.OpenReader(path)
	if err != nil {
		return false, err
	}
	defer reader.Close()
	for _, file := range reader.File {
		if strings.HasSuffix(file.Name, "/"+signatureFile) {
			return true, nil
		}
	}
	return false, nil
}

func (n *Notarization) staple(command toolexec.Command) error {
	if command.Args[1] != "staple" || len(command.Args) != 3 {
		return toolexec.Fail(command, 64, "usage: stapler staple path")
	}
	path := command.Args[2]
	n.mu.Lock()
	accepted := n.accepted[path]
	n.mu.Unlock()
	if !accepted {
		return toolexec.Fail(command, 65, "CloudKit query for "+filepath.Base(path)+" failed: Record not found")
	}
	return addMarker(path, ticketFile, ticketTrailer, "ticket\n")
}

// Spctl simulates spctl -a: signed and stapled artifacts are accepted.
func (n *Notarization) Spctl() toolexec.Handler {
	return func(ctx context.Context, command toolexec.Command) (toolexec.Result, error) {
		path := command.Args[len(command.Args)-1]
		if !Signed(path) || !Stapled(path) {
			return toolexec.Result{}, toolexec.Fail(command, 3, path+": rejected")
		}
		return toolexec.Result{Stderr: path + ": accepted\nsource=Notarized Developer ID\n"}, nil
	}
}

func jsonResult(value any) (toolexec.Result, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return toolexec.Result{}, err
	}
	return toolexec.Result{Stdout: string(data) + "\n"}, nil
}
