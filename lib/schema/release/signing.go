// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package release

import "fmt"

// SigningScope is the signing credential scope: where packages are
// exchanged and which role the signing service assumes.
type SigningScope struct {
	Bucket    string `json:"bucket"`
	Queue     string `json:"queue,omitempty"`
	AccountID string `json:"account_id"`
	RoleName  string `json:"role_name"`

	// Production selects the production signing profile. Gamma builds
	// sign with the non-production one.
	Production bool `json:"production"`
}

// RoleARN is the IAM role reference handed to the signing service.
func (s SigningScope) RoleARN() string {
	return fmt.Sprintf("arn:aws:iam::%s:role/%s", s.AccountID, s.RoleName)
}

// SigningRequest asks for one artifact to be signed and notarized.
type SigningRequest struct {
	Path  string       `json:"path"`
	Kind  ArtifactKind `json:"kind"`
	Scope SigningScope `json:"scope"`
}

// SigningState is the position of one artifact in the signing
// protocol.
type SigningState string

const (
	StateUnsigned              SigningState = "unsigned"
	StateSigningRequested      SigningState = "signing-requested"
	StateSigned                SigningState = "signed"
	StateNotarizationRequested SigningState = "notarization-requested"
	StateNotarized             SigningState = "notarized"
	StateFailed                SigningState = "failed"
)

var signingTransitions = map[SigningState]SigningState{
	StateUnsigned:              StateSigningRequested,
	StateSigningRequested:      StateSigned,
	StateSigned:                StateNotarizationRequested,
	StateNotarizationRequested: StateNotarized,
}

// Next validates the transition from s to next. Every non-terminal
// state may fail; otherwise states advance strictly in order.
func (s SigningState) Next(next SigningState) error {
	if s.Terminal() {
		return fmt.Errorf("signing state %s is terminal", s)
	}
	if next == StateFailed || signingTransitions[s] == next {
		return nil
	}
	return fmt.Errorf("invalid signing transition %s -> %s", s, next)
}

// Terminal reports whether no transition leaves s.
func (s SigningState) Terminal() bool {
	return s == StateNotarized || s == StateFailed
}

// Reached reports whether s is at or past target on the success path.
func (s SigningState) Reached(target SigningState) bool {
	order := []SigningState{StateUnsigned, StateSigningRequested, StateSigned, StateNotarizationRequested, StateNotarized}
	position := func(state SigningState) int {
		for index, candidate := range order {
			if candidate == state {
				return index
			}
		}
		return -1
	}
	return position(s) >= 0 && position(s) >= position(target)
}

// SigningResult is the terminal outcome for one artifact. State is
// either notarized or failed, never in between.
type SigningResult struct {
	Path  string       `json:"path"`
	Kind  ArtifactKind `json:"kind"`
	State SigningState `json:"state"`
	Error string       `json:"error,omitempty"`
}
