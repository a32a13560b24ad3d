// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package signing drives artifacts through the external trust
// services: code signing through a signing service that exchanges
// packages over object storage, then notarization through notarytool.
//
// Each artifact moves through the states of [release.SigningState]:
//
//	unsigned -> signing-requested -> signed -> notarization-requested -> notarized
//
// with failed reachable from any non-terminal state. [Client] enforces
// the transitions and journals every state reached, so a re-run can
// report how far an artifact got.
//
// Both services are asynchronous. A [Poller] waits for their terminal
// answer with an injectable clock, exponential backoff up to a ceiling
// interval, a hard timeout, and a budget of consecutive transient
// errors. Denial surfaces as [ErrDenied], exhaustion as [ErrTimeout].
//
// A disk image embeds the application bundle, so [Client.SignDiskImage]
// orders the work as sign(app), notarize(app), rebundle the image from
// the signed app, sign(image), notarize(image).
//
// [SignDetached] produces Ed25519 detached signatures for artifacts
// that do not go through the services, such as Linux archives.
package signing
