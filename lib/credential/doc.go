// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package credential resolves the credential references named in the
// invocation options (notarization_secret, archive_signing_key) to
// secret material.
//
// A store is a directory of age-encrypted, ASCII-armored files named
// <reference>.age. Files are sealed to one or more X25519 recipients
// with [Seal] (the "shipwright credential seal" command) and opened
// with the build host's identity file. Decrypted plaintext is moved
// into a [secret.Buffer] immediately; typed accessors parse it into
// [NotaryCredential] or an Ed25519 signing key.
package credential
