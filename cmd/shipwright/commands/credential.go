// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/shipwright/cmd/shipwright/cli"
	"github.com/bureau-foundation/shipwright/lib/credential"
	"github.com/bureau-foundation/shipwright/lib/secret"
)

func credentialCommand() *cli.Command {
	return &cli.Command{
		Name:    "credential",
		Summary: "Manage sealed signing credentials",
		Description: `Credentials are age-encrypted files named <reference>.age in the
project's signing.credentials_dir. The invocation options refer to them
by reference (signing.notarization_secret, archive_signing_key).`,
		Subcommands: []*cli.Command{
			sealCommand(),
		},
	}
}

type sealParams struct {
	Project    projectFlags
	Dir        string   `flag:"dir" desc:"credentials directory (default: the project's signing.credentials_dir)"`
	Identity   string   `flag:"identity" desc:"age identity whose public key receives the credential (default: the project's signing.identity_file, then $SHIPWRIGHT_IDENTITY)"`
	Recipients []string `flag:"recipient,r" desc:"age recipient public key; repeatable, replaces --identity"`
	File       string   `flag:"file,f" desc:"read the plaintext from this file instead of stdin"`
}

func sealCommand() *cli.Command {
	var params sealParams

	return &cli.Command{
		Name:    "seal",
		Summary: "Encrypt a credential into the credentials directory",
		Description: `Encrypt plaintext read from stdin (or --file) to the given recipients
and write it as <reference>.age, replacing any previous version.

A notarization credential is JSON: {"apple_id": "...", "password": "..."}.
An archive signing key is a base64 Ed25519 seed or private key.`,
		Usage: "shipwright credential seal [flags] <reference>",
		Examples: []cli.Example{
			{
				Description: "Seal the notarization credential to this host's identity",
				Command:     "shipwright credential seal notary < notary.json",
			},
			{
				Description: "Seal an archive signing key for a CI host",
				Command:     "shipwright credential seal --dir creds -r age1... --file key.b64 archive-key",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("seal", &params)
		},
		Run: func(_ context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return fmt.Errorf("exactly one credential reference is required")
			}
			reference := args[0]
			if err := credential.ValidateReference(reference); err != nil {
				return err
			}

			dir, identity := params.Dir, params.Identity
			if dir == "" || (identity == "" && len(params.Recipients) == 0) {
				project, err := params.Project.load()
				if err != nil {
					return err
				}
				store := newStoreCredentials(project)
				if dir == "" {
					dir = store.dir
				}
				if identity == "" {
					identity = store.identity
				}
			}
			if dir == "" {
				return fmt.Errorf("no credentials directory: pass --dir or set signing.credentials_dir")
			}

			recipients := params.Recipients
			if len(recipients) == 0 {
				if identity == "" {
					return fmt.Errorf("no recipients: pass --recipient or --identity")
				}
				var err error
				recipients, err = credential.Recipients(identity)
				if err != nil {
					return err
				}
			}

			plaintext, err := readPlaintext(params.File)
			if err != nil {
				return err
			}
			defer plaintext.Close()

			path, err := credential.Seal(dir, reference, plaintext.Bytes(), recipients)
			if err != nil {
				return err
			}
			logger.Info("credential sealed", "reference", reference, "path", path, "recipients", len(recipients))
			fmt.Fprintln(stdout, path)
			return nil
		},
	}
}

func readPlaintext(path string) (*secret.Buffer, error) {
	if path != "" {
		return secret.ReadFile(path)
	}
	return secret.Read(stdin)
}
