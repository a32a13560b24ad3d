// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the shipwright command tree.
package commands

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/shipwright/cmd/shipwright/cli"
	"github.com/bureau-foundation/shipwright/lib/config"
	"github.com/bureau-foundation/shipwright/lib/credential"
	"github.com/bureau-foundation/shipwright/lib/schema/release"
	"github.com/bureau-foundation/shipwright/lib/toolexec"
	"github.com/bureau-foundation/shipwright/lib/version"
)

// IdentityEnvironmentVariable names the age identity used to open
// sealed credentials when the project file does not name one.
const IdentityEnvironmentVariable = "SHIPWRIGHT_IDENTITY"

// HashEnvironmentVariable is the CI-exported source revision.
const HashEnvironmentVariable = "CODEBUILD_SOURCE_VERSION"

var (
	stdout io.Writer = os.Stdout
	stdin  io.Reader = os.Stdin

	// newRunner builds the command runner for external tools.
	newRunner = func(logger *slog.Logger, fallbackDirs []string) toolexec.Runner {
		return toolexec.NewExec(logger, fallbackDirs...)
	}
)

// Root builds and returns the complete shipwright command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "shipwright",
		Description: `shipwright: release build pipeline.

Compiles the product binaries, gates on the test suite, packages a macOS
application bundle and disk image or a Linux install tree and archives,
signs and notarizes through the remote signing service, and publishes
checksummed artifacts.`,
		Subcommands: []*cli.Command{
			runCommand(),
			planCommand(),
			checksumCommand(),
			mergeCommand(),
			archsCommand(),
			credentialCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, args []string, _ *slog.Logger) error {
					fmt.Fprintf(stdout, "shipwright %s\n", version.Full())
					return nil
				},
			},
		},
	}
}

// projectFlags locates the project file.
type projectFlags struct {
	Path string
}

func (p *projectFlags) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&p.Path, "config", "", "project file (default: $"+config.EnvironmentVariable+")")
}

func (p *projectFlags) load() (*config.Project, error) {
	if p.Path == "" {
		return config.Load()
	}
	return config.LoadFile(p.Path)
}

// targetFlags select what a run builds.
type targetFlags struct {
	Platform      string   `flag:"platform" desc:"target platform: macos or linux (default: the host)"`
	Architectures []string `flag:"arch" desc:"architectures to build (default: toolchain.architectures on macOS, the host on linux)"`
	Musl          bool     `flag:"musl" desc:"build linux binaries for the musl triple"`
}

// buildTarget combines the flags, the project and the invocation options
// into the immutable target of one run.
func (t *targetFlags) buildTarget(project *config.Project, options *config.Options) (release.BuildTarget, error) {
	platformName := t.Platform
	if platformName == "" {
		platformName = runtime.GOOS
	}
	platform, err := release.ParsePlatform(platformName)
	if err != nil {
		return release.BuildTarget{}, err
	}

	names := t.Architectures
	if len(names) == 0 {
		if platform == release.PlatformMacOS {
			names = project.Toolchain.Architectures
		} else {
			names = []string{runtime.GOARCH}
		}
	}
	architectures := make([]release.Arch, 0, len(names))
	for _, name := range names {
		arch, err := release.ParseArch(name)
		if err != nil {
			return release.BuildTarget{}, err
		}
		architectures = append(architectures, arch)
	}

	return release.BuildTarget{
		Platform:      platform,
		Architectures: architectures,
		Musl:          platform == release.PlatformLinux && (t.Musl || project.Toolchain.Musl),
		Headless:      options.Headless,
		Features:      project.Toolchain.Features,
		Environment:   project.Toolchain.Environment,
	}, nil
}

// storeCredentials opens the credential store on first use, so runs
// that never touch a secret do not need an identity.
type storeCredentials struct {
	dir      string
	identity string

	once  sync.Once
	store *credential.Store
	err   error
}

func newStoreCredentials(project *config.Project) *storeCredentials {
	identity := project.Signing.IdentityFile
	if identity == "" {
		identity = os.Getenv(IdentityEnvironmentVariable)
	} else {
		identity = project.Path(identity)
	}
	dir := project.Signing.CredentialsDir
	if dir != "" {
		dir = project.Path(dir)
	}
	return &storeCredentials{dir: dir, identity: identity}
}

func (c *storeCredentials) open() (*credential.Store, error) {
	c.once.Do(func() {
		if c.dir == "" {
			c.err = fmt.Errorf("signing.credentials_dir is not set")
			return
		}
		if c.identity == "" {
			c.err = fmt.Errorf("no age identity: set signing.identity_file or $%s", IdentityEnvironmentVariable)
			return
		}
		c.store, c.err = credential.Open(c.dir, c.identity)
	})
	return c.store, c.err
}

func (c *storeCredentials) Notary(reference string) (credential.NotaryCredential, error) {
	store, err := c.open()
	if err != nil {
		return credential.NotaryCredential{}, err
	}
	return store.Notary(reference)
}

func (c *storeCredentials) SigningKey(reference string) (ed25519.PrivateKey, error) {
	store, err := c.open()
	if err != nil {
		return nil, err
	}
	return store.SigningKey(reference)
}
