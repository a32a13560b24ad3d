// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/bureau-foundation/shipwright/lib/archive"
	"github.com/bureau-foundation/shipwright/lib/assets"
	"github.com/bureau-foundation/shipwright/lib/bundle"
	"github.com/bureau-foundation/shipwright/lib/config"
	"github.com/bureau-foundation/shipwright/lib/diskimage"
	"github.com/bureau-foundation/shipwright/lib/fstree"
	"github.com/bureau-foundation/shipwright/lib/objstore"
	"github.com/bureau-foundation/shipwright/lib/publish"
	"github.com/bureau-foundation/shipwright/lib/schema/release"
	"github.com/bureau-foundation/shipwright/lib/signing"
	"github.com/bureau-foundation/shipwright/lib/testgate"
	"github.com/bureau-foundation/shipwright/lib/toolchain"
	"github.com/bureau-foundation/shipwright/lib/version"
)

// Binary roles in [State].Binaries.
const (
	RoleCLI     = "cli"
	RoleShim    = "shim"
	RoleDesktop = "desktop"
	RoleHelper  = "helper"
)

// Build variants recorded in build identity.
const (
	VariantFull    = "full"
	VariantMinimal = "minimal"
)

type role struct {
	name   string
	binary config.PackageBinary
}

// roles lists what the compile stage builds. On macOS the packaging
// tool compiles the desktop shell itself.
func (p *Pipeline) roles() []role {
	packages := p.Project.Packages
	roles := []role{
		{RoleCLI, packages.CLI},
		{RoleShim, packages.Shim},
	}
	switch {
	case p.Target.Platform == release.PlatformMacOS:
		roles = append(roles, role{RoleHelper, packages.Helper})
	case !p.Target.Headless:
		roles = append(roles, role{RoleDesktop, packages.Desktop})
	}
	return roles
}

func (p *Pipeline) packageNames() []string {
	var names []string
	for _, role := range p.roles() {
		names = append(names, role.binary.Package)
	}
	return names
}

// shippedPackages lists every package whose binary ships: the compiled
// roles, plus on macOS the desktop shell the packaging tool compiles.
func (p *Pipeline) shippedPackages() []string {
	names := p.packageNames()
	if p.Target.Platform == release.PlatformMacOS {
		names = append(names, p.Project.Packages.Desktop.Package)
	}
	return names
}

// features returns the features pkg is compiled with. The gamma set
// only exists in the CLI and desktop packages.
func (p *Pipeline) features(pkg string) []string {
	features := slices.Clone(p.Target.FeatureList(pkg))
	packages := p.Project.Packages
	if p.Options.GammaFeatures() && (pkg == packages.CLI.Package || pkg == packages.Desktop.Package) {
		features = append(features, pkg+"/gamma")
	}
	return features
}

func (p *Pipeline) environment(state *State) toolchain.Environment {
	settings := p.Project.Toolchain
	return toolchain.ReleaseEnvironment(toolchain.EnvironmentOptions{
		Platform:         p.Target.Platform,
		Release:          p.Project.Release(),
		DeploymentTarget: settings.DeploymentTarget,
		Linker:           settings.Linker,
		IdentityPrefix:   settings.IdentityPrefix,
		Build:            state.Build,
		Overrides:        p.Target.Environment,
	})
}

func (p *Pipeline) prepare(ctx context.Context, state *State, logger *slog.Logger) error {
	productVersion, err := version.CargoVersion(p.Project.Path(p.Project.Paths.CargoManifest))
	if err != nil {
		return err
	}
	variant := VariantFull
	if p.Target.Headless {
		variant = VariantMinimal
	}
	state.Build = version.BuildInfo{
		Version: productVersion,
		Hash:    version.ResolveHash(ctx, p.Runner, p.Project.Root, p.HashOverride, logger),
		Time:    p.Clock.Now().UTC().Truncate(time.Second),
		Variant: variant,
		Triple:  string(p.Target.ManifestTriple()),
	}
	state.Binaries = map[string]release.Binary{}
	logger.Info("build identity",
		"version", state.Build.Version,
		"hash", state.Build.Hash,
		"variant", state.Build.Variant,
		"triple", state.Build.Triple,
		"stage_name", p.Options.Stage(),
	)
	return nil
}

func (p *Pipeline) compile(ctx context.Context, state *State, logger *slog.Logger) error {
	driver := &toolchain.Driver{
		Runner:     p.Runner,
		Env:        p.environment(state),
		WorkDir:    p.Project.Root,
		TargetDir:  p.Project.Path(p.Project.Paths.Target),
		StagingDir: p.stagingDir(),
		Musl:       p.Target.Musl,
		Logger:     logger,
	}
	binaries := make(map[string]release.Binary)
	for _, role := range p.roles() {
		binary, err := driver.Compile(ctx, p.Target, toolchain.BuildRequest{
			Package:    role.binary.Package,
			OutputName: role.binary.Binary,
			Features:   p.features(role.binary.Package),
			Release:    p.Project.Release(),
		})
		if err != nil {
			return fmt.Errorf("compiling %s: %w", role.binary.Package, err)
		}
		binaries[role.name] = binary
	}
	state.Binaries = binaries
	return nil
}

// test runs the gate with the union of every shipped package's
// features. The desktop package is not tested on Linux, so its features
// are left out there.
func (p *Pipeline) test(ctx context.Context, state *State, logger *slog.Logger) error {
	var exclude []string
	if p.Target.Platform == release.PlatformLinux {
		exclude = append(exclude, p.Project.Packages.Desktop.Package)
	}

	var features []string
	for _, pkg := range p.shippedPackages() {
		if slices.Contains(exclude, pkg) {
			continue
		}
		for _, feature := range p.features(pkg) {
			if !slices.Contains(features, feature) {
				features = append(features, feature)
			}
		}
	}
	slices.Sort(features)
	gate := &testgate.Gate{
		Runner:  p.Runner,
		Env:     p.environment(state),
		WorkDir: p.Project.Root,
		Logger:  logger,
	}
	return gate.Run(ctx, testgate.Request{
		Features:     features,
		Exclude:      exclude,
		Lints:        p.Project.Test.Lints,
		DenyWarnings: p.Project.Test.DenyWarnings,
		EndToEnd:     p.Project.Test.Command,
	})
}

func (p *Pipeline) fetchAssets(ctx context.Context, state *State, logger *slog.Logger) error {
	settings := p.Project.Assets
	fetcher := &assets.Fetcher{
		Runner:     p.Runner,
		WorkDir:    p.Project.Root,
		StagingDir: filepath.Join(p.stagingDir(), "assets"),
		Logger:     logger,
	}
	output, err := fetcher.Fetch(ctx, assets.Request{
		Version:          state.Build.Version,
		Build:            settings.Enabled,
		DashboardDist:    p.Project.Path(settings.DashboardDist),
		AutocompleteDist: p.Project.Path(settings.AutocompleteDist),
		ExtensionDir:     p.Project.Path(settings.ExtensionDir),
		ThemesRepository: settings.ThemesRepository,
	})
	if err != nil {
		return err
	}
	state.Assets = output
	return nil
}

func (p *Pipeline) assembleBundle(ctx context.Context, state *State, logger *slog.Logger) error {
	product := p.Project.Product
	paths := p.Project.Paths
	staging := p.stagingDir()

	helper, err := bundle.AssembleHelper(ctx, bundle.HelperSpec{
		Name:           paths.HelperBundle,
		Executable:     state.Binaries[RoleHelper].Path,
		ExecutableName: p.Project.Packages.Helper.Binary,
		InfoPlist:      p.Project.Path(paths.HelperInfoPlist),
		Resources:      p.Project.Path(paths.HelperResources),
		OutputDir:      staging,
	})
	if err != nil {
		return err
	}
	state.Helper = helper

	// The helper is embedded signed; the app signature then covers it.
	if p.Options.SigningEnabled() {
		client, scope, err := p.signingClient(logger)
		if err != nil {
			return withClass(ClassSigning, err)
		}
		result, err := client.SignAndNotarize(ctx, release.SigningRequest{
			Path:  helper,
			Kind:  release.KindHelperBundle,
			Scope: scope,
		})
		state.Signing = append(state.Signing, result)
		if err != nil {
			return withClass(ClassSigning, err)
		}
	}

	assembler := &bundle.Assembler{
		Runner: p.Runner,
		Env:    p.environment(state),
		Logger: logger,
	}
	app, err := assembler.Assemble(ctx, bundle.AppSpec{
		AppName:          product.AppName,
		DesktopDir:       p.Project.Path(paths.DesktopDir),
		Triple:           p.Target.ManifestTriple(),
		Features:         p.features(p.Project.Packages.Desktop.Package),
		TargetDir:        p.Project.Path(paths.Target),
		PackagerBundle:   paths.PackagerBundle,
		StagingDir:       staging,
		ExternalBinaries: []release.Binary{state.Binaries[RoleCLI], state.Binaries[RoleShim]},
		Manifest:         bundle.NewManifest(state.Build, product.PackagedBy, product.DefaultChannel, p.Clock.Now()),
		Plist: bundle.PlistPatch{
			DisplayName:      product.AppName,
			BundleName:       product.AppName,
			BundleIdentifier: product.BundleIdentifier,
			URLScheme:        product.URLScheme,
			Agent:            true,
		},
		Helper:    helper,
		Resources: state.Assets.Trees(),
	})
	if err != nil {
		return err
	}
	state.App = app
	return nil
}

func (p *Pipeline) imageBuilder(logger *slog.Logger) *diskimage.Builder {
	return &diskimage.Builder{
		Runner:    p.Runner,
		Logger:    logger,
		MountRoot: p.MountRoot,
	}
}

func (p *Pipeline) buildDiskImage(ctx context.Context, state *State, logger *slog.Logger) error {
	product := p.Project.Product
	spec := diskimage.NewSpec(
		p.Project.DiskImage,
		product.AppName,
		filepath.Join(p.stagingDir(), product.DiskImageName+".dmg"),
		p.Project.Path(p.Project.Paths.DiskImageResources),
		state.App,
	)
	image, err := p.imageBuilder(logger).Build(ctx, state.App, spec)
	if err != nil {
		return err
	}
	state.Image = image
	return nil
}

func (p *Pipeline) sign(ctx context.Context, state *State, logger *slog.Logger) error {
	client, scope, err := p.signingClient(logger)
	if err != nil {
		return err
	}
	image, results, err := client.SignDiskImage(ctx, state.App, state.Image, scope, p.imageBuilder(logger))
	state.Signing = append(state.Signing, results...)
	if err != nil {
		return err
	}
	state.Image = image
	return nil
}

// signingClient wires the signing service, the package exchange store
// and the notary from the invocation's signing block.
func (p *Pipeline) signingClient(logger *slog.Logger) (*signing.Client, release.SigningScope, error) {
	options := p.Options.Signing
	scope := release.SigningScope{
		Bucket:     options.Bucket,
		Queue:      options.Queue,
		AccountID:  options.AccountID,
		RoleName:   options.RoleName,
		Production: p.Options.Stage() == config.StageProd,
	}
	if p.Credentials == nil {
		return nil, scope, errors.New("signing is configured but no credential store is available")
	}

	endpoint := options.Endpoint
	if endpoint == "" {
		endpoint = p.Project.Signing.Endpoint
	}
	if endpoint == "" {
		return nil, scope, errors.New("no signing service endpoint: set signing.endpoint in the project or the invocation")
	}
	service, err := signing.NewService(signing.ServiceConfig{
		Endpoint:   endpoint,
		HTTPClient: p.HTTPClient,
		Clock:      p.Clock,
		Logger:     logger,
	})
	if err != nil {
		return nil, scope, err
	}
	store, err := objstore.Open(options.Bucket, objstore.Options{
		Runner: p.Runner,
		Client: p.HTTPClient,
		Logger: logger,
	})
	if err != nil {
		return nil, scope, fmt.Errorf("opening signing bucket: %w", err)
	}

	poller := &signing.Poller{
		Clock: p.Clock,
		Policy: signing.DefaultPollPolicy().WithOverrides(
			time.Duration(options.PollInterval),
			time.Duration(options.MaxPollInterval),
			time.Duration(options.Timeout),
			options.RetryBudget,
		),
		Logger: logger,
	}
	teamID := options.TeamID
	if teamID == "" {
		teamID = p.Project.Signing.TeamID
	}
	workDir := filepath.Join(p.stagingDir(), ".signing")

	client := &signing.Client{
		Signer: &signing.Signer{
			Store:      store,
			Service:    service,
			Poller:     poller,
			Identifier: p.Project.Product.BundleIdentifier,
			TeamID:     teamID,
			WorkDir:    workDir,
			Logger:     logger,
		},
		Notary: &signing.Notary{
			Runner:      p.Runner,
			Credentials: p.Credentials,
			Reference:   options.NotarizationSecret,
			TeamID:      teamID,
			Poller:      poller,
			WorkDir:     workDir,
			Logger:      logger,
		},
		Journal: &signing.Journal{Path: filepath.Join(p.stagingDir(), SigningJournalFile)},
		Clock:   p.Clock,
		Logger:  logger,
	}
	return client, scope, nil
}

func (p *Pipeline) buildTree(ctx context.Context, state *State, logger *slog.Logger) error {
	root := filepath.Join(p.stagingDir(), "tree")
	if err := os.RemoveAll(root); err != nil {
		return err
	}
	paths := p.Project.Paths
	tree, err := fstree.Build(fstree.Spec{
		Root:            root,
		Binaries:        []release.Binary{state.Binaries[RoleCLI], state.Binaries[RoleShim]},
		Desktop:         state.Binaries[RoleDesktop],
		IconDir:         p.Project.Path(paths.DesktopIcons),
		IconName:        p.Project.Product.IconName,
		Resolutions:     p.Project.Linux.IconResolutions,
		HeadlessOverlay: p.Project.Path(paths.HeadlessOverlay),
		DesktopOverlay:  p.Project.Path(paths.DesktopOverlay),
		Headless:        p.Target.Headless,
	})
	if err != nil {
		return err
	}
	logger.Info("laid out install tree", "root", tree.Root, "binaries", len(tree.Binaries), "headless", tree.Headless)
	state.Tree = tree
	return nil
}

func (p *Pipeline) packageArchives(ctx context.Context, state *State, logger *slog.Logger) error {
	formats := make([]archive.Format, 0, len(p.Project.Linux.ArchiveFormats))
	for _, name := range p.Project.Linux.ArchiveFormats {
		format, err := archive.ParseFormat(name)
		if err != nil {
			return err
		}
		formats = append(formats, format)
	}

	binaries := []release.Binary{state.Binaries[RoleCLI], state.Binaries[RoleShim]}
	if p.Options.DesktopBundle && !p.Target.Headless {
		binaries = append(binaries, state.Binaries[RoleDesktop])
	}
	staging := p.stagingDir()
	packager := &archive.Packager{Logger: logger}
	archives, err := packager.Package(ctx, archive.Spec{
		Name:          p.Project.Product.ArchiveName,
		WorkDir:       staging,
		OutputDir:     staging,
		Binaries:      binaries,
		InstallScript: p.Project.Path(p.Project.Paths.InstallScript),
		Readme:        p.Project.Path(p.Project.Paths.Readme),
		Build:         state.Build,
		Formats:       formats,
	})
	if err != nil {
		return err
	}

	if reference := p.Options.ArchiveSigningKey; reference != "" {
		if p.Credentials == nil {
			return errors.New("archive signing key configured but no credential store is available")
		}
		key, err := p.Credentials.SigningKey(reference)
		if err != nil {
			return fmt.Errorf("opening archive signing key: %w", err)
		}
		for index := range archives {
			signature, err := signing.SignDetached(archives[index].Path, key)
			if err != nil {
				return err
			}
			archives[index].SignaturePath = signature
		}
		logger.Info("signed archives", "count", len(archives), "key", reference)
	}
	state.Archives = archives
	return nil
}

func (p *Pipeline) publish(ctx context.Context, state *State, logger *slog.Logger) error {
	var artifacts []publish.Artifact
	switch p.Target.Platform {
	case release.PlatformMacOS:
		artifacts = append(artifacts, publish.Artifact{Path: state.Image.Path, Kind: release.KindDiskImage})
	case release.PlatformLinux:
		for _, packaged := range state.Archives {
			artifact := publish.Artifact{Path: packaged.Path, Kind: release.KindArchive}
			if packaged.SignaturePath != "" {
				artifact.Attachments = []string{packaged.SignaturePath}
			}
			artifacts = append(artifacts, artifact)
		}
	}

	publisher := &publish.Publisher{Logger: logger}
	if bucket := p.Options.OutputBucket; bucket != "" {
		store, err := objstore.Open(bucket, objstore.Options{
			Runner: p.Runner,
			Client: p.HTTPClient,
			Logger: logger,
		})
		if err != nil {
			return fmt.Errorf("opening output bucket: %w", err)
		}
		publisher.Store = store
	} else {
		logger.Info("no output bucket configured; writing checksums only")
	}
	published, err := publisher.Publish(ctx, artifacts)
	if err != nil {
		return err
	}
	state.Published = published
	return nil
}

// Summary maps each published artifact to its checksum.
func (s *State) Summary() map[string]string {
	summary := make(map[string]string, len(s.Published))
	for _, published := range s.Published {
		summary[published.Path] = published.Checksum
	}
	return summary
}

// Artifacts returns the published artifact paths in sorted order.
func (s *State) Artifacts() []string {
	return slices.Sorted(maps.Keys(s.Summary()))
}
