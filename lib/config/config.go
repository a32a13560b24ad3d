// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the variable [Load] reads the project file
// path from.
const EnvironmentVariable = "SHIPWRIGHT_CONFIG"

// Project is the product description a release run works from. Relative
// paths are resolved against Root, which defaults to the directory
// containing the project file.
type Project struct {
	// Root is the source checkout. Default: the project file's directory.
	Root string `yaml:"root"`

	Product   ProductConfig   `yaml:"product"`
	Packages  PackagesConfig  `yaml:"packages"`
	Paths     PathsConfig     `yaml:"paths"`
	Toolchain ToolchainConfig `yaml:"toolchain"`
	Test      TestConfig      `yaml:"test"`
	Assets    AssetsConfig    `yaml:"assets"`
	DiskImage DiskImageConfig `yaml:"disk_image"`
	Linux     LinuxConfig     `yaml:"linux"`
	Signing   SigningConfig   `yaml:"signing"`
}

// ProductConfig names the shipped product.
type ProductConfig struct {
	// AppName is the display name of the application bundle and the
	// name of the bundle directory in staging ("<AppName>.app").
	AppName string `yaml:"app_name"`

	// DiskImageName is the volume and file name of the disk image.
	DiskImageName string `yaml:"disk_image_name"`

	// BundleIdentifier is written to the URL type registered in the
	// application's Info.plist.
	BundleIdentifier string `yaml:"bundle_identifier"`

	// URLScheme is the custom URL scheme the application handles.
	URLScheme string `yaml:"url_scheme"`

	// ArchiveName is the base name of Linux archives ("<name>.tar.gz").
	ArchiveName string `yaml:"archive_name"`

	// IconName is the basename of installed hicolor icons.
	IconName string `yaml:"icon_name"`

	// PackagedBy is recorded in the bundle manifest. Default: shipwright.
	PackagedBy string `yaml:"packaged_by"`

	// DefaultChannel is recorded in the bundle manifest. Default: stable.
	DefaultChannel string `yaml:"default_channel"`
}

// PackageBinary pairs a cargo package with the name its output is
// shipped under.
type PackageBinary struct {
	Package string `yaml:"package"`
	Binary  string `yaml:"binary"`
}

// PackagesConfig names the compiled products.
type PackagesConfig struct {
	CLI     PackageBinary `yaml:"cli"`
	Shim    PackageBinary `yaml:"shim"`
	Desktop PackageBinary `yaml:"desktop"`
	Helper  PackageBinary `yaml:"helper"`
}

// PathsConfig locates inputs and outputs. All entries are relative to
// [Project].Root unless absolute.
type PathsConfig struct {
	// Staging receives every artifact of a run. Default: build.
	Staging string `yaml:"staging"`

	// Target is the compiler's output directory. Default: target.
	Target string `yaml:"target"`

	// CargoManifest is read for the product version. Default: Cargo.toml.
	CargoManifest string `yaml:"cargo_manifest"`

	// DesktopDir is where the packaging tool runs.
	DesktopDir string `yaml:"desktop_dir"`

	// PackagerBundle is the bundle directory name the packaging tool
	// produces under target/<triple>/release/bundle/macos.
	PackagerBundle string `yaml:"packager_bundle"`

	// HelperBundle is the name of the nested helper bundle directory.
	HelperBundle string `yaml:"helper_bundle"`

	// HelperInfoPlist and HelperResources feed the helper bundle.
	HelperInfoPlist string `yaml:"helper_info_plist"`
	HelperResources string `yaml:"helper_resources"`

	// DiskImageResources holds the image background and volume icon.
	DiskImageResources string `yaml:"disk_image_resources"`

	// DesktopIcons holds <r>x<r>.png icons for the Linux tree.
	DesktopIcons string `yaml:"desktop_icons"`

	// HeadlessOverlay and DesktopOverlay are copied onto the Linux tree.
	HeadlessOverlay string `yaml:"headless_overlay"`
	DesktopOverlay  string `yaml:"desktop_overlay"`

	// InstallScript and Readme are placed at the root of Linux archives.
	InstallScript string `yaml:"install_script"`
	Readme        string `yaml:"readme"`
}

// ToolchainConfig tunes the compilation driver.
type ToolchainConfig struct {
	// Release selects the release profile. Default: true.
	Release *bool `yaml:"release"`

	// Architectures lists the macOS architectures compiled and merged.
	// Default: [x86_64, aarch64].
	Architectures []string `yaml:"architectures"`

	// DeploymentTarget is MACOSX_DEPLOYMENT_TARGET. Default: 10.13.
	DeploymentTarget string `yaml:"deployment_target"`

	// Linker, when set, is passed as -fuse-ld=<linker>.
	Linker string `yaml:"linker"`

	// IdentityPrefix prefixes the build identity variables exported to
	// the compiler (<prefix>HASH, <prefix>VARIANT, ...). Default: BUILD_.
	IdentityPrefix string `yaml:"identity_prefix"`

	// Musl builds Linux binaries for the musl target with cross.
	Musl bool `yaml:"musl"`

	// FallbackDirs are searched for tools missing from PATH.
	FallbackDirs []string `yaml:"fallback_dirs"`

	// Features maps a cargo package to features enabled on every build.
	Features map[string][]string `yaml:"features"`

	// Environment is merged over the computed build environment.
	Environment map[string]string `yaml:"environment"`
}

// TestConfig tunes the test gate.
type TestConfig struct {
	// Lints enables the clippy pass.
	Lints bool `yaml:"lints"`

	// DenyWarnings makes clippy warnings fatal.
	DenyWarnings bool `yaml:"deny_warnings"`

	// Command is an optional end-to-end gate, run after the suite and
	// consumed as pass/fail.
	Command []string `yaml:"command"`
}

// AssetsConfig locates the web asset build.
type AssetsConfig struct {
	// Enabled runs the web asset build. When false, DashboardDist and
	// AutocompleteDist must already exist.
	Enabled bool `yaml:"enabled"`

	// ThemesRepository is cloned into staging.
	ThemesRepository string `yaml:"themes_repository"`

	// DashboardDist and AutocompleteDist are the bundler's outputs.
	DashboardDist    string `yaml:"dashboard_dist"`
	AutocompleteDist string `yaml:"autocomplete_dist"`

	// ExtensionDir is the editor extension package whose package.json
	// version is set for the duration of the build.
	ExtensionDir string `yaml:"extension_dir"`
}

// Point is a screen coordinate.
type Point struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

// Window is the disk image Finder window geometry.
type Window struct {
	X      int `yaml:"x"`
	Y      int `yaml:"y"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// DiskImageConfig is the disk image layout.
type DiskImageConfig struct {
	Format               string `yaml:"format"`
	TextSize             int    `yaml:"text_size"`
	IconSize             int    `yaml:"icon_size"`
	Window               Window `yaml:"window"`
	AppPosition          Point  `yaml:"app_position"`
	ApplicationsPosition Point  `yaml:"applications_position"`
}

// LinuxConfig is the Linux tree and archive layout.
type LinuxConfig struct {
	// IconResolutions are the square icon sizes installed.
	IconResolutions []int `yaml:"icon_resolutions"`

	// ArchiveFormats is any of tar.gz, tar.xz, tar.zst, tar.lz4, zip.
	ArchiveFormats []string `yaml:"archive_formats"`
}

// SigningConfig locates signing credentials on the build host.
type SigningConfig struct {
	// CredentialsDir holds age-sealed credential files named
	// <reference>.age.
	CredentialsDir string `yaml:"credentials_dir"`

	// IdentityFile is the age identity that opens them. Default:
	// the SHIPWRIGHT_IDENTITY environment variable is consulted by the
	// caller.
	IdentityFile string `yaml:"identity_file"`

	// TeamID is the Apple developer team used for notarization.
	TeamID string `yaml:"team_id"`

	// Endpoint is the signing service base URL. The invocation blob's
	// signing.endpoint takes precedence.
	Endpoint string `yaml:"endpoint"`
}

// Default returns a Project with every layout default filled in. Product
// and package names have no defaults.
func Default() *Project {
	release := true
	return &Project{
		Product: ProductConfig{
			PackagedBy:     "shipwright",
			DefaultChannel: "stable",
		},
		Paths: PathsConfig{
			Staging:       "build",
			Target:        "target",
			CargoManifest: "Cargo.toml",
		},
		Toolchain: ToolchainConfig{
			Release:          &release,
			Architectures:    []string{"x86_64", "aarch64"},
			DeploymentTarget: "10.13",
			IdentityPrefix:   "BUILD_",
		},
		DiskImage: DiskImageConfig{
			Format:               "ULFO",
			TextSize:             12,
			IconSize:             160,
			Window:               Window{X: 100, Y: 100, Width: 660, Height: 400},
			AppPosition:          Point{X: 180, Y: 170},
			ApplicationsPosition: Point{X: 480, Y: 170},
		},
		Linux: LinuxConfig{
			IconResolutions: []int{16, 22, 24, 32, 48, 64, 128, 256, 512},
			ArchiveFormats:  []string{"tar.gz", "tar.xz", "tar.zst", "zip"},
		},
	}
}

// Load loads the project file named by SHIPWRIGHT_CONFIG. There is no
// fallback: an unset variable is an error.
func Load() (*Project, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your shipwright.yaml, or use --config", EnvironmentVariable)
	}
	return LoadFile(path)
}

// LoadFile loads a project file over [Default], expands ${VAR} references
// in path fields, and resolves relative paths against Root.
func LoadFile(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	project := Default()
	if err := yaml.Unmarshal(data, project); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if project.Root == "" {
		absolute, err := filepath.Abs(filepath.Dir(path))
		if err != nil {
			return nil, err
		}
		project.Root = absolute
	}
	project.expandVariables()
	return project, nil
}

// Release reports whether the release profile is selected.
func (p *Project) Release() bool {
	return p.Toolchain.Release == nil || *p.Toolchain.Release
}

// Path resolves a configured path against Root. Empty stays empty.
func (p *Project) Path(relative string) string {
	if relative == "" || filepath.IsAbs(relative) {
		return relative
	}
	return filepath.Join(p.Root, relative)
}

func (p *Project) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
		"ROOT": p.Root,
	}
	p.Root = expandVars(p.Root, vars)
	vars["ROOT"] = p.Root

	for _, field := range []*string{
		&p.Paths.Staging,
		&p.Paths.Target,
		&p.Paths.CargoManifest,
		&p.Paths.DesktopDir,
		&p.Paths.HelperInfoPlist,
		&p.Paths.HelperResources,
		&p.Paths.DiskImageResources,
		&p.Paths.DesktopIcons,
		&p.Paths.HeadlessOverlay,
		&p.Paths.DesktopOverlay,
		&p.Paths.InstallScript,
		&p.Paths.Readme,
		&p.Assets.DashboardDist,
		&p.Assets.AutocompleteDist,
		&p.Assets.ExtensionDir,
		&p.Signing.CredentialsDir,
		&p.Signing.IdentityFile,
	} {
		*field = expandVars(*field, vars)
	}
	for index, directory := range p.Toolchain.FallbackDirs {
		p.Toolchain.FallbackDirs[index] = expandVars(directory, vars)
	}
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name := parts[1]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return parts[2]
	})
}
