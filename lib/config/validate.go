// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"slices"

	"github.com/bureau-foundation/shipwright/lib/schema/release"
)

// ArchiveFormats lists the Linux archive formats the archive stage can
// produce.
var ArchiveFormats = []string{"tar.gz", "tar.xz", "tar.zst", "tar.lz4", "zip"}

// Validate checks the project for missing or malformed fields relevant
// to platform. Returns a list of human-readable issues; an empty list
// means the project is usable.
func (p *Project) Validate(platform release.Platform) []string {
	var issues []string
	require := func(value, field string) {
		if value == "" {
			issues = append(issues, field+" is required")
		}
	}

	require(p.Root, "root")
	require(p.Paths.Staging, "paths.staging")
	require(p.Paths.Target, "paths.target")
	require(p.Paths.CargoManifest, "paths.cargo_manifest")
	require(p.Packages.CLI.Package, "packages.cli.package")
	require(p.Packages.CLI.Binary, "packages.cli.binary")
	require(p.Packages.Shim.Package, "packages.shim.package")
	require(p.Packages.Shim.Binary, "packages.shim.binary")
	require(p.Packages.Desktop.Package, "packages.desktop.package")
	require(p.Packages.Desktop.Binary, "packages.desktop.binary")

	for index, name := range p.Toolchain.Architectures {
		if _, err := release.ParseArch(name); err != nil {
			issues = append(issues, fmt.Sprintf("toolchain.architectures[%d]: %v", index, err))
		}
	}

	switch platform {
	case release.PlatformMacOS:
		require(p.Product.AppName, "product.app_name")
		require(p.Product.DiskImageName, "product.disk_image_name")
		require(p.Product.BundleIdentifier, "product.bundle_identifier")
		require(p.Product.URLScheme, "product.url_scheme")
		require(p.Packages.Helper.Package, "packages.helper.package")
		require(p.Packages.Helper.Binary, "packages.helper.binary")
		require(p.Paths.DesktopDir, "paths.desktop_dir")
		require(p.Paths.PackagerBundle, "paths.packager_bundle")
		require(p.Paths.HelperBundle, "paths.helper_bundle")
		require(p.Paths.HelperInfoPlist, "paths.helper_info_plist")
		require(p.Paths.HelperResources, "paths.helper_resources")
		require(p.Paths.DiskImageResources, "paths.disk_image_resources")
		require(p.Assets.DashboardDist, "assets.dashboard_dist")
		require(p.Assets.AutocompleteDist, "assets.autocomplete_dist")
		if len(p.Toolchain.Architectures) == 0 {
			issues = append(issues, "toolchain.architectures must name at least one architecture")
		}
		if p.DiskImage.IconSize <= 0 || p.DiskImage.TextSize <= 0 {
			issues = append(issues, "disk_image.icon_size and disk_image.text_size must be positive")
		}
		if p.DiskImage.Window.Width <= 0 || p.DiskImage.Window.Height <= 0 {
			issues = append(issues, "disk_image.window must have positive width and height")
		}
	case release.PlatformLinux:
		require(p.Product.ArchiveName, "product.archive_name")
		require(p.Product.IconName, "product.icon_name")
		require(p.Paths.HeadlessOverlay, "paths.headless_overlay")
		for index, resolution := range p.Linux.IconResolutions {
			if resolution <= 0 {
				issues = append(issues, fmt.Sprintf("linux.icon_resolutions[%d]: %d is not a positive size", index, resolution))
			}
		}
		for index, format := range p.Linux.ArchiveFormats {
			if !slices.Contains(ArchiveFormats, format) {
				issues = append(issues, fmt.Sprintf("linux.archive_formats[%d]: unknown format %q (want one of %v)", index, format, ArchiveFormats))
			}
		}
	default:
		issues = append(issues, fmt.Sprintf("unsupported platform %q", platform))
	}

	if p.Assets.Enabled {
		require(p.Assets.ThemesRepository, "assets.themes_repository")
	}

	return issues
}
