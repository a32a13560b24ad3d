// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package diskimage

import (
	"encoding/json"
	"fmt"
	"maps"
	"path/filepath"
	"slices"

	"github.com/bureau-foundation/shipwright/lib/config"
	"github.com/bureau-foundation/shipwright/lib/schema/release"
)

// NewSpec lays out an image holding app and a link to /Applications,
// using the configured geometry. resources, when set, supplies
// background.png and VolumeIcon.icns.
func NewSpec(layout config.DiskImageConfig, volume, path, resources string, app release.AppBundle) release.DiskImageSpec {
	spec := release.DiskImageSpec{
		Path:       path,
		VolumeName: volume,
		Format:     layout.Format,
		TextSize:   layout.TextSize,
		IconSize:   layout.IconSize,
		Window: release.Rect{
			X:      layout.Window.X,
			Y:      layout.Window.Y,
			Width:  layout.Window.Width,
			Height: layout.Window.Height,
		},
		Files:    []string{app.Path},
		Symlinks: map[string]string{"Applications": "/Applications"},
		IconLocations: map[string]release.Point{
			filepath.Base(app.Path): {X: layout.AppPosition.X, Y: layout.AppPosition.Y},
			"Applications":          {X: layout.ApplicationsPosition.X, Y: layout.ApplicationsPosition.Y},
		},
	}
	if resources != "" {
		spec.Background = filepath.Join(resources, "background.png")
		spec.Icon = filepath.Join(resources, "VolumeIcon.icns")
	}
	return spec
}

type settingsPosition struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type settingsSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type settingsWindow struct {
	Position settingsPosition `json:"position"`
	Size     settingsSize     `json:"size"`
}

type settingsEntry struct {
	X    int    `json:"x"`
	Y    int    `json:"y"`
	Type string `json:"type"`
	Path string `json:"path"`
	Name string `json:"name,omitempty"`
}

type settingsFile struct {
	Title      string          `json:"title"`
	Format     string          `json:"format"`
	Background string          `json:"background,omitempty"`
	Icon       string          `json:"icon,omitempty"`
	IconSize   int             `json:"icon-size"`
	TextSize   int             `json:"text-size"`
	Window     settingsWindow  `json:"window"`
	Contents   []settingsEntry `json:"contents"`
}

// renderSettings encodes spec in the image tool's JSON settings
// format. Every file and link needs an icon location.
func renderSettings(spec release.DiskImageSpec) ([]byte, error) {
	settings := settingsFile{
		Title:      spec.VolumeName,
		Format:     spec.Format,
		Background: spec.Background,
		Icon:       spec.Icon,
		IconSize:   spec.IconSize,
		TextSize:   spec.TextSize,
		Window: settingsWindow{
			Position: settingsPosition{X: spec.Window.X, Y: spec.Window.Y},
			Size:     settingsSize{Width: spec.Window.Width, Height: spec.Window.Height},
		},
	}

	for _, file := range spec.Files {
		name := filepath.Base(file)
		location, ok := spec.IconLocations[name]
		if !ok {
			return nil, fmt.Errorf("disk image entry %q has no icon location", name)
		}
		settings.Contents = append(settings.Contents, settingsEntry{
			X: location.X, Y: location.Y, Type: "file", Path: file,
		})
	}
	for _, name := range slices.Sorted(maps.Keys(spec.Symlinks)) {
		location, ok := spec.IconLocations[name]
		if !ok {
			return nil, fmt.Errorf("disk image link %q has no icon location", name)
		}
		settings.Contents = append(settings.Contents, settingsEntry{
			X: location.X, Y: location.Y, Type: "link", Path: spec.Symlinks[name], Name: name,
		})
	}
	return json.MarshalIndent(settings, "", "  ")
}
