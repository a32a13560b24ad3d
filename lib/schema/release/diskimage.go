// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package release

// Point is a position in the disk image window.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Rect is the disk image window frame.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DiskImageSpec is the declarative content list of a disk image. It is
// rendered once into the image tool's settings file and not persisted.
type DiskImageSpec struct {
	// Path is the image file produced.
	Path string `json:"path"`

	VolumeName string `json:"volume_name"`
	Format     string `json:"format"`
	Background string `json:"background,omitempty"`
	Icon       string `json:"icon,omitempty"`
	TextSize   int    `json:"text_size"`
	IconSize   int    `json:"icon_size"`
	Window     Rect   `json:"window"`

	// Files are copied into the volume root under their base names.
	Files []string `json:"files"`

	// Symlinks maps a link name in the volume root to its target.
	Symlinks map[string]string `json:"symlinks"`

	// IconLocations maps every file and link name to its position.
	IconLocations map[string]Point `json:"icon_locations"`
}
