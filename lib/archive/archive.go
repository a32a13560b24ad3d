// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive packages the Linux binaries into distributable
// archives. Every archive holds one top-level directory:
//
//	<name>/install.sh
//	<name>/README
//	<name>/BUILD-INFO
//	<name>/bin/<binaries>
//
// Entries are written in lexical order with fixed ownership and the
// build time as modification time, so identical inputs produce
// identical archives. The layout directory is removed once every
// format is written, success or failure.
package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/bureau-foundation/shipwright/lib/fsutil"
	"github.com/bureau-foundation/shipwright/lib/schema/release"
	"github.com/bureau-foundation/shipwright/lib/version"
)

// BuildInfoFile is the build identity record at the archive root.
const BuildInfoFile = "BUILD-INFO"

// Spec describes one set of archives.
type Spec struct {
	// Name is the archive's top-level directory and file base name.
	Name string

	// WorkDir receives the layout directory while archiving.
	WorkDir string

	// OutputDir receives <Name>.<format> for every format.
	OutputDir string

	Binaries      []release.Binary
	InstallScript string
	Readme        string
	Build         version.BuildInfo
	Formats       []Format
}

// Packager writes archives.
type Packager struct {
	Logger *slog.Logger
}

// Package lays out spec and writes one archive per format.
func (p *Packager) Package(ctx context.Context, spec Spec) (archives []release.Archive, err error) {
	if spec.Name == "" || len(spec.Formats) == 0 {
		return nil, errors.New("archive spec needs a name and at least one format")
	}
	layout := filepath.Join(spec.WorkDir, spec.Name)
	defer func() {
		if removeErr := os.RemoveAll(layout); removeErr != nil {
			err = errors.Join(err, fmt.Errorf("removing archive layout: %w", removeErr))
		}
	}()
	if err := writeLayout(layout, spec); err != nil {
		return nil, err
	}

	expected, err := layoutEntries(layout, spec.Name)
	if err != nil {
		return nil, err
	}
	modified := spec.Build.Time
	if modified.IsZero() {
		modified = time.Unix(0, 0)
	}

	for _, format := range spec.Formats {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(spec.OutputDir, format.FileName(spec.Name))
		p.Logger.Info("writing archive", "path", path, "format", format)
		if err := write(path, format, layout, spec.Name, modified); err != nil {
			return nil, fmt.Errorf("writing %s: %w", path, err)
		}
		listed, err := List(path, format)
		if err != nil {
			return nil, fmt.Errorf("reading back %s: %w", path, err)
		}
		if !slices.Equal(listed, expected) {
			return nil, fmt.Errorf("%s lists %d entries, want %d", path, len(listed), len(expected))
		}
		archives = append(archives, release.Archive{Path: path, Format: string(format)})
	}
	return archives, nil
}

// BuildInfo renders the BUILD-INFO record.
func BuildInfo(build version.BuildInfo) string {
	return strings.Join([]string{
		"BUILD_DATE=" + build.DateTime(),
		"BUILD_HASH=" + build.Hash,
		"BUILD_TARGET_TRIPLE=" + string(build.Triple),
		"BUILD_VERSION=" + build.Version,
	}, "\n") + "\n"
}

func writeLayout(layout string, spec Spec) error {
	if err := fsutil.ResetDir(layout); err != nil {
		return err
	}
	for _, file := range []struct{ source, name string }{
		{spec.InstallScript, "install.sh"},
		{spec.Readme, "README"},
	} {
		if err := fsutil.CopyFile(file.source, filepath.Join(layout, file.name)); err != nil {
			return fmt.Errorf("archive %s: %w", file.name, err)
		}
	}
	if err := os.WriteFile(filepath.Join(layout, BuildInfoFile), []byte(BuildInfo(spec.Build)), 0o644); err != nil {
		return err
	}
	for _, binary := range spec.Binaries {
		if err := fsutil.CopyFile(binary.Path, filepath.Join(layout, "bin", binary.Name)); err != nil {
			return fmt.Errorf("archive binary %s: %w", binary.Name, err)
		}
	}
	return nil
}

// entry is one file or directory of the layout.
type entry struct {
	path string
	name string
	info fs.FileInfo
}

func walkLayout(layout, name string, visit func(entry) error) error {
	return filepath.WalkDir(layout, func(path string, dirEntry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		relative, err := filepath.Rel(layout, path)
		if err != nil {
			return err
		}
		info, err := dirEntry.Info()
		if err != nil {
			return err
		}
		entryName := filepath.ToSlash(filepath.Join(name, relative))
		if info.IsDir() {
			entryName += "/"
		}
		return visit(entry{path: path, name: entryName, info: info})
	})
}

func layoutEntries(layout, name string) ([]string, error) {
	var names []string
	err := walkLayout(layout, name, func(e entry) error {
		names = append(names, e.name)
		return nil
	})
	return names, err
}

func write(path string, format Format, layout, name string, modified time.Time) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, file.Close())
		if err != nil {
			os.Remove(path)
		}
	}()

	if format == FormatZip {
		return writeZip(file, layout, name, modified)
	}
	compressor, err := format.compressor(file)
	if err != nil {
		return err
	}
	if err := WriteTar(compressor, layout, name, modified); err != nil {
		compressor.Close()
		return err
	}
	return compressor.Close()
}

// WriteTar writes the tree at layout to w as an uncompressed tar
// stream with every entry under name/. Entries are in lexical order,
// owned by root and stamped with modified.
func WriteTar(w io.Writer, layout, name string, modified time.Time) error {
	writer := tar.NewWriter(w)
	err := walkLayout(layout, name, func(e entry) error {
		var link string
		if e.info.Mode()&fs.ModeSymlink != 0 {
			target, err := os.Readlink(e.path)
			if err != nil {
				return err
			}
			link = target
		}
		header, err := tar.FileInfoHeader(e.info, link)
		if err != nil {
			return err
		}
		header.Name = e.name
		header.ModTime = modified
		header.Uid, header.Gid, header.Uname, header.Gname = 0, 0, "root", "root"
		if err := writer.WriteHeader(header); err != nil {
			return err
		}
		return copyContent(writer, e)
	})
	if err != nil {
		return err
	}
	return writer.Close()
}

func writeZip(w io.Writer, layout, name string, modified time.Time) error {
	writer := zip.NewWriter(w)
	err := walkLayout(layout, name, func(e entry) error {
		header, err := zip.FileInfoHeader(e.info)
		if err != nil {
			return err
		}
		header.Name = e.name
		header.Modified = modified
		if !e.info.IsDir() {
			header.Method = zip.Deflate
		}
		content, err := writer.CreateHeader(header)
		if err != nil {
			return err
		}
		return copyContent(content, e)
	})
	if err != nil {
		return err
	}
	return writer.Close()
}

func copyContent(w io.Writer, e entry) error {
	if !e.info.Mode().IsRegular() {
		return nil
	}
	source, err := os.Open(e.path)
	if err != nil {
		return err
	}
	defer source.Close()
	_, err = io.Copy(w, source)
	return err
}

// List returns the entry names of an archive in stored order.
// Directory names end in "/".
func List(path string, format Format) ([]string, error) {
	if format == FormatZip {
		reader, err := zip.OpenReader(path)
		if err != nil {
			return nil, err
		}
		defer reader.Close()
		names := make([]string, 0, len(reader.File))
		for _, file := range reader.File {
			names = append(names, file.Name)
		}
		return names, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	decompressed, err := format.decompressor(file)
	if err != nil {
		return nil, err
	}
	if closer, ok := decompressed.(io.Closer); ok {
		defer closer.Close()
	}
	reader := tar.NewReader(decompressed)
	var names []string
	for {
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return names, nil
		}
		if err != nil {
			return nil, err
		}
		names = append(names, header.Name)
	}
}
