// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package toolsim

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bureau-foundation/shipwright/lib/fsutil"
	"github.com/bureau-foundation/shipwright/lib/toolexec"
)

// A simulated disk image is a header line followed by a tar stream of
// the volume contents:
//
//	simdmg format=<format> volume=<volume>
//	<tar>
const imageMagic = "simdmg"

// Image is the decoded content of a simulated disk image.
type Image struct {
	Format string
	Volume string

	// Files maps volume-relative paths of regular files to their
	// content and of symlinks to "-> <target>".
	Files map[string]string
}

// ReadImage decodes a simulated disk image.
func ReadImage(path string) (Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return Image{}, err
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	format, volume, err := readImageHeader(reader)
	if err != nil {
		return Image{}, err
	}
	image := Image{Format: format, Volume: volume, Files: map[string]string{}}
	archive := tar.NewReader(reader)
	for {
		header, err := archive.Next()
		if errors.Is(err, io.EOF) {
			return image, nil
		}
		if err != nil {
			return Image{}, err
		}
		switch header.Typeflag {
		case tar.TypeReg:
			data, err := io.ReadAll(archive)
			if err != nil {
				return Image{}, err
			}
			image.Files[header.Name] = string(data)
		case tar.TypeSymlink:
			image.Files[header.Name] = "-> " + header.Linkname
		}
	}
}

// DiskImages simulates dmgbuild, hdiutil and cp on simulated images.
// Attached images are tracked by mount point.
type DiskImages struct {
	mu     sync.Mutex
	mounts map[string]string
}

// NewDiskImages returns a simulator with nothing attached.
func NewDiskImages() *DiskImages {
	return &DiskImages{mounts: map[string]string{}}
}

// Dmgbuild simulates dmgbuild -s <settings.json> <volume> <image>.
func (d *DiskImages) Dmgbuild() toolexec.Handler {
	return func(ctx context.Context, command toolexec.Command) (toolexec.Result, error) {
		data, err := os.ReadFile(flagValue(command.Args, "-s"))
		if err != nil {
			return toolexec.Result{}, toolexec.Fail(command, 1, "cannot read settings: "+err.Error())
		}
		var settings struct {
			Format   string `json:"format"`
			Contents []struct {
				Type string `json:"type"`
				Path string `json:"path"`
				Name string `json:"name"`
			} `json:"contents"`
		}
		if err := json.Unmarshal(data, &settings); err != nil {
			return toolexec.Result{}, toolexec.Fail(command, 1, "bad settings: "+err.Error())
		}
		arguments := positional(command.Args, "-s")
		if len(arguments) != 2 {
			return toolexec.Result{}, toolexec.Fail(command, 2, "usage: dmgbuild -s settings volume image")
		}
		volume, output := arguments[0], arguments[1]
		if fsutil.Exists(output) {
			return toolexec.Result{}, toolexec.Fail(command, 1, "image already exists: "+output)
		}

		var buffer bytes.Buffer
		writer := tar.NewWriter(&buffer)
		for _, entry := range settings.Contents {
			switch entry.Type {
			case "file":
				if err := addTree(writer, entry.Path, filepath.Base(entry.Path)); err != nil {
					return toolexec.Result{}, toolexec.Fail(command, 1, err.Error())
				}
			case "link":
				name := entry.Name
				if name == "" {
					name = filepath.Base(entry.Path)
				}
				header := &tar.Header{Typeflag: tar.TypeSymlink, Name: name, Linkname: entry.Path, Mode: 0o777, ModTime: time.Unix(0, 0)}
				if err := writer.WriteHeader(header); err != nil {
					return toolexec.Result{}, err
				}
			}
		}
		if err := writer.Close(); err != nil {
			return toolexec.Result{}, err
		}
		return toolexec.Result{}, writeImage(output, settings.Format, volume, buffer.Bytes())
	}
}

// Hdiutil simulates hdiutil convert, attach and detach. Convert fails
// when the output exists, like the real tool. Detaching a writable
// (UDRW) image writes the mount point's contents back to it.
func (d *DiskImages) Hdiutil() toolexec.Handler {
	return func(ctx context.Context, command toolexec.Command) (toolexec.Result, error) {
		if len(command.Args) < 2 {
			return toolexec.Result{}, toolexec.Fail(command, 2, "usage")
		}
		switch command.Args[0] {
		case "convert":
			return toolexec.Result{}, d.convert(command)
		case "attach":
			return toolexec.Result{}, d.attach(command)
		case "detach":
			return toolexec.Result{}, d.detach(command)
		}
		return toolexec.Result{}, toolexec.Fail(command, 2, "unsupported verb "+command.Args[0])
	}
}

// Cp simulates cp -R <source> <directory>.
func (d *DiskImages) Cp() toolexec.Handler {
	return func(ctx context.Context, command toolexec.Command) (toolexec.Result, error) {
		arguments := positional(command.Args)
		if len(arguments) != 2 {
			return toolexec.Result{}, toolexec.Fail(command, 64, "usage: cp -R source directory")
		}
		source, directory := arguments[0], arguments[1]
		if !fsutil.IsDir(directory) {
			return toolexec.Result{}, toolexec.Fail(command, 1, directory+": No such file or directory")
		}
		return toolexec.Result{}, fsutil.CopyTree(source, filepath.Join(directory, filepath.Base(source)))
	}
}

func (d *DiskImages) convert(command toolexec.Command) error {
	source := command.Args[1]
	output := flagValue(command.Args, "-o")
	format := flagValue(command.Args, "-format")
	if fsutil.Exists(output) {
		return toolexec.Fail(command, 1, "hdiutil: convert failed - File exists")
	}
	_, volume, contents, err := loadImage(source)
	if err != nil {
		return toolexec.Fail(command, 1, "hdiutil: convert failed - "+err.Error())
	}
	return writeImage(output, format, volume, contents)
}

func (d *DiskImages) attach(command toolexec.Command) error {
	image := command.Args[1]
	mount := flagValue(command.Args, "-mountpoint")
	_, _, contents, err := loadImage(image)
	if err != nil {
		return toolexec.Fail(command, 1, "hdiutil: attach failed - "+err.Error())
	}
	if fsutil.Exists(mount) {
		return toolexec.Fail(command, 1, "hdiutil: attach failed - mount point in use")
	}
	if err := extract(contents, mount); err != nil {
		return err
	}
	d.mu.Lock()
	d.mounts[mount] = image
	d.mu.Unlock()
	return nil
}

func (d *DiskImages) detach(command toolexec.Command) error {
	mount := command.Args[1]
	if !fsutil.IsDir(mount) {
		return toolexec.Fail(command, 1, "hdiutil: detach failed - No such file or directory")
	}
	d.mu.Lock()
	image, attached := d.mounts[mount]
	delete(d.mounts, mount)
	d.mu.Unlock()

	if attached {
		format, volume, _, err := loadImage(image)
		if err != nil {
			return err
		}
		if format == "UDRW" {
			var buffer bytes.Buffer
			writer := tar.NewWriter(&buffer)
			entries, err := os.ReadDir(mount)
			if err != nil {
				return err
			}
			for _, entry := range entries {
				if err := addTree(writer, filepath.Join(mount, entry.Name()), entry.Name()); err != nil {
					return err
				}
			}
			if err := writer.Close(); err != nil {
				return err
			}
			if err := os.Remove(image); err != nil {
				return err
			}
			if err := writeImage(image, format, volume, buffer.Bytes()); err != nil {
				return err
			}
		}
	}
	return os.RemoveAll(mount)
}

func writeImage(path, format, volume string, contents []byte) error {
	header := fmt.Sprintf("%s format=%s volume=%s\n", imageMagic, format, volume)
	return writeFile(path, header+string(contents), 0o644)
}

func loadImage(path string) (format, volume string, contents []byte, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", nil, err
	}
	reader := bufio.NewReader(bytes.NewReader(data))
	format, volume, err = readImageHeader(reader)
	if err != nil {
		return "", "", nil, err
	}
	contents, err = io.ReadAll(reader)
	return format, volume, contents, err
}

func readImageHeader(reader *bufio.Reader) (format, volume string, err error) {
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", "", fmt.Errorf("not a disk image: %w", err)
	}
	line = strings.TrimSuffix(line, "\n")
	if !strings.HasPrefix(line, imageMagic+" ") {
		return "", "", errors.New("not a disk image")
	}
	format = field(line, "format")
	_, volume, _ = strings.Cut(line, " volume=")
	return format, volume, nil
}

// addTree appends source to the archive under name. Times and
// ownership are fixed so identical trees produce identical bytes.
func addTree(writer *tar.Writer, source, name string) error {
	return filepath.WalkDir(source, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		relative, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		info, err := os.Lstat(path)
		if err != nil {
			return err
		}
		var link string
		if info.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}
		header, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(filepath.Join(name, relative))
		if info.IsDir() {
			header.Name += "/"
		}
		header.ModTime = time.Unix(0, 0)
		header.Uid, header.Gid, header.Uname, header.Gname = 0, 0, "", ""
		if err := writer.WriteHeader(header); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = io.Copy(writer, file)
		return err
	})
}

func extract(contents []byte, destination string) error {
	if err := os.MkdirAll(destination, 0o755); err != nil {
		return err
	}
	archive := tar.NewReader(bytes.NewReader(contents))
	for {
		header, err := archive.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		target := filepath.Join(destination, filepath.FromSlash(header.Name))
		if !strings.HasPrefix(target, filepath.Clean(destination)+string(filepath.Separator)) {
			return fmt.Errorf("entry %q escapes the volume", header.Name)
		}
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			data, err := io.ReadAll(archive)
			if err != nil {
				return err
			}
			if err := writeFile(target, string(data), fs.FileMode(header.Mode).Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return err
			}
		}
	}
}
