// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signing

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/shipwright/lib/archive"
	"github.com/bureau-foundation/shipwright/lib/schema/release"
)

// Names inside the signing package.
const (
	ManifestName = "manifest.yaml"
	ArtifactName = "artifact.gz"
	PayloadDir   = "Payload"
)

// Manifest tells the signing service what it is signing. It is sent
// with the create request and packaged as manifest.yaml.
type Manifest struct {
	Type    string           `json:"type" yaml:"type"`
	OS      string           `json:"os" yaml:"os"`
	Name    string           `json:"name" yaml:"name"`
	Profile string           `json:"profile" yaml:"profile"`
	Outputs []ManifestOutput `json:"outputs" yaml:"outputs"`
	App     ManifestApp      `json:"app" yaml:"app"`
}

// Signing profiles named in [Manifest].Profile.
const (
	ProfileProduction    = "production"
	ProfileNonProduction = "non-production"
)

// ProfileFor returns the signing profile scope asks for.
func ProfileFor(scope release.SigningScope) string {
	if scope.Production {
		return ProfileProduction
	}
	return ProfileNonProduction
}

// ManifestOutput is one signed output of a request.
type ManifestOutput struct {
	Label string `json:"label" yaml:"label"`
	Path  string `json:"path" yaml:"path"`
}

// ManifestApp identifies the application and its certificate.
type ManifestApp struct {
	Identifier          string              `json:"identifier" yaml:"identifier"`
	SigningRequirements SigningRequirements `json:"signing_requirements" yaml:"signing_requirements"`
}

// SigningRequirements selects the certificate.
type SigningRequirements struct {
	CertificateType string `json:"certificate_type" yaml:"certificate_type"`
	AppIDPrefix     string `json:"app_id_prefix" yaml:"app_id_prefix"`
}

// manifestType maps artifact kinds to the service's request types.
var manifestType = map[release.ArtifactKind]string{
	release.KindApp:          "app",
	release.KindDiskImage:    "dmg",
	release.KindHelperBundle: "ime",
}

// NewManifest describes the artifact named name.
func NewManifest(kind release.ArtifactKind, name, identifier, teamID string) (Manifest, error) {
	requestType, ok := manifestType[kind]
	if !ok {
		return Manifest{}, fmt.Errorf("artifact kind %s cannot be signed by the service", kind)
	}
	return Manifest{
		Type:    requestType,
		OS:      "osx",
		Name:    name,
		Outputs: []ManifestOutput{{Label: "macos", Path: name}},
		App: ManifestApp{
			Identifier: identifier,
			SigningRequirements: SigningRequirements{
				CertificateType: "developerIDAppDistribution",
				AppIDPrefix:     teamID,
			},
		},
	}, nil
}

// BuildPackage writes the signing package for artifact to output: a
// gzipped tar holding manifest.yaml and artifact.gz, itself a gzipped
// tar of the artifact under its base name.
func BuildPackage(artifact string, manifest Manifest, output string) (err error) {
	manifestData, err := yaml.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("encoding signing manifest: %w", err)
	}

	inner, err := os.CreateTemp(filepath.Dir(output), ".artifact-*.gz")
	if err != nil {
		return err
	}
	defer func() {
		inner.Close()
		err = errors.Join(err, removeIfExists(inner.Name()))
	}()
	compressor := gzip.NewWriter(inner)
	if err := archive.WriteTar(compressor, artifact, filepath.Base(artifact), time.Unix(0, 0)); err != nil {
		return fmt.Errorf("packaging %s: %w", artifact, err)
	}
	if err := compressor.Close(); err != nil {
		return err
	}
	innerInfo, err := inner.Stat()
	if err != nil {
		return err
	}
	if _, err := inner.Seek(0, io.SeekStart); err != nil {
		return err
	}

	file, err := os.Create(output)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, file.Close())
	}()
	outer := gzip.NewWriter(file)
	writer := tar.NewWriter(outer)
	entries := []struct {
		name string
		size int64
		body io.Reader
	}{
		{ManifestName, int64(len(manifestData)), strings.NewReader(string(manifestData))},
		{ArtifactName, innerInfo.Size(), inner},
	}
	for _, entry := range entries {
		header := &tar.Header{
			Name:    entry.name,
			Mode:    0o644,
			Size:    entry.size,
			ModTime: time.Unix(0, 0),
		}
		if err := writer.WriteHeader(header); err != nil {
			return err
		}
		if _, err := io.Copy(writer, entry.body); err != nil {
			return err
		}
	}
	if err := writer.Close(); err != nil {
		return err
	}
	return outer.Close()
}

// ExtractPayload replaces destination with the single entry under
// Payload/ in the signed zip.
func ExtractPayload(zipPath, destination string) error {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("opening signed package: %w", err)
	}
	defer reader.Close()

	children := map[string]bool{}
	for _, file := range reader.File {
		rest, found := strings.CutPrefix(file.Name, PayloadDir+"/")
		if !found || rest == "" {
			continue
		}
		child, _, _ := strings.Cut(rest, "/")
		children[child] = true
	}
	if len(children) != 1 {
		return fmt.Errorf("signed package has %d entries under %s/, want exactly 1", len(children), PayloadDir)
	}
	var child string
	for name := range children {
		child = name
	}

	staging := destination + ".signed"
	if err := os.RemoveAll(staging); err != nil {
		return err
	}
	prefix := PayloadDir + "/" + child
	for _, file := range reader.File {
		if file.Name != prefix && !strings.HasPrefix(file.Name, prefix+"/") {
			continue
		}
		relative := strings.TrimPrefix(strings.TrimPrefix(file.Name, prefix), "/")
		if relative != "" && !filepath.IsLocal(filepath.FromSlash(path.Clean(relative))) {
			os.RemoveAll(staging)
			return fmt.Errorf("signed package entry %q escapes the payload", file.Name)
		}
		if err := extractEntry(file, filepath.Join(staging, filepath.FromSlash(relative))); err != nil {
			os.RemoveAll(staging)
			return fmt.Errorf("extracting %s: %w", file.Name, err)
		}
	}

	if err := os.RemoveAll(destination); err != nil {
		return err
	}
	return os.Rename(staging, destination)
}

func extractEntry(file *zip.File, target string) error {
	mode := file.Mode()
	if mode.IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	content, err := file.Open()
	if err != nil {
		return err
	}
	defer content.Close()

	if mode&fs.ModeSymlink != 0 {
		link, err := io.ReadAll(io.LimitReader(content, 4096))
		if err != nil {
			return err
		}
		return os.Symlink(string(link), target)
	}
	output, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm()|0o200)
	if err != nil {
		return err
	}
	if _, err := io.Copy(output, content); err != nil {
		output.Close()
		return err
	}
	return output.Close()
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
