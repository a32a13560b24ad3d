// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package toolsim

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

// Markers left by the simulated signing service and stapler. Bundles
// get marker files; flat files get a trailer appended.
const (
	signatureFile    = "Contents/_CodeSignature/CodeResources"
	ticketFile       = "Contents/CodeResources"
	signatureTrailer = "\nsimsigned\n"
	ticketTrailer    = "\nsimstapled\n"
)

// Signed reports whether the simulated signing service signed path.
func Signed(path string) bool {
	return hasMarker(path, signatureFile, signatureTrailer)
}

// Stapled reports whether the simulated stapler stapled path.
func Stapled(path string) bool {
	return hasMarker(path, ticketFile, ticketTrailer)
}

// MarkSigned signs path the way the simulated signing service does.
func MarkSigned(path string) error {
	return addMarker(path, signatureFile, signatureTrailer, "signed "+filepath.Base(path)+"\n")
}

func hasMarker(path, file, trailer string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		_, err := os.Stat(filepath.Join(path, filepath.FromSlash(file)))
		return err == nil
	}
	data, err := os.ReadFile(path)
	return err == nil && bytes.Contains(data, []byte(trailer))
}

func addMarker(path, file, trailer, content string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return writeFile(filepath.Join(path, filepath.FromSlash(file)), content, 0o644)
	}
	output, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return err
	}
	if _, err := output.WriteString(trailer); err != nil {
		output.Close()
		return err
	}
	return output.Close()
}

// SigningService simulates the signing service API over a bucket laid
// out on the local filesystem at Root. Packages are signed as soon as
// a request starts; Status reports "inProgress" PendingPolls times
// before the final answer.
type SigningService struct {
	Root string

	// PendingPolls is how many status calls answer inProgress.
	PendingPolls int

	// Throttle is how many initial API calls are answered 429.
	Throttle int

	// Deny makes every request fail.
	Deny bool

	mu          sync.Mutex
	requests    map[string]*simulatedRequest
	created     int
	unavailable map[string]bool

	// Manifests records the manifest type and name of each request.
	Manifests []string

	// Profiles records the signing profile of each request.
	Profiles []string
}

// SetUnavailable makes create requests for the given manifest types
// answer 503 until the next call. No arguments restores the service.
func (s *SigningService) SetUnavailable(types ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = map[string]bool{}
	for _, kind := range types {
		s.unavailable[kind] = true
	}
}

type simulatedRequest struct {
	name    string
	started bool
	polls   int
	err     error
}

// ServeHTTP implements http.Handler.
func (s *SigningService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.requests == nil {
		s.requests = map[string]*simulatedRequest{}
	}
	if s.Throttle > 0 {
		s.Throttle--
		http.Error(w, "slow down", http.StatusTooManyRequests)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/signing_requests")
	switch {
	case r.Method == http.MethodPost && path == "":
		var body struct {
			Manifest struct {
				Type    string `json:"type"`
				Name    string `json:"name"`
				Profile string `json:"profile"`
			} `json:"manifest"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Manifest.Name == "" {
			http.Error(w, "bad manifest", http.StatusBadRequest)
			return
		}
		if s.unavailable[body.Manifest.Type] {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}
		s.created++
		id := fmt.Sprintf("req-%d", s.created)
		s.requests[id] = &simulatedRequest{name: body.Manifest.Name}
		s.Manifests = append(s.Manifests, body.Manifest.Type+":"+body.Manifest.Name)
		s.Profiles = append(s.Profiles, body.Manifest.Profile)
		writeJSON(w, map[string]string{"signingRequestId": id})

	case r.Method == http.MethodPost && strings.HasSuffix(path, "/start"):
		request, ok := s.requests[strings.TrimSuffix(strings.TrimPrefix(path, "/"), "/start")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		var start struct {
			IAMRole    string `json:"iamRole"`
			S3Location struct {
				SourceKey      string `json:"sourceKey"`
				DestinationKey string `json:"destinationKey"`
			} `json:"s3Location"`
		}
		if err := json.NewDecoder(r.Body).Decode(&start); err != nil || !strings.HasPrefix(start.IAMRole, "arn:aws:iam::") {
			http.Error(w, "bad start request", http.StatusBadRequest)
			return
		}
		request.started = true
		if !s.Deny {
			request.err = s.sign(request.name, start.S3Location.SourceKey, start.S3Location.DestinationKey)
		}
		writeJSON(w, map[string]string{})

	case r.Method == http.MethodGet:
		request, ok := s.requests[strings.TrimPrefix(path, "/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		status := "created"
		switch {
		case !request.started:
		case request.polls < s.PendingPolls:
			request.polls++
			status = "inProgress"
		case s.Deny || request.err != nil:
			status = "failure"
		default:
			status = "success"
		}
		writeJSON(w, map[string]any{"signingRequest": map[string]string{"status": status}})

	default:
		http.Error(w, "unsupported", http.StatusMethodNotAllowed)
	}
}

// sign unpacks the package at sourceKey, signs the artifact and writes
// signed.zip to destinationKey.
func (s *SigningService) sign(name, sourceKey, destinationKey string) error {
	work, err := os.MkdirTemp("", "simsign-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(work)

	artifact, err := s.unpack(filepath.Join(s.Root, filepath.FromSlash(sourceKey)), work)
	if err != nil {
		return err
	}
	if filepath.Base(artifact) != name {
		return fmt.Errorf("package holds %s, manifest names %s", filepath.Base(artifact), name)
	}
	if err := MarkSigned(artifact); err != nil {
		return err
	}
	return zipTree(filepath.Join(s.Root, filepath.FromSlash(destinationKey)), artifact, "Payload/"+name)
}

// unpack extracts artifact.gz from a signing package into work and
// returns the artifact's path.
func (s *SigningService) unpack(packagePath, work string) (string, error) {
	file, err := os.Open(packagePath)
	if err != nil {
		return "", err
	}
	defer file.Close()
	outer, err := gzip.NewReader(file)
	if err != nil {
		return "", err
	}
	reader := tar.NewReader(outer)
	var inner []byte
	manifest := false
	for {
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch header.Name {
		case "manifest.yaml":
			manifest = true
		case "artifact.gz":
			if inner, err = io.ReadAll(reader); err != nil {
				return "", err
			}
		}
	}
	if !manifest || inner == nil {
		return "", errors.New("signing package needs manifest.yaml and artifact.gz")
	}
	decompressed, err := gzip.NewReader(bytes.NewReader(inner))
	if err != nil {
		return "", err
	}
	contents, err := io.ReadAll(decompressed)
	if err != nil {
		return "", err
	}
	if err := extract(contents, work); err != nil {
		return "", err
	}
	entries, err := os.ReadDir(work)
	if err != nil {
		return "", err
	}
	if len(entries) != 1 {
		return "", fmt.Errorf("artifact.gz holds %d top-level entries", len(entries))
	}
	return filepath.Join(work, entries[0].Name()), nil
}

// zipTree writes source into a zip at output under prefix.
func zipTree(output, source, prefix string) (err error) {
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return err
	}
	file, err := os.Create(output)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, file.Close())
	}()
	writer := zip.NewWriter(file)
	walkErr := filepath.WalkDir(source, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		relative, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		name := prefix
		if relative != "." {
			name += "/" + filepath.ToSlash(relative)
		}
		if entry.IsDir() {
			_, err := writer.Create(name + "/")
			return err
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = name
		header.Method = zip.Deflate
		content, err := writer.CreateHeader(header)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		_, err = content.Write(data)
		return err
	})
	if walkErr != nil {
		return walkErr
	}
	return writer.Close()
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(value)
}
