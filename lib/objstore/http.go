// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package objstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/bureau-foundation/shipwright/lib/netutil"
)

// HTTPStore addresses objects as <Base>/<key>.
type HTTPStore struct {
	Base   *url.URL
	Client *http.Client
}

func (s *HTTPStore) objectURL(key string) string {
	joined := *s.Base
	joined.Path = strings.TrimSuffix(s.Base.Path, "/") + "/" + strings.TrimPrefix(key, "/")
	return joined.String()
}

// Put uploads source with a single PUT.
func (s *HTTPStore) Put(ctx context.Context, key, source string) error {
	file, err := os.Open(source)
	if err != nil {
		return err
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPut, s.objectURL(key), file)
	if err != nil {
		return err
	}
	request.ContentLength = info.Size()
	request.Header.Set("Content-Type", "application/octet-stream")
	_, err = s.do(request)
	return err
}

// Get downloads the object, writing destination only once the body has
// been received in full.
func (s *HTTPStore) Get(ctx context.Context, key, destination string) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, s.objectURL(key), nil)
	if err != nil {
		return err
	}
	response, err := s.Client.Do(request)
	if err != nil {
		return fmt.Errorf("GET %s: %w", key, err)
	}
	defer response.Body.Close()
	if response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, s.URL(key))
	}
	if response.StatusCode/100 != 2 {
		return statusError(request, response)
	}

	temporary := destination + ".partial"
	file, err := os.Create(temporary)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, response.Body); err != nil {
		file.Close()
		os.Remove(temporary)
		return fmt.Errorf("GET %s: %w", key, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporary)
		return err
	}
	return os.Rename(temporary, destination)
}

// Exists issues a HEAD request.
func (s *HTTPStore) Exists(ctx context.Context, key string) (bool, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodHead, s.objectURL(key), nil)
	if err != nil {
		return false, err
	}
	response, err := s.Client.Do(request)
	if err != nil {
		return false, fmt.Errorf("HEAD %s: %w", key, err)
	}
	response.Body.Close()
	switch {
	case response.StatusCode == http.StatusNotFound:
		return false, nil
	case response.StatusCode/100 == 2:
		return true, nil
	default:
		return false, statusError(request, response)
	}
}

// DeletePrefix issues DELETE <Base>/<prefix>/. A missing prefix is not
// an error.
func (s *HTTPStore) DeletePrefix(ctx context.Context, prefix string) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.objectURL(strings.TrimSuffix(prefix, "/")+"/"), nil)
	if err != nil {
		return err
	}
	response, err := s.Client.Do(request)
	if err != nil {
		return fmt.Errorf("DELETE %s: %w", prefix, err)
	}
	response.Body.Close()
	if response.StatusCode == http.StatusNotFound || response.StatusCode/100 == 2 {
		return nil
	}
	return statusError(request, response)
}

// URL returns the object URL of key.
func (s *HTTPStore) URL(key string) string {
	return s.objectURL(key)
}

func (s *HTTPStore) do(request *http.Request) (*http.Response, error) {
	response, err := s.Client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", request.Method, request.URL.Path, err)
	}
	defer response.Body.Close()
	if response.StatusCode/100 != 2 {
		return nil, statusError(request, response)
	}
	io.Copy(io.Discard, response.Body)
	return response, nil
}

func statusError(request *http.Request, response *http.Response) error {
	return fmt.Errorf("%s %s: HTTP %d: %s", request.Method, request.URL.Path, response.StatusCode, netutil.ErrorBody(response.Body))
}
