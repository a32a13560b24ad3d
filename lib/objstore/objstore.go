// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package objstore uploads and downloads whole files to object storage
// locations:
//
//   - file:///dir stores objects as files under dir
//   - http(s)://host/prefix issues PUT, GET, HEAD and DELETE against
//     pre-signed-style endpoints
//   - s3://bucket/prefix drives the aws CLI
//
// A bare bucket name is shorthand for s3://bucket. Every upload is
// all-or-nothing per object; resumption is left to the transport.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/bureau-foundation/shipwright/lib/toolexec"
)

// ErrNotFound is returned by Get when the object does not exist.
var ErrNotFound = errors.New("object not found")

// Store is one object storage location. Keys are slash-separated and
// relative to the location.
type Store interface {
	// Put uploads the local file at source to key.
	Put(ctx context.Context, key, source string) error

	// Get downloads key to the local file destination.
	Get(ctx context.Context, key, destination string) error

	// Exists reports whether key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// DeletePrefix removes every object under prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// URL names key for logs and results.
	URL(key string) string
}

// Options carries what the store implementations need.
type Options struct {
	// Runner runs the aws CLI for s3 locations.
	Runner toolexec.Runner

	// Client issues HTTP requests. Default: http.DefaultClient.
	Client *http.Client

	Logger *slog.Logger
}

// Open returns the store for location.
func Open(location string, options Options) (Store, error) {
	if location == "" {
		return nil, errors.New("empty storage location")
	}
	if !strings.Contains(location, "://") {
		location = "s3://" + location
	}
	parsed, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parsing storage location: %w", err)
	}

	switch parsed.Scheme {
	case "file":
		if parsed.Path == "" {
			return nil, fmt.Errorf("file location %q has no path", location)
		}
		return &FileStore{Root: parsed.Path}, nil
	case "http", "https":
		client := options.Client
		if client == nil {
			client = http.DefaultClient
		}
		return &HTTPStore{Base: parsed, Client: client}, nil
	case "s3":
		if parsed.Host == "" {
			return nil, fmt.Errorf("s3 location %q has no bucket", location)
		}
		if options.Runner == nil {
			return nil, errors.New("s3 locations need a command runner")
		}
		return &S3Store{
			Bucket: parsed.Host,
			Prefix: strings.Trim(parsed.Path, "/"),
			Runner: options.Runner,
			Logger: options.Logger,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported storage scheme %q", parsed.Scheme)
	}
}

// Join joins key elements with slashes, dropping empty ones.
func Join(elements ...string) string {
	var parts []string
	for _, element := range elements {
		if element = strings.Trim(element, "/"); element != "" {
			parts = append(parts, element)
		}
	}
	return path.Join(parts...)
}
