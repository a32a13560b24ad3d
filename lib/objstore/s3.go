// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package objstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/shipwright/lib/toolexec"
)

// S3Store drives the aws CLI, which handles credentials, multipart
// upload and retries.
type S3Store struct {
	Bucket string
	Prefix string
	Runner toolexec.Runner
	Logger *slog.Logger
}

// URL returns the s3:// URL of key.
func (s *S3Store) URL(key string) string {
	return "s3://" + s.Bucket + "/" + Join(s.Prefix, key)
}

func (s *S3Store) aws(ctx context.Context, args ...string) error {
	command := toolexec.Command{Name: "aws", Args: append([]string{"s3"}, args...)}
	if s.Logger != nil {
		s.Logger.Debug("object storage", "command", command.String())
	}
	_, err := s.Runner.Run(ctx, command)
	return err
}

// Put runs aws s3 cp <source> <url>.
func (s *S3Store) Put(ctx context.Context, key, source string) error {
	if err := s.aws(ctx, "cp", source, s.URL(key)); err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

// Get runs aws s3 cp <url> <destination>.
func (s *S3Store) Get(ctx context.Context, key, destination string) error {
	exists, err := s.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, s.URL(key))
	}
	if err := s.aws(ctx, "cp", s.URL(key), destination); err != nil {
		return fmt.Errorf("downloading %s: %w", key, err)
	}
	return nil
}

// Exists runs aws s3 ls, which exits 1 when nothing matches.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	err := s.aws(ctx, "ls", s.URL(key))
	if err == nil {
		return true, nil
	}
	if toolexec.ExitCode(err) == 1 {
		return false, nil
	}
	return false, fmt.Errorf("listing %s: %w", key, err)
}

// DeletePrefix runs aws s3 rm --recursive.
func (s *S3Store) DeletePrefix(ctx context.Context, prefix string) error {
	if err := s.aws(ctx, "rm", "--recursive", s.URL(prefix)); err != nil {
		return fmt.Errorf("clearing %s: %w", prefix, err)
	}
	return nil
}
