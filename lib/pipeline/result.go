// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// ResultLog writes one JSON object per line as the run progresses. A
// killed run leaves every completed stage readable. A nil *ResultLog
// discards everything.
type ResultLog struct {
	logger  *slog.Logger
	file    *os.File
	encoder *json.Encoder
}

// NewResultLog creates (truncating) the log at path.
func NewResultLog(path string, logger *slog.Logger) (*ResultLog, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating result log %s: %w", path, err)
	}
	return &ResultLog{
		logger:  logger,
		file:    file,
		encoder: json.NewEncoder(file),
	}, nil
}

// Close closes the log file.
func (r *ResultLog) Close() error {
	if r == nil {
		return nil
	}
	return r.file.Close()
}

// StageStatus is the outcome recorded for one stage.
type StageStatus string

const (
	StatusOK      StageStatus = "ok"
	StatusSkipped StageStatus = "skipped"
	StatusFailed  StageStatus = "failed"
)

func (r *ResultLog) writeStart(runID, platform string, stages []Stage) {
	if r == nil {
		return
	}
	r.write(resultStartEntry{
		Type:      "start",
		RunID:     runID,
		Platform:  platform,
		Stages:    stages,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (r *ResultLog) writeStage(index int, stage Stage, status StageStatus, duration time.Duration, reason string) {
	if r == nil {
		return
	}
	r.write(resultStageEntry{
		Type:       "stage",
		Index:      index,
		Stage:      stage,
		Status:     status,
		DurationMS: duration.Milliseconds(),
		Reason:     reason,
	})
}

func (r *ResultLog) writeComplete(duration time.Duration, artifacts []string) {
	if r == nil {
		return
	}
	r.write(resultCompleteEntry{
		Type:       "complete",
		Status:     "ok",
		DurationMS: duration.Milliseconds(),
		Artifacts:  artifacts,
	})
}

func (r *ResultLog) writeFailed(failure *StageError, duration time.Duration) {
	if r == nil {
		return
	}
	r.write(resultFailedEntry{
		Type:        "failed",
		Status:      "failed",
		FailedStage: failure.Stage,
		Class:       failure.Class,
		Error:       failure.Err.Error(),
		DurationMS:  duration.Milliseconds(),
	})
}

func (r *ResultLog) write(entry any) {
	if err := r.encoder.Encode(entry); err != nil {
		r.logger.Warn("failed to write result log entry", "error", err)
		return
	}
	if err := r.file.Sync(); err != nil {
		r.logger.Warn("failed to sync result log", "error", err)
	}
}

type resultStartEntry struct {
	Type      string  `json:"type"`
	RunID     string  `json:"run_id"`
	Platform  string  `json:"platform"`
	Stages    []Stage `json:"stages"`
	Timestamp string  `json:"timestamp"`
}

type resultStageEntry struct {
	Type       string      `json:"type"`
	Index      int         `json:"index"`
	Stage      Stage       `json:"stage"`
	Status     StageStatus `json:"status"`
	DurationMS int64       `json:"duration_ms"`
	Reason     string      `json:"reason,omitempty"`
}

type resultCompleteEntry struct {
	Type       string   `json:"type"`
	Status     string   `json:"status"`
	DurationMS int64    `json:"duration_ms"`
	Artifacts  []string `json:"artifacts,omitempty"`
}

type resultFailedEntry struct {
	Type        string `json:"type"`
	Status      string `json:"status"`
	FailedStage Stage  `json:"failed_stage"`
	Class       Class  `json:"class"`
	Error       string `json:"error"`
	DurationMS  int64  `json:"duration_ms"`
}
