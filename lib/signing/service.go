// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bureau-foundation/shipwright/lib/clock"
	"github.com/bureau-foundation/shipwright/lib/netutil"
)

// throttleAttempts is how many times a throttled (429) request is
// sent before giving up. Attempt i waits 2^i seconds first.
const throttleAttempts = 7

// ErrThrottled is returned when every attempt was throttled.
var ErrThrottled = errors.New("signing service throttled every attempt")

// Service statuses.
const (
	StatusCreated    = "created"
	StatusProcessing = "processing"
	StatusInProgress = "inProgress"
	StatusSuccess    = "success"
	StatusFailure    = "failure"
)

// ServiceError is a non-2xx response from the signing service.
type ServiceError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("signing service: %s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// ServiceConfig configures a [Service].
type ServiceConfig struct {
	// Endpoint is the API base URL.
	Endpoint string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Clock times throttling backoff. Defaults to clock.Real().
	Clock clock.Clock

	Logger *slog.Logger
}

// Service is the signing service API client: create a request, start
// it against a package in object storage, read its status.
type Service struct {
	endpoint   string
	httpClient *http.Client
	clock      clock.Clock
	logger     *slog.Logger
}

// NewService validates config and returns a client.
func NewService(config ServiceConfig) (*Service, error) {
	endpoint := strings.TrimRight(config.Endpoint, "/")
	parsed, err := url.Parse(endpoint)
	if err != nil || (parsed.Scheme != "https" && parsed.Scheme != "http") || parsed.Host == "" {
		return nil, fmt.Errorf("signing service endpoint %q is not an http(s) URL", config.Endpoint)
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{endpoint: endpoint, httpClient: httpClient, clock: clk, logger: logger}, nil
}

// S3Location names the package the service signs and where it writes
// the result.
type S3Location struct {
	Bucket         string `json:"bucket"`
	SourceKey      string `json:"sourceKey"`
	DestinationKey string `json:"destinationKey"`
}

// StartRequest starts a created signing request.
type StartRequest struct {
	IAMRole    string     `json:"iamRole"`
	S3Location S3Location `json:"s3Location"`
	Queue      string     `json:"queue,omitempty"`
}

// Create registers a signing request for manifest and returns its ID.
func (s *Service) Create(ctx context.Context, manifest Manifest) (string, error) {
	var response struct {
		SigningRequestID string `json:"signingRequestId"`
	}
	if err := s.call(ctx, http.MethodPost, "/signing_requests", map[string]any{"manifest": manifest}, &response); err != nil {
		return "", err
	}
	if response.SigningRequestID == "" {
		return "", errors.New("signing service: create returned no request ID")
	}
	return response.SigningRequestID, nil
}

// Start starts request id.
func (s *Service) Start(ctx context.Context, id string, start StartRequest) error {
	return s.call(ctx, http.MethodPost, "/signing_requests/"+url.PathEscape(id)+"/start", start, nil)
}

// Status returns the status of request id.
func (s *Service) Status(ctx context.Context, id string) (string, error) {
	var response struct {
		SigningRequest struct {
			Status string `json:"status"`
		} `json:"signingRequest"`
	}
	if err := s.call(ctx, http.MethodGet, "/signing_requests/"+url.PathEscape(id), nil, &response); err != nil {
		return "", err
	}
	return response.SigningRequest.Status, nil
}

// call sends one API request, backing off 2^i seconds on every 429.
// Server errors and transport failures are returned as transient.
func (s *Service) call(ctx context.Context, method, path string, requestBody, result any) error {
	var encoded []byte
	if requestBody != nil {
		var err error
		if encoded, err = json.Marshal(requestBody); err != nil {
			return fmt.Errorf("signing service: encoding request: %w", err)
		}
	}

	for attempt := 1; attempt <= throttleAttempts; attempt++ {
		request, err := http.NewRequestWithContext(ctx, method, s.endpoint+path, bytes.NewReader(encoded))
		if err != nil {
			return fmt.Errorf("signing service: creating request: %w", err)
		}
		if requestBody != nil {
			request.Header.Set("Content-Type", "application/json")
		}
		request.Header.Set("Accept", "application/json")

		response, err := s.httpClient.Do(request)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return Transient(fmt.Errorf("signing service: %s %s: %w", method, path, err))
		}
		s.logger.Debug("signing service response", "method", method, "path", path, "status", response.StatusCode)

		if response.StatusCode == http.StatusTooManyRequests {
			response.Body.Close()
			if attempt == throttleAttempts {
				break
			}
			backoff := time.Duration(1<<attempt) * time.Second
			s.logger.Warn("signing service throttled, backing off", "path", path, "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.clock.After(backoff):
			}
			continue
		}

		body, readErr := netutil.ReadResponse(response.Body)
		response.Body.Close()
		if readErr != nil {
			return Transient(fmt.Errorf("signing service: reading response: %w", readErr))
		}
		if response.StatusCode < 200 || response.StatusCode >= 300 {
			serviceError := &ServiceError{
				Method:     method,
				Path:       path,
				StatusCode: response.StatusCode,
				Body:       strings.TrimSpace(string(body)),
			}
			if response.StatusCode >= 500 {
				return Transient(serviceError)
			}
			return serviceError
		}
		if result != nil {
			if err := json.Unmarshal(body, result); err != nil {
				return fmt.Errorf("signing service: decoding %s response: %w", path, err)
			}
		}
		return nil
	}
	return Transient(fmt.Errorf("%w: %s %s", ErrThrottled, method, path))
}
