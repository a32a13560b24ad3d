// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/shipwright/lib/clock"
	"github.com/bureau-foundation/shipwright/lib/schema/release"
)

func newTestService(t *testing.T, handler http.Handler, clk clock.Clock) *Service {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	service, err := NewService(ServiceConfig{
		Endpoint:   server.URL + "/",
		HTTPClient: server.Client(),
		Clock:      clk,
		Logger:     discardLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return service
}

func TestServiceRequestLifecycle(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	var manifest Manifest
	var start StartRequest
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, r.Method+" "+r.URL.Path)
		switch r.Method + " " + r.URL.Path {
		case "POST /signing_requests":
			var body struct {
				Manifest Manifest `json:"manifest"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			manifest = body.Manifest
			w.Write([]byte(`{"signingRequestId": "abc"}`))
		case "POST /signing_requests/abc/start":
			json.NewDecoder(r.Body).Decode(&start)
			w.Write([]byte(`{}`))
		case "GET /signing_requests/abc":
			w.Write([]byte(`{"signingRequest": {"status": "inProgress"}}`))
		default:
			http.NotFound(w, r)
		}
	})
	service := newTestService(t, handler, clock.Fake(epoch))
	ctx := context.Background()

	sent, err := NewManifest(release.KindApp, "Q.app", "com.example.q", "TEAM1")
	if err != nil {
		t.Fatal(err)
	}
	id, err := service.Create(ctx, sent)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id != "abc" {
		t.Errorf("id = %q", id)
	}
	scope := release.SigningScope{Bucket: "signing-bucket", AccountID: "123456789012", RoleName: "signer", Queue: "mac"}
	err = service.Start(ctx, id, StartRequest{
		IAMRole:    scope.RoleARN(),
		S3Location: S3Location{Bucket: scope.Bucket, SourceKey: PackageKey, DestinationKey: SignedKey},
		Queue:      scope.Queue,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	status, err := service.Status(ctx, id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != StatusInProgress {
		t.Errorf("status = %q", status)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 {
		t.Fatalf("requests = %v", seen)
	}
	if manifest.Type != "app" || manifest.App.SigningRequirements.AppIDPrefix != "TEAM1" || manifest.Outputs[0].Path != "Q.app" {
		t.Errorf("manifest = %+v", manifest)
	}
	if start.IAMRole != "arn:aws:iam::123456789012:role/signer" {
		t.Errorf("iamRole = %q", start.IAMRole)
	}
	if start.S3Location.SourceKey != "pre-signed/package.tar.gz" || start.S3Location.DestinationKey != "signed/signed.zip" {
		t.Errorf("s3Location = %+v", start.S3Location)
	}
}

func TestServiceBacksOffOnThrottle(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"signingRequest": {"status": "success"}}`))
	})
	fake := clock.Fake(epoch)
	service := newTestService(t, handler, fake)

	type result struct {
		status string
		err    error
	}
	done := make(chan result, 1)
	go func() {
		status, err := service.Status(context.Background(), "abc")
		done <- result{status, err}
	}()

	// Attempt 1 waits 2s, attempt 2 waits 4s.
	fake.WaitForTimers(1)
	fake.Advance(time.Second)
	if fake.PendingCount() != 1 {
		t.Fatal("first backoff shorter than 2s")
	}
	fake.Advance(time.Second)
	fake.WaitForTimers(1)
	fake.Advance(4 * time.Second)

	got := <-done
	if got.err != nil || got.status != StatusSuccess {
		t.Fatalf("Status = %q, %v", got.status, got.err)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestServiceThrottledEveryAttempt(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusTooManyRequests)
	})
	fake := clock.Fake(epoch)
	service := newTestService(t, handler, fake)

	done := make(chan error, 1)
	go func() {
		_, err := service.Status(context.Background(), "abc")
		done <- err
	}()
	var err error
	for waiting := true; waiting; {
		select {
		case err = <-done:
			waiting = false
		case <-time.After(time.Millisecond):
			if fake.PendingCount() > 0 {
				fake.Advance(time.Minute)
			}
		}
	}

	if !errors.Is(err, ErrThrottled) || !IsTransient(err) {
		t.Fatalf("err = %v, want transient ErrThrottled", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != throttleAttempts {
		t.Errorf("calls = %d, want %d", calls, throttleAttempts)
	}
}

func TestServiceErrorClasses(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{"server error", http.StatusServiceUnavailable, true},
		{"bad gateway", http.StatusBadGateway, true},
		{"forbidden", http.StatusForbidden, false},
		{"not found", http.StatusNotFound, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", test.status)
			})
			service := newTestService(t, handler, clock.Fake(epoch))
			_, err := service.Status(context.Background(), "abc")
			var serviceError *ServiceError
			if !errors.As(err, &serviceError) {
				t.Fatalf("err = %v, want *ServiceError", err)
			}
			if serviceError.StatusCode != test.status || serviceError.Body != "nope" {
				t.Errorf("ServiceError = %+v", serviceError)
			}
			if IsTransient(err) != test.transient {
				t.Errorf("IsTransient = %v, want %v", IsTransient(err), test.transient)
			}
		})
	}
}

func TestNewServiceRejectsEndpoint(t *testing.T) {
	for _, endpoint := range []string{"", "signing.example.com", "ftp://signing.example.com", "https://"} {
		if _, err := NewService(ServiceConfig{Endpoint: endpoint}); err == nil {
			t.Errorf("NewService(%q) succeeded", endpoint)
		}
	}
}
